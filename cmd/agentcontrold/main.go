// Command agentcontrold is the control-plane daemon: it loads local and
// remote configuration, builds and starts a supervisor per configured
// sub-agent, and runs the Control-Plane Loop until asked to stop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opsfleet/agent-control/internal/agenttype"
	"github.com/opsfleet/agent-control/internal/config"
	"github.com/opsfleet/agent-control/internal/controlplane"
	"github.com/opsfleet/agent-control/internal/instanceid"
	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/remoteconfig"
	"github.com/opsfleet/agent-control/internal/values"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type cliFlags struct {
	localDir       string
	remoteDir      string
	logsDir        string
	printDebugInfo bool
	logLevel       string
	kubeconfig     string
	metricsAddr    string
}

func newRootCommand() *cobra.Command {
	flags := &cliFlags{}

	cmd := &cobra.Command{
		Use:   "agentcontrold",
		Short: "Run the agent control-plane daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.localDir, "local-dir", "/etc/agent-control", "local configuration and values directory")
	cmd.Flags().StringVar(&flags.remoteDir, "remote-dir", "/var/lib/agent-control", "remote (persisted) configuration directory")
	cmd.Flags().StringVar(&flags.logsDir, "logs-dir", "/var/log/agent-control", "sub-agent stdout/stderr directory")
	cmd.Flags().BoolVar(&flags.printDebugInfo, "print-debug-info", false, "print the number of loaded agent types and the configured sub-agents, then exit")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	cmd.Flags().StringVar(&flags.kubeconfig, "kubeconfig", "", "path to a kubeconfig file; defaults to in-cluster config when k8s.cluster_name is set in the control config and this is empty")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "listen address for the Prometheus /metrics endpoint; empty disables it")

	return cmd
}

func run(ctx context.Context, flags *cliFlags) error {
	logger := newLogger(flags.logLevel)

	dirs := layout.Dirs{Local: flags.localDir, Remote: flags.remoteDir, Logs: flags.logsDir}

	registry, err := agenttype.LoadEmbedded(logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load embedded agent types")
	}
	if err := registry.LoadDynamic(logger, dirs.LocalAgentTypesDir()); err != nil {
		logger.WithError(err).Fatal("failed to load dynamic agent types")
	}

	cfg, err := loadControlConfig(dirs, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to load control configuration")
	}

	if flags.printDebugInfo {
		fmt.Printf("agent types loaded: %d\n", registry.Len())
		fmt.Printf("configured sub-agents: %d\n", len(cfg.Agents))
		for id, a := range cfg.Agents {
			fmt.Printf("  %s -> %s\n", id, a.AgentType)
		}
		return nil
	}

	repo := values.New(dirs)
	source, err := newControlSource(cfg, dirs.Logs)
	if err != nil {
		logger.WithError(err).Fatal("failed to build control-plane source")
	}

	builders, err := selectBuilders(source, dirs, flags, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build supervisor builders")
	}
	loop := controlplane.New(registry, repo, source, builders, logger)
	loop.RemoteConfig = &remoteconfig.Pipeline{
		Repo:    repo,
		Updates: loop.Updates,
		Status:  loop.RemoteStatus,
		Logger:  logger,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if flags.metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(flags.metricsAddr, mux); err != nil {
				logger.WithError(err).Warn("metrics endpoint stopped")
			}
		}()
	}

	if err := loop.Startup(runCtx); err != nil {
		logger.WithError(err).Fatal("control-plane loop failed to start")
	}

	ids := instanceid.Identifiers{"host_id": cfg.HostID}
	if cfg.K8s.ClusterName != "" {
		ids["cluster_name"] = cfg.K8s.ClusterName
	}
	if err := loop.PublishDescription(instanceid.New(dirs), ids); err != nil {
		logger.WithError(err).Warn("failed to resolve instance identity")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received stop signal, shutting down")
		loop.RequestStop()
	}()

	loop.Run(runCtx)
	return nil
}

func newLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

func loadControlConfig(dirs layout.Dirs, logger logrus.FieldLogger) (config.Config, error) {
	raw, err := layout.ReadFile(dirs.RemoteConfigPath())
	if err != nil {
		return config.Config{}, err
	}
	if raw == nil {
		raw, err = layout.ReadFile(dirs.LocalConfigPath())
		if err != nil {
			return config.Config{}, err
		}
	}
	if raw == nil {
		return config.Config{}, nil
	}

	cfg, migrated, err := config.Parse(raw)
	if err != nil {
		return config.Config{}, err
	}
	if migrated {
		logger.Info("migrated legacy control configuration shape")
	}
	return cfg, nil
}
