package probe

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/opsfleet/agent-control/internal/events"
	"github.com/opsfleet/agent-control/internal/layout"
)

// statusDocument is the on-disk shape an on-host agent writes its own
// health into, read by FileChecker.
type statusDocument struct {
	Healthy            bool   `json:"healthy"`
	Status             string `json:"status"`
	LastError          string `json:"last_error,omitempty"`
	StartTimeUnixNano  uint64 `json:"start_time_unix_nano"`
	StatusTimeUnixNano uint64 `json:"status_time_unix_nano"`
}

// FileChecker is the on-host "File" probe: reads a small status document
// written by the monitored executable itself. A malformed file is a
// probe-level error, not an unhealthy result.
type FileChecker struct {
	Path string
}

// Check implements Checker.
func (c *FileChecker) Check(ctx context.Context) (Result, error) {
	raw, err := layout.ReadFile(c.Path)
	if err != nil {
		return Result{}, errors.Wrapf(err, "reading status file %s", c.Path)
	}

	var doc statusDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Result{}, errors.Wrapf(err, "parsing status file %s", c.Path)
	}

	now := uint64(time.Now().UnixNano())
	if doc.StatusTimeUnixNano == 0 {
		doc.StatusTimeUnixNano = now
	}

	return Result{Health: &events.HealthUpdate{
		Healthy:            doc.Healthy,
		Status:             doc.Status,
		LastError:          doc.LastError,
		StartTimeUnixNano:  doc.StartTimeUnixNano,
		StatusTimeUnixNano: doc.StatusTimeUnixNano,
	}}, nil
}
