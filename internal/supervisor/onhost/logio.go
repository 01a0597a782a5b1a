package onhost

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// RotatingWriter is a deliberately undecided seam: log rotation is
// mentioned only via file prefixes, with no committed rotation policy
// beyond monotonic append. appendOnlyWriter below is the only
// implementation this core provides; a future rotation policy can
// satisfy this same interface without touching the monitor loop that
// consumes it.
type RotatingWriter interface {
	io.WriteCloser
}

// appendOnlyWriter opens <logDir>/<prefix>.log for append and never
// truncates or rotates it.
type appendOnlyWriter struct {
	f *os.File
}

// OpenAppendOnly opens the monotonic-append stdout/stderr file for an
// executable.
func OpenAppendOnly(logDir, prefix string) (RotatingWriter, error) {
	path := filepath.Join(logDir, prefix+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log file %s", path)
	}
	return &appendOnlyWriter{f: f}, nil
}

func (w *appendOnlyWriter) Write(p []byte) (int, error) { return w.f.Write(p) }
func (w *appendOnlyWriter) Close() error                { return w.f.Close() }
