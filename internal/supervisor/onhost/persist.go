package onhost

import (
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/opsfleet/agent-control/internal/layout"
	"github.com/opsfleet/agent-control/internal/types"
)

// SecureWriter persists file-typed variable content with the mandated
// permissions (0600 unix files, 0700 directories). The unix
// implementation below is complete; a Windows ACL variant is a
// documented no-op seam left for the platform-gated build since Windows ACL plumbing is explicitly
// out of this core's scope.
type SecureWriter interface {
	Write(path string, content []byte) error
}

// unixSecureWriter writes via the shared write-rename primitive, which
// already enforces 0600/0700.
type unixSecureWriter struct{}

func (unixSecureWriter) Write(path string, content []byte) error {
	return layout.WriteFileAtomic(path, content)
}

// DefaultSecureWriter is the writer used outside of tests.
var DefaultSecureWriter SecureWriter = unixSecureWriter{}

// PersistFiles writes every file-typed variable under root, honoring each
// FileValue's logical sub-path.
func PersistFiles(w SecureWriter, root string, files []types.FileValue) error {
	for _, f := range files {
		if f.Path == "" {
			return errors.Errorf("file-typed variable has no target path")
		}
		full := filepath.Join(root, f.Path)
		if err := w.Write(full, f.Content); err != nil {
			return errors.Wrapf(err, "persisting file variable to %s", full)
		}
	}
	return nil
}
