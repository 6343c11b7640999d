//go:build !windows

package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// checkDiskSpace verifies sufficient disk space for audit log writes.
// Only the OS filesystem is checked.
func (l *Logger) checkDiskSpace() error {
	if _, ok := l.fs.(*afero.OsFs); !ok {
		return nil
	}

	var stat unix.Statfs_t
	if err := unix.Statfs(l.path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(l.path), &stat); err != nil {
			// Never block auditing on a failed probe
			fmt.Fprintf(os.Stderr, "warning: failed to check disk space for audit: %v\n", err)
			return nil
		}
	}

	available := stat.Bavail * uint64(stat.Bsize) //nolint:gosec // block size is never negative
	if available < MinAuditDiskSpace {
		return fmt.Errorf("%w: only %d bytes available, need at least %d",
			ErrInsufficientDisk, available, MinAuditDiskSpace)
	}
	return nil
}
