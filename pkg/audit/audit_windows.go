//go:build windows

package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/windows"
)

// checkDiskSpace verifies sufficient disk space for audit log writes.
// Only the OS filesystem is checked.
func (l *Logger) checkDiskSpace() error {
	if _, ok := l.fs.(*afero.OsFs); !ok {
		return nil
	}

	path := l.path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Dir(path)
	}
	ptr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return nil
	}

	var available, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(ptr, &available, &total, &free); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to check disk space for audit: %v\n", err)
		return nil
	}
	if available < MinAuditDiskSpace {
		return fmt.Errorf("%w: only %d bytes available, need at least %d",
			ErrInsufficientDisk, available, MinAuditDiskSpace)
	}
	return nil
}
