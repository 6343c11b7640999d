//go:build windows

package mcp

import (
	"os"
)

// openPolicyFile opens path read-only. Windows has no O_NOFOLLOW; creating
// symlinks there needs elevated privileges.
func openPolicyFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return f, nil
}

// checkFileOwnership is a no-op: ownership on Windows is ACL based.
func checkFileOwnership(_ os.FileInfo) error {
	return nil
}
