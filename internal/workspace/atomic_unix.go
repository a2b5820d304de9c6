//go:build !windows

package workspace

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile writes data to path atomically via a temp-file-plus-rename.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
