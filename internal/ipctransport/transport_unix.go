//go:build !windows

package ipctransport

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
)

type unixListener struct {
	inner net.Listener
}

// Bind creates the listening socket at path, removing any stale socket file
// left behind by a previous, uncleanly terminated process.
func Bind(path string) (Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating socket directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}

	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &unixListener{inner: l}, nil
}

func (l *unixListener) Accept() (Stream, error) { return l.inner.Accept() }
func (l *unixListener) Close() error             { return l.inner.Close() }

// Connect dials the socket at path.
func Connect(path string) (Stream, error) {
	return net.Dial("unix", path)
}

// Cleanup removes the socket file. Best-effort: a missing file is not an
// error.
func Cleanup(path string) {
	_ = os.Remove(path)
}
