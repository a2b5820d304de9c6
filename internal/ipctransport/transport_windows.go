//go:build windows

package ipctransport

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/windows"
)

const (
	pipeConnectRetries = 50
	pipeConnectDelay   = 50 * time.Millisecond
	pipeBufferSize     = 65536
)

// pipeName maps a socket-path-shaped string to the \\.\pipe\ namespace,
// matching the commander/child convention of passing the same --socket-path
// value on every platform.
func pipeName(path string) string {
	if strings.HasPrefix(path, `\\.\pipe\`) {
		return path
	}
	name := strings.NewReplacer("/", "-", "\\", "-", ":", "-").Replace(path)
	return `\\.\pipe\` + strings.Trim(name, "-")
}

type namedPipeListener struct {
	name string
}

// Bind records the pipe namespace; unlike Unix domain sockets, Windows named
// pipes are created per-Accept, not at bind time.
func Bind(path string) (Listener, error) {
	return &namedPipeListener{name: pipeName(path)}, nil
}

func (l *namedPipeListener) Accept() (Stream, error) {
	sa := &windows.SecurityAttributes{}
	h, err := windows.CreateNamedPipe(
		windows.StringToUTF16Ptr(l.name),
		windows.PIPE_ACCESS_DUPLEX,
		windows.PIPE_TYPE_BYTE|windows.PIPE_READMODE_BYTE|windows.PIPE_WAIT,
		windows.PIPE_UNLIMITED_INSTANCES,
		pipeBufferSize,
		pipeBufferSize,
		0,
		sa,
	)
	if err != nil {
		return nil, fmt.Errorf("creating named pipe instance: %w", err)
	}

	if err := windows.ConnectNamedPipe(h, nil); err != nil && err != windows.ERROR_PIPE_CONNECTED {
		windows.CloseHandle(h)
		return nil, fmt.Errorf("connecting named pipe: %w", err)
	}

	return newPipeConn(h), nil
}

func (l *namedPipeListener) Close() error { return nil }

// Connect opens the pipe as a client, retrying while the server has not yet
// called Accept (CreateNamedPipe has not run). This mirrors the source's
// distinct, tighter retry loop used only for this race — separate from the
// IPC client's higher-level connect-retry policy in ipcclient.
func Connect(path string) (Stream, error) {
	name := pipeName(path)
	namePtr := windows.StringToUTF16Ptr(name)

	var lastErr error
	for attempt := 0; attempt < pipeConnectRetries; attempt++ {
		h, err := windows.CreateFile(
			namePtr,
			windows.GENERIC_READ|windows.GENERIC_WRITE,
			0,
			nil,
			windows.OPEN_EXISTING,
			0,
			0,
		)
		if err == nil {
			return newPipeConn(h), nil
		}
		lastErr = err
		time.Sleep(pipeConnectDelay)
	}
	return nil, fmt.Errorf("connecting to named pipe %s: %w", name, lastErr)
}

// Cleanup is a no-op on Windows: pipe instances are destroyed when their
// handles close.
func Cleanup(_ string) {}
