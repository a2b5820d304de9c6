//go:build windows

package ipctransport

import (
	"net"
	"time"

	"golang.org/x/sys/windows"
)

// pipeConn adapts a Windows named pipe handle to net.Conn so the rest of
// the orchestration stack (ipcserver, ipcclient) can treat it exactly like
// a Unix domain socket connection.
type pipeConn struct {
	handle windows.Handle
}

func newPipeConn(h windows.Handle) *pipeConn { return &pipeConn{handle: h} }

func (c *pipeConn) Read(b []byte) (int, error) {
	var n uint32
	err := windows.ReadFile(c.handle, b, &n, nil)
	if err == windows.ERROR_BROKEN_PIPE {
		return int(n), netErrEOF{}
	}
	return int(n), err
}

func (c *pipeConn) Write(b []byte) (int, error) {
	var n uint32
	err := windows.WriteFile(c.handle, b, &n, nil)
	return int(n), err
}

func (c *pipeConn) Close() error {
	windows.FlushFileBuffers(c.handle)
	windows.DisconnectNamedPipe(c.handle)
	return windows.CloseHandle(c.handle)
}

func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr{} }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr{} }
func (c *pipeConn) SetDeadline(_ time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(_ time.Time) error   { return nil }
func (c *pipeConn) SetWriteDeadline(_ time.Time) error  { return nil }

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "named-pipe" }

type netErrEOF struct{}

func (netErrEOF) Error() string   { return "EOF" }
func (netErrEOF) Timeout() bool   { return false }
func (netErrEOF) Temporary() bool { return false }
