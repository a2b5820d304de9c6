// Package ipcclient implements the worker side of the IPC channel: connect
// with bounded retry, handshake with a local-config fallback, and a
// correlation table for outstanding permission requests.
package ipcclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipctransport"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// Timeouts and retry policy (spec §4.2/§5).
const (
	ConnectRetryAttempts  = 10
	ConnectRetryDelay     = 100 * time.Millisecond
	ConnectTimeout        = 5 * time.Second
	HandshakeTimeout      = 2 * time.Second
	HandshakePollInterval = 10 * time.Millisecond
	PermissionTimeout     = 300 * time.Second
)

type pendingPermission struct {
	resultCh chan core.PermissionResult
}

// Client is a worker's IPC connection to the commander.
type Client struct {
	socketPath string
	workerID   string
	log        *logging.Logger

	mu     sync.Mutex
	conn   ipctransport.Stream
	writer *bufio.Writer

	pendingMu sync.Mutex
	pending   map[string]*pendingPermission

	ackMu sync.Mutex
	ack   *ipcproto.HandshakeAck

	cancelledMu sync.Mutex
	cancelled   bool

	handlersMu    sync.Mutex
	onPing        func()
	onInjectCtx   func(role, text string)
	onCancel      func(reason string)

	done chan struct{}
}

// New creates a client for the given socket path. Call Connect before using
// it.
func New(socketPath, workerID string, log *logging.Logger) *Client {
	return &Client{
		socketPath: socketPath,
		workerID:   workerID,
		log:        log,
		pending:    make(map[string]*pendingPermission),
		done:       make(chan struct{}),
	}
}

// Connect dials the commander's socket with bounded retry: up to
// ConnectRetryAttempts attempts, ConnectRetryDelay apart, each bounded by
// ConnectTimeout. On success it starts the background reader.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < ConnectRetryAttempts; attempt++ {
		connCh := make(chan ipctransport.Stream, 1)
		errCh := make(chan error, 1)
		go func() {
			conn, err := ipctransport.Connect(c.socketPath)
			if err != nil {
				errCh <- err
				return
			}
			connCh <- conn
		}()

		select {
		case conn := <-connCh:
			c.mu.Lock()
			c.conn = conn
			c.writer = bufio.NewWriter(conn)
			c.mu.Unlock()
			go c.readLoop(conn)
			return nil
		case err := <-errCh:
			lastErr = err
		case <-time.After(ConnectTimeout):
			lastErr = fmt.Errorf("connect attempt %d timed out after %s", attempt+1, ConnectTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}

		if attempt < ConnectRetryAttempts-1 {
			select {
			case <-time.After(ConnectRetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return core.ErrConnectionFailed(lastErr)
}

func (c *Client) readLoop(conn ipctransport.Stream) {
	defer close(c.done)
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			msg, decodeErr := ipcproto.DecodeCommanderMessage(line)
			if decodeErr != nil {
				c.log.Warn("dropping malformed frame", "error", decodeErr)
			} else {
				c.handleCommanderMessage(msg)
			}
		}
		if err != nil {
			return
		}
	}
}

// handleCommanderMessage dispatches one decoded commander message: stores
// handshake acks, resolves pending permission requests by id, propagates
// cancellation by aborting every pending request, and is silent on ping
// (the child answers with pong from its own liveness loop, not here).
func (c *Client) handleCommanderMessage(msg ipcproto.CommanderMessage) {
	switch m := msg.(type) {
	case *ipcproto.HandshakeAck:
		c.ackMu.Lock()
		c.ack = m
		c.ackMu.Unlock()
	case *ipcproto.PermissionResponse:
		c.pendingMu.Lock()
		p, ok := c.pending[m.RequestID]
		if ok {
			delete(c.pending, m.RequestID)
		}
		c.pendingMu.Unlock()
		if !ok {
			// Unknown request_id: normative no-op (spec §8).
			return
		}
		p.resultCh <- decodeResult(m.Result)
	case *ipcproto.Cancel:
		c.cancelledMu.Lock()
		c.cancelled = true
		c.cancelledMu.Unlock()

		c.pendingMu.Lock()
		pending := c.pending
		c.pending = make(map[string]*pendingPermission)
		c.pendingMu.Unlock()
		for _, p := range pending {
			p.resultCh <- core.Abort()
		}

		c.handlersMu.Lock()
		onCancel := c.onCancel
		c.handlersMu.Unlock()
		if onCancel != nil {
			onCancel(m.Reason)
		}
	case *ipcproto.Ping:
		c.handlersMu.Lock()
		onPing := c.onPing
		c.handlersMu.Unlock()
		if onPing != nil {
			onPing()
		}
	case *ipcproto.InjectContext:
		c.handlersMu.Lock()
		onInjectCtx := c.onInjectCtx
		c.handlersMu.Unlock()
		if onInjectCtx != nil {
			onInjectCtx(m.Role, m.Text)
		}
	}
}

// OnPing registers a callback invoked whenever the commander sends a
// liveness ping; the caller decides how (and whether) to reply, typically
// with SendPong.
func (c *Client) OnPing(fn func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onPing = fn
}

// OnInjectContext registers a callback invoked whenever the commander
// injects an out-of-band message into the worker's conversation.
func (c *Client) OnInjectContext(fn func(role, text string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onInjectCtx = fn
}

// OnCancel registers a callback invoked once when the commander cancels
// this worker's current turn.
func (c *Client) OnCancel(fn func(reason string)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onCancel = fn
}

func decodeResult(r ipcproto.PermissionResult) core.PermissionResult {
	switch r.Result {
	case ipcproto.ResultApprove:
		return core.Approve()
	case ipcproto.ResultDeny:
		return core.Deny(r.Reason)
	default:
		return core.Abort()
	}
}

func (c *Client) write(msg ipcproto.WorkerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return core.ErrNotConnected()
	}
	data, err := ipcproto.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := c.writer.Write(data); err != nil {
		return err
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return err
	}
	return c.writer.Flush()
}

// Handshake sends the worker's handshake and waits for an ack. If no ack
// arrives within HandshakeTimeout, it logs a warning and falls back to the
// worker's local config (spec §4.2/§8 scenario 6); the connection remains
// usable either way. Fields the ack leaves empty/zero fall back to the
// local config per field.
func (c *Client) Handshake(ctx context.Context, workspacePath, branch, task string, cfg core.WorkerConfig) (*ipcproto.HandshakeAck, error) {
	if err := c.write(ipcproto.NewHandshake(c.workerID, workspacePath, branch, task, cfg.Model, cfg.Provider)); err != nil {
		return nil, err
	}

	ack, err := c.waitForAck(ctx, HandshakeTimeout)
	if err != nil {
		return nil, err
	}
	if ack == nil {
		c.log.Warn("handshake ack timed out, falling back to local config", "worker_id", c.workerID)
		return &ipcproto.HandshakeAck{
			Accepted:          true,
			AutoApprove:       cfg.AutoApprove,
			DangerousPatterns: cfg.DangerousPatterns,
			TimeoutMS:         cfg.TimeoutMS,
		}, nil
	}
	if !ack.Accepted {
		return nil, core.ErrHandshakeFailed(ack.Reason)
	}

	if len(ack.AutoApprove) == 0 {
		ack.AutoApprove = cfg.AutoApprove
	}
	if len(ack.DangerousPatterns) == 0 {
		ack.DangerousPatterns = cfg.DangerousPatterns
	}
	if ack.TimeoutMS == 0 {
		ack.TimeoutMS = cfg.TimeoutMS
	}
	return ack, nil
}

func (c *Client) waitForAck(ctx context.Context, timeout time.Duration) (*ipcproto.HandshakeAck, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(HandshakePollInterval)
	defer ticker.Stop()

	for {
		c.ackMu.Lock()
		ack := c.ack
		c.ackMu.Unlock()
		if ack != nil {
			return ack, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// RequestPermission sends a permission_request and blocks for the
// commander's reply, bounded by PermissionTimeout. If the client has
// already observed a Cancel, it returns Abort immediately.
func (c *Client) RequestPermission(ctx context.Context, toolName string, input json.RawMessage, isDangerous bool, dangerReason string) (core.PermissionResult, error) {
	c.cancelledMu.Lock()
	cancelled := c.cancelled
	c.cancelledMu.Unlock()
	if cancelled {
		return core.Abort(), core.ErrUserCancelled("cancelled before permission request was sent")
	}

	req := ipcproto.NewPermissionRequest(toolName, input, isDangerous, dangerReason)
	resultCh := make(chan core.PermissionResult, 1)

	c.pendingMu.Lock()
	c.pending[req.RequestID] = &pendingPermission{resultCh: resultCh}
	c.pendingMu.Unlock()

	if err := c.write(req); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return core.Abort(), err
	}

	select {
	case result := <-resultCh:
		return result, nil
	case <-time.After(PermissionTimeout):
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return core.Abort(), core.ErrPermissionTimeout()
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, req.RequestID)
		c.pendingMu.Unlock()
		return core.Abort(), ctx.Err()
	}
}

// SendStatus reports a lightweight status transition.
func (c *Client) SendStatus(status, tool string, tokens *ipcproto.TokenUsage) error {
	return c.write(ipcproto.NewStatusUpdate(status, tool, tokens))
}

// SendTaskComplete sends the authoritative success terminal message.
func (c *Client) SendTaskComplete(result ipcproto.WorkerResultPayload) error {
	return c.write(ipcproto.NewTaskComplete(result))
}

// SendTaskError sends the authoritative failure terminal message.
func (c *Client) SendTaskError(message string, recoverable bool) error {
	return c.write(ipcproto.NewTaskError(message, recoverable))
}

// SendLog forwards a structured log line to the commander.
func (c *Client) SendLog(level ipcproto.LogLevel, message string) error {
	return c.write(ipcproto.NewLog(level, message))
}

// SendPong answers a commander-originated ping.
func (c *Client) SendPong() error {
	return c.write(ipcproto.NewPong())
}

// IsCancelled reports whether a Cancel message has been observed.
func (c *Client) IsCancelled() bool {
	c.cancelledMu.Lock()
	defer c.cancelledMu.Unlock()
	return c.cancelled
}

// Disconnect closes the underlying connection. The reader goroutine exits
// on the resulting EOF.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.writer = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
