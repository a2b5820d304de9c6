// Package commander owns the authoritative worker table, the IPC server,
// and the workspace isolator: it spawns worker processes, routes their
// messages through the per-worker state machine, mediates tool permissions,
// and reports lifecycle transitions on an outbound event stream (spec §4.1).
package commander

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcserver"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/workspace"
)

// CancelGracePeriod is how long cancel_worker waits for a cancelled child
// to exit on its own before it is killed outright.
const CancelGracePeriod = 500 * time.Millisecond

// EventChannelSize bounds the outbound lifecycle event stream.
const EventChannelSize = 256

// Config configures a Commander.
type Config struct {
	MaxWorkers    int64
	CleanupOnExit bool
	RestartPolicy core.RestartPolicy

	// SocketDir is the directory per-worker IPC sockets are created under.
	SocketDir string
	// ChildBinary is the executable launched for each worker; it must
	// support the --child-mode/--socket-path/--child-id/--child-task flags.
	ChildBinary string

	Isolator workspace.Isolator
	Launcher Launcher
	Log      *logging.Logger
}

// Commander is the orchestration subsystem's parent-process half.
type Commander struct {
	cfg Config
	log *logging.Logger

	server *ipcserver.Server
	sem    *semaphore.Weighted

	mu      sync.Mutex
	workers map[string]*workerState
	// pending tracks in-flight permission requests as "workerID:requestID"
	// so RespondPermission can be a no-op on an unknown or already-answered
	// id (spec §4.1 idempotent replay safety).
	pending map[string]struct{}

	events chan core.WorkerEvent

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a Commander. Call Start before spawning workers.
func New(cfg Config) *Commander {
	log := cfg.Log
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.Launcher == nil {
		cfg.Launcher = NewExecLauncher()
	}
	return &Commander{
		cfg:     cfg,
		log:     log,
		sem:     semaphore.NewWeighted(cfg.MaxWorkers),
		workers: make(map[string]*workerState),
		pending: make(map[string]struct{}),
		events:  make(chan core.WorkerEvent, EventChannelSize),
	}
}

// Start binds the IPC server and begins accepting worker connections. The
// commander socket (shared by all workers) lives at <SocketDir>/commander.sock.
func (c *Commander) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.ctx = ctx
	c.cancel = cancel

	socketPath := filepath.Join(c.cfg.SocketDir, "commander.sock")
	c.server = ipcserver.New(socketPath, c.log)
	if err := c.server.Start(); err != nil {
		cancel()
		return err
	}
	go func() {
		if err := c.server.AcceptLoop(); err != nil {
			c.log.Error("IPC accept loop exited", "error", err)
		}
	}()
	return nil
}

// SocketPath returns the endpoint workers connect to.
func (c *Commander) SocketPath() string { return c.server.SocketPath() }

// Events returns the commander's outbound lifecycle event stream.
func (c *Commander) Events() <-chan core.WorkerEvent { return c.events }

func (c *Commander) emit(ev core.WorkerEvent) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event stream full, dropping event", "kind", ev.Kind, "worker_id", ev.WorkerID)
	}
}

// ActiveWorkers returns the ids of workers not yet in a terminal state.
func (c *Commander) ActiveWorkers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.workers))
	for id, w := range c.workers {
		if !w.status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// SpawnWorker creates an isolated workspace, launches a child process, and
// registers worker state with status Starting (spec §4.1 spawn_worker).
func (c *Commander) SpawnWorker(ctx context.Context, config core.WorkerConfig, baseBranch string) (string, error) {
	c.mu.Lock()
	if _, exists := c.workers[config.ID]; exists {
		c.mu.Unlock()
		return "", core.ErrWorkerAlreadyExists(config.ID)
	}
	c.mu.Unlock()

	if !c.sem.TryAcquire(1) {
		return "", core.ErrMaxWorkersReached(int(c.cfg.MaxWorkers))
	}

	ws, err := c.cfg.Isolator.Create(ctx, config.Branch, baseBranch)
	if err != nil {
		c.sem.Release(1)
		return "", err
	}

	proc, err := c.launchChild(ctx, config, ws)
	if err != nil {
		_ = c.cfg.Isolator.Remove(ctx, ws, false)
		c.sem.Release(1)
		return "", core.ErrSpawnFailed("launching child process", err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.workers[config.ID] = &workerState{
		config:    config,
		workspace: ws,
		status:    core.StartingStatus(),
		process:   proc,
		done:      done,
		startedAt: time.Now(),
	}
	c.mu.Unlock()

	go c.watchExit(config.ID, proc, done)

	return config.ID, nil
}

// watchExit blocks on a worker's process until it exits, signals done so
// other goroutines can observe the exit without calling Wait() themselves,
// and reconciles the worker table against the exit code. A worker that
// already reached a terminal state via task_complete/task_error before
// exiting is left alone by ReconcileDisconnect.
func (c *Commander) watchExit(workerID string, proc Process, done chan struct{}) {
	state, err := proc.Wait()
	close(done)
	exitCode := 0
	if state != nil {
		exitCode = state.ExitCode()
	} else if err != nil {
		exitCode = -1
	}
	c.ReconcileDisconnect(workerID, exitCode)
}

func (c *Commander) launchChild(ctx context.Context, config core.WorkerConfig, ws core.WorkspaceInfo) (Process, error) {
	args := []string{
		"--child-mode",
		"--socket-path", c.SocketPath(),
		"--child-id", config.ID,
		"--child-task", config.Task,
	}
	return c.cfg.Launcher.Launch(ctx, c.cfg.ChildBinary, args, ws.Path, nil)
}

// ProcessMessages consumes the IPC server's inbound channel until ctx is
// done or the channel closes, dispatching each message through the
// per-worker state machine (spec §4.1 process_messages). Intended to run in
// its own goroutine for the commander's lifetime.
func (c *Commander) ProcessMessages(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-c.server.Inbound():
			if !ok {
				return nil
			}
			c.dispatch(env)
		}
	}
}

func (c *Commander) dispatch(env ipcserver.Envelope) {
	c.mu.Lock()
	w, ok := c.workers[env.WorkerID]
	c.mu.Unlock()
	if !ok {
		c.log.Warn("message from unknown worker", "worker_id", env.WorkerID, "type", env.Message.Kind())
		return
	}

	switch m := env.Message.(type) {
	case *ipcproto.Handshake:
		c.mu.Lock()
		w.status = core.IdleStatus()
		c.mu.Unlock()
		ack := ipcproto.NewHandshakeAck(w.config.AutoApprove, w.config.DangerousPatterns, w.config.TimeoutMS)
		if err := c.server.Send(env.WorkerID, ack); err != nil {
			c.log.Warn("sending handshake ack failed", "worker_id", env.WorkerID, "error", err)
		}
		c.emit(core.ConnectedEvent(env.WorkerID))

	case *ipcproto.PermissionRequest:
		c.mu.Lock()
		w.status = core.WaitingPermissionStatus(m.ToolName)
		c.pending[pendingKey(env.WorkerID, m.RequestID)] = struct{}{}
		c.mu.Unlock()
		c.emit(core.PermissionRequestEvent(env.WorkerID, m.RequestID, m.ToolName, m.Input, m.IsDangerous, m.DangerReason))

	case *ipcproto.StatusUpdate:
		c.mu.Lock()
		if m.Tokens != nil {
			w.tokens.InputTokens += m.Tokens.InputTokens
			w.tokens.OutputTokens += m.Tokens.OutputTokens
		}
		status := statusFromUpdate(m)
		w.status = status
		c.mu.Unlock()
		c.emit(core.StatusChangedEvent(env.WorkerID, status))

	case *ipcproto.TaskComplete:
		result := resultFromPayload(m.Result)
		now := time.Now()
		c.mu.Lock()
		w.status = core.CompleteStatus(result)
		w.completedAt = &now
		c.mu.Unlock()
		c.emit(core.CompletedEvent(env.WorkerID, result))

	case *ipcproto.TaskError:
		now := time.Now()
		c.mu.Lock()
		w.status = core.FailedStatus(m.Message, m.Recoverable)
		w.completedAt = &now
		c.mu.Unlock()
		c.emit(core.FailedEvent(env.WorkerID, m.Message, m.Recoverable))

	case *ipcproto.Log:
		c.log.LogWorker(env.WorkerID, string(m.Level), m.Message)

	case *ipcproto.Pong:
		// Liveness observed; nothing else to update.
	}
}

func pendingKey(workerID, requestID string) string { return workerID + ":" + requestID }

func statusFromUpdate(m *ipcproto.StatusUpdate) core.WorkerStatus {
	switch m.Status {
	case ipcproto.StatusThinking:
		return core.ThinkingStatus()
	case ipcproto.StatusToolCall:
		return core.ToolCallStatus(m.Tool)
	case ipcproto.StatusIdle:
		return core.IdleStatus()
	case ipcproto.StatusWaitingPermission:
		return core.WaitingPermissionStatus(m.Tool)
	default:
		return core.ThinkingStatus()
	}
}

func resultFromPayload(p ipcproto.WorkerResultPayload) *core.WorkerResult {
	var usage *core.TokenTotals
	if p.Usage != nil {
		usage = &core.TokenTotals{InputTokens: p.Usage.InputTokens, OutputTokens: p.Usage.OutputTokens}
	}
	return &core.WorkerResult{
		Success:      p.Success,
		Response:     p.Response,
		ToolCount:    p.ToolCount,
		DurationMS:   p.DurationMS,
		Commits:      p.Commits,
		FilesChanged: p.FilesChanged,
		Branch:       p.Branch,
		Usage:        usage,
	}
}

// RespondPermission answers a worker's permission_request. A no-op on an
// unknown or already-resolved request id, for idempotent replay safety
// (spec §4.1 respond_permission).
func (c *Commander) RespondPermission(workerID, requestID string, result core.PermissionResult) error {
	key := pendingKey(workerID, requestID)
	c.mu.Lock()
	_, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	w := c.workers[workerID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	var msg ipcproto.CommanderMessage
	switch result.Kind {
	case core.PermissionApprove:
		msg = ipcproto.NewPermissionApprove(requestID)
	case core.PermissionDeny:
		msg = ipcproto.NewPermissionDeny(requestID, result.Reason)
	default:
		msg = ipcproto.NewPermissionAbort(requestID)
	}
	if err := c.server.Send(workerID, msg); err != nil {
		return err
	}

	if w != nil {
		c.mu.Lock()
		if w.status.Kind == core.WorkerWaitingPermission {
			w.status = core.ThinkingStatus()
		}
		c.mu.Unlock()
	}
	return nil
}

// CancelWorker sends Cancel, waits a short grace period, and force-kills the
// child if it hasn't exited. Idempotent: a no-op on an already-terminal or
// unknown worker (spec §4.1 cancel_worker).
func (c *Commander) CancelWorker(workerID string) error {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok || w.status.IsTerminal() {
		c.mu.Unlock()
		return nil
	}
	proc := w.process
	done := w.done
	c.mu.Unlock()

	if err := c.server.Send(workerID, ipcproto.NewCancel("cancelled by commander")); err != nil {
		c.log.Warn("sending cancel failed", "worker_id", workerID, "error", err)
	}

	if proc != nil && done != nil {
		select {
		case <-done:
		case <-time.After(CancelGracePeriod):
			if err := proc.Kill(); err != nil {
				c.log.Warn("force-killing cancelled worker failed", "worker_id", workerID, "error", err)
			}
			<-done
		}
	}

	now := time.Now()
	c.mu.Lock()
	w.status = core.CancelledStatus()
	w.completedAt = &now
	c.mu.Unlock()
	c.emit(core.CancelledEvent(workerID))
	return nil
}

// CleanupWorker removes the worker's workspace and drops its table entry
// (spec §4.1 cleanup_worker).
func (c *Commander) CleanupWorker(ctx context.Context, workerID string, deleteBranch bool) error {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	c.mu.Unlock()
	if !ok {
		return core.ErrWorkerNotFound(workerID)
	}

	if err := c.cfg.Isolator.Remove(ctx, w.workspace, deleteBranch); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.workers, workerID)
	for key := range c.pending {
		if strings.HasPrefix(key, workerID+":") {
			delete(c.pending, key)
		}
	}
	c.mu.Unlock()
	c.sem.Release(1)
	return nil
}

// ReconcileDisconnect handles a child that exited without sending a
// terminal message (spec §4.1 Failure semantics): a nonzero exit is a
// non-recoverable Failed; a zero exit is reconciled against RestartPolicy,
// synthesizing Disconnected when restarts are exhausted or disabled.
func (c *Commander) ReconcileDisconnect(workerID string, exitCode int) {
	c.mu.Lock()
	w, ok := c.workers[workerID]
	if !ok || w.status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	now := time.Now()

	if exitCode != 0 {
		msg := fmt.Sprintf("worker exited with status %d", exitCode)
		w.status = core.FailedStatus(msg, false)
		w.completedAt = &now
		c.mu.Unlock()
		c.emit(core.FailedEvent(workerID, msg, false))
		return
	}

	if !c.cfg.RestartPolicy.Disabled && w.restartCount < c.cfg.RestartPolicy.MaxRestarts {
		w.restartCount++
		w.status = core.FailedStatus("disconnected", true)
		w.completedAt = &now
		c.mu.Unlock()
		c.emit(core.FailedEvent(workerID, "disconnected", true))
		return
	}

	w.status = core.DisconnectedStatus()
	w.completedAt = &now
	c.mu.Unlock()
	c.emit(core.DisconnectedEvent(workerID))
}

// Shutdown cancels every active worker, optionally cleans up their
// workspaces per cfg.CleanupOnExit, and stops the IPC server (spec §4.1
// shutdown).
func (c *Commander) Shutdown(ctx context.Context) error {
	for _, id := range c.ActiveWorkers() {
		if err := c.CancelWorker(id); err != nil {
			c.log.Warn("cancel during shutdown failed", "worker_id", id, "error", err)
		}
	}

	if c.cfg.CleanupOnExit {
		c.mu.Lock()
		ids := make([]string, 0, len(c.workers))
		for id := range c.workers {
			ids = append(ids, id)
		}
		c.mu.Unlock()
		for _, id := range ids {
			if err := c.CleanupWorker(ctx, id, false); err != nil {
				c.log.Warn("cleanup during shutdown failed", "worker_id", id, "error", err)
			}
		}
	}

	if c.cancel != nil {
		c.cancel()
	}
	close(c.events)
	if c.server != nil {
		return c.server.Stop()
	}
	return nil
}
