package childagent

import (
	"context"
	"errors"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/agentloop"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcclient"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/ipcproto"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// commitHistoryDepth bounds how far back Run looks for commits made during
// the task, mirroring the original child agent's fixed HEAD~10..HEAD window.
const commitHistoryDepth = 10

// Options configures one child-agent run. Provider and Tools are the
// external collaborators named in spec §6; the caller wires in whatever
// concrete adapters it has.
type Options struct {
	SocketPath string
	WorkerID   string
	Task       string
	Cwd        string

	Provider core.ModelProvider
	Tools    core.ToolRegistry
	Log      *logging.Logger
}

// Agent runs one task inside a worker process: connect, handshake, drive an
// agent-loop turn with IPC-backed status and confirmation, and send exactly
// one terminal message before returning (spec §4.2).
type Agent struct {
	opts      Options
	client    *ipcclient.Client
	gitClient *git.Client
	workspace core.WorkspaceInfo
	log       *logging.Logger
	cancel    *agentloop.CancelSignal
}

// New builds an Agent. Call Run to execute it.
func New(opts Options) *Agent {
	log := opts.Log
	if log == nil {
		log = logging.NewNop()
	}
	return &Agent{
		opts:   opts,
		client: ipcclient.New(opts.SocketPath, opts.WorkerID, log),
		log:    log,
		cancel: agentloop.NewCancelSignal(),
	}
}

// Run executes the full child lifecycle and returns the same WorkerResult
// the commander receives via task_complete, or an error only if the
// terminal message itself could not be sent — a task failure is always
// reported as a WorkerResult{Success: false}, not a returned error.
func (a *Agent) Run(ctx context.Context) (*core.WorkerResult, error) {
	start := time.Now()

	info, gitClient, err := detectWorkspace(ctx, a.opts.Cwd)
	if err != nil {
		return nil, err
	}
	a.workspace = info
	a.gitClient = gitClient

	a.log = a.log.WithWorker(a.opts.WorkerID)
	a.log.Info("starting child agent", "branch", info.Branch, "multi_repo", info.IsMultiRepo())

	if err := a.client.Connect(ctx); err != nil {
		return nil, err
	}
	defer a.client.Disconnect()

	a.client.OnCancel(func(reason string) {
		a.log.Warn("received cancel from commander", "reason", reason)
		a.cancel.Cancel()
	})
	a.client.OnPing(func() {
		if err := a.client.SendPong(); err != nil {
			a.log.Warn("failed to answer ping", "error", err)
		}
	})

	cfg := core.WorkerConfig{ID: a.opts.WorkerID, Branch: info.Branch, Task: a.opts.Task}
	ack, err := a.client.Handshake(ctx, info.Path, info.Branch, a.opts.Task, cfg)
	if err != nil {
		return nil, err
	}
	a.log.Info("handshake complete", "auto_approve", ack.AutoApprove)

	response, stats, runErr := a.executeTask(ctx, ack)
	durationMS := time.Since(start).Milliseconds()

	if runErr != nil {
		recoverable := isTransportError(runErr)
		if err := a.client.SendTaskError(runErr.Error(), recoverable); err != nil {
			return nil, err
		}
		return &core.WorkerResult{
			Success:    false,
			Response:   runErr.Error(),
			DurationMS: durationMS,
			Branch:     info.Branch,
		}, nil
	}

	commits, files := a.collectVCSHistory(ctx)
	result := &core.WorkerResult{
		Success:      true,
		Response:     response,
		ToolCount:    stats.ToolCallCount,
		DurationMS:   durationMS,
		Commits:      commits,
		FilesChanged: files,
		Branch:       info.Branch,
		Usage:        &core.TokenTotals{InputTokens: stats.InputTokens, OutputTokens: stats.OutputTokens},
	}

	payload := ipcproto.WorkerResultPayload{
		Success:      result.Success,
		Response:     result.Response,
		ToolCount:    result.ToolCount,
		DurationMS:   result.DurationMS,
		Commits:      result.Commits,
		FilesChanged: result.FilesChanged,
		Branch:       result.Branch,
		Usage:        &ipcproto.TokenUsage{InputTokens: stats.InputTokens, OutputTokens: stats.OutputTokens},
	}
	if err := a.client.SendTaskComplete(payload); err != nil {
		return nil, err
	}
	return result, nil
}

// executeTask wires the IPC-decorated provider, tool registry, and
// confirmation bridge into an agent-loop turn (spec §4.3).
func (a *Agent) executeTask(ctx context.Context, ack *ipcproto.HandshakeAck) (string, agentloop.TurnStats, error) {
	var stats agentloop.TurnStats

	loopCfg := agentloop.DefaultConfig()
	loopCfg.AutoApprove = ack.AutoApprove
	loopCfg.DangerousPatterns = ack.DangerousPatterns
	if ack.TimeoutMS > 0 {
		loopCfg.MaxTurnDuration = time.Duration(ack.TimeoutMS) * time.Millisecond
	}

	loop := agentloop.New(loopCfg, agentloop.Options{
		Provider: &statusProvider{ModelProvider: a.opts.Provider, client: a.client},
		Tools:    &statusToolRegistry{ToolRegistry: a.opts.Tools, client: a.client},
		Log:      a.log,
		Confirm:  ipcConfirm(a.client),
		OnCompaction: func(starting bool) {
			if starting {
				a.log.Info("compacting context")
			}
		},
		OnTurnComplete: func(ts agentloop.TurnStats) { stats = ts },
	})

	response, err := loop.ChatWithCancel(ctx, a.opts.Task, a.cancel)
	if err != nil {
		return "", stats, err
	}
	return response, stats, nil
}

// collectVCSHistory gathers the commits and changed files made during the
// task for the terminal message, best-effort: failures are logged and
// reported as empty, never as the task's own error (original source
// `get_commits`/`get_changed_files` behave the same way).
func (a *Agent) collectVCSHistory(ctx context.Context) ([]string, []string) {
	if a.gitClient == nil {
		return nil, nil
	}

	commits, err := a.gitClient.Log(ctx, commitHistoryDepth)
	var commitLines []string
	if err != nil {
		a.log.Warn("failed to collect commit history", "error", err)
	} else {
		commitLines = make([]string, 0, len(commits))
		for _, c := range commits {
			commitLines = append(commitLines, c.Hash[:min(7, len(c.Hash))]+" "+c.Subject)
		}
	}

	base, err := a.gitClient.RevParse(ctx, "HEAD~1")
	if err != nil {
		return commitLines, nil
	}
	files, err := a.gitClient.DiffFiles(ctx, base, "HEAD")
	if err != nil {
		a.log.Warn("failed to collect changed files", "error", err)
		return commitLines, nil
	}
	return commitLines, files
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// isTransportError reports whether err is categorized as a transport-level
// failure, matching spec §4.2's "recoverable = error is transport-level"
// rule for task_error. Cancellation and every other domain error category
// report recoverable = false.
func isTransportError(err error) bool {
	var domainErr *core.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Category == core.ErrCatNetwork
	}
	return false
}
