package childagent

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/fsutil"
)

// workspaceTools is the built-in core.ToolRegistry available to every child
// agent turn: scoped file read/write plus a shell escape hatch, all rooted
// at the worker's workspace so a turn cannot reach outside it. Modeled on
// the teacher's adapters/github.ExecRunner (an interface wrapping os/exec
// so tests can substitute a fake) and fsutil.ReadFileScoped for path-safe
// reads.
type workspaceTools struct {
	root string
}

// NewWorkspaceTools builds a ToolRegistry rooted at dir (the worker's
// workspace path).
func NewWorkspaceTools(dir string) core.ToolRegistry {
	return &workspaceTools{root: dir}
}

func (t *workspaceTools) Definitions() []core.ToolDefinition {
	return []core.ToolDefinition{
		{
			Name:        "read_file",
			Description: "Read a UTF-8 text file relative to the workspace root.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
		},
		{
			Name:        "write_file",
			Description: "Write a UTF-8 text file relative to the workspace root, creating parent directories.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
		},
		{
			Name:        "run_shell",
			Description: "Run a shell command with the workspace root as its working directory.",
			Schema:      json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
		},
	}
}

func (t *workspaceTools) Dispatch(ctx context.Context, name string, input json.RawMessage) (core.ToolDispatchResult, error) {
	start := time.Now()
	output, isErr, err := t.dispatch(ctx, name, input)
	if err != nil {
		return core.ToolDispatchResult{}, err
	}
	return core.ToolDispatchResult{
		Output:   output,
		Duration: time.Since(start).Milliseconds(),
		IsError:  isErr,
	}, nil
}

func (t *workspaceTools) dispatch(ctx context.Context, name string, input json.RawMessage) (string, bool, error) {
	switch name {
	case "read_file":
		var args struct {
			Path string `json:"path"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return err.Error(), true, nil
		}
		data, err := fsutil.ReadFileScoped(t.resolve(args.Path))
		if err != nil {
			return err.Error(), true, nil
		}
		return string(data), false, nil

	case "write_file":
		var args struct {
			Path    string `json:"path"`
			Content string `json:"content"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return err.Error(), true, nil
		}
		full := t.resolve(args.Path)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return err.Error(), true, nil
		}
		if err := os.WriteFile(full, []byte(args.Content), 0o644); err != nil {
			return err.Error(), true, nil
		}
		return "written", false, nil

	case "run_shell":
		var args struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(input, &args); err != nil {
			return err.Error(), true, nil
		}
		var stdout, stderr bytes.Buffer
		cmd := exec.CommandContext(ctx, "sh", "-c", args.Command)
		cmd.Dir = t.root
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return stdout.String() + stderr.String(), true, nil
		}
		return stdout.String(), false, nil

	default:
		return "unknown tool: " + name, true, nil
	}
}

// resolve joins a tool-relative path onto the workspace root, matching
// fsutil.ReadFileScoped's own filepath.Clean/OpenRoot scoping for writes too.
func (t *workspaceTools) resolve(path string) string {
	return filepath.Join(t.root, filepath.Clean(string(filepath.Separator)+path))
}

var _ core.ToolRegistry = (*workspaceTools)(nil)
