// Package childagent implements the worker-process side of orchestration:
// detect the workspace it was spawned into, connect and handshake with the
// commander, run one agent-loop turn with IPC-backed status reporting and
// tool confirmation, and send exactly one terminal message before exiting
// (spec §4.2).
package childagent

import (
	"context"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/workspace"
)

// detectWorkspace walks cwd's ancestors for a multi-repo marker, then a
// single-repo marker (spec §4.4 Detection), and resolves the concrete
// core.WorkspaceInfo plus a git.Client rooted wherever commits/diffs should
// be read from: the griptree itself for a multi-repo workspace that has no
// single repo of its own, or the repo root for a single-repo workspace.
func detectWorkspace(ctx context.Context, cwd string) (core.WorkspaceInfo, *git.Client, error) {
	if treePath, ok := findGriptreeRoot(cwd); ok {
		pointer, err := workspace.LoadPointer(treePath)
		if err != nil {
			return core.WorkspaceInfo{}, nil, err
		}
		info := core.WorkspaceInfo{
			Kind:          core.WorkspaceMultiRepo,
			Path:          treePath,
			Branch:        pointer.Branch,
			MainWorkspace: pointer.MainWorkspace,
			Repos:         pointer.Repos,
		}
		client, err := primaryRepoClient(info)
		return info, client, err
	}

	client, err := git.NewClient(cwd)
	if err != nil {
		return core.WorkspaceInfo{}, nil, core.ErrInvalidWorkspace("not in a git or gitgrip workspace: " + err.Error())
	}
	branch, err := client.CurrentBranch(ctx)
	if err != nil {
		branch = "main"
	}
	return core.WorkspaceInfo{Kind: core.WorkspaceSingleRepo, Path: cwd, Branch: branch}, client, nil
}

// findGriptreeRoot walks from cwd up to the first ancestor holding a
// .griptree pointer file, mirroring workspace.findAncestorWith's style but
// looking for the pointer file itself rather than the .gitgrip marker,
// since a child spawned deep inside one repo of a griptree still needs to
// find the griptree root to load it.
func findGriptreeRoot(cwd string) (string, bool) {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return "", false
	}
	for {
		if _, err := workspace.LoadPointer(dir); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// primaryRepoClient opens a git.Client for the first repo pointer in a
// multi-repo workspace, used as the source of commit/diff history reported
// in the terminal message. A griptree with no repos at all reports none.
func primaryRepoClient(info core.WorkspaceInfo) (*git.Client, error) {
	if len(info.Repos) == 0 {
		return nil, nil
	}
	return git.NewClient(info.Repos[0].WorktreePath)
}
