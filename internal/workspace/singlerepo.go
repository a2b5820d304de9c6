package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// DefaultSingleRepoPrefix names the sibling directory a single-repo
// workspace is created under: <parent-of-repo-root>/gitgrip-<branch>.
const DefaultSingleRepoPrefix = "gitgrip-"

// SingleRepoIsolator materializes one sibling git worktree per branch
// (spec §4.4 single-repo variant), built on top of the repo's existing
// WorktreeManager rather than duplicating its worktree-add/remove logic.
type SingleRepoIsolator struct {
	repoRoot string
	client   *git.Client
	manager  *git.WorktreeManager
	log      *logging.Logger
}

var _ Isolator = (*SingleRepoIsolator)(nil)

// NewSingleRepoIsolator anchors worktrees as siblings of the repo root
// rather than nested under it, matching spec §4.4.
func NewSingleRepoIsolator(client *git.Client, log *logging.Logger) *SingleRepoIsolator {
	repoRoot := client.RepoPath()
	manager := git.NewWorktreeManager(client, filepath.Dir(repoRoot)).WithPrefix(DefaultSingleRepoPrefix)
	return &SingleRepoIsolator{
		repoRoot: repoRoot,
		client:   client,
		manager:  manager,
		log:      log,
	}
}

// Create creates a worktree for branch, optionally cut from baseBranch if
// branch doesn't already exist. Fails with BranchInUse if any worktree
// (managed or not) or the main checkout already has branch checked out.
func (s *SingleRepoIsolator) Create(ctx context.Context, branch, baseBranch string) (core.WorkspaceInfo, error) {
	inUse, err := s.IsBranchInUse(ctx, branch)
	if err != nil {
		return core.WorkspaceInfo{}, err
	}
	if inUse {
		return core.WorkspaceInfo{}, core.ErrBranchInUse(branch)
	}

	name := SanitizeBranchName(branch)
	if name == "" {
		return core.WorkspaceInfo{}, core.ErrInvalidWorkspace("branch name sanitizes to empty string")
	}

	wt, err := s.manager.CreateFromBranch(ctx, name, branch, baseBranch)
	if err != nil {
		return core.WorkspaceInfo{}, core.ErrWorktreeCreationFailed("creating worktree", err)
	}

	return core.WorkspaceInfo{
		Kind:       core.WorkspaceSingleRepo,
		Path:       wt.Path,
		Branch:     wt.Branch,
		BaseBranch: baseBranch,
	}, nil
}

// Remove removes the worktree. If a plain removal fails (e.g. dirty
// working tree) it force-removes, and if that still fails it deletes the
// directory directly and prunes the stale worktree entry (spec §4.4
// remove-fallback).
func (s *SingleRepoIsolator) Remove(ctx context.Context, workspace core.WorkspaceInfo, deleteBranch bool) error {
	if err := s.manager.Remove(ctx, workspace.Path, true); err != nil {
		s.log.Warn("worktree remove failed, falling back to directory removal",
			"path", workspace.Path, "error", err)
		if rmErr := os.RemoveAll(workspace.Path); rmErr != nil {
			return core.ErrWorktreeCreationFailed("removing workspace directory", rmErr)
		}
		if _, pruneErr := s.manager.Prune(ctx, false); pruneErr != nil {
			s.log.Warn("worktree prune after fallback removal failed", "error", pruneErr)
		}
	}

	if deleteBranch {
		if err := s.client.DeleteBranchForce(ctx, workspace.Branch); err != nil {
			s.log.Warn("deleting branch after workspace removal failed",
				"branch", workspace.Branch, "error", err)
		}
	}
	return nil
}

// List returns every workspace this isolator has created.
func (s *SingleRepoIsolator) List(ctx context.Context) ([]core.WorkspaceInfo, error) {
	managed, err := s.manager.ListManaged(ctx)
	if err != nil {
		return nil, err
	}
	infos := make([]core.WorkspaceInfo, 0, len(managed))
	for _, wt := range managed {
		infos = append(infos, core.WorkspaceInfo{
			Kind:   core.WorkspaceSingleRepo,
			Path:   wt.Path,
			Branch: wt.Branch,
		})
	}
	return infos, nil
}

// IsBranchInUse reports whether branch is checked out in any worktree
// (managed or not) or in the main repo itself.
func (s *SingleRepoIsolator) IsBranchInUse(ctx context.Context, branch string) (bool, error) {
	return branchCheckedOut(ctx, s.client, s.manager, branch)
}

// Get returns the workspace for branch, if this isolator created one.
func (s *SingleRepoIsolator) Get(ctx context.Context, branch string) (core.WorkspaceInfo, bool, error) {
	managed, err := s.manager.ListManaged(ctx)
	if err != nil {
		return core.WorkspaceInfo{}, false, err
	}
	for _, wt := range managed {
		if wt.Branch == branch {
			return core.WorkspaceInfo{
				Kind:   core.WorkspaceSingleRepo,
				Path:   wt.Path,
				Branch: wt.Branch,
			}, true, nil
		}
	}
	return core.WorkspaceInfo{}, false, nil
}

// Cleanup prunes worktree entries git already considers stale.
func (s *SingleRepoIsolator) Cleanup(ctx context.Context) error {
	_, err := s.manager.CleanupStale(ctx, 0)
	return err
}

// NewSingleRepoIsolatorAt opens a git client at repoRoot and builds an
// isolator over it; shaped to satisfy DetectIsolator's newSingle parameter.
func NewSingleRepoIsolatorAt(repoRoot string, log *logging.Logger) (Isolator, error) {
	client, err := git.NewClient(repoRoot)
	if err != nil {
		return nil, err
	}
	return NewSingleRepoIsolator(client, log), nil
}
