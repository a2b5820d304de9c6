package workspace

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
)

// MultiRepoIsolator materializes a sibling "griptree" directory holding one
// worktree per active (non-reference) repo named in the workspace's
// manifest (spec §4.4 multi-repo variant).
type MultiRepoIsolator struct {
	mainWorkspace string
	log           *logging.Logger
}

var _ Isolator = (*MultiRepoIsolator)(nil)

// NewMultiRepoIsolator builds an isolator rooted at an existing main
// workspace (the directory holding .gitgrip/manifests/manifest.yaml).
func NewMultiRepoIsolator(mainWorkspace string, log *logging.Logger) *MultiRepoIsolator {
	return &MultiRepoIsolator{mainWorkspace: mainWorkspace, log: log}
}

func (m *MultiRepoIsolator) griptreePath(branch string) string {
	return filepath.Join(filepath.Dir(m.mainWorkspace), SanitizeBranchName(branch))
}

// repoManager returns a WorktreeManager whose computed path for an empty
// name is exactly worktreePath, letting it drive worktree creation for an
// arbitrary (possibly nested) manifest-relative repo path.
func repoManager(client *git.Client, worktreePath string) *git.WorktreeManager {
	return git.NewWorktreeManager(client, filepath.Dir(worktreePath)).WithPrefix("")
}

// Create creates the griptree directory and a worktree for every active
// repo in the manifest, rolling back everything created so far if any repo
// fails (spec §4.4 rollback-on-partial-failure).
func (m *MultiRepoIsolator) Create(ctx context.Context, branch, baseBranch string) (core.WorkspaceInfo, error) {
	manifest, err := LoadManifest(m.mainWorkspace)
	if err != nil {
		return core.WorkspaceInfo{}, err
	}

	treePath := m.griptreePath(branch)
	if _, err := os.Stat(treePath); err == nil {
		return core.WorkspaceInfo{}, core.ErrInvalidWorkspace("griptree directory already exists: " + treePath)
	}
	if err := os.MkdirAll(treePath, 0o750); err != nil {
		return core.WorkspaceInfo{}, err
	}

	var repos []core.RepoPointer
	rollback := func() {
		for _, r := range repos {
			repoCfg, ok := manifest.Repos[r.Name]
			if !ok {
				continue
			}
			repoPath := filepath.Join(m.mainWorkspace, repoCfg.Path)
			repoClient, cerr := git.NewClient(repoPath)
			if cerr != nil {
				continue
			}
			_ = repoManager(repoClient, r.WorktreePath).Remove(ctx, r.WorktreePath, true)
		}
		_ = os.RemoveAll(treePath)
	}

	for name, repoCfg := range manifest.ActiveRepos() {
		repoPath := filepath.Join(m.mainWorkspace, repoCfg.Path)
		worktreePath := filepath.Join(treePath, repoCfg.Path)

		repoClient, err := git.NewClient(repoPath)
		if err != nil {
			rollback()
			return core.WorkspaceInfo{}, core.ErrWorktreeCreationFailed("opening repo "+name, err)
		}

		originalBranch, err := repoClient.CurrentBranch(ctx)
		if err != nil {
			originalBranch = baseBranch
		}

		manager := repoManager(repoClient, worktreePath)
		inUse, err := branchCheckedOut(ctx, repoClient, manager, branch)
		if err != nil {
			rollback()
			return core.WorkspaceInfo{}, err
		}
		if inUse {
			rollback()
			return core.WorkspaceInfo{}, core.ErrBranchInUse(branch)
		}

		if _, err := manager.CreateFromBranch(ctx, filepath.Base(worktreePath), branch, baseBranch); err != nil {
			m.log.Warn("failed to create worktree in multi-repo workspace", "repo", name, "error", err)
			rollback()
			return core.WorkspaceInfo{}, core.ErrWorktreeCreationFailed("creating worktree for "+name, err)
		}

		repos = append(repos, core.RepoPointer{
			Name:           name,
			OriginalBranch: originalBranch,
			WorktreePath:   worktreePath,
		})
	}

	now := time.Now()
	pointer := &core.GriptreePointer{
		MainWorkspace: m.mainWorkspace,
		Branch:        branch,
		CreatedAt:     &now,
		Repos:         repos,
	}
	if err := SavePointer(treePath, pointer); err != nil {
		rollback()
		return core.WorkspaceInfo{}, err
	}
	if err := os.MkdirAll(filepath.Join(treePath, ".gitgrip"), 0o750); err != nil {
		rollback()
		return core.WorkspaceInfo{}, err
	}

	registry := LoadRegistry(m.mainWorkspace)
	registry.Register(branch, treePath)
	if err := registry.Save(m.mainWorkspace); err != nil {
		rollback()
		return core.WorkspaceInfo{}, err
	}

	return core.WorkspaceInfo{
		Kind:          core.WorkspaceMultiRepo,
		Path:          treePath,
		Branch:        branch,
		MainWorkspace: m.mainWorkspace,
		Repos:         repos,
	}, nil
}

// Remove tears down every per-repo worktree, then the griptree directory
// itself, then drops the registry entry. Per-repo failures are logged and
// do not abort the rest of the teardown.
func (m *MultiRepoIsolator) Remove(ctx context.Context, ws core.WorkspaceInfo, deleteBranch bool) error {
	if !ws.IsMultiRepo() {
		return core.ErrInvalidWorkspace("expected multi-repo workspace")
	}
	manifest, _ := LoadManifest(m.mainWorkspace)

	for _, r := range ws.Repos {
		if _, err := os.Stat(r.WorktreePath); err != nil {
			continue
		}
		if manifest == nil {
			continue
		}
		repoCfg, ok := manifest.Repos[r.Name]
		if !ok {
			continue
		}
		repoPath := filepath.Join(m.mainWorkspace, repoCfg.Path)
		repoClient, err := git.NewClient(repoPath)
		if err != nil {
			m.log.Warn("opening repo for worktree removal failed", "repo", r.Name, "error", err)
			continue
		}
		if err := repoManager(repoClient, r.WorktreePath).Remove(ctx, r.WorktreePath, true); err != nil {
			m.log.Warn("removing worktree failed", "repo", r.Name, "error", err)
		}
		if deleteBranch {
			if err := repoClient.DeleteBranchForce(ctx, ws.Branch); err != nil {
				m.log.Warn("deleting branch failed", "repo", r.Name, "branch", ws.Branch, "error", err)
			}
		}
	}

	if err := os.RemoveAll(ws.Path); err != nil {
		return core.ErrWorktreeCreationFailed("removing griptree directory", err)
	}

	registry := LoadRegistry(m.mainWorkspace)
	registry.Unregister(ws.Branch)
	return registry.Save(m.mainWorkspace)
}

// List returns every griptree still present on disk per the registry.
func (m *MultiRepoIsolator) List(ctx context.Context) ([]core.WorkspaceInfo, error) {
	registry := LoadRegistry(m.mainWorkspace)
	result := make([]core.WorkspaceInfo, 0, len(registry.Griptrees))
	for branch, entry := range registry.Griptrees {
		if _, err := os.Stat(entry.Path); err != nil {
			continue
		}
		pointer, err := LoadPointer(entry.Path)
		if err != nil {
			continue
		}
		result = append(result, core.WorkspaceInfo{
			Kind:          core.WorkspaceMultiRepo,
			Path:          entry.Path,
			Branch:        branch,
			MainWorkspace: m.mainWorkspace,
			Repos:         pointer.Repos,
		})
	}
	return result, nil
}

// IsBranchInUse reports whether branch already has a griptree, or is
// checked out in any active repo (spec §4.4's OR-condition).
func (m *MultiRepoIsolator) IsBranchInUse(ctx context.Context, branch string) (bool, error) {
	if _, err := os.Stat(m.griptreePath(branch)); err == nil {
		return true, nil
	}

	manifest, err := LoadManifest(m.mainWorkspace)
	if err != nil {
		return false, nil
	}
	for _, repoCfg := range manifest.ActiveRepos() {
		repoPath := filepath.Join(m.mainWorkspace, repoCfg.Path)
		repoClient, err := git.NewClient(repoPath)
		if err != nil {
			continue
		}
		manager := git.NewWorktreeManager(repoClient, repoPath)
		if inUse, err := branchCheckedOut(ctx, repoClient, manager, branch); err == nil && inUse {
			return true, nil
		}
	}
	return false, nil
}

// Get returns the griptree registered for branch, if any.
func (m *MultiRepoIsolator) Get(ctx context.Context, branch string) (core.WorkspaceInfo, bool, error) {
	registry := LoadRegistry(m.mainWorkspace)
	entry, ok := registry.Griptrees[branch]
	if !ok {
		return core.WorkspaceInfo{}, false, nil
	}
	if _, err := os.Stat(entry.Path); err != nil {
		return core.WorkspaceInfo{}, false, nil
	}
	pointer, err := LoadPointer(entry.Path)
	if err != nil {
		return core.WorkspaceInfo{}, false, err
	}
	return core.WorkspaceInfo{
		Kind:          core.WorkspaceMultiRepo,
		Path:          entry.Path,
		Branch:        branch,
		MainWorkspace: m.mainWorkspace,
		Repos:         pointer.Repos,
	}, true, nil
}

// Cleanup removes every griptree this main workspace's registry still
// tracks.
func (m *MultiRepoIsolator) Cleanup(ctx context.Context) error {
	workspaces, err := m.List(ctx)
	if err != nil {
		return err
	}
	for _, ws := range workspaces {
		if err := m.Remove(ctx, ws, true); err != nil {
			m.log.Warn("cleanup failed for griptree", "branch", ws.Branch, "error", err)
		}
	}
	return nil
}

// NewMultiRepoIsolatorAt shapes NewMultiRepoIsolator to satisfy
// DetectIsolator's newMulti parameter.
func NewMultiRepoIsolatorAt(mainWorkspace string, log *logging.Logger) (Isolator, error) {
	return NewMultiRepoIsolator(mainWorkspace, log), nil
}
