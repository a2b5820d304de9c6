package workspace_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/logging"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/workspace"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoErrorf(t, err, "git %v: %s", args, out)
}

// initRepo creates a real, committed git repo at dir so worktree creation
// has something to branch from.
func initRepo(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	runGit(t, dir, "init")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "user.name", "Test User")
	runGit(t, dir, "checkout", "-b", "main")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# repo"), 0o644))
	runGit(t, dir, "add", "-A")
	runGit(t, dir, "commit", "-m", "initial", "--allow-empty")
}

func writeManifest(t *testing.T, mainWorkspace, body string) {
	t.Helper()
	dir := filepath.Join(mainWorkspace, ".gitgrip", "manifests")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(body), 0o644))
}

func newMainWorkspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	main := filepath.Join(root, "main")
	require.NoError(t, os.MkdirAll(main, 0o750))
	return main
}

func TestMultiRepoIsolatorCreateSucceedsForAllActiveRepos(t *testing.T) {
	main := newMainWorkspace(t)
	initRepo(t, filepath.Join(main, "alpha"))
	initRepo(t, filepath.Join(main, "beta"))
	writeManifest(t, main, `
repos:
  alpha:
    path: alpha
    default_branch: main
  beta:
    path: beta
    default_branch: main
  docs:
    path: docs
    default_branch: main
    reference: true
`)

	isolator := workspace.NewMultiRepoIsolator(main, logging.NewNop())
	info, err := isolator.Create(context.Background(), "feature/multi", "main")
	require.NoError(t, err)

	assert.Len(t, info.Repos, 2, "reference repo 'docs' must not get a worktree")
	assert.DirExists(t, info.Path)

	registry := workspace.LoadRegistry(main)
	_, ok := registry.Griptrees["feature/multi"]
	assert.True(t, ok, "successful create must register the griptree")

	for _, r := range info.Repos {
		assert.DirExists(t, r.WorktreePath)
	}
}

// TestMultiRepoIsolatorCreateRollsBackOnPartialFailure exercises the
// rollback-on-partial-failure path: one repo's worktree creation fails
// (here because "beta" was never git-initialized), and every worktree
// and directory created for repos processed before the failure must be
// removed, with no registry entry left behind.
func TestMultiRepoIsolatorCreateRollsBackOnPartialFailure(t *testing.T) {
	main := newMainWorkspace(t)
	initRepo(t, filepath.Join(main, "alpha"))
	// beta is a plain directory, not a git repo: worktree creation for it
	// will always fail.
	require.NoError(t, os.MkdirAll(filepath.Join(main, "beta"), 0o750))
	writeManifest(t, main, `
repos:
  alpha:
    path: alpha
    default_branch: main
  beta:
    path: beta
    default_branch: main
`)

	isolator := workspace.NewMultiRepoIsolator(main, logging.NewNop())
	_, err := isolator.Create(context.Background(), "feature/rollback", "main")
	require.Error(t, err)

	griptreePath := filepath.Join(filepath.Dir(main), "feature-rollback")
	assert.NoDirExists(t, griptreePath, "griptree directory must be removed on rollback")

	// alpha's repo directory itself is untouched; only any worktree git
	// created inside it during the failed Create must be gone.
	out, gitErr := exec.Command("git", "-C", filepath.Join(main, "alpha"), "worktree", "list").CombinedOutput()
	require.NoError(t, gitErr)
	assert.NotContains(t, string(out), "feature-rollback")

	registry := workspace.LoadRegistry(main)
	_, ok := registry.Griptrees["feature/rollback"]
	assert.False(t, ok, "rollback must not leave a registry entry behind")
}

func TestMultiRepoIsolatorCreateRejectsExistingGriptree(t *testing.T) {
	main := newMainWorkspace(t)
	initRepo(t, filepath.Join(main, "alpha"))
	writeManifest(t, main, `
repos:
  alpha:
    path: alpha
    default_branch: main
`)

	isolator := workspace.NewMultiRepoIsolator(main, logging.NewNop())
	_, err := isolator.Create(context.Background(), "feature/dup", "main")
	require.NoError(t, err)

	_, err = isolator.Create(context.Background(), "feature/dup", "main")
	assert.Error(t, err)
}

func TestMultiRepoIsolatorRemoveTearsDownWorktreesAndRegistry(t *testing.T) {
	main := newMainWorkspace(t)
	initRepo(t, filepath.Join(main, "alpha"))
	writeManifest(t, main, `
repos:
  alpha:
    path: alpha
    default_branch: main
`)

	isolator := workspace.NewMultiRepoIsolator(main, logging.NewNop())
	info, err := isolator.Create(context.Background(), "feature/remove", "main")
	require.NoError(t, err)

	require.NoError(t, isolator.Remove(context.Background(), info, false))
	assert.NoDirExists(t, info.Path)

	registry := workspace.LoadRegistry(main)
	_, ok := registry.Griptrees["feature/remove"]
	assert.False(t, ok)
}
