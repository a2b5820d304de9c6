// Package workspace implements the two WorkspaceIsolator variants (spec
// §4.4): SingleRepoIsolator, which materializes one sibling git worktree
// per branch, and MultiRepoIsolator, which materializes a sibling
// "griptree" directory holding one worktree per active repo in a manifest.
package workspace

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/adapters/git"
	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// MultiRepoMarker is the directory that, if present, marks a path as the
// root of a multi-repo (griptree) workspace.
const MultiRepoMarker = ".gitgrip"

// SingleRepoMarker is the directory that marks a path as a single git
// repository.
const SingleRepoMarker = ".git"

// Isolator is the common contract both variants implement (spec §4.4).
type Isolator interface {
	Create(ctx context.Context, branch, baseBranch string) (core.WorkspaceInfo, error)
	Remove(ctx context.Context, workspace core.WorkspaceInfo, deleteBranch bool) error
	List(ctx context.Context) ([]core.WorkspaceInfo, error)
	IsBranchInUse(ctx context.Context, branch string) (bool, error)
	Get(ctx context.Context, branch string) (core.WorkspaceInfo, bool, error)
	Cleanup(ctx context.Context) error
}

// DetectIsolator walks from startPath toward the filesystem root looking
// for a multi-repo marker first, then a single-repo marker, matching spec
// §4.4 Detection. If neither is found it falls back to a SingleRepoIsolator
// anchored at startPath with a warning from the caller.
func DetectIsolator(startPath string, newSingle func(repoRoot string) (Isolator, error), newMulti func(mainWorkspace string) (Isolator, error)) (Isolator, error) {
	if root, ok := findAncestorWith(startPath, MultiRepoMarker); ok {
		return newMulti(root)
	}
	if root, ok := findAncestorWith(startPath, SingleRepoMarker); ok {
		return newSingle(root)
	}
	return newSingle(startPath)
}

// findAncestorWith walks from path to the filesystem root, returning the
// first directory that contains a child named marker.
func findAncestorWith(path, marker string) (string, bool) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// branchCheckedOut reports whether branch is checked out in any worktree
// known to manager, or is the main repo's current branch. Shared between
// the single-repo and multi-repo variants.
func branchCheckedOut(ctx context.Context, client *git.Client, manager *git.WorktreeManager, branch string) (bool, error) {
	all, err := manager.List(ctx)
	if err != nil {
		return false, err
	}
	for _, wt := range all {
		if wt.Branch == branch {
			return true, nil
		}
	}
	current, err := client.CurrentBranch(ctx)
	if err == nil && current == branch {
		return true, nil
	}
	return false, nil
}
