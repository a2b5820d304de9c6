package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// PointerFileName is the pointer file a multi-repo worktree carries so a
// child process can reconstruct its WorkspaceInfo without consulting the
// registry (spec §3).
const PointerFileName = ".griptree"

// LoadPointer reads the `.griptree` pointer file inside a worktree root.
func LoadPointer(worktreeRoot string) (*core.GriptreePointer, error) {
	data, err := os.ReadFile(filepath.Join(worktreeRoot, PointerFileName))
	if err != nil {
		return nil, err
	}
	var p core.GriptreePointer
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, core.ErrInvalidMessage("parsing griptree pointer", err)
	}
	return &p, nil
}

// SavePointer atomically writes the `.griptree` pointer file for worktreeRoot.
func SavePointer(worktreeRoot string, p *core.GriptreePointer) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(filepath.Join(worktreeRoot, PointerFileName), data, 0o600)
}
