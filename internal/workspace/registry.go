package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
)

// Registry is the persisted set of multi-repo griptrees created off of a
// given main workspace, stored at `<main>/.gitgrip/griptrees.json`.
type Registry struct {
	Griptrees map[string]core.RegistryEntry `json:"griptrees"`
}

// RegistryPath returns the registry file location for a main workspace.
func RegistryPath(mainWorkspace string) string {
	return filepath.Join(mainWorkspace, ".gitgrip", "griptrees.json")
}

// LoadRegistry reads the registry for mainWorkspace, returning an empty one
// if the file doesn't exist or fails to parse (mirroring the best-effort
// load-or-default used for this file elsewhere in the system).
func LoadRegistry(mainWorkspace string) *Registry {
	data, err := os.ReadFile(RegistryPath(mainWorkspace))
	if err != nil {
		return &Registry{Griptrees: map[string]core.RegistryEntry{}}
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return &Registry{Griptrees: map[string]core.RegistryEntry{}}
	}
	if r.Griptrees == nil {
		r.Griptrees = map[string]core.RegistryEntry{}
	}
	return &r
}

// Save atomically persists the registry to mainWorkspace.
func (r *Registry) Save(mainWorkspace string) error {
	path := RegistryPath(mainWorkspace)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return atomicWriteFile(path, data, 0o600)
}

// Register adds or replaces the entry for branch.
func (r *Registry) Register(branch, path string) {
	r.Griptrees[branch] = core.RegistryEntry{
		Branch:    branch,
		Path:      path,
		CreatedAt: time.Now(),
	}
}

// Unregister removes the entry for branch, if present.
func (r *Registry) Unregister(branch string) {
	delete(r.Griptrees, branch)
}
