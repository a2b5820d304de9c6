package workspace

import (
	"os"
	"path/filepath"

	"github.com/hugo-lorenzo-mato/gitgrip/internal/core"
	"gopkg.in/yaml.v3"
)

// RepoConfig is one repository entry in a multi-repo manifest.
type RepoConfig struct {
	URL            string `yaml:"url"`
	Path           string `yaml:"path"`
	DefaultBranch  string `yaml:"default_branch"`
	Reference      bool   `yaml:"reference"`
}

// WorkspaceConfig holds workspace-wide manifest settings.
type WorkspaceConfig struct {
	Env map[string]string `yaml:"env"`
}

// Manifest is the gitgrip multi-repo manifest read from
// `<workspace_root>/.gitgrip/manifests/manifest.yaml`.
type Manifest struct {
	Repos     map[string]RepoConfig `yaml:"repos"`
	Workspace *WorkspaceConfig      `yaml:"workspace,omitempty"`
}

// ManifestPath returns the manifest location for a workspace root.
func ManifestPath(workspaceRoot string) string {
	return filepath.Join(workspaceRoot, ".gitgrip", "manifests", "manifest.yaml")
}

// LoadManifest reads and parses the manifest for workspaceRoot.
func LoadManifest(workspaceRoot string) (*Manifest, error) {
	path := ManifestPath(workspaceRoot)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrInvalidWorkspace("manifest not found: " + path)
		}
		return nil, err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, core.ErrInvalidMessage("parsing manifest", err)
	}
	if m.Repos == nil {
		m.Repos = map[string]RepoConfig{}
	}
	for name, repo := range m.Repos {
		if repo.DefaultBranch == "" {
			repo.DefaultBranch = "main"
			m.Repos[name] = repo
		}
	}
	return &m, nil
}

// ActiveRepos returns the repos this manifest marks non-reference: the
// ones a griptree actually checks out a worktree for.
func (m *Manifest) ActiveRepos() map[string]RepoConfig {
	active := make(map[string]RepoConfig)
	for name, repo := range m.Repos {
		if !repo.Reference {
			active[name] = repo
		}
	}
	return active
}
