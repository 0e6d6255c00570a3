package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// DefaultRuntime is assumed when a manifest omits the runtime field.
const DefaultRuntime = "js"

type yamlManifest struct {
	Functions []struct {
		Name         string       `yaml:"name"`
		Runtime      string       `yaml:"runtime"`
		Source       string       `yaml:"source"`
		Timeout      string       `yaml:"timeout"`
		Dependencies []Dependency `yaml:"dependencies"`
	} `yaml:"functions"`
}

// Store is an immutable, name-keyed set of manifests.
type Store struct {
	byName map[string]*Manifest
	names  []string
}

// LoadBytes parses a manifest document. Bundle-local dependency sources are
// resolved against bundleDir.
func LoadBytes(b []byte, bundleDir string) (*Store, error) {
	var cfg yamlManifest
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}

	s := &Store{byName: make(map[string]*Manifest)}
	for _, f := range cfg.Functions {
		m := &Manifest{
			Name:         f.Name,
			Runtime:      f.Runtime,
			Source:       f.Source,
			Dependencies: f.Dependencies,
			BundleDir:    bundleDir,
		}
		if m.Runtime == "" {
			m.Runtime = DefaultRuntime
		}
		if f.Timeout != "" {
			d, err := time.ParseDuration(f.Timeout)
			if err != nil {
				return nil, fmt.Errorf("manifest: function %q: invalid timeout %q: %w", f.Name, f.Timeout, err)
			}
			m.Timeout = d
		}
		if err := m.validate(); err != nil {
			return nil, err
		}
		if _, dup := s.byName[m.Name]; dup {
			return nil, fmt.Errorf("manifest: duplicate function %q", m.Name)
		}
		s.byName[m.Name] = m
		s.names = append(s.names, m.Name)
	}
	return s, nil
}

// LoadFile loads a manifest file; the file's directory becomes the bundle dir.
func LoadFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	return LoadBytes(b, abs)
}

// Get returns the manifest for a function name.
func (s *Store) Get(name string) (*Manifest, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// Names returns function names in declaration order.
func (s *Store) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// DefaultCandidates returns relative paths checked (in order) when searching
// for a manifest file.
func DefaultCandidates() []string {
	return []string{
		"functions.yaml",
		"functions.yml",
		filepath.FromSlash("bundle/functions.yaml"),
		filepath.FromSlash("bundle/functions.yml"),
	}
}

// FindDefaultFile searches for a manifest file in a small set of well-known
// locations (CWD then executable directory).
func FindDefaultFile() (string, error) {
	candidates := DefaultCandidates()

	dirs := []string{"."}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}

	for _, dir := range dirs {
		for _, rel := range candidates {
			p := rel
			if dir != "." {
				p = filepath.Join(dir, rel)
			}
			if st, err := os.Stat(p); err == nil && !st.IsDir() {
				return p, nil
			}
		}
	}

	return "", fmt.Errorf("manifest not found (expected %v)", candidates)
}
