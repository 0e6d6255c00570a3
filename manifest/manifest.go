// Package manifest holds the declarative description of deployed functions:
// identity, source unit, ordered dependency descriptors, and resource limits.
// Manifests are loaded once at deployment time and read-only afterwards.
package manifest

import (
	"fmt"
	"time"
)

// Dependency is a single dependency descriptor. Name is the import name the
// handler uses; Source, when set, points at a bundle-local source unit,
// otherwise the name is resolved from the host's built-in set.
type Dependency struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

// Key identifies the loaded module a descriptor resolves to. Descriptors with
// equal keys share one loaded instance per host process.
func (d Dependency) Key() string {
	if d.Source == "" {
		return d.Name
	}
	return d.Name + "@" + d.Source
}

// Manifest describes one function.
type Manifest struct {
	Name         string
	Runtime      string
	Source       string
	Timeout      time.Duration
	Dependencies []Dependency

	// BundleDir is the directory bundle-local sources are resolved against.
	// Set by the store when the manifest is loaded.
	BundleDir string
}

func (m *Manifest) validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest: function name is required")
	}
	if m.Source == "" {
		return fmt.Errorf("manifest: function %q: source is required", m.Name)
	}
	for _, d := range m.Dependencies {
		if d.Name == "" {
			return fmt.Errorf("manifest: function %q: dependency name is required", m.Name)
		}
	}
	return nil
}
