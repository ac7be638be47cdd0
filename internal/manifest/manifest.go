package manifest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned (wrapped) by registries when an extension or one of
// its versions is unknown.
var ErrNotFound = errors.New("extension not found")

// Manifest is the registry's description of one extension at one version.
//
// The resolver only interprets Dependencies; everything else is carried
// through untouched.
type Manifest struct {
	ID           string            `json:"id"`
	Version      string            `json:"version"`
	Dependencies []Dependency      `json:"dependencies,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Dependency is a single declared requirement on another extension.
type Dependency struct {
	ID         string `json:"id"`
	Constraint string `json:"constraint"`
	Optional   bool   `json:"optional,omitempty"`
}

// Ref identifies an extension at a concrete version.
type Ref struct {
	ID      string `json:"id"`
	Version string `json:"version"`
}

func (r Ref) String() string {
	return r.ID + "@" + r.Version
}

// Validate checks the structural fields a registry must supply.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("manifest: id is required")
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("manifest %s: version is required", m.ID)
	}
	seen := make(map[string]struct{}, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		if strings.TrimSpace(dep.ID) == "" {
			return fmt.Errorf("manifest %s@%s: dependency id is required", m.ID, m.Version)
		}
		if _, dup := seen[dep.ID]; dup {
			return fmt.Errorf("manifest %s@%s: dependency %q declared twice", m.ID, m.Version, dep.ID)
		}
		seen[dep.ID] = struct{}{}
	}
	return nil
}

// NotFoundError builds an error wrapping ErrNotFound for id (and version, when set).
func NotFoundError(id, version string) error {
	if version == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return fmt.Errorf("%w: %s@%s", ErrNotFound, id, version)
}
