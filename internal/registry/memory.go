// Package registry provides extension registries: an in-process one and a
// loader for directories of YAML or JSON manifests.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

// Memory is a registry held in process memory. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	manifests map[string]map[string]manifest.Manifest
}

func NewMemory() *Memory {
	return &Memory{manifests: make(map[string]map[string]manifest.Manifest)}
}

// Publish adds manifests, replacing any previously published manifest with the
// same id and version. Nothing is published if one of them is invalid.
func (m *Memory) Publish(ms ...manifest.Manifest) error {
	for _, mf := range ms {
		if err := mf.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mf := range ms {
		versions, ok := m.manifests[mf.ID]
		if !ok {
			versions = make(map[string]manifest.Manifest)
			m.manifests[mf.ID] = versions
		}
		versions[mf.Version] = mf
	}
	return nil
}

// Withdraw removes one published version. It reports whether it was present.
func (m *Memory) Withdraw(id, version string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	versions, ok := m.manifests[id]
	if !ok {
		return false
	}
	if _, ok := versions[version]; !ok {
		return false
	}
	delete(versions, version)
	if len(versions) == 0 {
		delete(m.manifests, id)
	}
	return true
}

func (m *Memory) GetManifest(ctx context.Context, id, version string) (manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return manifest.Manifest{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	mf, ok := m.manifests[id][version]
	if !ok {
		return manifest.Manifest{}, manifest.NotFoundError(id, version)
	}
	return mf, nil
}

// ListVersions returns the published versions of id, oldest first.
func (m *Memory) ListVersions(ctx context.Context, id string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	versions, ok := m.manifests[id]
	if !ok {
		m.mu.RUnlock()
		return nil, manifest.NotFoundError(id, "")
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	m.mu.RUnlock()

	sortVersions(out)
	return out, nil
}

// IDs lists every published extension id in ascending order.
func (m *Memory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.manifests))
	for id := range m.manifests {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, versions := range m.manifests {
		n += len(versions)
	}
	return fmt.Sprintf("memory registry (%d extensions, %d manifests)", len(m.manifests), n)
}

// sortVersions orders semantic versions ascending. Strings that are not
// versions sort after every version, lexically.
func sortVersions(vs []string) {
	sort.SliceStable(vs, func(i, j int) bool {
		a, errA := semver.ParseVersion(vs[i])
		b, errB := semver.ParseVersion(vs[j])
		switch {
		case errA == nil && errB == nil:
			if c := semver.Compare(a, b); c != 0 {
				return c < 0
			}
			return vs[i] < vs[j]
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return vs[i] < vs[j]
		}
	})
}
