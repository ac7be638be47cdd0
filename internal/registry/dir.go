package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

var manifestExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
}

// LoadDir reads every manifest file directly under dir into a new Memory
// registry. Files are read in name order; two files declaring the same id and
// version are an error. Subdirectories and other files are ignored.
func LoadDir(dir string) (*Memory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read registry dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !manifestExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	reg := NewMemory()
	seen := make(map[manifest.Ref]string, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		m, err := ReadManifestFile(path)
		if err != nil {
			return nil, err
		}
		ref := manifest.Ref{ID: m.ID, Version: m.Version}
		if prev, dup := seen[ref]; dup {
			return nil, fmt.Errorf("%s: %s already declared in %s", path, ref, prev)
		}
		seen[ref] = path
		if err := reg.Publish(m); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return reg, nil
}

// ReadManifestFile decodes a single YAML or JSON manifest.
func ReadManifestFile(path string) (manifest.Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m manifest.Manifest
	if err := yaml.UnmarshalStrict(raw, &m); err != nil {
		return manifest.Manifest{}, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return manifest.Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
