package controllers

import (
	"context"
	"fmt"
	"sort"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

const idxManifestExtensionID = "spec.extension.id"

func indexManifestExtensionID(rawObj client.Object) []string {
	m, ok := rawObj.(*extv1alpha1.ExtensionManifest)
	if !ok || m.Spec.Extension.ID == "" {
		return nil
	}
	return []string{m.Spec.Extension.ID}
}

// ManifestRegistry serves the ExtensionManifests of one namespace as a
// resolver.Registry. It needs the spec.extension.id field index.
type ManifestRegistry struct {
	Reader    client.Reader
	Namespace string
}

var _ resolver.Registry = (*ManifestRegistry)(nil)

func (r *ManifestRegistry) GetManifest(ctx context.Context, id, version string) (manifest.Manifest, error) {
	obj, err := r.find(ctx, id, version)
	if err != nil {
		return manifest.Manifest{}, err
	}
	return toManifest(obj), nil
}

// ListVersions returns the distinct versions published for id.
func (r *ManifestRegistry) ListVersions(ctx context.Context, id string) ([]string, error) {
	items, err := r.list(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, manifest.NotFoundError(id, "")
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for i := range items {
		v := items[i].Spec.Extension.Version
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// find returns the manifest object publishing id@version. When several objects
// publish the same version the one with the smallest name wins.
func (r *ManifestRegistry) find(ctx context.Context, id, version string) (*extv1alpha1.ExtensionManifest, error) {
	items, err := r.list(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].Spec.Extension.Version == version {
			return &items[i], nil
		}
	}
	return nil, manifest.NotFoundError(id, version)
}

func (r *ManifestRegistry) list(ctx context.Context, id string) ([]extv1alpha1.ExtensionManifest, error) {
	var list extv1alpha1.ExtensionManifestList
	if err := r.Reader.List(ctx, &list,
		client.InNamespace(r.Namespace),
		client.MatchingFields{idxManifestExtensionID: id},
	); err != nil {
		return nil, fmt.Errorf("list extensionmanifests for %s: %w", id, err)
	}
	items := list.Items
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func toManifest(obj *extv1alpha1.ExtensionManifest) manifest.Manifest {
	m := manifest.Manifest{
		ID:       obj.Spec.Extension.ID,
		Version:  obj.Spec.Extension.Version,
		Metadata: obj.Spec.Metadata,
	}
	for _, dep := range obj.Spec.Dependencies {
		m.Dependencies = append(m.Dependencies, manifest.Dependency{
			ID:         dep.ExtensionID,
			Constraint: dep.VersionConstraint,
			Optional:   dep.DependencyMode == extv1alpha1.DependencyModeOptional,
		})
	}
	return m
}

// NewManifestObject is the inverse of toManifest. The object is named
// <id>-<version>, lowercased, with build metadata separators replaced.
func NewManifestObject(m manifest.Manifest, namespace string) *extv1alpha1.ExtensionManifest {
	obj := &extv1alpha1.ExtensionManifest{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ManifestObjectName(m.ID, m.Version),
			Namespace: namespace,
		},
		Spec: extv1alpha1.ExtensionManifestSpec{
			Extension: extv1alpha1.ExtensionRef{ID: m.ID, Version: m.Version},
			Metadata:  m.Metadata,
		},
	}
	for _, dep := range m.Dependencies {
		mode := extv1alpha1.DependencyModeRequired
		if dep.Optional {
			mode = extv1alpha1.DependencyModeOptional
		}
		obj.Spec.Dependencies = append(obj.Spec.Dependencies, extv1alpha1.ExtensionDependency{
			ExtensionID:       dep.ID,
			VersionConstraint: dep.Constraint,
			DependencyMode:    mode,
		})
	}
	return obj
}

func ManifestObjectName(id, version string) string {
	return strings.NewReplacer("+", "-", "_", "-").Replace(strings.ToLower(id + "-" + version))
}
