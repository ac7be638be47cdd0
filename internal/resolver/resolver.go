package resolver

import (
	"context"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

// Resolver computes an install order for an extension and everything it depends on.
type Resolver interface {
	Resolve(ctx context.Context, extensionID, version string) (ResolutionResult, error)
}

// Registry is the source of truth for published extensions.
//
// Unknown extensions or versions are reported with an error wrapping
// manifest.ErrNotFound. Implementations must be safe for concurrent use.
type Registry interface {
	GetManifest(ctx context.Context, extensionID, version string) (manifest.Manifest, error)
	ListVersions(ctx context.Context, extensionID string) ([]string, error)
}
