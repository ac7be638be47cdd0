package agent

import (
	"context"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

// CheckedTarget refuses installs of extensions the registry does not publish.
type CheckedTarget struct {
	Registry resolver.Registry
	Target   installer.Target
}

var (
	_ installer.Target = CheckedTarget{}
	_ Lister           = CheckedTarget{}
)

func (c CheckedTarget) Install(ctx context.Context, id, version string) error {
	if _, err := c.Registry.GetManifest(ctx, id, version); err != nil {
		return err
	}
	return c.Target.Install(ctx, id, version)
}

func (c CheckedTarget) Uninstall(ctx context.Context, id, version string) error {
	return c.Target.Uninstall(ctx, id, version)
}

// Installed delegates to the wrapped target when it can list, else reports nothing.
func (c CheckedTarget) Installed() []manifest.Ref {
	if l, ok := c.Target.(Lister); ok {
		return l.Installed()
	}
	return nil
}
