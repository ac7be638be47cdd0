package controllers

import (
	"context"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
)

// ManifestPhaseTarget records installs on the ExtensionManifest objects
// themselves: Install marks the manifest Installed, Uninstall marks it
// Available again.
type ManifestPhaseTarget struct {
	Client    client.Client
	Namespace string
	// InstalledBy is written to status.installedBy on install.
	InstalledBy string
}

var _ installer.Target = (*ManifestPhaseTarget)(nil)

// Install leaves a manifest that is already Installed untouched, keeping the
// ExtensionInstall that owns it, and reports installer.ErrAlreadyInstalled.
func (t *ManifestPhaseTarget) Install(ctx context.Context, id, version string) error {
	obj, err := t.find(ctx, id, version)
	if err != nil {
		return err
	}
	if obj.Status.Phase == extv1alpha1.ExtensionManifestPhaseInstalled {
		return fmt.Errorf("extensionmanifest %s/%s installed by %q: %w",
			obj.Namespace, obj.Name, obj.Status.InstalledBy, installer.ErrAlreadyInstalled)
	}
	return t.setPhase(ctx, obj, extv1alpha1.ExtensionManifestPhaseInstalled, t.InstalledBy,
		fmt.Sprintf("Installed by ExtensionInstall %q", t.InstalledBy))
}

func (t *ManifestPhaseTarget) Uninstall(ctx context.Context, id, version string) error {
	obj, err := t.find(ctx, id, version)
	if err != nil {
		return err
	}
	return t.setPhase(ctx, obj, extv1alpha1.ExtensionManifestPhaseAvailable, "",
		fmt.Sprintf("Rolled back by ExtensionInstall %q", t.InstalledBy))
}

func (t *ManifestPhaseTarget) find(ctx context.Context, id, version string) (*extv1alpha1.ExtensionManifest, error) {
	reg := &ManifestRegistry{Reader: t.Client, Namespace: t.Namespace}
	return reg.find(ctx, id, version)
}

func (t *ManifestPhaseTarget) setPhase(ctx context.Context, obj *extv1alpha1.ExtensionManifest, phase extv1alpha1.ExtensionManifestPhase, installedBy, message string) error {
	before := obj.DeepCopy()
	obj.Status.Phase = phase
	obj.Status.InstalledBy = installedBy
	obj.Status.Message = message
	if err := t.Client.Status().Patch(ctx, obj, client.MergeFrom(before)); err != nil {
		return fmt.Errorf("patch extensionmanifest %s/%s status: %w", obj.Namespace, obj.Name, err)
	}
	return nil
}
