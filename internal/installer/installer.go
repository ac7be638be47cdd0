// Package installer applies a resolved install order to a Target and unwinds
// the applied steps when one of them fails.
package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

// ErrAlreadyInstalled is returned by a Target whose Install found the exact
// version already present. The chain leaves such extensions out of rollback.
var ErrAlreadyInstalled = errors.New("extension already installed")

// Target applies and removes single extensions. Implementations talk to the
// system that actually hosts extensions. Install returns an error wrapping
// ErrAlreadyInstalled when it changed nothing because the version was present.
type Target interface {
	Install(ctx context.Context, extensionID, version string) error
	Uninstall(ctx context.Context, extensionID, version string) error
}

// InstallationResult is the outcome of one InstallDependencyChain call.
type InstallationResult struct {
	Success bool
	// InstallOrder is the resolved order, empty when resolution failed.
	InstallOrder []string
	// Installed lists the extensions that were applied, in order. After a
	// failure they may since have been rolled back.
	Installed []string
	// AlreadyInstalled lists the extensions of InstallOrder that were present
	// before this call. They are never rolled back.
	AlreadyInstalled []string
	// RolledBack lists the extensions removed again, in the order the
	// uninstalls ran (reverse install order).
	RolledBack []string
	Errors     []resolver.Error
	Warnings   []string
	Timestamp  time.Time
}

// ChainInstaller installs an extension together with everything it depends on.
type ChainInstaller struct {
	resolver resolver.Resolver
	target   Target
	clock    clock.PassiveClock
}

type Option func(*ChainInstaller)

func WithClock(c clock.PassiveClock) Option {
	return func(ci *ChainInstaller) {
		ci.clock = c
	}
}

func New(r resolver.Resolver, t Target, opts ...Option) *ChainInstaller {
	ci := &ChainInstaller{resolver: r, target: t, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(ci)
	}
	return ci
}

// InstallDependencyChain resolves extensionID@version and installs the result
// one extension at a time. The first failed install stops the chain and every
// extension installed by this call is uninstalled again, newest first.
// Extensions the target already had are skipped and left in place.
//
// The returned error is only set when resolution was interrupted by ctx; all
// other failures are reported in the result.
func (ci *ChainInstaller) InstallDependencyChain(ctx context.Context, extensionID, version string) (InstallationResult, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("extension", extensionID, "version", version)
	out := InstallationResult{Timestamp: ci.clock.Now()}

	res, err := ci.resolver.Resolve(ctx, extensionID, version)
	if err != nil {
		return out, fmt.Errorf("resolve %s@%s: %w", extensionID, version, err)
	}
	out.Warnings = res.Warnings
	if !res.Success {
		out.Errors = append(out.Errors, res.Errors...)
		logger.Info("resolution failed; nothing installed", "errorCount", len(res.Errors))
		return out, nil
	}
	out.InstallOrder = res.InstallOrder

	var applied []manifest.Ref
	for _, ref := range res.Plan() {
		err := ctx.Err()
		if err == nil {
			err = ci.target.Install(ctx, ref.ID, ref.Version)
		}
		if errors.Is(err, ErrAlreadyInstalled) {
			out.AlreadyInstalled = append(out.AlreadyInstalled, ref.ID)
			logger.V(1).Info("already installed", "ref", ref.String())
			continue
		}
		if err != nil {
			out.Errors = append(out.Errors, resolver.Error{
				Kind:        resolver.KindInstallFailure,
				ExtensionID: ref.ID,
				Message:     fmt.Sprintf("installing %s failed", ref),
				Cause:       err,
			})
			logger.Error(err, "install failed; rolling back", "failed", ref.String(), "applied", len(applied))
			ci.rollback(context.WithoutCancel(ctx), logger, applied, &out)
			return out, nil
		}
		applied = append(applied, ref)
		out.Installed = append(out.Installed, ref.ID)
		logger.V(1).Info("installed", "ref", ref.String())
	}

	out.Success = true
	logger.Info("dependency chain installed", "installed", out.Installed)
	return out, nil
}

// rollback uninstalls applied in reverse. A failed uninstall is recorded and
// the unwind carries on with the rest.
func (ci *ChainInstaller) rollback(ctx context.Context, logger logr.Logger, applied []manifest.Ref, out *InstallationResult) {
	for i := len(applied) - 1; i >= 0; i-- {
		ref := applied[i]
		if err := ci.target.Uninstall(ctx, ref.ID, ref.Version); err != nil {
			out.Errors = append(out.Errors, resolver.Error{
				Kind:        resolver.KindRollbackFailure,
				ExtensionID: ref.ID,
				Message:     fmt.Sprintf("uninstalling %s during rollback failed", ref),
				Cause:       err,
			})
			logger.Error(err, "rollback step failed", "ref", ref.String())
			continue
		}
		out.RolledBack = append(out.RolledBack, ref.ID)
		logger.V(1).Info("rolled back", "ref", ref.String())
	}
}
