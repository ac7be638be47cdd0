package publish

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

const (
	SubjectInstalled   = "bindery.extensions.installed"
	SubjectUninstalled = "bindery.extensions.uninstalled"
)

// Event is the JSON payload published for every applied install or uninstall.
type Event struct {
	ExtensionID string    `json:"extensionId"`
	Version     string    `json:"version"`
	Time        time.Time `json:"time"`
}

// Target publishes an Event after each successful call on the wrapped target.
// A failed publish is logged; the install itself has already happened.
type Target struct {
	Target    installer.Target
	Publisher Publisher
	Clock     clock.PassiveClock
}

var _ installer.Target = Target{}

func (t Target) Install(ctx context.Context, extensionID, version string) error {
	if err := t.Target.Install(ctx, extensionID, version); err != nil {
		return err
	}
	t.announce(ctx, SubjectInstalled, extensionID, version)
	return nil
}

func (t Target) Uninstall(ctx context.Context, extensionID, version string) error {
	if err := t.Target.Uninstall(ctx, extensionID, version); err != nil {
		return err
	}
	t.announce(ctx, SubjectUninstalled, extensionID, version)
	return nil
}

// Installed delegates to the wrapped target when it can list.
func (t Target) Installed() []manifest.Ref {
	if l, ok := t.Target.(interface{ Installed() []manifest.Ref }); ok {
		return l.Installed()
	}
	return nil
}

func (t Target) announce(ctx context.Context, subject, extensionID, version string) {
	c := t.Clock
	if c == nil {
		c = clock.RealClock{}
	}
	payload, err := json.Marshal(Event{ExtensionID: extensionID, Version: version, Time: c.Now().UTC()})
	if err == nil {
		err = t.Publisher.Publish(context.WithoutCancel(ctx), subject, payload)
	}
	if err != nil {
		logr.FromContextOrDiscard(ctx).Error(err, "unable to publish event", "subject", subject, "extension", extensionID, "version", version)
	}
}
