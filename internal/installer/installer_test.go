package installer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/registry"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// chainRegistry publishes C -> B -> A, so the install order is [A B C].
func chainRegistry(t *testing.T) *registry.Memory {
	t.Helper()
	reg := registry.NewMemory()
	err := reg.Publish(
		manifest.Manifest{ID: "A", Version: "1.0.0"},
		manifest.Manifest{ID: "B", Version: "1.1.0", Dependencies: []manifest.Dependency{{ID: "A", Constraint: "^1.0.0"}}},
		manifest.Manifest{ID: "C", Version: "2.0.0", Dependencies: []manifest.Dependency{{ID: "B", Constraint: "~1.1.0"}}},
	)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return reg
}

func newInstaller(reg resolver.Registry, target Target) *ChainInstaller {
	return New(resolver.NewDefault(reg), target, WithClock(clocktesting.NewFakePassiveClock(testNow)))
}

func kinds(errs []resolver.Error) []resolver.ErrorKind {
	out := make([]resolver.ErrorKind, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func TestInstallDependencyChain_SingleExtension(t *testing.T) {
	reg := registry.NewMemory()
	if err := reg.Publish(manifest.Manifest{ID: "E", Version: "1.0.0"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	target := NewMemoryTarget()

	res, err := newInstaller(reg, target).InstallDependencyChain(context.Background(), "E", "1.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	if diff := cmp.Diff([]string{"E"}, res.Installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if len(res.RolledBack) != 0 {
		t.Fatalf("expected nothing rolled back, got %v", res.RolledBack)
	}
	if !res.Timestamp.Equal(testNow) {
		t.Fatalf("expected timestamp %v, got %v", testNow, res.Timestamp)
	}
}

func TestInstallDependencyChain_InstallsWithSelectedVersions(t *testing.T) {
	target := NewMemoryTarget()

	res, err := newInstaller(chainRegistry(t), target).InstallDependencyChain(context.Background(), "C", "2.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	want := []manifest.Ref{{ID: "A", Version: "1.0.0"}, {ID: "B", Version: "1.1.0"}, {ID: "C", Version: "2.0.0"}}
	if diff := cmp.Diff(want, target.Installed()); diff != "" {
		t.Fatalf("target state mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallDependencyChain_RollsBackInReverseOrder(t *testing.T) {
	target := NewMemoryTarget()
	target.FailInstall("C", errors.New("disk full"))

	res, err := newInstaller(chainRegistry(t), target).InstallDependencyChain(context.Background(), "C", "2.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, res.InstallOrder); diff != "" {
		t.Fatalf("install order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A", "B"}, res.Installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B", "A"}, res.RolledBack); diff != "" {
		t.Fatalf("rolled back mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]resolver.ErrorKind{resolver.KindInstallFailure}, kinds(res.Errors)); diff != "" {
		t.Fatalf("error kinds mismatch (-want +got):\n%s", diff)
	}

	wantCalls := []Call{
		{Op: OpInstall, Ref: manifest.Ref{ID: "A", Version: "1.0.0"}},
		{Op: OpInstall, Ref: manifest.Ref{ID: "B", Version: "1.1.0"}},
		{Op: OpInstall, Ref: manifest.Ref{ID: "C", Version: "2.0.0"}},
		{Op: OpUninstall, Ref: manifest.Ref{ID: "B", Version: "1.1.0"}},
		{Op: OpUninstall, Ref: manifest.Ref{ID: "A", Version: "1.0.0"}},
	}
	if diff := cmp.Diff(wantCalls, target.Calls()); diff != "" {
		t.Fatalf("calls mismatch (-want +got):\n%s", diff)
	}
	if got := target.Installed(); len(got) != 0 {
		t.Fatalf("expected target to be empty after rollback, got %v", got)
	}
}

func TestInstallDependencyChain_KeepsExtensionsInstalledEarlier(t *testing.T) {
	target := NewMemoryTarget()
	ctx := context.Background()
	if err := target.Install(ctx, "A", "1.0.0"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	target.FailInstall("C", errors.New("disk full"))

	res, err := newInstaller(chainRegistry(t), target).InstallDependencyChain(ctx, "C", "2.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if diff := cmp.Diff([]string{"A"}, res.AlreadyInstalled); diff != "" {
		t.Fatalf("already installed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B"}, res.Installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"B"}, res.RolledBack); diff != "" {
		t.Fatalf("rolled back mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]manifest.Ref{{ID: "A", Version: "1.0.0"}}, target.Installed()); diff != "" {
		t.Fatalf("target mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallDependencyChain_ReinstallIsANoop(t *testing.T) {
	target := NewMemoryTarget()
	inst := newInstaller(chainRegistry(t), target)
	ctx := context.Background()
	if _, err := inst.InstallDependencyChain(ctx, "C", "2.0.0"); err != nil {
		t.Fatalf("first install: %v", err)
	}

	res, err := inst.InstallDependencyChain(ctx, "C", "2.0.0")
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Errors)
	}
	if len(res.Installed) != 0 {
		t.Fatalf("expected nothing newly installed, got %v", res.Installed)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, res.AlreadyInstalled); diff != "" {
		t.Fatalf("already installed mismatch (-want +got):\n%s", diff)
	}
}

func TestInstallDependencyChain_RollbackFailureIsBestEffort(t *testing.T) {
	target := NewMemoryTarget()
	target.FailInstall("C", errors.New("disk full"))
	target.FailUninstall("B", errors.New("in use"))

	res, err := newInstaller(chainRegistry(t), target).InstallDependencyChain(context.Background(), "C", "2.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	want := []resolver.ErrorKind{resolver.KindInstallFailure, resolver.KindRollbackFailure}
	if diff := cmp.Diff(want, kinds(res.Errors)); diff != "" {
		t.Fatalf("error kinds mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"A"}, res.RolledBack); diff != "" {
		t.Fatalf("rolled back mismatch (-want +got):\n%s", diff)
	}
	if res.Errors[1].ExtensionID != "B" {
		t.Fatalf("expected rollback failure for B, got %+v", res.Errors[1])
	}
}

func TestInstallDependencyChain_ResolutionFailureInstallsNothing(t *testing.T) {
	reg := registry.NewMemory()
	err := reg.Publish(manifest.Manifest{ID: "app", Version: "1.0.0", Dependencies: []manifest.Dependency{{ID: "ghost", Constraint: "^1.0.0"}}})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	target := NewMemoryTarget()

	res, err := newInstaller(reg, target).InstallDependencyChain(context.Background(), "app", "1.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if res.Success || len(res.Installed) != 0 || len(res.RolledBack) != 0 {
		t.Fatalf("expected an untouched failure, got %+v", res)
	}
	if diff := cmp.Diff([]resolver.ErrorKind{resolver.KindMissingDependency}, kinds(res.Errors)); diff != "" {
		t.Fatalf("error kinds mismatch (-want +got):\n%s", diff)
	}
	if calls := target.Calls(); len(calls) != 0 {
		t.Fatalf("expected no target calls, got %v", calls)
	}
}

// cancellingTarget cancels the caller's context once id has been installed.
type cancellingTarget struct {
	*MemoryTarget
	id     string
	cancel context.CancelFunc
}

func (c cancellingTarget) Install(ctx context.Context, id, version string) error {
	if err := c.MemoryTarget.Install(ctx, id, version); err != nil {
		return err
	}
	if id == c.id {
		c.cancel()
	}
	return nil
}

func TestInstallDependencyChain_CancelledCallerStillRollsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	target := cancellingTarget{MemoryTarget: NewMemoryTarget(), id: "B", cancel: cancel}

	res, err := newInstaller(chainRegistry(t), target).InstallDependencyChain(ctx, "C", "2.0.0")
	if err != nil {
		t.Fatalf("InstallDependencyChain: %v", err)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], context.Canceled) {
		t.Fatalf("expected one cancellation failure, got %v", res.Errors)
	}
	if diff := cmp.Diff([]string{"B", "A"}, res.RolledBack); diff != "" {
		t.Fatalf("rolled back mismatch (-want +got):\n%s", diff)
	}
	if got := target.Installed(); len(got) != 0 {
		t.Fatalf("expected target to be empty after rollback, got %v", got)
	}
}

type stubResolver struct {
	err error
}

func (s stubResolver) Resolve(context.Context, string, string) (resolver.ResolutionResult, error) {
	return resolver.ResolutionResult{}, s.err
}

func TestInstallDependencyChain_ResolveErrorIsReturned(t *testing.T) {
	target := NewMemoryTarget()
	ci := New(stubResolver{err: context.DeadlineExceeded}, target)

	_, err := ci.InstallDependencyChain(context.Background(), "app", "1.0.0")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if calls := target.Calls(); len(calls) != 0 {
		t.Fatalf("expected no target calls, got %v", calls)
	}
}
