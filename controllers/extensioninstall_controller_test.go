package controllers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	clocktesting "k8s.io/utils/clock/testing"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

const testNamespace = "bindery-demo"

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := extv1alpha1.AddToScheme(scheme); err != nil {
		t.Fatalf("AddToScheme: %v", err)
	}
	return scheme
}

func em(name, id, version string, deps ...extv1alpha1.ExtensionDependency) *extv1alpha1.ExtensionManifest {
	return &extv1alpha1.ExtensionManifest{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace},
		Spec: extv1alpha1.ExtensionManifestSpec{
			Extension:    extv1alpha1.ExtensionRef{ID: id, Version: version},
			Dependencies: deps,
		},
	}
}

func dep(id, constraint string, mode extv1alpha1.DependencyMode) extv1alpha1.ExtensionDependency {
	return extv1alpha1.ExtensionDependency{ExtensionID: id, VersionConstraint: constraint, DependencyMode: mode}
}

func ei(name, id, version string) *extv1alpha1.ExtensionInstall {
	return &extv1alpha1.ExtensionInstall{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: testNamespace, Generation: 1},
		Spec:       extv1alpha1.ExtensionInstallSpec{ExtensionID: id, Version: version},
	}
}

func newFakeClient(t *testing.T, objs ...client.Object) client.Client {
	t.Helper()
	return fake.NewClientBuilder().
		WithScheme(testScheme(t)).
		WithIndex(&extv1alpha1.ExtensionManifest{}, idxManifestExtensionID, indexManifestExtensionID).
		WithObjects(objs...).
		WithStatusSubresource(objs...).
		Build()
}

func reconcileInstall(t *testing.T, r *ExtensionInstallReconciler, name string) extv1alpha1.ExtensionInstall {
	t.Helper()
	ctx := context.Background()
	key := types.NamespacedName{Namespace: testNamespace, Name: name}
	if _, err := r.Reconcile(ctx, ctrl.Request{NamespacedName: key}); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	var out extv1alpha1.ExtensionInstall
	if err := r.Get(ctx, key, &out); err != nil {
		t.Fatalf("get install: %v", err)
	}
	return out
}

func manifestPhase(t *testing.T, c client.Client, name string) extv1alpha1.ExtensionManifestStatus {
	t.Helper()
	var m extv1alpha1.ExtensionManifest
	if err := c.Get(context.Background(), types.NamespacedName{Namespace: testNamespace, Name: name}, &m); err != nil {
		t.Fatalf("get manifest %s: %v", name, err)
	}
	return m.Status
}

func drainEvents(rec *record.FakeRecorder) []string {
	var out []string
	for {
		select {
		case e := <-rec.Events:
			out = append(out, e)
		default:
			return out
		}
	}
}

func sampleManifests() []client.Object {
	return []client.Object{
		em("core-1.0.0", "core", "1.0.0"),
		em("ui-1.2.0", "ui", "1.2.0", dep("core", "^1.0.0", extv1alpha1.DependencyModeRequired)),
		em("app-2.0.0", "app", "2.0.0",
			dep("ui", "~1.2.0", extv1alpha1.DependencyModeRequired),
			dep("telemetry", "^1.0.0", extv1alpha1.DependencyModeOptional),
		),
	}
}

func TestExtensionInstallReconcile_InstallsChain(t *testing.T) {
	objs := append(sampleManifests(), ei("install-app", "app", "2.0.0"))
	cl := newFakeClient(t, objs...)
	rec := record.NewFakeRecorder(10)
	r := &ExtensionInstallReconciler{Client: cl, Recorder: rec, Clock: clocktesting.NewFakePassiveClock(testNow)}

	got := reconcileInstall(t, r, "install-app")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseInstalled {
		t.Fatalf("expected Installed, got %s (%s)", got.Status.Phase, got.Status.Message)
	}
	if diff := cmp.Diff([]string{"core", "ui", "app"}, got.Status.InstallOrder); diff != "" {
		t.Fatalf("install order mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got.Status.InstallOrder, got.Status.Installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if len(got.Status.Warnings) != 1 {
		t.Fatalf("expected a warning for the missing optional dependency, got %v", got.Status.Warnings)
	}
	if got.Status.ObservedGeneration != 1 {
		t.Fatalf("expected observedGeneration=1, got %d", got.Status.ObservedGeneration)
	}
	if got.Status.LastAttemptTime == nil || !got.Status.LastAttemptTime.Time.Equal(testNow) {
		t.Fatalf("unexpected lastAttemptTime %v", got.Status.LastAttemptTime)
	}
	if !meta.IsStatusConditionTrue(got.Status.Conditions, InstallConditionInstalled) {
		t.Fatalf("expected Installed condition, got %+v", got.Status.Conditions)
	}

	for _, name := range []string{"core-1.0.0", "ui-1.2.0", "app-2.0.0"} {
		st := manifestPhase(t, cl, name)
		if st.Phase != extv1alpha1.ExtensionManifestPhaseInstalled || st.InstalledBy != "install-app" {
			t.Fatalf("manifest %s: unexpected status %+v", name, st)
		}
	}

	events := drainEvents(rec)
	if len(events) != 1 || !strings.HasPrefix(events[0], "Normal Installed") {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestExtensionInstallReconcile_AgentFailureRollsBack(t *testing.T) {
	objs := append(sampleManifests(), ei("install-app", "app", "2.0.0"))
	cl := newFakeClient(t, objs...)
	agent := installer.NewMemoryTarget()
	agent.FailInstall("app", errors.New("disk full"))
	rec := record.NewFakeRecorder(10)
	r := &ExtensionInstallReconciler{Client: cl, Recorder: rec, Agent: agent}

	got := reconcileInstall(t, r, "install-app")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseFailed {
		t.Fatalf("expected Failed, got %s", got.Status.Phase)
	}
	if diff := cmp.Diff([]string{"core", "ui"}, got.Status.Installed); diff != "" {
		t.Fatalf("installed mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ui", "core"}, got.Status.RolledBack); diff != "" {
		t.Fatalf("rolled back mismatch (-want +got):\n%s", diff)
	}
	if len(got.Status.Errors) != 1 || got.Status.Errors[0].Kind != "install_failure" || got.Status.Errors[0].ExtensionID != "app" {
		t.Fatalf("unexpected errors %+v", got.Status.Errors)
	}
	if !meta.IsStatusConditionTrue(got.Status.Conditions, InstallConditionResolved) {
		t.Fatal("expected Resolved condition to stay true")
	}
	cond := meta.FindStatusCondition(got.Status.Conditions, InstallConditionInstalled)
	if cond == nil || cond.Status != metav1.ConditionFalse || cond.Reason != "InstallFailed" {
		t.Fatalf("unexpected Installed condition %+v", cond)
	}

	for _, name := range []string{"core-1.0.0", "ui-1.2.0"} {
		if st := manifestPhase(t, cl, name); st.Phase != extv1alpha1.ExtensionManifestPhaseAvailable || st.InstalledBy != "" {
			t.Fatalf("manifest %s: expected rollback to Available, got %+v", name, st)
		}
	}
	if st := manifestPhase(t, cl, "app-2.0.0"); st.Phase != "" {
		t.Fatalf("app manifest must be untouched, got %+v", st)
	}
	if got := agent.Installed(); len(got) != 0 {
		t.Fatalf("expected agent to be empty after rollback, got %v", got)
	}

	events := drainEvents(rec)
	want := []string{"Warning InstallFailed", "Normal RolledBack"}
	if len(events) != len(want) {
		t.Fatalf("unexpected events %v", events)
	}
	for i := range want {
		if !strings.HasPrefix(events[i], want[i]) {
			t.Fatalf("event %d: expected prefix %q, got %q", i, want[i], events[i])
		}
	}
}

func TestExtensionInstallReconcile_FailureKeepsSharedDependencies(t *testing.T) {
	objs := append(sampleManifests(), ei("install-ui", "ui", "1.2.0"), ei("install-app", "app", "2.0.0"))
	cl := newFakeClient(t, objs...)
	agent := installer.NewMemoryTarget()
	rec := record.NewFakeRecorder(10)
	r := &ExtensionInstallReconciler{Client: cl, Recorder: rec, Agent: agent}

	if got := reconcileInstall(t, r, "install-ui"); got.Status.Phase != extv1alpha1.ExtensionInstallPhaseInstalled {
		t.Fatalf("install-ui: expected Installed, got %s (%s)", got.Status.Phase, got.Status.Message)
	}
	drainEvents(rec)
	agent.FailInstall("app", errors.New("disk full"))

	got := reconcileInstall(t, r, "install-app")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseFailed {
		t.Fatalf("expected Failed, got %s", got.Status.Phase)
	}
	if diff := cmp.Diff([]string{"core", "ui"}, got.Status.AlreadyInstalled); diff != "" {
		t.Fatalf("already installed mismatch (-want +got):\n%s", diff)
	}
	if len(got.Status.Installed) != 0 || len(got.Status.RolledBack) != 0 {
		t.Fatalf("expected nothing installed or rolled back, got installed=%v rolledBack=%v", got.Status.Installed, got.Status.RolledBack)
	}

	want := []manifest.Ref{{ID: "core", Version: "1.0.0"}, {ID: "ui", Version: "1.2.0"}}
	if diff := cmp.Diff(want, agent.Installed()); diff != "" {
		t.Fatalf("agent mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"core-1.0.0", "ui-1.2.0"} {
		if st := manifestPhase(t, cl, name); st.Phase != extv1alpha1.ExtensionManifestPhaseInstalled || st.InstalledBy != "install-ui" {
			t.Fatalf("manifest %s: expected to stay installed by install-ui, got %+v", name, st)
		}
	}
	if got := reconcileInstall(t, r, "install-ui"); got.Status.Phase != extv1alpha1.ExtensionInstallPhaseInstalled {
		t.Fatalf("install-ui: expected to stay Installed, got %s", got.Status.Phase)
	}

	events := drainEvents(rec)
	if len(events) != 1 || !strings.HasPrefix(events[0], "Warning InstallFailed") {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestExtensionInstallReconcile_ResolutionFailure(t *testing.T) {
	cl := newFakeClient(t,
		em("app-1.0.0", "app", "1.0.0", dep("ghost", "^1.0.0", extv1alpha1.DependencyModeRequired)),
		ei("install-app", "app", "1.0.0"),
	)
	r := &ExtensionInstallReconciler{Client: cl}

	got := reconcileInstall(t, r, "install-app")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseFailed {
		t.Fatalf("expected Failed, got %s", got.Status.Phase)
	}
	if len(got.Status.Errors) != 1 || got.Status.Errors[0].Kind != "missing_dependency" || got.Status.Errors[0].DependencyID != "ghost" {
		t.Fatalf("unexpected errors %+v", got.Status.Errors)
	}
	cond := meta.FindStatusCondition(got.Status.Conditions, InstallConditionResolved)
	if cond == nil || cond.Status != metav1.ConditionFalse || cond.Reason != "ResolutionFailed" {
		t.Fatalf("unexpected Resolved condition %+v", cond)
	}
	if len(got.Status.InstallOrder) != 0 || len(got.Status.Installed) != 0 {
		t.Fatalf("expected nothing installed, got %+v", got.Status)
	}
	if st := manifestPhase(t, cl, "app-1.0.0"); st.Phase != "" {
		t.Fatalf("manifest must be untouched, got %+v", st)
	}
}

func TestExtensionInstallReconcile_SkipsInstalledGeneration(t *testing.T) {
	install := ei("install-app", "app", "2.0.0")
	install.Status.Phase = extv1alpha1.ExtensionInstallPhaseInstalled
	install.Status.ObservedGeneration = 1
	objs := append(sampleManifests(), install)
	cl := newFakeClient(t, objs...)
	agent := installer.NewMemoryTarget()
	r := &ExtensionInstallReconciler{Client: cl, Agent: agent}

	got := reconcileInstall(t, r, "install-app")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseInstalled {
		t.Fatalf("expected phase to stay Installed, got %s", got.Status.Phase)
	}
	if calls := agent.Calls(); len(calls) != 0 {
		t.Fatalf("expected no install calls, got %v", calls)
	}
}

func TestExtensionInstallReconcile_InvalidSpec(t *testing.T) {
	cl := newFakeClient(t, ei("install-empty", "", ""))
	rec := record.NewFakeRecorder(10)
	r := &ExtensionInstallReconciler{Client: cl, Recorder: rec}

	got := reconcileInstall(t, r, "install-empty")
	if got.Status.Phase != extv1alpha1.ExtensionInstallPhaseFailed {
		t.Fatalf("expected Failed, got %s", got.Status.Phase)
	}
	cond := meta.FindStatusCondition(got.Status.Conditions, InstallConditionResolved)
	if cond == nil || cond.Reason != "InvalidSpec" {
		t.Fatalf("unexpected Resolved condition %+v", cond)
	}
	if events := drainEvents(rec); len(events) != 1 || !strings.HasPrefix(events[0], "Warning InvalidSpec") {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestExtensionInstallReconcile_DeletedInstallIsIgnored(t *testing.T) {
	r := &ExtensionInstallReconciler{Client: newFakeClient(t)}
	_, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: types.NamespacedName{Namespace: testNamespace, Name: "gone"}})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
}

func TestManifestRegistry(t *testing.T) {
	cl := newFakeClient(t,
		em("ui-1.10.0", "ui", "1.10.0"),
		em("ui-1.2.0", "ui", "1.2.0", dep("core", "^1.0.0", extv1alpha1.DependencyModeRequired), dep("theme", "*", extv1alpha1.DependencyModeOptional)),
		em("core-1.0.0", "core", "1.0.0"),
	)
	reg := &ManifestRegistry{Reader: cl, Namespace: testNamespace}
	ctx := context.Background()

	versions, err := reg.ListVersions(ctx, "ui")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 {
		t.Fatalf("expected two versions, got %v", versions)
	}

	m, err := reg.GetManifest(ctx, "ui", "1.2.0")
	if err != nil {
		t.Fatalf("GetManifest: %v", err)
	}
	want := []manifest.Dependency{
		{ID: "core", Constraint: "^1.0.0"},
		{ID: "theme", Constraint: "*", Optional: true},
	}
	if diff := cmp.Diff(want, m.Dependencies); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}

	if _, err := reg.GetManifest(ctx, "ui", "9.9.9"); !errors.Is(err, manifest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown version, got %v", err)
	}
	if _, err := reg.ListVersions(ctx, "ghost"); !errors.Is(err, manifest.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown extension, got %v", err)
	}
}

func TestNewManifestObject(t *testing.T) {
	m := manifest.Manifest{
		ID:      "UI",
		Version: "1.2.0+build_7",
		Dependencies: []manifest.Dependency{
			{ID: "core", Constraint: "^1.0.0"},
			{ID: "theme", Constraint: "*", Optional: true},
		},
		Metadata: map[string]string{"owner": "ui-team"},
	}
	obj := NewManifestObject(m, testNamespace)
	if obj.Name != "ui-1.2.0-build-7" || obj.Namespace != testNamespace {
		t.Fatalf("unexpected object key %s/%s", obj.Namespace, obj.Name)
	}
	if diff := cmp.Diff(m, toManifest(obj)); diff != "" {
		t.Fatalf("manifest did not survive conversion (-want +got):\n%s", diff)
	}
}
