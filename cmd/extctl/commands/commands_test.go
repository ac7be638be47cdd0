package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/client/interceptor"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/agent"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

const (
	coreV1 = `
id: core
version: 1.0.0
`
	coreV11 = `
id: core
version: 1.1.0
`
	uiV12 = `
id: ui
version: 1.2.0
dependencies:
  - id: core
    constraint: ^1.0.0
  - id: telemetry
    constraint: ^0.1.0
    optional: true
`
	brokenV1 = `
id: broken
version: 1.0.0
dependencies:
  - id: ghost
    constraint: ^1.0.0
`
)

func manifestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func sampleDir(t *testing.T) string {
	return manifestDir(t, map[string]string{
		"core-1.0.0.yaml": coreV1,
		"core-1.1.0.yaml": coreV11,
		"ui-1.2.0.yaml":   uiV12,
	})
}

func testOptions() *options {
	return &options{
		newClient: func(string) (client.Client, error) {
			return nil, errors.New("no cluster in tests")
		},
		dialAgent: func(string) (*agent.Client, error) {
			return nil, errors.New("no agent in tests")
		},
	}
}

// run executes extctl with args against dir and returns what it printed to stdout.
func run(t *testing.T, o *options, dir string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(o)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--registry-dir", dir}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestResolve_PrintsPlan(t *testing.T) {
	out, err := run(t, testOptions(), sampleDir(t), "-o", "json", "resolve", "ui", "1.2.0")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var report resolveReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if !report.Success || report.State != "Succeeded" {
		t.Fatalf("expected success, got %+v", report)
	}
	want := []manifest.Ref{{ID: "core", Version: "1.1.0"}, {ID: "ui", Version: "1.2.0"}}
	if diff := cmp.Diff(want, report.Plan); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
	if len(report.Warnings) != 1 || !strings.Contains(report.Warnings[0], "telemetry") {
		t.Fatalf("expected a telemetry warning, got %v", report.Warnings)
	}
}

func TestResolve_FailurePrintsErrors(t *testing.T) {
	dir := manifestDir(t, map[string]string{"broken.yaml": brokenV1})
	out, err := run(t, testOptions(), dir, "resolve", "broken", "1.0.0")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if !strings.Contains(out, "does not resolve") || !strings.Contains(out, "error[missing_dependency]") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	if _, err := run(t, testOptions(), sampleDir(t), "-o", "xml", "resolve", "ui", "1.2.0"); err == nil || errors.Is(err, errFailed) {
		t.Fatalf("expected an output format error, got %v", err)
	}
}

func TestValidate_ResolvesEveryVersion(t *testing.T) {
	dir := manifestDir(t, map[string]string{
		"core-1.0.0.yaml": coreV1,
		"ui-1.2.0.yaml":   uiV12,
		"broken.yaml":     brokenV1,
	})
	out, err := run(t, testOptions(), dir, "-o", "json", "validate")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	var report validateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	var got []string
	for _, ext := range report.Extensions {
		if ext.Success {
			got = append(got, ext.Extension.String())
		}
	}
	if report.Valid || len(report.Extensions) != 3 {
		t.Fatalf("expected 3 results and an invalid registry, got %+v", report)
	}
	if diff := cmp.Diff([]string{"core@1.0.0", "ui@1.2.0"}, got); diff != "" {
		t.Fatalf("resolvable versions mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggest(t *testing.T) {
	out, err := run(t, testOptions(), sampleDir(t), "suggest", "core", "^1.0.0", "<1.1.0")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if out != "1.0.0\n" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = run(t, testOptions(), sampleDir(t), "suggest", "core", "^2.0.0")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if !strings.Contains(out, "no published version of core") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSuggest_InvalidConstraint(t *testing.T) {
	_, err := run(t, testOptions(), sampleDir(t), "suggest", "core", "^^1")
	var perr *semver.ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a ParseError, got %v", err)
	}
}

func TestInstall_DryRun(t *testing.T) {
	out, err := run(t, testOptions(), sampleDir(t), "install", "ui", "1.2.0")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !strings.HasPrefix(out, "dry run: installed core -> ui\n") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestInstall_ThroughAgentRollsBack(t *testing.T) {
	target := installer.NewMemoryTarget()
	target.FailInstall("ui", errors.New("disk full"))

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	agent.RegisterInstallAgentServer(srv, agent.NewServer(target, logr.Discard()))
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	o := testOptions()
	o.dialAgent = func(string) (*agent.Client, error) {
		return agent.Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	}

	out, err := run(t, o, sampleDir(t), "-o", "yaml", "install", "ui", "1.2.0", "--agent", "bufnet")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if !strings.Contains(out, "rolledBack:\n- core\n") {
		t.Fatalf("expected core to be rolled back:\n%s", out)
	}
	if got := target.Installed(); len(got) != 0 {
		t.Fatalf("expected agent target to be empty, got %v", got)
	}
}

func TestPublish_CreatesThenLeavesUnchanged(t *testing.T) {
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	o := testOptions()
	o.newClient = func(string) (client.Client, error) { return c, nil }
	dir := sampleDir(t)

	out, err := run(t, o, dir, "-n", "ext", "publish")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	want := "extensionmanifest/core-1.0.0 created\nextensionmanifest/core-1.1.0 created\nextensionmanifest/ui-1.2.0 created\n"
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("output mismatch (-want +got):\n%s", diff)
	}

	out, err = run(t, o, dir, "-n", "ext", "publish")
	if err != nil {
		t.Fatalf("publish again: %v", err)
	}
	if strings.Count(out, "unchanged") != 3 {
		t.Fatalf("expected every manifest unchanged:\n%s", out)
	}

	var ui extv1alpha1.ExtensionManifest
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "ext", Name: "ui-1.2.0"}, &ui); err != nil {
		t.Fatalf("get ui: %v", err)
	}
	wantDeps := []extv1alpha1.ExtensionDependency{
		{ExtensionID: "core", VersionConstraint: "^1.0.0", DependencyMode: extv1alpha1.DependencyModeRequired},
		{ExtensionID: "telemetry", VersionConstraint: "^0.1.0", DependencyMode: extv1alpha1.DependencyModeOptional},
	}
	if diff := cmp.Diff(wantDeps, ui.Spec.Dependencies); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestRequest_WaitsForTerminalPhase(t *testing.T) {
	// Stands in for the operator: every read sees the install reconciled.
	c := fake.NewClientBuilder().WithScheme(scheme).WithInterceptorFuncs(interceptor.Funcs{
		Get: func(ctx context.Context, c client.WithWatch, key client.ObjectKey, obj client.Object, opts ...client.GetOption) error {
			if err := c.Get(ctx, key, obj, opts...); err != nil {
				return err
			}
			if ei, ok := obj.(*extv1alpha1.ExtensionInstall); ok {
				ei.Status.Phase = extv1alpha1.ExtensionInstallPhaseFailed
				ei.Status.Message = "resolution failed"
				ei.Status.ObservedGeneration = ei.Generation
			}
			return nil
		},
	}).Build()
	o := testOptions()
	o.newClient = func(string) (client.Client, error) { return c, nil }

	out, err := run(t, o, t.TempDir(), "-n", "ext", "request", "ui", "1.2.0", "--wait", "--poll-interval", "10ms", "--timeout", "5s")
	if !errors.Is(err, errFailed) {
		t.Fatalf("expected errFailed, got %v", err)
	}
	if out != "extensioninstall/ui-1.2.0 Failed: resolution failed\n" {
		t.Fatalf("unexpected output %q", out)
	}

	var created extv1alpha1.ExtensionInstall
	if err := c.Get(context.Background(), client.ObjectKey{Namespace: "ext", Name: "ui-1.2.0"}, &created); err != nil {
		t.Fatalf("get: %v", err)
	}
	if created.Spec != (extv1alpha1.ExtensionInstallSpec{ExtensionID: "ui", Version: "1.2.0"}) {
		t.Fatalf("unexpected spec %+v", created.Spec)
	}
}
