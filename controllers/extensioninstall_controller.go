package controllers

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/utils/clock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/internal/installer"
	"github.com/bayleafwalker/bindery-extensions/internal/resolver"
)

const controllerExtensionInstall = "ExtensionInstall"

// ExtensionInstallReconciler installs the dependency chain an ExtensionInstall
// asks for, using the ExtensionManifests in its namespace as the registry.
//
// RBAC:
// +kubebuilder:rbac:groups=extensions.bindery.platform,resources=extensionmanifests,verbs=get;list;watch
// +kubebuilder:rbac:groups=extensions.bindery.platform,resources=extensionmanifests/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=extensions.bindery.platform,resources=extensioninstalls,verbs=get;list;watch
// +kubebuilder:rbac:groups=extensions.bindery.platform,resources=extensioninstalls/status,verbs=get;update;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch;update
type ExtensionInstallReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	// Agent, when set, receives every install before the manifest status is
	// updated. Nil means installs are only recorded on the manifests.
	Agent installer.Target
	// Concurrency bounds parallel registry reads per graph level; zero keeps
	// the resolver default.
	Concurrency int
	Clock       clock.PassiveClock
}

func (r *ExtensionInstallReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	extensionsControllerReconcileTotal.WithLabelValues(controllerExtensionInstall).Inc()

	logger := log.FromContext(ctx).WithValues(
		"controller", controllerExtensionInstall,
		"namespace", req.Namespace,
		"install", req.Name,
	)

	var install extv1alpha1.ExtensionInstall
	if err := r.Get(ctx, req.NamespacedName, &install); err != nil {
		if client.IgnoreNotFound(err) == nil {
			return ctrl.Result{}, nil
		}
		extensionsControllerReconcileErrorTotal.WithLabelValues(controllerExtensionInstall).Inc()
		return ctrl.Result{}, err
	}

	if install.Status.ObservedGeneration == install.Generation && install.Status.Phase == extv1alpha1.ExtensionInstallPhaseInstalled {
		logger.V(1).Info("generation already installed")
		return ctrl.Result{}, nil
	}

	logger = logger.WithValues("extension", install.Spec.ExtensionID, "version", install.Spec.Version)
	ctx = log.IntoContext(ctx, logger)
	clk := r.passiveClock()

	if install.Spec.ExtensionID == "" || install.Spec.Version == "" {
		msg := "spec.extensionId and spec.version are required"
		if perr := r.patchInstallStatus(ctx, &install, func(st *extv1alpha1.ExtensionInstallStatus) {
			st.Phase = extv1alpha1.ExtensionInstallPhaseFailed
			st.Message = msg
			st.LastAttemptTime = ptrTime(clk)
		},
			metav1.Condition{Type: InstallConditionResolved, Status: metav1.ConditionFalse, Reason: "InvalidSpec", Message: msg},
			metav1.Condition{Type: InstallConditionInstalled, Status: metav1.ConditionFalse, Reason: "InvalidSpec", Message: msg},
		); perr != nil {
			logger.Error(perr, "failed to patch install status")
		}
		r.recordEventf(&install, corev1.EventTypeWarning, "InvalidSpec", "%s", msg)
		return ctrl.Result{}, nil
	}

	logger.Info("reconciling extension install")
	if err := r.patchInstallStatus(ctx, &install, func(st *extv1alpha1.ExtensionInstallStatus) {
		st.Phase = extv1alpha1.ExtensionInstallPhaseResolving
		st.Message = "Resolving dependency chain"
	}); err != nil {
		extensionsControllerReconcileErrorTotal.WithLabelValues(controllerExtensionInstall).Inc()
		return ctrl.Result{}, err
	}

	var opts []resolver.Option
	opts = append(opts, resolver.WithClock(clk))
	if r.Concurrency > 0 {
		opts = append(opts, resolver.WithConcurrency(r.Concurrency))
	}
	registry := &ManifestRegistry{Reader: r.Client, Namespace: req.Namespace}
	var target installer.Target = &ManifestPhaseTarget{Client: r.Client, Namespace: req.Namespace, InstalledBy: install.Name}
	if r.Agent != nil {
		target = installer.Multi(r.Agent, target)
	}
	chain := installer.New(resolver.NewDefault(registry, opts...), target, installer.WithClock(clk))

	start := clk.Now()
	res, err := chain.InstallDependencyChain(ctx, install.Spec.ExtensionID, install.Spec.Version)
	extensionInstallDuration.Observe(clk.Since(start).Seconds())
	if err != nil {
		logger.Error(err, "install interrupted")
		extensionsControllerReconcileErrorTotal.WithLabelValues(controllerExtensionInstall).Inc()
		return ctrl.Result{}, err
	}

	for _, e := range res.Errors {
		extensionInstallErrorTotal.WithLabelValues(string(e.Kind)).Inc()
	}
	if len(res.RolledBack) > 0 {
		extensionRolledBackTotal.Add(float64(len(res.RolledBack)))
	}

	mutate := func(st *extv1alpha1.ExtensionInstallStatus) {
		st.InstallOrder = res.InstallOrder
		st.Installed = res.Installed
		st.AlreadyInstalled = res.AlreadyInstalled
		st.RolledBack = res.RolledBack
		st.Warnings = res.Warnings
		st.Errors = toInstallErrors(res.Errors)
		t := metav1.NewTime(res.Timestamp)
		st.LastAttemptTime = &t
	}

	switch {
	case res.Success:
		extensionInstallResultTotal.WithLabelValues("installed").Inc()
		msg := fmt.Sprintf("Installed %d extension(s)", len(res.Installed))
		if perr := r.patchInstallStatus(ctx, &install, func(st *extv1alpha1.ExtensionInstallStatus) {
			mutate(st)
			st.Phase = extv1alpha1.ExtensionInstallPhaseInstalled
			st.Message = msg
		},
			metav1.Condition{Type: InstallConditionResolved, Status: metav1.ConditionTrue, Reason: "Resolved", Message: fmt.Sprintf("Install order has %d extension(s)", len(res.InstallOrder))},
			metav1.Condition{Type: InstallConditionInstalled, Status: metav1.ConditionTrue, Reason: "Installed", Message: msg},
		); perr != nil {
			logger.Error(perr, "failed to patch install status")
			return ctrl.Result{}, perr
		}
		logger.Info("dependency chain installed", "installed", res.Installed)
		r.recordEventf(&install, corev1.EventTypeNormal, "Installed", "%s", msg)

	case len(res.InstallOrder) == 0:
		extensionInstallResultTotal.WithLabelValues("resolution_failed").Inc()
		msg := summarizeErrors(res.Errors)
		if perr := r.patchInstallStatus(ctx, &install, func(st *extv1alpha1.ExtensionInstallStatus) {
			mutate(st)
			st.Phase = extv1alpha1.ExtensionInstallPhaseFailed
			st.Message = msg
		},
			metav1.Condition{Type: InstallConditionResolved, Status: metav1.ConditionFalse, Reason: "ResolutionFailed", Message: msg},
			metav1.Condition{Type: InstallConditionInstalled, Status: metav1.ConditionFalse, Reason: "ResolutionFailed", Message: "Nothing was installed"},
		); perr != nil {
			logger.Error(perr, "failed to patch install status")
			return ctrl.Result{}, perr
		}
		logger.Info("resolution failed", "errorCount", len(res.Errors))
		r.recordEventf(&install, corev1.EventTypeWarning, "ResolutionFailed", "%s", msg)

	default:
		extensionInstallResultTotal.WithLabelValues("install_failed").Inc()
		msg := summarizeErrors(res.Errors)
		if perr := r.patchInstallStatus(ctx, &install, func(st *extv1alpha1.ExtensionInstallStatus) {
			mutate(st)
			st.Phase = extv1alpha1.ExtensionInstallPhaseFailed
			st.Message = msg
		},
			metav1.Condition{Type: InstallConditionResolved, Status: metav1.ConditionTrue, Reason: "Resolved", Message: fmt.Sprintf("Install order has %d extension(s)", len(res.InstallOrder))},
			metav1.Condition{Type: InstallConditionInstalled, Status: metav1.ConditionFalse, Reason: "InstallFailed", Message: msg},
		); perr != nil {
			logger.Error(perr, "failed to patch install status")
			return ctrl.Result{}, perr
		}
		logger.Info("install failed and was rolled back", "installed", res.Installed, "rolledBack", res.RolledBack)
		r.recordEventf(&install, corev1.EventTypeWarning, "InstallFailed", "%s", msg)
		if len(res.RolledBack) > 0 {
			r.recordEventf(&install, corev1.EventTypeNormal, "RolledBack", "Rolled back %v", res.RolledBack)
		}
	}

	return ctrl.Result{}, nil
}

func (r *ExtensionInstallReconciler) passiveClock() clock.PassiveClock {
	if r.Clock == nil {
		return clock.RealClock{}
	}
	return r.Clock
}

func (r *ExtensionInstallReconciler) recordEventf(obj client.Object, eventType, reason, messageFmt string, args ...any) {
	if r.Recorder == nil || obj == nil {
		return
	}
	r.Recorder.Eventf(obj, eventType, reason, messageFmt, args...)
}

func (r *ExtensionInstallReconciler) patchInstallStatus(ctx context.Context, install *extv1alpha1.ExtensionInstall, mutate func(*extv1alpha1.ExtensionInstallStatus), conds ...metav1.Condition) error {
	before := install.DeepCopy()
	install.Status.ObservedGeneration = install.Generation
	mutate(&install.Status)
	for _, c := range conds {
		setInstallCondition(install, c)
	}
	return r.Status().Patch(ctx, install, client.MergeFrom(before))
}

func (r *ExtensionInstallReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.GetFieldIndexer().IndexField(context.Background(), &extv1alpha1.ExtensionManifest{}, idxManifestExtensionID, indexManifestExtensionID); err != nil {
		return err
	}

	// Status patches do not bump the generation, so neither our own writes
	// nor the manifest phase updates re-trigger reconciles.
	return ctrl.NewControllerManagedBy(mgr).
		For(&extv1alpha1.ExtensionInstall{}, builder.WithPredicates(predicate.GenerationChangedPredicate{})).
		Watches(
			&extv1alpha1.ExtensionManifest{},
			enqueuePendingInstalls(mgr.GetClient()),
			builder.WithPredicates(predicate.GenerationChangedPredicate{}),
		).
		Complete(r)
}

// enqueuePendingInstalls re-enqueues every install in the manifest's namespace
// that has not reached Installed, since a new or changed manifest may unblock it.
func enqueuePendingInstalls(c client.Client) handler.EventHandler {
	return handler.EnqueueRequestsFromMapFunc(func(ctx context.Context, obj client.Object) []reconcile.Request {
		var installs extv1alpha1.ExtensionInstallList
		if err := c.List(ctx, &installs, client.InNamespace(obj.GetNamespace())); err != nil {
			return nil
		}
		out := make([]reconcile.Request, 0, len(installs.Items))
		for i := range installs.Items {
			in := &installs.Items[i]
			if in.Status.Phase == extv1alpha1.ExtensionInstallPhaseInstalled {
				continue
			}
			out = append(out, reconcile.Request{NamespacedName: types.NamespacedName{Namespace: in.Namespace, Name: in.Name}})
		}
		return out
	})
}

func toInstallErrors(errs []resolver.Error) []extv1alpha1.InstallError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]extv1alpha1.InstallError, 0, len(errs))
	for _, e := range errs {
		out = append(out, extv1alpha1.InstallError{
			Kind:         string(e.Kind),
			ExtensionID:  e.ExtensionID,
			DependencyID: e.DependencyID,
			Message:      e.Error(),
		})
	}
	return out
}

func ptrTime(c clock.PassiveClock) *metav1.Time {
	t := metav1.NewTime(c.Now())
	return &t
}
