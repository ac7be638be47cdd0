package main

import (
	"flag"
	"fmt"
	"os"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	extv1alpha1 "github.com/bayleafwalker/bindery-extensions/api/v1alpha1"
	"github.com/bayleafwalker/bindery-extensions/controllers"
	"github.com/bayleafwalker/bindery-extensions/internal/agent"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(extv1alpha1.AddToScheme(scheme))
}

type config struct {
	metricsAddr          string
	probeAddr            string
	enableLeaderElection bool
	agentAddr            string
	concurrency          int
}

func main() {
	var cfg config
	flag.StringVar(&cfg.metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&cfg.probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&cfg.enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.StringVar(&cfg.agentAddr, "agent-address", "", "Address of the extension install agent. Empty records installs on the manifests only.")
	flag.IntVar(&cfg.concurrency, "resolver-concurrency", 0, "Parallel manifest reads per dependency level. Zero keeps the resolver default.")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	if err := run(cfg); err != nil {
		setupLog.Error(err, "manager stopped")
		os.Exit(1)
	}
}

func run(cfg config) error {
	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: cfg.metricsAddr},
		HealthProbeBindAddress: cfg.probeAddr,
		LeaderElection:         cfg.enableLeaderElection,
		LeaderElectionID:       "extensioninstall.extensions.bindery.platform",
	})
	if err != nil {
		return fmt.Errorf("unable to start manager: %w", err)
	}

	reconciler := &controllers.ExtensionInstallReconciler{
		Client:      mgr.GetClient(),
		Scheme:      mgr.GetScheme(),
		Recorder:    mgr.GetEventRecorderFor("ExtensionInstall"),
		Concurrency: cfg.concurrency,
	}
	if cfg.agentAddr != "" {
		agentClient, err := agent.Dial(cfg.agentAddr)
		if err != nil {
			return fmt.Errorf("unable to create install agent client for %s: %w", cfg.agentAddr, err)
		}
		defer agentClient.Close()
		reconciler.Agent = agentClient
		setupLog.Info("installing through agent", "address", cfg.agentAddr)
	}
	if err := reconciler.SetupWithManager(mgr); err != nil {
		return fmt.Errorf("unable to create controller ExtensionInstall: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up health check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		return fmt.Errorf("unable to set up ready check: %w", err)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		return fmt.Errorf("problem running manager: %w", err)
	}
	return nil
}
