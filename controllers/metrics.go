package controllers

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	extensionsControllerReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_extensions_controller_reconcile_total",
			Help: "Number of reconciliations by controller.",
		},
		[]string{"controller"},
	)
	extensionsControllerReconcileErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_extensions_controller_reconcile_error_total",
			Help: "Number of reconciliation errors by controller.",
		},
		[]string{"controller"},
	)

	extensionInstallResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_extensions_install_total",
			Help: "Install attempts by outcome (installed, resolution_failed, install_failed).",
		},
		[]string{"result"},
	)
	extensionInstallErrorTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bindery_extensions_errors_total",
			Help: "Resolution and installation errors by kind.",
		},
		[]string{"kind"},
	)
	extensionRolledBackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bindery_extensions_rolled_back_total",
			Help: "Total number of extensions uninstalled during rollback.",
		},
	)

	extensionInstallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bindery_extensions_install_duration_seconds",
			Help:    "Time taken to resolve and install a dependency chain.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	metrics.Registry.MustRegister(
		extensionsControllerReconcileTotal,
		extensionsControllerReconcileErrorTotal,
		extensionInstallResultTotal,
		extensionInstallErrorTotal,
		extensionRolledBackTotal,
		extensionInstallDuration,
	)
}
