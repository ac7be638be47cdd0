package resolver

import (
	"fmt"

	"github.com/bayleafwalker/bindery-extensions/internal/graph"
)

// ErrorKind classifies a resolution or installation failure.
type ErrorKind string

const (
	KindParse                 ErrorKind = "parse_error"
	KindMissingDependency     ErrorKind = "missing_dependency"
	KindCycleDetected         ErrorKind = "cycle_detected"
	KindVersionConflict       ErrorKind = "version_conflict"
	KindRegistryLookupFailure ErrorKind = "registry_lookup_failure"
	KindInternal              ErrorKind = "internal_error"
	KindInstallFailure        ErrorKind = "install_failure"
	KindRollbackFailure       ErrorKind = "rollback_failure"
)

// Error is one structured failure. Results carry every Error found, in order.
type Error struct {
	Kind         ErrorKind
	ExtensionID  string
	DependencyID string
	Message      string
	// Cycle is set for KindCycleDetected.
	Cycle *graph.Cycle
	// Alternatives lists published versions of DependencyID that would
	// satisfy every constraint on it. Only set for KindVersionConflict.
	Alternatives []Candidate
	Cause        error
}

func (e Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e Error) Unwrap() error {
	return e.Cause
}
