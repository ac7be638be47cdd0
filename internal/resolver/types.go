package resolver

import (
	"time"

	"github.com/bayleafwalker/bindery-extensions/internal/graph"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

// State is a step of the resolution state machine.
type State string

const (
	StateBuilding      State = "Building"
	StateValidating    State = "Validating"
	StateCycleChecking State = "CycleChecking"
	StateSorting       State = "Sorting"
	StateSucceeded     State = "Succeeded"
)

// ResolutionResult is the outcome of one resolution session.
type ResolutionResult struct {
	Success bool
	// State is StateSucceeded, or the state in which resolution failed.
	State  State
	Errors []Error
	// Warnings are non-fatal notes, such as optional dependencies the
	// registry could not supply.
	Warnings []string
	// InstallOrder is dependency-first and only set on success.
	InstallOrder []string
	// Graph is the session graph. It is nil when building never started.
	Graph     *graph.Graph
	Timestamp time.Time
}

// Plan returns InstallOrder paired with the version selected for each extension.
func (r ResolutionResult) Plan() []manifest.Ref {
	if r.Graph == nil {
		return nil
	}
	out := make([]manifest.Ref, 0, len(r.InstallOrder))
	for _, id := range r.InstallOrder {
		n := r.Graph.Node(id)
		if n == nil {
			continue
		}
		out = append(out, manifest.Ref{ID: id, Version: n.Version})
	}
	return out
}

// ValidationResult is the outcome of a structural graph check.
type ValidationResult struct {
	IsValid bool
	Errors  []Error
}

// Candidate is a published extension version offered as a way out of a conflict.
type Candidate struct {
	ExtensionID string `json:"extensionId"`
	Version     string `json:"version"`
}
