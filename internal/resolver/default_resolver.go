package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/utils/clock"

	"github.com/bayleafwalker/bindery-extensions/internal/graph"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

const defaultConcurrency = 4

// DefaultResolver resolves extensions against a Registry.
//
// It holds no per-session state; every Resolve call builds its own graph, so a
// DefaultResolver may be shared between goroutines.
type DefaultResolver struct {
	registry    Registry
	clock       clock.PassiveClock
	concurrency int
}

type Option func(*DefaultResolver)

// WithClock sets the clock used to stamp results.
func WithClock(c clock.PassiveClock) Option {
	return func(r *DefaultResolver) {
		r.clock = c
	}
}

// WithConcurrency bounds the number of registry calls in flight while a graph
// level is fetched. Values below 1 mean sequential.
func WithConcurrency(n int) Option {
	return func(r *DefaultResolver) {
		if n < 1 {
			n = 1
		}
		r.concurrency = n
	}
}

func NewDefault(registry Registry, opts ...Option) *DefaultResolver {
	r := &DefaultResolver{
		registry:    registry,
		clock:       clock.RealClock{},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs Building, Validating, CycleChecking and Sorting for extensionID
// at version. Every failure is reported in the result; the returned error is
// only set when ctx ends before resolution completes.
func (r *DefaultResolver) Resolve(ctx context.Context, extensionID, version string) (ResolutionResult, error) {
	logger := logr.FromContextOrDiscard(ctx).WithValues("extension", extensionID, "version", version)
	res := ResolutionResult{Timestamp: r.clock.Now()}

	enter := func(s State) {
		res.State = s
		logger.V(1).Info("resolution state", "state", s)
	}

	enter(StateBuilding)
	s := &session{
		registry:    r.registry,
		concurrency: r.concurrency,
		logger:      logger,
		graph:       graph.New(),
	}
	err := s.build(ctx, extensionID, version)
	res.Graph = s.graph
	res.Warnings = s.warnings
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		var rerr Error
		if !errors.As(err, &rerr) {
			rerr = Error{Kind: KindInternal, ExtensionID: extensionID, Message: "graph construction failed", Cause: err}
		}
		res.Errors = append(res.Errors, rerr)
		logger.Info("resolution failed", "state", res.State, "kind", rerr.Kind, "reason", rerr.Error())
		return res, nil
	}

	enter(StateValidating)
	res.Errors = append(res.Errors, r.ValidateDependencyGraph(s.graph).Errors...)
	res.Errors = append(res.Errors, r.versionConflicts(ctx, s.graph)...)
	failedAt := res.State
	if len(res.Errors) == 0 {
		enter(StateCycleChecking)
		failedAt = res.State
	}
	res.Errors = append(res.Errors, cycleErrors(graph.DetectCycles(s.graph))...)
	if len(res.Errors) > 0 {
		res.State = failedAt
		logger.Info("resolution failed", "state", res.State, "errorCount", len(res.Errors))
		return res, nil
	}

	enter(StateSorting)
	order, err := graph.TopologicalSort(s.graph)
	if err != nil {
		res.Errors = append(res.Errors, Error{
			Kind:        KindInternal,
			ExtensionID: extensionID,
			Message:     "install order could not be computed after cycle checking passed",
			Cause:       err,
		})
		logger.Error(err, "topological sort disagreed with cycle detection")
		return res, nil
	}

	enter(StateSucceeded)
	res.Success = true
	res.InstallOrder = order
	logger.Info("resolved install order", "nodeCount", s.graph.Len(), "installOrder", order)
	return res, nil
}

// ValidateDependencyGraph reports every edge whose target is missing from g.
// A nil or empty graph is valid.
func (r *DefaultResolver) ValidateDependencyGraph(g *graph.Graph) ValidationResult {
	if g == nil {
		return ValidationResult{IsValid: true}
	}
	missing := graph.Validate(g)
	out := ValidationResult{IsValid: len(missing) == 0}
	for _, m := range missing {
		out.Errors = append(out.Errors, Error{
			Kind:         KindMissingDependency,
			ExtensionID:  m.From,
			DependencyID: m.To,
			Message:      m.String(),
		})
	}
	return out
}

// versionConflicts reports, per dependency id, constraints that cannot all hold
// or that the selected version violates.
func (r *DefaultResolver) versionConflicts(ctx context.Context, g *graph.Graph) []Error {
	var out []Error
	for _, id := range g.NodeIDs() {
		incoming := g.EdgesTo(id)
		if len(incoming) == 0 {
			continue
		}
		node := g.Node(id)
		constraints := make([]semver.Constraint, 0, len(incoming))
		for _, e := range incoming {
			constraints = append(constraints, e.Constraint)
		}

		if !semver.CanSatisfyAll(constraints) {
			out = append(out, Error{
				Kind:         KindVersionConflict,
				DependencyID: id,
				Message:      fmt.Sprintf("no version of %s satisfies all of: %s", id, describeEdges(incoming)),
			})
			continue
		}

		var violated []graph.Edge
		for _, e := range incoming {
			if !semver.IsCompatible(node.Version, e.Constraint) {
				violated = append(violated, e)
			}
		}
		if len(violated) == 0 {
			continue
		}
		out = append(out, Error{
			Kind:         KindVersionConflict,
			DependencyID: id,
			Message:      fmt.Sprintf("selected %s@%s does not satisfy: %s", id, node.Version, describeEdges(violated)),
			Alternatives: r.SuggestAlternatives(ctx, id, constraints),
		})
	}
	return out
}

func describeEdges(edges []graph.Edge) string {
	parts := make([]string, 0, len(edges))
	for _, e := range edges {
		parts = append(parts, fmt.Sprintf("%s requires %s", e.From, e.Constraint))
	}
	return strings.Join(parts, "; ")
}

func cycleErrors(cycles []graph.Cycle) []Error {
	out := make([]Error, 0, len(cycles))
	for i := range cycles {
		c := cycles[i]
		kind := "direct"
		if c.IsTransitive {
			kind = "transitive"
		}
		out = append(out, Error{
			Kind:        KindCycleDetected,
			ExtensionID: c.Path[0],
			Message:     fmt.Sprintf("%s circular dependency: %s", kind, c),
			Cycle:       &c,
		})
	}
	return out
}

// SuggestAlternatives lists the published versions of extensionID that satisfy
// every constraint, newest first. Registry failures yield an empty list.
func (r *DefaultResolver) SuggestAlternatives(ctx context.Context, extensionID string, constraints []semver.Constraint) []Candidate {
	logger := logr.FromContextOrDiscard(ctx).WithValues("extension", extensionID)

	raw, err := r.registry.ListVersions(ctx, extensionID)
	if err != nil {
		logger.V(1).Info("no alternatives: registry lookup failed", "reason", err.Error())
		return nil
	}

	var out []Candidate
	for _, v := range semver.SortDescending(semver.ParseVersions(raw)) {
		ok := true
		for _, c := range constraints {
			if !semver.Satisfies(v, c) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, Candidate{ExtensionID: extensionID, Version: v.String()})
		}
	}
	return out
}
