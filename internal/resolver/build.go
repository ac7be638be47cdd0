package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/bayleafwalker/bindery-extensions/internal/graph"
	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
	"github.com/bayleafwalker/bindery-extensions/internal/semver"
)

// session owns the graph of one Resolve call. Registry calls of a level run
// concurrently; only build itself writes to the graph.
type session struct {
	registry    Registry
	concurrency int
	logger      logr.Logger
	graph       *graph.Graph
	warnings    []string
	// deferred holds the optional edges to ids skipped at an earlier level.
	// They join the graph if a deeper dependency brings the id in after all.
	deferred map[string][]declaredEdge
}

type declaredEdge struct {
	from       string
	to         string
	constraint semver.Constraint
	optional   bool
}

type versionLookup struct {
	versions []semver.Version
	err      error
}

// build expands the graph breadth-first from the root, one level per iteration.
func (s *session) build(ctx context.Context, rootID, rootVersion string) error {
	frontier := []manifest.Ref{{ID: rootID, Version: rootVersion}}
	for depth := 0; len(frontier) > 0; depth++ {
		s.logger.V(1).Info("expanding graph level", "depth", depth, "extensions", len(frontier))

		manifests, err := s.fetchManifests(ctx, frontier)
		if err != nil {
			return err
		}

		var declared []declaredEdge
		for i, ref := range frontier {
			m := manifests[i]
			s.graph.AddNode(ref.ID, ref.Version, m)

			deps := append([]manifest.Dependency(nil), m.Dependencies...)
			sort.Slice(deps, func(a, b int) bool { return deps[a].ID < deps[b].ID })
			for _, dep := range deps {
				c, err := semver.ParseConstraint(dep.Constraint)
				if err != nil {
					return Error{
						Kind:         KindParse,
						ExtensionID:  ref.ID,
						DependencyID: dep.ID,
						Message:      fmt.Sprintf("%s@%s declares an invalid constraint on %s", ref.ID, ref.Version, dep.ID),
						Cause:        err,
					}
				}
				declared = append(declared, declaredEdge{from: ref.ID, to: dep.ID, constraint: c, optional: dep.Optional})
			}
		}

		wanted := make(map[string][]declaredEdge)
		var discovered []string
		for _, e := range declared {
			if s.graph.HasNode(e.to) {
				continue
			}
			if _, ok := wanted[e.to]; !ok {
				discovered = append(discovered, e.to)
				wanted[e.to] = append([]declaredEdge(nil), s.deferred[e.to]...)
			}
			wanted[e.to] = append(wanted[e.to], e)
		}
		sort.Strings(discovered)

		lookups := s.listVersions(ctx, discovered)
		skipped := make(map[string]bool)
		var next []manifest.Ref
		for i, id := range discovered {
			ref, skip, err := s.selectVersion(id, wanted[id], lookups[i])
			if err != nil {
				return err
			}
			if skip {
				skipped[id] = true
				if s.deferred == nil {
					s.deferred = make(map[string][]declaredEdge)
				}
				s.deferred[id] = wanted[id]
				continue
			}
			next = append(next, ref)
			declared = append(declared, s.deferred[id]...)
			delete(s.deferred, id)
		}

		for _, e := range declared {
			if skipped[e.to] {
				continue
			}
			if err := s.graph.AddEdge(e.from, e.to, e.constraint, e.optional); err != nil {
				return Error{Kind: KindInternal, ExtensionID: e.from, DependencyID: e.to, Message: "inconsistent graph", Cause: err}
			}
		}
		frontier = next
	}
	return nil
}

// selectVersion picks the version of a newly discovered dependency: the newest
// release satisfying every constraint seen for it, else the newest satisfying
// a required constraint, else the newest release. The conflict pass reports a
// fallback pick. Optional dependencies that cannot be met are skipped.
func (s *session) selectVersion(id string, edges []declaredEdge, lookup versionLookup) (manifest.Ref, bool, error) {
	required := firstRequired(edges)

	if lookup.err != nil {
		if !errors.Is(lookup.err, manifest.ErrNotFound) {
			return manifest.Ref{}, false, Error{
				Kind:         KindRegistryLookupFailure,
				DependencyID: id,
				Message:      fmt.Sprintf("listing versions of %s", id),
				Cause:        lookup.err,
			}
		}
		if required == nil {
			s.warn("optional dependency %s is not published; skipped", id)
			return manifest.Ref{}, true, nil
		}
		return manifest.Ref{}, false, Error{
			Kind:         KindMissingDependency,
			ExtensionID:  required.from,
			DependencyID: id,
			Message:      fmt.Sprintf("%s requires %s, which the registry does not know", required.from, id),
			Cause:        lookup.err,
		}
	}

	constraints := make([]semver.Constraint, 0, len(edges))
	for _, e := range edges {
		constraints = append(constraints, e.constraint)
	}
	if v, ok := semver.MaxSatisfying(lookup.versions, constraints...); ok {
		return manifest.Ref{ID: id, Version: v.String()}, false, nil
	}
	if required == nil {
		s.warn("no published version of optional dependency %s satisfies %s; skipped", id, describeDeclared(edges))
		return manifest.Ref{}, true, nil
	}
	if len(lookup.versions) == 0 {
		return manifest.Ref{}, false, Error{
			Kind:         KindMissingDependency,
			ExtensionID:  required.from,
			DependencyID: id,
			Message:      fmt.Sprintf("%s requires %s, which has no published versions", required.from, id),
		}
	}
	for _, e := range edges {
		if e.optional {
			continue
		}
		if v, ok := semver.MaxSatisfying(lookup.versions, e.constraint); ok {
			return manifest.Ref{ID: id, Version: v.String()}, false, nil
		}
	}
	return manifest.Ref{ID: id, Version: semver.SortDescending(lookup.versions)[0].String()}, false, nil
}

func (s *session) fetchManifests(ctx context.Context, refs []manifest.Ref) ([]manifest.Manifest, error) {
	out := make([]manifest.Manifest, len(refs))
	errs := make([]error, len(refs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, ref := range refs {
		g.Go(func() error {
			m, err := s.registry.GetManifest(ctx, ref.ID, ref.Version)
			if err == nil {
				err = m.Validate()
			}
			if err != nil {
				errs[i] = manifestLookupError(ref, err)
				return nil
			}
			out[i] = m
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *session) listVersions(ctx context.Context, ids []string) []versionLookup {
	out := make([]versionLookup, len(ids))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			raw, err := s.registry.ListVersions(ctx, id)
			if err != nil {
				out[i] = versionLookup{err: err}
				return nil
			}
			out[i] = versionLookup{versions: semver.ParseVersions(raw)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func manifestLookupError(ref manifest.Ref, err error) error {
	if errors.Is(err, manifest.ErrNotFound) {
		return Error{
			Kind:         KindMissingDependency,
			DependencyID: ref.ID,
			Message:      fmt.Sprintf("manifest for %s not found in registry", ref),
			Cause:        err,
		}
	}
	return Error{
		Kind:         KindRegistryLookupFailure,
		DependencyID: ref.ID,
		Message:      fmt.Sprintf("fetching manifest for %s", ref),
		Cause:        err,
	}
}

func (s *session) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.warnings = append(s.warnings, msg)
	s.logger.Info("resolution warning", "warning", msg)
}

func firstRequired(edges []declaredEdge) *declaredEdge {
	for i := range edges {
		if !edges[i].optional {
			return &edges[i]
		}
	}
	return nil
}

func describeDeclared(edges []declaredEdge) string {
	out := make([]graph.Edge, 0, len(edges))
	for _, e := range edges {
		out = append(out, graph.Edge{From: e.from, To: e.to, Constraint: e.constraint, Optional: e.optional})
	}
	return describeEdges(out)
}
