package installer

import (
	"context"
	"errors"
	"sync"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

// Multi returns a Target that applies every install to each target in turn.
// When a later target refuses an install, the targets that already accepted it
// are asked to uninstall again so the step stays all-or-nothing.
//
// A target that reports ErrAlreadyInstalled is left alone, and a later
// Uninstall of the same ref skips it. Install only reports ErrAlreadyInstalled
// when every target did.
func Multi(targets ...Target) Target {
	return &multiTarget{targets: targets, applied: make(map[manifest.Ref][]int)}
}

type multiTarget struct {
	targets []Target

	mu sync.Mutex
	// applied holds, per ref, the indexes of the targets this Multi installed it on.
	applied map[manifest.Ref][]int
}

func (m *multiTarget) Install(ctx context.Context, id, version string) error {
	var done []int
	for i, t := range m.targets {
		err := t.Install(ctx, id, version)
		if errors.Is(err, ErrAlreadyInstalled) {
			continue
		}
		if err != nil {
			undo := context.WithoutCancel(ctx)
			errs := []error{err}
			for j := len(done) - 1; j >= 0; j-- {
				if uerr := m.targets[done[j]].Uninstall(undo, id, version); uerr != nil {
					errs = append(errs, uerr)
				}
			}
			return errors.Join(errs...)
		}
		done = append(done, i)
	}
	if len(done) == 0 && len(m.targets) > 0 {
		return ErrAlreadyInstalled
	}
	m.mu.Lock()
	m.applied[manifest.Ref{ID: id, Version: version}] = done
	m.mu.Unlock()
	return nil
}

// Uninstall runs in reverse target order and attempts every target, or only
// the targets this Multi installed ref on when it did.
func (m *multiTarget) Uninstall(ctx context.Context, id, version string) error {
	ref := manifest.Ref{ID: id, Version: version}
	m.mu.Lock()
	idx, ok := m.applied[ref]
	delete(m.applied, ref)
	m.mu.Unlock()
	if !ok {
		idx = make([]int, len(m.targets))
		for i := range idx {
			idx[i] = i
		}
	}

	var errs []error
	for i := len(idx) - 1; i >= 0; i-- {
		if err := m.targets[idx[i]].Uninstall(ctx, id, version); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
