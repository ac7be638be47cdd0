package installer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bayleafwalker/bindery-extensions/internal/manifest"
)

type Op string

const (
	OpInstall   Op = "install"
	OpUninstall Op = "uninstall"
)

// Call records one request made to a MemoryTarget.
type Call struct {
	Op  Op
	Ref manifest.Ref
}

// MemoryTarget keeps installed extensions in memory. Failures can be injected
// per extension id. It is safe for concurrent use.
type MemoryTarget struct {
	mu            sync.Mutex
	installed     map[string]string
	calls         []Call
	failInstall   map[string]error
	failUninstall map[string]error
}

func NewMemoryTarget() *MemoryTarget {
	return &MemoryTarget{
		installed:     make(map[string]string),
		failInstall:   make(map[string]error),
		failUninstall: make(map[string]error),
	}
}

// FailInstall makes every later Install of id return err. A nil err clears it.
func (m *MemoryTarget) FailInstall(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failInstall, id)
		return
	}
	m.failInstall[id] = err
}

// FailUninstall makes every later Uninstall of id return err. A nil err clears it.
func (m *MemoryTarget) FailUninstall(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failUninstall, id)
		return
	}
	m.failUninstall[id] = err
}

// Install records id at version. Installing the version already present
// returns ErrAlreadyInstalled; any other version replaces it.
func (m *MemoryTarget) Install(ctx context.Context, id, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpInstall, Ref: manifest.Ref{ID: id, Version: version}})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.failInstall[id]; err != nil {
		return err
	}
	if v, ok := m.installed[id]; ok && v == version {
		return fmt.Errorf("%s@%s: %w", id, version, ErrAlreadyInstalled)
	}
	m.installed[id] = version
	return nil
}

// Uninstall removes id. Removing an extension that is not installed succeeds.
func (m *MemoryTarget) Uninstall(ctx context.Context, id, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpUninstall, Ref: manifest.Ref{ID: id, Version: version}})
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.failUninstall[id]; err != nil {
		return err
	}
	delete(m.installed, id)
	return nil
}

// Installed returns the installed extensions sorted by id.
func (m *MemoryTarget) Installed() []manifest.Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]manifest.Ref, 0, len(m.installed))
	for id, v := range m.installed {
		out = append(out, manifest.Ref{ID: id, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Calls returns every Install and Uninstall request received so far.
func (m *MemoryTarget) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}
