// Package script turns the script strings of model animations into
// tracker.AnimationScript values.
//
// A script string is a whitespace separated list of calls. Each call is a
// registered name optionally followed by parameters in braces:
//
//	tint{color=FF0000;bones=head,hat} brightness{block=15;sky=-1}
//
// Several calls build a tracker.Sequence.
package script

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/zeusync/modelsync/internal/core/tracker"
)

var (
	ErrUnknownScript = errors.New("unknown script")
	ErrInvalidScript = errors.New("invalid script")
)

// Factory builds a script from its parameters.
type Factory func(params Params) (tracker.AnimationScript, error)

// Manager is a registry of script factories. It is safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

var _ tracker.ScriptSource = (*Manager)(nil)

// NewManager returns a manager with the built-in scripts registered.
func NewManager() *Manager {
	m := &Manager{factories: make(map[string]Factory)}
	RegisterBuiltins(m)
	return m
}

// Register adds or replaces the factory for name.
func (m *Manager) Register(name string, factory Factory) {
	m.mu.Lock()
	m.factories[strings.ToLower(name)] = factory
	m.mu.Unlock()
}

func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.factories))
	for name := range m.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// New builds one registered script.
func (m *Manager) New(name string, params Params) (tracker.AnimationScript, error) {
	m.mu.RLock()
	f := m.factories[strings.ToLower(name)]
	m.mu.RUnlock()
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScript, name)
	}
	s, err := f(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return s, nil
}

// Build parses and builds a script string.
func (m *Manager) Build(src string) (tracker.AnimationScript, error) {
	calls, err := Parse(src)
	if err != nil {
		return nil, err
	}

	scripts := make(tracker.Sequence, 0, len(calls))
	for _, c := range calls {
		s, err := m.New(c.Name, c.Params)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	if len(scripts) == 1 {
		return scripts[0], nil
	}
	return scripts, nil
}
