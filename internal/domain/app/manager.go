package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Actions are run when an application changes foreground state
type Actions interface {
	// Foreground cancels pending reclamation for the application's processes
	Foreground(ctx context.Context, a *Application) error
	// Background schedules reclamation for the application's processes
	Background(ctx context.Context, a *Application) error
}

// ExemptFunc reports whether an application is exempt from management
type ExemptFunc func(ctx context.Context, id types.Identity) bool

// Transition describes one state change
type Transition struct {
	Identity  types.Identity   `json:"identity"`
	From      types.GroupState `json:"from"`
	To        types.GroupState `json:"to"`
	Component string           `json:"component,omitempty"`
	At        time.Time        `json:"at"`
}

// TransitionObserver is notified after every state change
type TransitionObserver interface {
	OnTransition(t Transition)
}

// Manager drives application lifecycle states from visibility events
type Manager struct {
	registry *Registry
	actions  Actions
	exempt   ExemptFunc
	observer TransitionObserver
	logger   *zap.Logger

	setsMu sync.RWMutex
	active map[string]*Application // Protected by setsMu
	idle   map[string]*Application // Protected by setsMu
}

// NewManager creates a lifecycle manager over registry
func NewManager(registry *Registry, actions Actions, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		registry: registry,
		actions:  actions,
		exempt:   func(context.Context, types.Identity) bool { return false },
		logger:   logger.Named("lifecycle"),
		active:   make(map[string]*Application),
		idle:     make(map[string]*Application),
	}
}

// WithExemption sets the launcher exemption check
func (m *Manager) WithExemption(exempt ExemptFunc) *Manager {
	if exempt != nil {
		m.exempt = exempt
	}
	return m
}

// WithObserver sets the transition observer
func (m *Manager) WithObserver(o TransitionObserver) *Manager {
	m.observer = o
	return m
}

// VisibilityGained handles a component of id becoming visible. It reports
// whether the application moved to ACTIVE.
func (m *Manager) VisibilityGained(ctx context.Context, id types.Identity, component string) (bool, error) {
	a, ok := m.registry.Lookup(id)
	if !ok {
		return false, errs.New(errs.CategoryLookupMiss, "visibility gained", "not found").With("app", id.Key())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == types.StateDead {
		return false, errs.New(errs.CategoryStaleReference, "visibility gained", "application is dead").With("app", id.Key())
	}

	first := !a.seenVisible
	returning := a.state != types.StateActive && component == a.foreground
	if !first && !returning {
		// In-app navigation while in front moves the foreground component along
		if a.state == types.StateActive {
			a.foreground = component
		}
		return false, nil
	}

	from := a.state
	a.state = types.StateActive
	a.seenVisible = true
	a.switchHandled = false
	if !m.exempt(ctx, id) {
		m.run(ctx, "foreground", a, m.actions.Foreground)
	}
	a.foreground = component

	m.setsMu.Lock()
	delete(m.idle, id.Key())
	m.active[id.Key()] = a
	m.setsMu.Unlock()

	m.notify(a, from, component)
	return true, nil
}

// VisibilityLost handles a component of id leaving the screen. It reports
// whether the application moved to IDLE.
func (m *Manager) VisibilityLost(ctx context.Context, id types.Identity, component string, interactive bool) (bool, error) {
	a, ok := m.registry.Lookup(id)
	if !ok {
		return false, errs.New(errs.CategoryLookupMiss, "visibility lost", "not found").With("app", id.Key())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == types.StateDead {
		return false, errs.New(errs.CategoryStaleReference, "visibility lost", "application is dead").With("app", id.Key())
	}
	if component != a.foreground {
		return false, nil
	}
	if a.state == types.StateIdle && interactive {
		return false, nil
	}

	from := a.state
	a.state = types.StateIdle
	if !a.switchHandled && !m.exempt(ctx, id) {
		m.run(ctx, "background", a, m.actions.Background)
	}
	a.switchHandled = true
	a.foreground = component

	m.setsMu.Lock()
	delete(m.active, id.Key())
	m.idle[id.Key()] = a
	m.setsMu.Unlock()

	m.notify(a, from, component)
	return true, nil
}

// Kill moves id to DEAD after its main process died and drops it from the
// registry
func (m *Manager) Kill(ctx context.Context, id types.Identity) error {
	a, ok := m.registry.Lookup(id)
	if !ok {
		return errs.New(errs.CategoryLookupMiss, "kill", "not found").With("app", id.Key())
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return m.killLocked(a, 0)
}

// RemoveProcess drops pid from the registry. When pid is a main process its
// application is torn down in the same critical section. It reports whether
// pid was tracked.
func (m *Manager) RemoveProcess(ctx context.Context, pid int) (bool, error) {
	p, a, ok := m.registry.Process(pid)
	if !ok {
		return false, nil
	}
	if !p.Main {
		_, _, ok = m.registry.RemoveProcess(pid)
		return ok, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := m.killLocked(a, pid); err != nil {
		if errs.IsLookupMiss(err) {
			// Removed concurrently
			return false, nil
		}
		return true, err
	}
	return true, nil
}

// killLocked tears a down; caller holds a.mu
func (m *Manager) killLocked(a *Application, mainPID int) error {
	from := a.state
	if err := m.registry.removeLocked(a, mainPID); err != nil {
		return err
	}

	key := a.id.Key()
	m.setsMu.Lock()
	if m.active[key] == a {
		delete(m.active, key)
	}
	if m.idle[key] == a {
		delete(m.idle, key)
	}
	m.setsMu.Unlock()

	m.notify(a, from, "")
	m.logger.Info("Application dead",
		zap.String("app", key),
		zap.Stringer("from", from),
	)
	return nil
}

// run executes a transition action; errors and panics stay inside
func (m *Manager) run(ctx context.Context, name string, a *Application, fn func(context.Context, *Application) error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Transition action panicked",
				zap.String("action", name),
				zap.String("app", a.id.Key()),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	if err := fn(ctx, a); err != nil {
		m.logger.Warn("Transition action failed",
			zap.String("action", name),
			zap.String("app", a.id.Key()),
			zap.Error(err),
		)
	}
}

func (m *Manager) notify(a *Application, from types.GroupState, component string) {
	m.logger.Debug("Application transition",
		zap.String("app", a.id.Key()),
		zap.Stringer("from", from),
		zap.Stringer("to", a.state),
		zap.String("component", component),
	)
	if m.observer == nil {
		return
	}
	m.observer.OnTransition(Transition{
		Identity:  a.id,
		From:      from,
		To:        a.state,
		Component: component,
		At:        time.Now(),
	})
}

// Active returns the keys of applications in ACTIVE
func (m *Manager) Active() []string {
	m.setsMu.RLock()
	defer m.setsMu.RUnlock()
	return sortedKeys(m.active)
}

// Idle returns the keys of applications in IDLE
func (m *Manager) Idle() []string {
	m.setsMu.RLock()
	defer m.setsMu.RUnlock()
	return sortedKeys(m.idle)
}

func sortedKeys(set map[string]*Application) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
