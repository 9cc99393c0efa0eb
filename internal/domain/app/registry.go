package app

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	"github.com/GriffinCanCode/keepalive/internal/shared/utils"
)

// Observer is told when the registry lets go of a process
type Observer interface {
	// Forget is called after pid left the registry
	Forget(pid int)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(pid int)

// Forget implements Observer
func (f ObserverFunc) Forget(pid int) { f(pid) }

// RegistryStats counts registry activity
type RegistryStats struct {
	Apps      int   `json:"apps"`
	Processes int   `json:"processes"`
	Created   int64 `json:"created"`
	Hits      int64 `json:"hits"`
}

// Registry maps identities to applications and pids to processes.
//
// Lock order: Application.mu, then Registry.mu, then Application.procMu.
// The registry never acquires an application's transition lock.
type Registry struct {
	mu     sync.RWMutex
	apps   map[string]*Application // Protected by mu
	byUID  map[int][]*Application  // Protected by mu; packages may share a uid
	procs  map[int]*Process        // Protected by mu
	owners map[int]*Application    // Protected by mu

	observers          []Observer
	minCompactInterval time.Duration
	logger             *zap.Logger

	created atomic.Int64
	hits    atomic.Int64
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		apps:               make(map[string]*Application),
		byUID:              make(map[int][]*Application),
		procs:              make(map[int]*Process),
		owners:             make(map[int]*Application),
		minCompactInterval: DefaultMinCompactInterval,
		logger:             logger.Named("registry"),
	}
}

// WithMinCompactInterval sets the throttle given to new processes
func (r *Registry) WithMinCompactInterval(d time.Duration) *Registry {
	r.minCompactInterval = d
	return r
}

// AddObserver registers o. Not safe to call once events flow.
func (r *Registry) AddObserver(o Observer) {
	r.observers = append(r.observers, o)
}

// ResolveOrCreate returns the application for id, creating it on first use.
// Concurrent callers for the same id always share one record.
func (r *Registry) ResolveOrCreate(id types.Identity, uid int) (*Application, bool, error) {
	if err := utils.ValidateIdentity(id); err != nil {
		return nil, false, err
	}
	key := id.Key()

	r.mu.RLock()
	existing, ok := r.apps[key]
	r.mu.RUnlock()
	if ok {
		r.hits.Add(1)
		return existing, false, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check: another caller may have won the race
	if existing, ok := r.apps[key]; ok {
		r.hits.Add(1)
		return existing, false, nil
	}

	a := newApplication(id, uid)
	r.apps[key] = a
	r.byUID[uid] = append(r.byUID[uid], a)
	r.created.Add(1)

	r.logger.Debug("Application created",
		zap.String("app", key),
		zap.Int("uid", uid),
	)
	return a, true, nil
}

// RegisterProcess attaches a process to its application, creating the
// application if needed. Registering a known pid returns the existing record.
func (r *Registry) RegisterProcess(info types.ProcessInfo) (*Process, error) {
	if err := utils.ValidateProcessInfo(info); err != nil {
		return nil, err
	}

	r.mu.RLock()
	existing, ok := r.procs[info.PID]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	a, _, err := r.ResolveOrCreate(info.Identity(), info.UID)
	if err != nil {
		return nil, err
	}
	return r.Attach(a, info)
}

// Attach adds a process to a known application. It is used for explicit
// creation reports, so a recently removed pid is accepted again.
func (r *Registry) Attach(a *Application, info types.ProcessInfo) (*Process, error) {
	return r.attach(a, info, true)
}

// AttachProposed adds a process discovered through a score proposal. Pids
// the application detached recently are refused with ErrProcessRemoved.
func (r *Registry) AttachProposed(a *Application, info types.ProcessInfo) (*Process, error) {
	return r.attach(a, info, false)
}

func (r *Registry) attach(a *Application, info types.ProcessInfo, revive bool) (*Process, error) {
	if err := utils.ValidatePID(info.PID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.procs[info.PID]; ok {
		return existing, nil
	}
	// The application may have been removed between resolve and attach
	if current, ok := r.apps[a.id.Key()]; !ok || current != a {
		return nil, errs.New(errs.CategoryStaleReference, "attach", "application is dead").
			With("app", a.id.Key()).
			With("pid", info.PID)
	}

	p, ok := a.attach(NewProcess(info, r.minCompactInterval), revive)
	if !ok {
		return nil, errs.New(errs.CategoryStaleReference, "attach", "process already removed").
			With("app", a.id.Key()).
			With("pid", info.PID)
	}
	r.procs[p.PID] = p
	r.owners[p.PID] = a

	r.logger.Debug("Process registered",
		zap.String("app", a.id.Key()),
		zap.Int("pid", p.PID),
		zap.Bool("main", p.Main),
	)
	return p, nil
}

// RemoveProcess detaches pid from its application and the pid index
func (r *Registry) RemoveProcess(pid int) (*Process, *Application, bool) {
	r.mu.Lock()
	p, ok := r.procs[pid]
	if !ok {
		r.mu.Unlock()
		return nil, nil, false
	}
	a := r.owners[pid]
	delete(r.procs, pid)
	delete(r.owners, pid)
	if a != nil {
		a.detach(pid)
	}
	r.mu.Unlock()

	r.notifyForget(pid)
	return p, a, true
}

// RemoveApplication tears an application down. It fails while the main
// process is still registered.
func (r *Registry) RemoveApplication(id types.Identity) error {
	key := id.Key()

	r.mu.RLock()
	a, ok := r.apps[key]
	r.mu.RUnlock()
	if !ok {
		return errs.New(errs.CategoryLookupMiss, "remove application", "not found").With("app", key)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return r.removeLocked(a, 0)
}

// removeLocked tears a down; caller holds a.mu. A non-zero mainPID is
// detached first under the same registry lock, so no proposal can slip a
// new main process in between.
func (r *Registry) removeLocked(a *Application, mainPID int) error {
	key := a.id.Key()

	r.mu.Lock()
	if current, ok := r.apps[key]; !ok || current != a {
		r.mu.Unlock()
		return errs.New(errs.CategoryLookupMiss, "remove application", "not found").With("app", key)
	}
	var released []int
	if mainPID != 0 {
		if r.owners[mainPID] != a {
			r.mu.Unlock()
			return errs.New(errs.CategoryLookupMiss, "remove process", "not found").
				With("app", key).
				With("pid", mainPID)
		}
		delete(r.procs, mainPID)
		delete(r.owners, mainPID)
		a.detach(mainPID)
		released = append(released, mainPID)
	}
	if main := a.MainPID(); main != 0 {
		if _, alive := r.procs[main]; alive {
			r.mu.Unlock()
			return errs.New(errs.CategoryInvariant, "remove application", "main process still registered").
				With("app", key).
				With("pid", main)
		}
	}

	a.state = types.StateDead
	pids := a.clear()
	for _, pid := range pids {
		delete(r.procs, pid)
		delete(r.owners, pid)
	}
	released = append(released, pids...)
	delete(r.apps, key)
	r.dropUID(a)
	r.mu.Unlock()

	for _, pid := range released {
		r.notifyForget(pid)
	}

	r.logger.Debug("Application removed",
		zap.String("app", key),
		zap.Int("released", len(released)),
	)
	return nil
}

// dropUID removes a from the uid index; caller holds r.mu
func (r *Registry) dropUID(a *Application) {
	apps := r.byUID[a.uid]
	for i, other := range apps {
		if other == a {
			apps = append(apps[:i], apps[i+1:]...)
			break
		}
	}
	if len(apps) == 0 {
		delete(r.byUID, a.uid)
		return
	}
	r.byUID[a.uid] = apps
}

func (r *Registry) notifyForget(pid int) {
	for _, o := range r.observers {
		o.Forget(pid)
	}
}

// Lookup returns the live application for id
func (r *Registry) Lookup(id types.Identity) (*Application, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.apps[id.Key()]
	return a, ok
}

// AppsForUID returns the live applications running under uid, oldest first.
// Packages installed with a shared uid all appear here.
func (r *Registry) AppsForUID(uid int) []*Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Application(nil), r.byUID[uid]...)
}

// Process returns the process with pid and its owner
func (r *Registry) Process(pid int) (*Process, *Application, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.procs[pid]
	if !ok {
		return nil, nil, false
	}
	return p, r.owners[pid], true
}

// List returns all live applications ordered by key
func (r *Registry) List() []*Application {
	r.mu.RLock()
	apps := make([]*Application, 0, len(r.apps))
	for _, a := range r.apps {
		apps = append(apps, a)
	}
	r.mu.RUnlock()

	sort.Slice(apps, func(i, j int) bool { return apps[i].id.Key() < apps[j].id.Key() })
	return apps
}

// Stats returns registry statistics
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RegistryStats{
		Apps:      len(r.apps),
		Processes: len(r.procs),
		Created:   r.created.Load(),
		Hits:      r.hits.Load(),
	}
}
