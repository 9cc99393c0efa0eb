package app

import (
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Application is one running app, from its first process creation until its
// main process dies
type Application struct {
	id        types.Identity
	uid       int
	createdAt time.Time

	mu            sync.Mutex // Serializes lifecycle transitions
	state         types.GroupState
	foreground    string
	switchHandled bool
	seenVisible   bool

	procMu       sync.RWMutex // Protects the fields below
	mainPID      int
	processes    map[int]*Process
	removed      map[int]struct{} // Recently detached pids
	removedOrder []int            // Oldest first
}

// tombstoneLimit bounds how many detached pids an application remembers
const tombstoneLimit = 128

func newApplication(id types.Identity, uid int) *Application {
	return &Application{
		id:        id,
		uid:       uid,
		createdAt: time.Now(),
		state:     types.StateNone,
		processes: make(map[int]*Process),
		removed:   make(map[int]struct{}),
	}
}

// Identity returns the immutable identity
func (a *Application) Identity() types.Identity {
	return a.id
}

// UID returns the application uid
func (a *Application) UID() int {
	return a.uid
}

// State returns the current group state
func (a *Application) State() types.GroupState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Foreground returns the last recorded foreground component
func (a *Application) Foreground() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.foreground
}

// MainPID returns the main process pid, or 0
func (a *Application) MainPID() int {
	a.procMu.RLock()
	defer a.procMu.RUnlock()
	return a.mainPID
}

// Processes returns the owned processes ordered by pid
func (a *Application) Processes() []*Process {
	a.procMu.RLock()
	procs := make([]*Process, 0, len(a.processes))
	for _, p := range a.processes {
		procs = append(procs, p)
	}
	a.procMu.RUnlock()

	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
	return procs
}

// Process returns the owned process with pid
func (a *Application) Process(pid int) (*Process, bool) {
	a.procMu.RLock()
	defer a.procMu.RUnlock()
	p, ok := a.processes[pid]
	return p, ok
}

// attach inserts p unless the pid is already owned; returns the owned record.
// A recently detached pid is refused unless revive is set, in which case it
// stops being remembered as removed.
func (a *Application) attach(p *Process, revive bool) (*Process, bool) {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	if existing, ok := a.processes[p.PID]; ok {
		return existing, true
	}
	if _, gone := a.removed[p.PID]; gone {
		if !revive {
			return nil, false
		}
		a.forgetRemoved(p.PID)
	}
	a.processes[p.PID] = p
	if p.Main && a.mainPID == 0 {
		a.mainPID = p.PID
	} else if p.Main {
		// A second main process while the first is alive is treated as auxiliary
		p.Main = false
	}
	return p, true
}

// detach removes pid and reports whether it was the main process
func (a *Application) detach(pid int) bool {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	if _, ok := a.processes[pid]; ok {
		delete(a.processes, pid)
		a.rememberRemoved(pid)
	}
	if a.mainPID == pid {
		a.mainPID = 0
		return true
	}
	return false
}

// clear drops every owned process and returns their pids
func (a *Application) clear() []int {
	a.procMu.Lock()
	defer a.procMu.Unlock()

	pids := make([]int, 0, len(a.processes))
	for pid := range a.processes {
		pids = append(pids, pid)
	}
	clear(a.processes)
	clear(a.removed)
	a.removedOrder = nil
	a.mainPID = 0
	return pids
}

// Removed reports whether pid was detached recently
func (a *Application) Removed(pid int) bool {
	a.procMu.RLock()
	defer a.procMu.RUnlock()
	_, ok := a.removed[pid]
	return ok
}

// rememberRemoved records pid; caller holds procMu
func (a *Application) rememberRemoved(pid int) {
	if _, ok := a.removed[pid]; ok {
		return
	}
	if len(a.removedOrder) >= tombstoneLimit {
		oldest := a.removedOrder[0]
		a.removedOrder = a.removedOrder[1:]
		delete(a.removed, oldest)
	}
	a.removed[pid] = struct{}{}
	a.removedOrder = append(a.removedOrder, pid)
}

// forgetRemoved drops pid from the removed set; caller holds procMu
func (a *Application) forgetRemoved(pid int) {
	delete(a.removed, pid)
	for i, v := range a.removedOrder {
		if v == pid {
			a.removedOrder = append(a.removedOrder[:i], a.removedOrder[i+1:]...)
			return
		}
	}
}

// View is a read-only copy of an application for reporting
type View struct {
	Identity   types.Identity   `json:"identity"`
	Key        string           `json:"key"`
	UID        int              `json:"uid"`
	State      types.GroupState `json:"state"`
	Foreground string           `json:"foreground,omitempty"`
	MainPID    int              `json:"main_pid"`
	CreatedAt  time.Time        `json:"created_at"`
	Processes  []ProcessView    `json:"processes"`
}

// View returns a copy for reporting
func (a *Application) View() View {
	a.mu.Lock()
	state, fg := a.state, a.foreground
	a.mu.Unlock()

	procs := a.Processes()
	views := make([]ProcessView, 0, len(procs))
	for _, p := range procs {
		views = append(views, p.View())
	}

	return View{
		Identity:   a.id,
		Key:        a.id.Key(),
		UID:        a.uid,
		State:      state,
		Foreground: fg,
		MainPID:    a.MainPID(),
		CreatedAt:  a.createdAt,
		Processes:  views,
	}
}
