package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	"golang.org/x/time/rate"
)

// UnsetScore marks a fixed score that was never forced
const UnsetScore = -10000

// DefaultMinCompactInterval is the minimum time between two compactions of
// the same process
const DefaultMinCompactInterval = 30 * time.Second

// Process is one pid belonging to an Application
type Process struct {
	PID  int
	UID  int
	Name string
	Main bool

	lastProposed atomic.Int64
	fixed        atomic.Int64
	proposals    atomic.Int64

	compactMu          sync.Mutex // Protects the fields below
	lastCompactState   types.GroupState
	lastCompact        time.Time
	minCompactInterval time.Duration
	limiter            *rate.Limiter
}

// NewProcess creates a process record with an unset fixed score
func NewProcess(info types.ProcessInfo, minCompactInterval time.Duration) *Process {
	if minCompactInterval <= 0 {
		minCompactInterval = DefaultMinCompactInterval
	}
	p := &Process{
		PID:                info.PID,
		UID:                info.UID,
		Name:               info.Name,
		Main:               info.IsMain(),
		lastCompactState:   types.StateNone,
		minCompactInterval: minCompactInterval,
		limiter:            rate.NewLimiter(rate.Every(minCompactInterval), 1),
	}
	p.fixed.Store(UnsetScore)
	p.lastProposed.Store(UnsetScore)
	return p
}

// FixedScore returns the score this engine forced, or UnsetScore
func (p *Process) FixedScore() int {
	return int(p.fixed.Load())
}

// LastProposed returns the last score the supervisor proposed
func (p *Process) LastProposed() int {
	return int(p.lastProposed.Load())
}

// ObserveProposal records a proposal and reports whether it is the first
// one seen for this pid
func (p *Process) ObserveProposal(score int) bool {
	p.lastProposed.Store(int64(score))
	return p.proposals.Add(1) == 1
}

// SetFixed stores score unconditionally
func (p *Process) SetFixed(score int) {
	p.fixed.Store(int64(score))
}

// CompareAndSwapFixed swaps the fixed score when it still equals old
func (p *Process) CompareAndSwapFixed(old, score int) bool {
	return p.fixed.CompareAndSwap(int64(old), int64(score))
}

// AllowCompaction reports whether a compaction under state may run at now,
// and records it when it may. A process is compacted at most once per state
// entry and at most once per minimum interval.
func (p *Process) AllowCompaction(state types.GroupState, now time.Time) bool {
	p.compactMu.Lock()
	defer p.compactMu.Unlock()

	if p.lastCompactState == state {
		return false
	}
	if !p.limiter.AllowN(now, 1) {
		return false
	}
	p.lastCompactState = state
	p.lastCompact = now
	return true
}

// ResetCompaction records that the process left the state it was last
// compacted under
func (p *Process) ResetCompaction(state types.GroupState) {
	p.compactMu.Lock()
	defer p.compactMu.Unlock()
	p.lastCompactState = state
}

// LastCompaction returns the time and state of the last compaction
func (p *Process) LastCompaction() (time.Time, types.GroupState) {
	p.compactMu.Lock()
	defer p.compactMu.Unlock()
	return p.lastCompact, p.lastCompactState
}

// MinCompactInterval returns the throttle interval
func (p *Process) MinCompactInterval() time.Duration {
	return p.minCompactInterval
}

// ProcessView is a read-only copy of a process for reporting
type ProcessView struct {
	PID          int    `json:"pid"`
	UID          int    `json:"uid"`
	Name         string `json:"name,omitempty"`
	Main         bool   `json:"main"`
	FixedScore   int    `json:"fixed_score"`
	LastProposed int    `json:"last_proposed"`
}

// View returns a copy for reporting
func (p *Process) View() ProcessView {
	return ProcessView{
		PID:          p.PID,
		UID:          p.UID,
		Name:         p.Name,
		Main:         p.Main,
		FixedScore:   p.FixedScore(),
		LastProposed: p.LastProposed(),
	}
}
