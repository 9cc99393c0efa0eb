package reclaim

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
)

type call struct {
	Method string
	PID    int
	Arg    string
}

// fakeSupervisor records calls and answers from configurable state
type fakeSupervisor struct {
	mu    sync.Mutex
	calls []call
	gone  map[int]bool
	err   error
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{gone: make(map[int]bool)}
}

func (f *fakeSupervisor) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeSupervisor) setGone(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone[pid] = true
}

func (f *fakeSupervisor) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSupervisor) state(pid int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gone[pid], f.err
}

func (f *fakeSupervisor) count(method string, pid int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.PID == pid {
			n++
		}
	}
	return n
}

func (f *fakeSupervisor) last(method string) (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if f.calls[i].Method == method {
			return f.calls[i], true
		}
	}
	return call{}, false
}

func (f *fakeSupervisor) RequestTrimSignal(_ context.Context, pid int, level TrimLevel) (bool, error) {
	f.record(call{Method: "trim", PID: pid, Arg: level.String()})
	gone, err := f.state(pid)
	if gone {
		return false, errs.ErrProcessGone
	}
	return err == nil, err
}

func (f *fakeSupervisor) RequestGC(_ context.Context, pid int) (bool, error) {
	f.record(call{Method: "gc", PID: pid})
	gone, err := f.state(pid)
	if gone {
		return false, nil
	}
	return err == nil, err
}

func (f *fakeSupervisor) RequestCompaction(_ context.Context, pid int, level CompactLevel) error {
	f.record(call{Method: "compact", PID: pid, Arg: string(level)})
	_, err := f.state(pid)
	return err
}

func (f *fakeSupervisor) SetSchedGroup(_ context.Context, pid int, group SchedGroup) error {
	f.record(call{Method: "sched_group", PID: pid, Arg: string(group)})
	_, err := f.state(pid)
	return err
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{calls: make(map[string]int)}
}

func (r *fakeRecorder) RecordSupervisorCall(method, status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[method+"/"+status]++
}

func (r *fakeRecorder) RecordCompaction(reason, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[reason+"/"+outcome]++
}

func (r *fakeRecorder) get(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}
