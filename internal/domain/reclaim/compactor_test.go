package reclaim

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

func newProc(pid int, name string) *app.Process {
	return app.NewProcess(types.ProcessInfo{
		PID:     pid,
		UID:     10100,
		Package: "com.example.chat",
		Name:    name,
	}, 30*time.Second)
}

func TestCompactDedupesStateAndThrottles(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	sup := newFakeSupervisor()
	rec := newFakeRecorder()
	c := NewCompactor(sup, CompactorSettings{Clock: clock}, nil).WithRecorder(rec)
	p := newProc(200, "com.example.chat")

	assert.True(t, c.Compact(ctx, p, types.StateIdle, "background"))
	assert.False(t, c.Compact(ctx, p, types.StateIdle, "background"), "same state twice")

	require.NoError(t, c.Promote(ctx, p))
	assert.False(t, c.Compact(ctx, p, types.StateIdle, "background"), "within min interval")

	clock.Advance(31 * time.Second)
	assert.True(t, c.Compact(ctx, p, types.StateIdle, "background"))

	assert.Equal(t, 2, sup.count("compact", 200))
	assert.Equal(t, 2, rec.get("background/issued"))
	assert.Equal(t, 2, rec.get("background/throttled"))

	c1, _ := sup.last("compact")
	assert.Equal(t, string(CompactFull), c1.Arg)
}

func TestCompactLevelByState(t *testing.T) {
	c := NewCompactor(newFakeSupervisor(), CompactorSettings{Clock: clockwork.NewFakeClock()}, nil)
	sup := c.sup.(*fakeSupervisor)

	assert.True(t, c.Compact(context.Background(), newProc(201, ""), types.StateActive, "test"))
	call, _ := sup.last("compact")
	assert.Equal(t, string(CompactFile), call.Arg)
}

func TestCompactFailureIsReported(t *testing.T) {
	sup := newFakeSupervisor()
	sup.setErr(assert.AnError)
	rec := newFakeRecorder()
	c := NewCompactor(sup, CompactorSettings{Clock: clockwork.NewFakeClock()}, nil).WithRecorder(rec)

	assert.False(t, c.Compact(context.Background(), newProc(202, ""), types.StateIdle, "background"))
	assert.Equal(t, 1, rec.get("background/error"))
}

func TestObserveScoreThreshold(t *testing.T) {
	ctx := context.Background()
	sup := newFakeSupervisor()
	c := NewCompactor(sup, CompactorSettings{Clock: clockwork.NewFakeClock()}, nil)

	main := newProc(300, "com.example.chat")
	aux := newProc(301, "com.example.chat:sync")

	c.ObserveScore(ctx, main, 950)
	c.ObserveScore(ctx, aux, 899)
	assert.Equal(t, 0, sup.count("compact", 300))
	assert.Equal(t, 0, sup.count("compact", 301))

	c.ObserveScore(ctx, aux, DefaultCompactScoreThreshold)
	assert.Equal(t, 1, sup.count("compact", 301))
}

func TestDemotePromoteSchedGroup(t *testing.T) {
	ctx := context.Background()
	sup := newFakeSupervisor()
	c := NewCompactor(sup, CompactorSettings{}, nil)
	p := newProc(400, "")

	require.NoError(t, c.Demote(ctx, p))
	call, _ := sup.last("sched_group")
	assert.Equal(t, string(GroupBackground), call.Arg)

	require.NoError(t, c.Promote(ctx, p))
	call, _ = sup.last("sched_group")
	assert.Equal(t, string(GroupDefault), call.Arg)
	_, state := p.LastCompaction()
	assert.Equal(t, types.StateActive, state)
}
