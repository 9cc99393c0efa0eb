package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/domain/reclaim"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
	fixtures "github.com/GriffinCanCode/keepalive/internal/testutil"
)

const (
	chat     = "com.example.chat"
	launcher = "com.example.launcher"
	mainAct  = "com.example.chat/.MainActivity"
)

type recordingPublisher struct {
	mu          sync.Mutex
	transitions []app.Transition
}

func (p *recordingPublisher) Publish(_ context.Context, t app.Transition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, t)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) states() []types.GroupState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.GroupState, 0, len(p.transitions))
	for _, t := range p.transitions {
		out = append(out, t.To)
	}
	return out
}

func testSettings() Settings {
	s := DefaultSettings()
	s.Scheduler = reclaim.SchedulerSettings{ForegroundPeriod: time.Hour, BackgroundPeriod: time.Hour, Workers: 2}
	s.Coordinator.GCDelay = time.Hour
	return s
}

func newTestEngine(t *testing.T, sup reclaim.Supervisor, settings Settings, opts ...Option) *Engine {
	t.Helper()
	if sup == nil {
		sup = fixtures.NewMockSupervisor(t)
	}
	e, err := New(sup, fixtures.NewMockResolver(t, launcher), settings, opts...)
	require.NoError(t, err)
	e.Start()
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func waitState(t *testing.T, e *Engine, pkg string, want types.GroupState) {
	t.Helper()
	require.Eventually(t, func() bool {
		v, ok := e.Application(types.NewIdentity(0, pkg))
		return ok && v.State == want
	}, 2*time.Second, 5*time.Millisecond, "waiting for %s to become %s", pkg, want)
}

func TestLifecycleThroughEngine(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	sup := fixtures.NewMockSupervisor(t)
	e := newTestEngine(t, sup, testSettings(), WithPublisher(pub))

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(100, chat)))
	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateAuxProcess(101, chat, "sync")))
	assert.Equal(t, 2, e.Stats().Processes)

	require.True(t, e.OnVisibilityChanged(fixtures.Gained(chat, mainAct)))
	waitState(t, e, chat, types.StateActive)

	require.True(t, e.OnVisibilityChanged(fixtures.Lost(chat, mainAct)))
	waitState(t, e, chat, types.StateIdle)

	stats := e.Stats()
	assert.Equal(t, 1, stats.IdleApps)
	assert.Equal(t, 4, stats.ScheduledTasks, "trim and gc for both processes")
	sup.AssertCalled(t, "SetSchedGroup", mock.Anything, 100, reclaim.GroupBackground)
	sup.AssertCalled(t, "RequestCompaction", mock.Anything, 101, reclaim.CompactFull)

	require.True(t, e.OnVisibilityChanged(fixtures.Gained(chat, mainAct)))
	waitState(t, e, chat, types.StateActive)
	assert.Equal(t, 0, e.Stats().ScheduledTasks)

	require.NoError(t, e.OnProcessRemoved(ctx, 100))
	_, ok := e.Application(types.NewIdentity(0, chat))
	assert.False(t, ok)
	assert.Equal(t, types.Stats{}, e.Stats())

	assert.Equal(t, []types.GroupState{
		types.StateActive, types.StateIdle, types.StateActive, types.StateDead,
	}, pub.states())
	assert.Equal(t, 1.0, testutil.ToFloat64(e.Metrics().Transitions.WithLabelValues("active", "idle")))
}

func TestLauncherIsExempt(t *testing.T) {
	ctx := context.Background()
	sup := fixtures.NewMockSupervisor(t)
	e := newTestEngine(t, sup, testSettings())

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(200, launcher)))
	e.OnVisibilityChanged(fixtures.Gained(launcher, launcher+"/.Home"))
	waitState(t, e, launcher, types.StateActive)
	e.OnVisibilityChanged(fixtures.Lost(launcher, launcher+"/.Home"))
	waitState(t, e, launcher, types.StateIdle)

	assert.Equal(t, 0, e.Stats().ScheduledTasks)
	sup.AssertNotCalled(t, "SetSchedGroup", mock.Anything, 200, mock.Anything)
}

func TestScoreArbitrationThroughEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil, testSettings())

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(300, chat)))

	got := []types.Verdict{
		e.OnScoreProposed(ctx, 300, fixtures.DefaultUID, 500),
		e.OnScoreProposed(ctx, 300, fixtures.DefaultUID, 0),
		e.OnScoreProposed(ctx, 300, fixtures.DefaultUID, 0),
		e.OnScoreProposed(ctx, 300, fixtures.DefaultUID, 0),
	}
	assert.Equal(t, []types.Verdict{
		types.Override(500, 0), types.Accept(0), types.Veto(), types.Veto(),
	}, got)

	assert.Equal(t, types.Accept(900), e.OnScoreProposed(ctx, 999, 20000, 900), "untracked uid")

	aux := e.OnScoreProposed(ctx, 301, fixtures.DefaultUID, 650)
	assert.Equal(t, types.Override(650, 700), aux, "unknown pid of an app with a main registers as auxiliary")
	assert.Equal(t, 2, e.Stats().Processes)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.Metrics().Verdicts.WithLabelValues("veto", "false")))
}

func TestUnmanagedPackageIsIgnored(t *testing.T) {
	resolver := new(fixtures.MockResolver)
	resolver.On("IsExemptLauncherPackage", mock.Anything).Return(false).Maybe()
	resolver.On("ResolvePackageMetadata", mock.Anything, 0, "com.example.ghost").Return(nil, nil)

	e, err := New(fixtures.NewMockSupervisor(t), resolver, testSettings())
	require.NoError(t, err)
	e.Start()
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.OnProcessCreated(context.Background(), fixtures.CreateMainProcess(400, "com.example.ghost")))
	assert.Equal(t, 0, e.Stats().TotalApps)
}

func TestPackageInvalidation(t *testing.T) {
	ctx := context.Background()
	resolver := fixtures.NewMockResolver(t, launcher)
	e, err := New(fixtures.NewMockSupervisor(t), resolver, testSettings())
	require.NoError(t, err)
	e.Start()
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(500, chat)))
	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateAuxProcess(501, chat, "push")))
	resolver.AssertNumberOfCalls(t, "ResolvePackageMetadata", 1)

	e.OnPackageMetadataInvalidated(0, chat)
	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateAuxProcess(502, chat, "media")))
	resolver.AssertNumberOfCalls(t, "ResolvePackageMetadata", 2)
}

func TestExemptionIsResolvedOnce(t *testing.T) {
	ctx := context.Background()
	resolver := fixtures.NewMockResolver(t, launcher)
	e, err := New(fixtures.NewMockSupervisor(t), resolver, testSettings())
	require.NoError(t, err)
	e.Start()
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(210, launcher)))
	e.OnVisibilityChanged(fixtures.Gained(launcher, launcher+"/.Home"))
	waitState(t, e, launcher, types.StateActive)
	e.OnVisibilityChanged(fixtures.Lost(launcher, launcher+"/.Home"))
	waitState(t, e, launcher, types.StateIdle)
	resolver.AssertNumberOfCalls(t, "IsExemptLauncherPackage", 1)

	e.OnPackageMetadataInvalidated(0, launcher)
	e.OnVisibilityChanged(fixtures.Gained(launcher, launcher+"/.Home"))
	waitState(t, e, launcher, types.StateActive)
	resolver.AssertNumberOfCalls(t, "IsExemptLauncherPackage", 2)
	resolver.AssertNumberOfCalls(t, "ResolvePackageMetadata", 2)
	assert.Equal(t, 0, e.Stats().ScheduledTasks)
}

func TestLateScoreAfterMainRemoval(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil, testSettings())

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(700, chat)))
	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateAuxProcess(701, chat, "sync")))

	require.NoError(t, e.OnProcessRemoved(ctx, 700))
	_, ok := e.Application(types.NewIdentity(0, chat))
	assert.False(t, ok, "main removal tears the application down at once")

	assert.Equal(t, types.Accept(300), e.OnScoreProposed(ctx, 700, fixtures.DefaultUID, 300))
	assert.Equal(t, types.Stats{}, e.Stats())
}

func TestInvalidReportsAreRejected(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, nil, testSettings())

	assert.Error(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(-1, chat)))
	assert.Error(t, e.OnProcessRemoved(ctx, 0))
	assert.NoError(t, e.OnProcessRemoved(ctx, 12345), "unknown pid is nothing to do")
	assert.False(t, e.OnVisibilityChanged(types.VisibilityEvent{Kind: "flicker", Package: chat}))
	assert.False(t, e.OnVisibilityChanged(fixtures.Gained("", mainAct)))
}

func TestDisplayInteractiveState(t *testing.T) {
	e := newTestEngine(t, nil, testSettings())

	assert.True(t, e.Interactive())
	e.OnDisplayInteractiveChanged(false)
	assert.False(t, e.Interactive())
	e.OnDisplayInteractiveChanged(true)
	assert.True(t, e.Interactive())
}

func TestGoneTrimTargetRemovesProcess(t *testing.T) {
	ctx := context.Background()
	sup := new(fixtures.MockSupervisor)
	sup.On("RequestTrimSignal", mock.Anything, 601, mock.Anything).Return(false, nil)
	sup.On("RequestTrimSignal", mock.Anything, mock.Anything, mock.Anything).Return(true, nil).Maybe()
	sup.On("RequestGC", mock.Anything, mock.Anything).Return(true, nil).Maybe()
	sup.On("RequestCompaction", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	sup.On("SetSchedGroup", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	settings := testSettings()
	settings.Scheduler.BackgroundPeriod = 20 * time.Millisecond
	settings.Coordinator.EnableBackgroundGC = false
	e := newTestEngine(t, sup, settings)

	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateMainProcess(600, chat)))
	require.NoError(t, e.OnProcessCreated(ctx, fixtures.CreateAuxProcess(601, chat, "sync")))
	e.OnVisibilityChanged(fixtures.Gained(chat, mainAct))
	e.OnVisibilityChanged(fixtures.Lost(chat, mainAct))
	waitState(t, e, chat, types.StateIdle)

	require.Eventually(t, func() bool {
		v, ok := e.Application(types.NewIdentity(0, chat))
		return ok && len(v.Processes) == 1
	}, 2*time.Second, 5*time.Millisecond)

	v, _ := e.Application(types.NewIdentity(0, chat))
	assert.Equal(t, 600, v.Processes[0].PID)
	assert.Equal(t, 1, e.Stats().ScheduledTasks, "only the main process keeps its trim task")
}

func TestCloseIsIdempotent(t *testing.T) {
	e, err := New(fixtures.NewMockSupervisor(t), fixtures.NewMockResolver(t, launcher), testSettings())
	require.NoError(t, err)
	e.Start()

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.False(t, e.OnVisibilityChanged(fixtures.Gained(chat, mainAct)))
	assert.ErrorIs(t, e.OnProcessCreated(context.Background(), fixtures.CreateMainProcess(1, chat)), ErrClosed)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, fixtures.NewMockResolver(t, launcher), testSettings())
	assert.Error(t, err)
}
