package reclaim

import (
	"context"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// DefaultCompactScoreThreshold is the score from which a process counts as
// cached and is compacted
const DefaultCompactScoreThreshold = 900

// CompactorSettings configures out-of-band reclamation
type CompactorSettings struct {
	ScoreThreshold int
	Clock          clockwork.Clock
}

// Compactor issues compaction and scheduling-group requests
type Compactor struct {
	sup      Supervisor
	settings CompactorSettings
	logger   *zap.Logger
	recorder CompactionRecorder
}

// CompactionRecorder counts compaction outcomes
type CompactionRecorder interface {
	RecordCompaction(reason, outcome string)
}

// NewCompactor creates a compactor
func NewCompactor(sup Supervisor, settings CompactorSettings, logger *zap.Logger) *Compactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.ScoreThreshold == 0 {
		settings.ScoreThreshold = DefaultCompactScoreThreshold
	}
	if settings.Clock == nil {
		settings.Clock = clockwork.NewRealClock()
	}
	return &Compactor{
		sup:      sup,
		settings: settings,
		logger:   logger.Named("compactor"),
	}
}

// WithRecorder sets the outcome recorder
func (c *Compactor) WithRecorder(r CompactionRecorder) *Compactor {
	c.recorder = r
	return c
}

// Compact requests compaction of p for entering state. It reports whether a
// request was issued; repeated entries into the same state and requests
// within the process's minimum interval are dropped.
func (c *Compactor) Compact(ctx context.Context, p *app.Process, state types.GroupState, reason string) bool {
	if !p.AllowCompaction(state, c.settings.Clock.Now()) {
		c.record(reason, "throttled")
		return false
	}

	level := CompactFile
	if state == types.StateIdle {
		level = CompactFull
	}
	if err := c.sup.RequestCompaction(ctx, p.PID, level); err != nil {
		c.logger.Warn("Compaction request failed",
			zap.Int("pid", p.PID),
			zap.String("level", string(level)),
			zap.Error(err),
		)
		c.record(reason, "error")
		return false
	}
	c.record(reason, "issued")
	return true
}

// ObserveScore compacts auxiliary processes that drift into the cached range
func (c *Compactor) ObserveScore(ctx context.Context, p *app.Process, score int) {
	if p.Main || score < c.settings.ScoreThreshold {
		return
	}
	c.Compact(ctx, p, types.StateIdle, "score")
}

// Demote moves p to the background scheduling group
func (c *Compactor) Demote(ctx context.Context, p *app.Process) error {
	return c.setGroup(ctx, p, GroupBackground)
}

// Promote moves p back to the default scheduling group and forgets the state
// it was last compacted under
func (c *Compactor) Promote(ctx context.Context, p *app.Process) error {
	p.ResetCompaction(types.StateActive)
	return c.setGroup(ctx, p, GroupDefault)
}

func (c *Compactor) setGroup(ctx context.Context, p *app.Process, group SchedGroup) error {
	if err := c.sup.SetSchedGroup(ctx, p.PID, group); err != nil {
		c.logger.Warn("Scheduling group change failed",
			zap.Int("pid", p.PID),
			zap.String("group", string(group)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (c *Compactor) record(reason, outcome string) {
	if c.recorder != nil {
		c.recorder.RecordCompaction(reason, outcome)
	}
}
