// Package policy arbitrates the supervisor's importance score proposals.
//
// The main process of a tracked application is anchored at a favorable
// baseline. Auxiliary processes start at a less favorable baseline and may
// only drift toward less important scores afterwards.
package policy

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Default baselines
const (
	DefaultMainBaseline      = 0
	DefaultAuxiliaryBaseline = 700
)

// Settings configures the baselines
type Settings struct {
	MainBaseline      int
	AuxiliaryBaseline int
}

// DefaultSettings returns the default baselines
func DefaultSettings() Settings {
	return Settings{
		MainBaseline:      DefaultMainBaseline,
		AuxiliaryBaseline: DefaultAuxiliaryBaseline,
	}
}

// ScoreObserver is told about accepted auxiliary scores
type ScoreObserver interface {
	ObserveScore(ctx context.Context, p *app.Process, score int)
}

// Policy decides on score proposals
type Policy struct {
	registry *app.Registry
	settings Settings
	observer ScoreObserver
	logger   *zap.Logger
}

// New creates a policy over registry
func New(registry *app.Registry, settings Settings, logger *zap.Logger) *Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Policy{
		registry: registry,
		settings: settings,
		logger:   logger.Named("policy"),
	}
}

// WithObserver sets the observer for accepted auxiliary scores
func (p *Policy) WithObserver(o ScoreObserver) *Policy {
	p.observer = o
	return p
}

// Settings returns the active baselines
func (p *Policy) Settings() Settings {
	return p.settings
}

// Decide returns the verdict for a proposal. It never takes an
// application's transition lock.
func (p *Policy) Decide(ctx context.Context, pid, uid, proposed int) types.Verdict {
	apps := p.registry.AppsForUID(uid)
	if len(apps) == 0 {
		return types.Accept(proposed)
	}

	proc, owner, ok := p.registry.Process(pid)
	switch {
	case !ok && len(apps) > 1:
		// Packages sharing a uid leave no way to tell which one owns pid
		p.logger.Debug("Passing score through for process of shared uid",
			zap.Int("pid", pid),
			zap.Int("uid", uid),
			zap.Int("apps", len(apps)),
		)
		return types.Accept(proposed)
	case !ok:
		proc, ok = p.registerInline(apps[0], pid, uid)
		if !ok {
			return types.Accept(proposed)
		}
	case owner.UID() != uid:
		p.logger.Debug("Process owned by another application",
			zap.Int("pid", pid),
			zap.Int("uid", uid),
		)
		return types.Accept(proposed)
	}

	first := proc.ObserveProposal(proposed)
	if proc.Main {
		return p.decideMain(proc, proposed)
	}
	verdict := p.decideAuxiliary(proc, proposed, first)
	if !verdict.Vetoed() && p.observer != nil {
		p.observer.ObserveScore(ctx, proc, verdict.Score)
	}
	return verdict
}

// decideMain forces the baseline until the supervisor has adopted it, then
// vetoes every further proposal so the baseline cannot drift
func (p *Policy) decideMain(proc *app.Process, proposed int) types.Verdict {
	baseline := p.settings.MainBaseline
	if proc.FixedScore() == baseline {
		return types.Veto()
	}
	if proposed == baseline {
		proc.SetFixed(baseline)
	}
	return types.Override(proposed, baseline)
}

// decideAuxiliary pins the first proposal to the auxiliary baseline and then
// only lets the fixed score grow
func (p *Policy) decideAuxiliary(proc *app.Process, proposed int, first bool) types.Verdict {
	baseline := p.settings.AuxiliaryBaseline
	if first && proc.CompareAndSwapFixed(app.UnsetScore, baseline) {
		return types.Override(proposed, baseline)
	}

	for {
		fixed := proc.FixedScore()
		if fixed != app.UnsetScore && proposed <= fixed {
			return types.Veto()
		}
		if proc.CompareAndSwapFixed(fixed, proposed) {
			return types.Accept(proposed)
		}
	}
}

func (p *Policy) registerInline(a *app.Application, pid, uid int) (*app.Process, bool) {
	info := types.ProcessInfo{
		PID:     pid,
		UID:     uid,
		UserID:  a.Identity().UserID,
		Package: a.Identity().Package,
	}
	if a.MainPID() != 0 {
		// Any non-empty name other than the package marks an auxiliary process
		info.Name = a.Identity().Package + ":unknown"
	}

	proc, err := p.registry.AttachProposed(a, info)
	if errors.Is(err, errs.ErrProcessRemoved) {
		p.logger.Debug("Passing score through for removed process",
			zap.Int("pid", pid),
			zap.String("app", a.Identity().Key()),
		)
		return nil, false
	}
	if err != nil {
		p.logger.Warn("Passing score through for unregistered process",
			zap.Int("pid", pid),
			zap.Int("uid", uid),
			zap.String("app", a.Identity().Key()),
			zap.Error(err),
		)
		return nil, false
	}
	return proc, true
}
