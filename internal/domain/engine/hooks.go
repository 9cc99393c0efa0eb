package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Supervisor methods the engine intercepts
const (
	MethodProcessCreated = "process.created"
	MethodProcessRemoved = "process.removed"
	MethodVisibility     = "activity.visibility"
	MethodScore          = "process.score"
	MethodPackageChanged = "package.changed"
	MethodDisplayChanged = "display.interactive"
)

// Hooks returns the engine's intercepts. Arguments per method:
//
//	process.created      types.ProcessInfo
//	process.removed      pid int
//	activity.visibility  types.VisibilityEvent
//	process.score        pid int, uid int, score int
//	package.changed      userID int, package string
//	display.interactive  interactive bool
//
// The score intercept runs before the supervisor applies a score. A veto
// short-circuits the call; an override rewrites the score argument.
func (e *Engine) Hooks() []Intercept {
	return []Intercept{
		{Method: MethodProcessCreated, Phase: PhaseAfter, Fn: e.hookProcessCreated},
		{Method: MethodProcessRemoved, Phase: PhaseAfter, Fn: e.hookProcessRemoved},
		{Method: MethodVisibility, Phase: PhaseAfter, Fn: e.hookVisibility},
		{Method: MethodScore, Phase: PhaseBefore, Fn: e.hookScore},
		{Method: MethodPackageChanged, Phase: PhaseAfter, Fn: e.hookPackageChanged},
		{Method: MethodDisplayChanged, Phase: PhaseAfter, Fn: e.hookDisplayChanged},
	}
}

func (e *Engine) hookProcessCreated(ctx context.Context, c *Call) {
	info, ok := arg[types.ProcessInfo](c, 0)
	if !ok {
		e.badCall(c)
		return
	}
	if err := e.OnProcessCreated(ctx, info); err != nil {
		e.logger.Debug("Process created hook", zap.Int("pid", info.PID), zap.Error(err))
	}
}

func (e *Engine) hookProcessRemoved(ctx context.Context, c *Call) {
	pid, err := c.IntArg(0)
	if err != nil {
		e.badCall(c)
		return
	}
	if err := e.OnProcessRemoved(ctx, pid); err != nil {
		e.logger.Debug("Process removed hook", zap.Int("pid", pid), zap.Error(err))
	}
}

func (e *Engine) hookVisibility(_ context.Context, c *Call) {
	ev, ok := arg[types.VisibilityEvent](c, 0)
	if !ok {
		e.badCall(c)
		return
	}
	e.OnVisibilityChanged(ev)
}

func (e *Engine) hookScore(ctx context.Context, c *Call) {
	pid, err1 := c.IntArg(0)
	uid, err2 := c.IntArg(1)
	score, err3 := c.IntArg(2)
	if err1 != nil || err2 != nil || err3 != nil {
		e.badCall(c)
		return
	}

	verdict := e.OnScoreProposed(ctx, pid, uid, score)
	switch {
	case verdict.Vetoed():
		c.Return(verdict)
	case verdict.Overridden:
		c.Args[2] = verdict.Score
	}
}

func (e *Engine) hookPackageChanged(_ context.Context, c *Call) {
	userID, err := c.IntArg(0)
	pkg, ok := arg[string](c, 1)
	if err != nil || !ok {
		e.badCall(c)
		return
	}
	e.OnPackageMetadataInvalidated(userID, pkg)
}

func (e *Engine) hookDisplayChanged(_ context.Context, c *Call) {
	interactive, ok := arg[bool](c, 0)
	if !ok {
		e.badCall(c)
		return
	}
	e.OnDisplayInteractiveChanged(interactive)
}

func (e *Engine) badCall(c *Call) {
	c.Err = errs.New(errs.CategoryInvariant, c.Method, "unexpected arguments").With("args", len(c.Args))
	e.logger.Warn("Ignoring intercepted call", zap.String("method", c.Method), zap.Error(c.Err))
}

func arg[T any](c *Call, i int) (T, bool) {
	var zero T
	if i >= len(c.Args) {
		return zero, false
	}
	v, ok := c.Args[i].(T)
	return v, ok
}
