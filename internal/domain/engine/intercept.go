package engine

import (
	"context"
	"fmt"

	"github.com/GriffinCanCode/keepalive/internal/shared/errs"
)

// Phase says where an intercept runs relative to the supervisor method
type Phase int

const (
	// PhaseBefore runs ahead of the method and may short-circuit it
	PhaseBefore Phase = iota
	// PhaseAfter runs once the method (or its replacement) returned
	PhaseAfter
	// PhaseReplace runs instead of the method
	PhaseReplace
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	case PhaseReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Call is one invocation of an intercepted supervisor method
type Call struct {
	Method string
	Args   []any
	Result any
	Err    error

	returned bool
}

// Return sets the result and skips the method and any replacement
func (c *Call) Return(result any) {
	c.Result = result
	c.returned = true
}

// Returned reports whether a before intercept short-circuited the call
func (c *Call) Returned() bool {
	return c.returned
}

// IntArg returns argument i as an int
func (c *Call) IntArg(i int) (int, error) {
	if i >= len(c.Args) {
		return 0, errs.New(errs.CategoryInvariant, c.Method, "missing argument").With("index", i)
	}
	v, ok := c.Args[i].(int)
	if !ok {
		return 0, errs.New(errs.CategoryInvariant, c.Method, "argument is not an int").
			With("index", i).
			With("type", fmt.Sprintf("%T", c.Args[i]))
	}
	return v, nil
}

// HookFunc is the body of an intercept
type HookFunc func(ctx context.Context, c *Call)

// Intercept attaches Fn to Method in Phase
type Intercept struct {
	Method string
	Phase  Phase
	Fn     HookFunc
}

// Chain holds the intercepts of one method
type Chain struct {
	method  string
	before  []HookFunc
	after   []HookFunc
	replace HookFunc
}

// NewChain builds the chain of method from intercepts; intercepts of other
// methods are ignored and a later replacement wins over an earlier one
func NewChain(method string, intercepts ...Intercept) *Chain {
	ch := &Chain{method: method}
	for _, in := range intercepts {
		if in.Method != method || in.Fn == nil {
			continue
		}
		switch in.Phase {
		case PhaseBefore:
			ch.before = append(ch.before, in.Fn)
		case PhaseAfter:
			ch.after = append(ch.after, in.Fn)
		case PhaseReplace:
			ch.replace = in.Fn
		}
	}
	return ch
}

// Chains groups intercepts by method
func Chains(intercepts []Intercept) map[string]*Chain {
	methods := make(map[string]struct{})
	for _, in := range intercepts {
		methods[in.Method] = struct{}{}
	}
	out := make(map[string]*Chain, len(methods))
	for m := range methods {
		out[m] = NewChain(m, intercepts...)
	}
	return out
}

// Invoke runs befores in order, then the replacement or original unless a
// before returned early, then afters in order
func (ch *Chain) Invoke(ctx context.Context, c *Call, original HookFunc) {
	if c.Method == "" {
		c.Method = ch.method
	}
	for _, fn := range ch.before {
		fn(ctx, c)
		if c.returned {
			break
		}
	}
	if !c.returned {
		switch {
		case ch.replace != nil:
			ch.replace(ctx, c)
		case original != nil:
			original(ctx, c)
		}
	}
	for _, fn := range ch.after {
		fn(ctx, c)
	}
}
