package dagflow

import (
	"cmp"
	"fmt"
	"slices"
)

// Role marks a unit as the graph's entry or exit point.
type Role int

const (
	// RoleLogic is an ordinary middle node.
	RoleLogic Role = iota
	// RoleRoot receives the run's input. A graph has exactly one.
	RoleRoot
	// RoleTerminal produces the run's output. A graph has at most one.
	RoleTerminal
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleTerminal:
		return "terminal"
	default:
		return "logic"
	}
}

// Unit is the business logic wrapped by a Node.
//
// CanRun is consulted once the mode's parameter count is satisfied and may
// be called many times. Run is called at most once per run with the
// parameters sorted by producing dependency. A panic in Run is recovered and
// recorded as a *PanicError.
type Unit interface {
	Name() string
	Role() Role
	CanRun(params Params) bool
	Run(ctx Context, params Params) (any, error)
}

// Param is one value delivered to a node.
type Param struct {
	// From is the name of the producing dependency, or "" for graph input.
	From  string
	Value any
}

// Params is the parameter buffer of a node in one run.
type Params []Param

// Values returns the parameter values in order.
func (p Params) Values() []any {
	out := make([]any, len(p))
	for i, param := range p {
		out[i] = param.Value
	}
	return out
}

// First returns the first value, if any.
func (p Params) First() (any, bool) {
	if len(p) == 0 {
		return nil, false
	}
	return p[0].Value, true
}

// sorted returns a copy ordered by producer name. Values from the same
// producer keep their arrival order.
func (p Params) sorted() Params {
	out := slices.Clone(p)
	slices.SortStableFunc(out, func(a, b Param) int {
		return cmp.Compare(a.From, b.From)
	})
	return out
}

// UnitFunc is the body of a unit built with NewUnit.
type UnitFunc func(ctx Context, params Params) (any, error)

// UnitOption configures a unit built with NewUnit.
type UnitOption func(*funcUnit)

// WithCanRun replaces the default readiness check, which requires at least
// one parameter.
func WithCanRun(fn func(Params) bool) UnitOption {
	return func(u *funcUnit) {
		u.canRun = fn
	}
}

// AsRoot marks the unit as the graph's root.
func AsRoot() UnitOption {
	return func(u *funcUnit) {
		u.role = RoleRoot
	}
}

// AsTerminal marks the unit as the graph's terminal.
func AsTerminal() UnitOption {
	return func(u *funcUnit) {
		u.role = RoleTerminal
	}
}

type funcUnit struct {
	name   string
	role   Role
	fn     UnitFunc
	canRun func(Params) bool
}

// NewUnit builds a Unit from a function.
//
//	upper := dagflow.NewUnit("upper", func(ctx dagflow.Context, p dagflow.Params) (any, error) {
//	    v, _ := p.First()
//	    return strings.ToUpper(v.(string)), nil
//	})
func NewUnit(name string, fn UnitFunc, opts ...UnitOption) Unit {
	u := &funcUnit{
		name:   name,
		fn:     fn,
		canRun: hasParams,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func hasParams(p Params) bool { return len(p) > 0 }

func (u *funcUnit) Name() string                           { return u.name }
func (u *funcUnit) Role() Role                             { return u.role }
func (u *funcUnit) CanRun(p Params) bool                   { return u.canRun(p) }
func (u *funcUnit) Run(ctx Context, p Params) (any, error) { return u.fn(ctx, p) }

// Names of the pass-through units.
const (
	RootName     = "root"
	TerminalName = "final"
)

// Root returns a root unit that passes the run's input through after
// checking it is a T.
func Root[T any]() Unit {
	return NewUnit(RootName, passThrough[T], AsRoot())
}

// Terminal returns a terminal unit that passes its first parameter through
// as the run's output after checking it is a T.
func Terminal[T any]() Unit {
	return NewUnit(TerminalName, passThrough[T], AsTerminal())
}

func passThrough[T any](_ Context, params Params) (any, error) {
	v, _ := params.First()
	t, ok := v.(T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: got %T, want %T", ErrUnexpectedType, v, zero)
	}
	return t, nil
}
