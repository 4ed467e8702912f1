package dagflow

import (
	"fmt"
	"strings"
)

// Mode is the graph-wide dispatch policy. It decides when a node with
// several dependencies may run and when it gives up.
type Mode int

const (
	// Parallel nodes need a result from every dependency. One failed
	// dependency makes the node ineffective.
	Parallel Mode = iota
	// Switch nodes run on the first result that arrives. They become
	// ineffective only once every dependency has failed.
	Switch
)

func (m Mode) String() string {
	switch m {
	case Parallel:
		return "parallel"
	case Switch:
		return "switch"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "parallel" or "switch", ignoring case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel":
		return Parallel, nil
	case "switch":
		return Switch, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// enough reports whether params received so far satisfy the mode, before
// the unit's own CanRun is consulted.
func (m Mode) enough(params, expected int) bool {
	if m == Switch {
		return params > 0
	}
	return params >= expected
}

// ineffective reports whether failed dependencies rule out running.
func (m Mode) ineffective(failed, expected int) bool {
	if m == Switch {
		return failed >= expected
	}
	return failed > 0
}
