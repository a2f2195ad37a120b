package connmon

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnsupported is returned by sources that cannot run on this platform.
var ErrUnsupported = errors.New("connection source not supported on this platform")

// Source returns a point-in-time snapshot of the host's connections.
type Source interface {
	Connections(ctx context.Context) ([]Connection, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) ([]Connection, error)

// Connections calls f(ctx).
func (f SourceFunc) Connections(ctx context.Context) ([]Connection, error) {
	return f(ctx)
}

// NewSource returns the source registered under name ("psutil" or "procfs").
func NewSource(name string) (Source, error) {
	switch name {
	case "psutil", "":
		return PsutilSource{}, nil
	case "procfs":
		return newProcfsSource()
	default:
		return nil, fmt.Errorf("unknown connection source: %s", name)
	}
}

// StateSet is the set of states a monitor records.
type StateSet map[ConnState]bool

// DefaultStates are the states recorded when none are configured.
func DefaultStates() StateSet {
	return StateSet{
		StateEstablished: true,
		StateListen:      true,
		StateTimeWait:    true,
	}
}

// ParseStates builds a StateSet from state names.
func ParseStates(names []string) (StateSet, error) {
	set := make(StateSet, len(names))
	for _, n := range names {
		s, ok := ParseState(n)
		if !ok {
			return nil, fmt.Errorf("unknown connection state: %s", n)
		}
		set[s] = true
	}
	return set, nil
}

// FilterStates returns the connections whose state is in set, preserving order.
func FilterStates(conns []Connection, set StateSet) []Connection {
	out := make([]Connection, 0, len(conns))
	for _, c := range conns {
		if set[c.State] {
			out = append(out, c)
		}
	}
	return out
}
