// Package decode reads buffers produced by pkg/encode (or any writer of the
// same layout) under one of four strategies chosen per parse.
package decode

import (
	"log/slog"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/rawbytedev/fractus/pkg/errs"
	"github.com/rawbytedev/fractus/pkg/schema"
)

// Strategy selects how a parsed graph reads its fields.
type Strategy uint8

const (
	// Lazy re-reads the buffer on every access.
	Lazy Strategy = iota
	// Progressive reads each field once and caches it.
	Progressive
	// Greedy materializes the whole graph at parse time and is read-only.
	Greedy
	// GreedyMutable materializes the whole graph into detached, mutable
	// values.
	GreedyMutable
)

func (s Strategy) String() string {
	switch s {
	case Lazy:
		return "lazy"
	case Progressive:
		return "progressive"
	case Greedy:
		return "greedy"
	case GreedyMutable:
		return "greedy-mutable"
	}
	return "unknown"
}

// ParseStrategy maps a strategy name back to its value.
func ParseStrategy(name string) (Strategy, error) {
	for s := Lazy; s <= GreedyMutable; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, errors.Newf("unknown strategy %q", name)
}

// greedy reports whether the strategy materializes at parse time.
func (s Strategy) greedy() bool { return s == Greedy || s == GreedyMutable }

type Options struct {
	// MaxDepth bounds table nesting for schemas that can recurse.
	MaxDepth int
	// FileIdentifier, when set, must match bytes 4..8 of the buffer.
	FileIdentifier string
	Logger         *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = schema.DefaultMaxDepth
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// state is shared by every object of one parsed graph.
type state struct {
	strategy Strategy
	opts     Options
	lease    *lease
	gen      uint64
}

// lease ties a pooled graph to its current owner. Objects whose state
// carries an older generation, or whose lease was released, are dead.
type lease struct {
	gen      atomic.Uint64
	released atomic.Bool
}

func (s *state) alive() error {
	if s.lease == nil {
		return nil
	}
	if s.lease.released.Load() || s.lease.gen.Load() != s.gen {
		return errs.ErrUseAfterRelease
	}
	return nil
}
