package system

import (
	"log/slog"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

// Base carries what every adapter shares: its kind, logger and state map.
// Adapters embed it and still implement every System method themselves.
type Base struct {
	kind   string
	logger *slog.Logger
	states StateMap
}

// NewBase builds a Base. A nil logger falls back to slog.Default().
func NewBase(kind string, logger *slog.Logger, states StateMap) Base {
	if logger == nil {
		logger = slog.Default()
	}
	return Base{
		kind:   kind,
		logger: logger.With("system", kind),
		states: states,
	}
}

func (b *Base) Kind() string { return b.kind }

func (b *Base) Logger() *slog.Logger { return b.logger }

// Unsupported returns the explicit unsupported-operation error for op.
func (b *Base) Unsupported(op string) error {
	return mgmterr.Unsupported(b.kind, op)
}

// NotFound returns a not-found error stamped with this backend.
func (b *Base) NotFound(kind, name string) error {
	return mgmterr.WithSystem(mgmterr.NotFound(kind, name), b.kind)
}

// Fail normalizes err for the contract boundary: categorized errors pass
// through, anything else becomes a vendor error. Nil stays nil.
func (b *Base) Fail(op string, err error) error {
	if err == nil {
		return nil
	}
	return mgmterr.WithSystem(mgmterr.Wrap(op, err), b.kind)
}

// NormalizeState maps a vendor state string, logging unmapped values.
func (b *Base) NormalizeState(vendor string) State {
	st, ok := b.states.Normalize(vendor)
	if !ok {
		b.logger.Warn("Unmapped VM state received from system",
			"state", vendor,
			"mapped_to", string(StateUnknown))
	}
	return st
}
