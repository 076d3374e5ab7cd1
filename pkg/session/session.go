package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

// ErrNotConnected is wrapped by Handle while the session is closed.
var ErrNotConnected = errors.New("not connected")

// DialFunc opens a vendor handle. Its error should already be categorized;
// uncategorized errors are reported as connection failures.
type DialFunc[H any] func(ctx context.Context) (H, error)

// CloseFunc releases a vendor handle.
type CloseFunc[H any] func(ctx context.Context, h H) error

// Session holds exactly one vendor handle. Open is idempotent and Close is
// safe to call any number of times. The handle is never shared between
// sessions.
type Session[H any] struct {
	mu      sync.Mutex
	dial    DialFunc[H]
	close   CloseFunc[H]
	timeout time.Duration

	handle H
	open   bool
}

// New creates a closed session. timeout bounds each Open call (0 = unbounded).
func New[H any](dial DialFunc[H], closeFn CloseFunc[H], timeout time.Duration) *Session[H] {
	return &Session[H]{dial: dial, close: closeFn, timeout: timeout}
}

// Open dials the backend unless a handle is already open, in which case it
// is reused. A failed dial leaves the session closed.
func (s *Session[H]) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.open {
		return nil
	}

	dialCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	h, err := s.dial(dialCtx)
	if err != nil {
		if !mgmterr.IsCategorized(err) {
			err = mgmterr.Connection("connect", err)
		}
		return err
	}
	s.handle = h
	s.open = true
	return nil
}

// Close releases the handle. The session is marked closed even when the
// release itself fails; closing a closed session is a no-op.
func (s *Session[H]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil
	}
	h := s.handle
	var zero H
	s.handle = zero
	s.open = false

	if s.close == nil {
		return nil
	}
	if err := s.close(ctx, h); err != nil {
		return mgmterr.Wrap("disconnect", err)
	}
	return nil
}

// Handle returns the open vendor handle, or a connection error while closed.
func (s *Session[H]) Handle() (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		var zero H
		return zero, mgmterr.Connection("use session", ErrNotConnected)
	}
	return s.handle, nil
}

// Connected reports whether a handle is open.
func (s *Session[H]) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *Session[H]) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		return fmt.Sprintf("session(open %T)", s.handle)
	}
	return "session(closed)"
}
