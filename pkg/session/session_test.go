package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

type fakeHandle struct {
	id     int
	closed bool
}

type dialer struct {
	dials  int
	closes int
	err    error
	delay  time.Duration
}

func (d *dialer) dial(ctx context.Context) (*fakeHandle, error) {
	d.dials++
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return &fakeHandle{id: d.dials}, nil
}

func (d *dialer) close(ctx context.Context, h *fakeHandle) error {
	d.closes++
	h.closed = true
	return nil
}

func TestSession_OpenIsIdempotent(t *testing.T) {
	d := &dialer{}
	s := New(d.dial, d.close, 0)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	first, err := s.Handle()
	require.NoError(t, err)

	require.NoError(t, s.Open(ctx))
	second, err := s.Handle()
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dials)
	assert.True(t, s.Connected())
}

func TestSession_CloseTwiceIsNoop(t *testing.T) {
	d := &dialer{}
	s := New(d.dial, d.close, 0)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	h, _ := s.Handle()

	require.NoError(t, s.Close(ctx))
	assert.True(t, h.closed)
	assert.False(t, s.Connected())

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 1, d.closes)
	assert.False(t, s.Connected())
}

func TestSession_CloseWithoutOpen(t *testing.T) {
	d := &dialer{}
	s := New(d.dial, d.close, 0)
	require.NoError(t, s.Close(context.Background()))
	assert.Zero(t, d.closes)
}

func TestSession_HandleWhileClosed(t *testing.T) {
	d := &dialer{}
	s := New(d.dial, d.close, 0)

	h, err := s.Handle()
	assert.Nil(t, h)
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrConnection)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSession_FailedOpenLeavesNoHandle(t *testing.T) {
	d := &dialer{err: mgmterr.Auth("connect", errors.New("invalid login"))}
	s := New(d.dial, d.close, 0)
	ctx := context.Background()

	err := s.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrAuthentication)
	assert.False(t, s.Connected())

	// Disconnect after a failed connect is a safe no-op.
	require.NoError(t, s.Close(ctx))
	assert.Zero(t, d.closes)
}

func TestSession_UncategorizedDialErrorIsConnection(t *testing.T) {
	d := &dialer{err: errors.New("dial tcp 10.0.0.1:443: connection refused")}
	s := New(d.dial, d.close, 0)

	err := s.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrConnection)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSession_OpenHonoursTimeout(t *testing.T) {
	d := &dialer{delay: time.Second}
	s := New(d.dial, d.close, 20*time.Millisecond)

	start := time.Now()
	err := s.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.False(t, s.Connected())
}

func TestSession_ReopenAfterClose(t *testing.T) {
	d := &dialer{}
	s := New(d.dial, d.close, 0)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Open(ctx))

	h, err := s.Handle()
	require.NoError(t, err)
	assert.Equal(t, 2, h.id)
	assert.Equal(t, "session(open *session.fakeHandle)", s.String())
}

func TestSession_CloseErrorStillCloses(t *testing.T) {
	failing := func(ctx context.Context, h *fakeHandle) error { return errors.New("logout failed") }
	d := &dialer{}
	s := New(d.dial, failing, 0)
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	err := s.Close(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, mgmterr.ErrVendor)
	assert.False(t, s.Connected())
	require.NoError(t, s.Close(ctx))
}

func TestConfigOptions(t *testing.T) {
	cfg := Config{Options: map[string]string{
		"datacenter": " DC1 ",
		"verify":     "true",
		"port":       "8443",
		"poll":       "2s",
		"broken":     "nope",
	}}

	assert.Equal(t, "DC1", cfg.Option("datacenter", ""))
	assert.Equal(t, "def", cfg.Option("missing", "def"))
	assert.True(t, cfg.BoolOption("verify", false))
	assert.False(t, cfg.BoolOption("broken", false))
	assert.Equal(t, 8443, cfg.IntOption("port", 0))
	assert.Equal(t, 1, cfg.IntOption("broken", 1))
	assert.Equal(t, 2*time.Second, cfg.DurationOption("poll", 0))
	assert.Equal(t, time.Minute, cfg.DurationOption("broken", time.Minute))
	assert.Positive(t, cfg.EffectiveConnectTimeout())
	assert.NotNil(t, cfg.EffectiveLogger())
}

func TestCredentialsStringRedacts(t *testing.T) {
	c := Credentials{Username: "admin", Password: "s3cret", Token: "tok", Extra: map[string]string{"k": "v"}}
	s := c.String()
	assert.Contains(t, s, "user=admin")
	assert.NotContains(t, s, "s3cret")
	assert.NotContains(t, s, "tok ")
	assert.Contains(t, s, "password=***")
}
