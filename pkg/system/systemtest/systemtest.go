// Package systemtest holds checks every System implementation must pass.
// Adapter tests call Run with a Fixture describing their backend.
package systemtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/wait"
)

// Fixture describes a backend under test.
type Fixture struct {
	// New returns a fresh, disconnected system with valid credentials.
	New func(t *testing.T) system.System
	// BadAuth returns a system whose Connect must fail with an
	// authentication error. Optional.
	BadAuth func(t *testing.T) system.System
	// Missing is a VM name the backend does not know.
	Missing string
	// Unsupported lists the operations the backend does not implement.
	Unsupported []string
	// Startable is a stopped VM that StartVM can bring to running. Optional.
	Startable string
	// Wait bounds the start-then-wait check.
	Wait wait.Options
}

func (f Fixture) unsupported(op string) bool {
	for _, u := range f.Unsupported {
		if u == op {
			return true
		}
	}
	return false
}

func (f Fixture) connected(t *testing.T) system.System {
	t.Helper()
	s := f.New(t)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

// Run executes the contract checks as subtests of t.
func Run(t *testing.T, f Fixture) {
	t.Helper()
	if f.Missing == "" {
		f.Missing = "vmgmt-missing-vm"
	}

	t.Run("ConnectIsIdempotent", func(t *testing.T) {
		s := f.connected(t)
		require.NoError(t, s.Connect(context.Background()))
		assert.True(t, s.Connected())
	})

	t.Run("DisconnectTwice", func(t *testing.T) {
		s := f.New(t)
		ctx := context.Background()
		require.NoError(t, s.Connect(ctx))
		require.NoError(t, s.Disconnect(ctx))
		require.NoError(t, s.Disconnect(ctx))
		assert.False(t, s.Connected())
	})

	t.Run("DisconnectWithoutConnect", func(t *testing.T) {
		s := f.New(t)
		require.NoError(t, s.Disconnect(context.Background()))
		assert.False(t, s.Connected())
	})

	t.Run("OperationsRequireConnection", func(t *testing.T) {
		s := f.New(t)
		_, err := s.ListVMs(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, mgmterr.ErrConnection) || errors.Is(err, mgmterr.ErrUnsupported),
			"unexpected error: %v", err)
	})

	t.Run("MissingVM", func(t *testing.T) {
		s := f.connected(t)
		ctx := context.Background()
		checks := map[string]func() error{
			system.OpStartVM: func() error { return s.StartVM(ctx, f.Missing) },
			system.OpStopVM:  func() error { return s.StopVM(ctx, f.Missing) },
			system.OpVMState: func() error { _, err := s.VMState(ctx, f.Missing); return err },
		}
		for op, call := range checks {
			err := call()
			if f.unsupported(op) {
				assert.ErrorIs(t, err, mgmterr.ErrUnsupported, op)
				continue
			}
			assert.ErrorIs(t, err, mgmterr.ErrNotFound, op)
		}
	})

	t.Run("UnknownStat", func(t *testing.T) {
		s := f.connected(t)
		_, err := system.GetStat(context.Background(), s, "no_such_stat")
		assert.ErrorIs(t, err, mgmterr.ErrNotFound)
	})

	t.Run("ListOperations", func(t *testing.T) {
		s := f.connected(t)
		ctx := context.Background()
		lists := map[string]func(context.Context) ([]string, error){
			system.OpListVM:        s.ListVMs,
			system.OpListTemplate:  s.ListTemplates,
			system.OpListHost:      s.ListHosts,
			system.OpListCluster:   s.ListClusters,
			system.OpListDatastore: s.ListDatastores,
		}
		for op, list := range lists {
			items, err := list(ctx)
			if f.unsupported(op) {
				require.ErrorIs(t, err, mgmterr.ErrUnsupported, op)
				assert.Nil(t, items, op)
				continue
			}
			require.NoError(t, err, op)
			assert.NotNil(t, items, op)
		}
	})

	t.Run("UnsupportedCapabilities", func(t *testing.T) {
		s := f.connected(t)
		ctx := context.Background()
		if f.unsupported(system.OpSuspendVM) {
			assert.ErrorIs(t, system.SuspendVM(ctx, s, f.Missing), mgmterr.ErrUnsupported)
		}
		if f.unsupported(system.OpRestartVM) {
			assert.ErrorIs(t, system.RestartVM(ctx, s, f.Missing), mgmterr.ErrUnsupported)
		}
	})

	t.Run("StatsMatchRegistry", func(t *testing.T) {
		s := f.connected(t)
		stats, err := system.CollectStats(context.Background(), s)
		require.NoError(t, err)
		assert.Len(t, stats, len(s.Stats().Names()))
	})

	t.Run("InfoIsNotEmpty", func(t *testing.T) {
		s := f.connected(t)
		info, err := s.Info(context.Background())
		if f.unsupported(system.OpInfo) {
			assert.ErrorIs(t, err, mgmterr.ErrUnsupported)
			return
		}
		require.NoError(t, err)
		assert.NotEmpty(t, info)
	})

	if f.BadAuth != nil {
		t.Run("AuthFailureLeavesNoHandle", func(t *testing.T) {
			s := f.BadAuth(t)
			ctx := context.Background()
			err := s.Connect(ctx)
			require.ErrorIs(t, err, mgmterr.ErrAuthentication)
			assert.False(t, s.Connected())
			require.NoError(t, s.Disconnect(ctx))
			_, err = s.ListVMs(ctx)
			assert.Error(t, err)
		})
	}

	if f.Startable != "" {
		t.Run("StartThenWait", func(t *testing.T) {
			s := f.connected(t)
			ctx := context.Background()
			require.NoError(t, s.StartVM(ctx, f.Startable))
			opts := f.Wait
			if opts.Timeout == 0 {
				opts.Timeout = 5 * time.Second
			}
			if opts.Delay == 0 {
				opts.Delay = 10 * time.Millisecond
			}
			start := time.Now()
			_, err := system.WaitForState(ctx, s, f.Startable, system.StateRunning, opts)
			if err != nil {
				require.ErrorIs(t, err, mgmterr.ErrTimeout)
				assert.GreaterOrEqual(t, time.Since(start), opts.Timeout)
				return
			}
			st, err := s.VMState(ctx, f.Startable)
			require.NoError(t, err)
			assert.Equal(t, system.StateRunning, st)
		})
	}
}
