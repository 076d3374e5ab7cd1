package system

import (
	"context"
	"fmt"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/wait"
)

// GetStat computes the named stat on s. It fails with not-found when the
// backend type has no such stat and with a connection error when s is not
// connected. Computation errors are returned as they are.
func GetStat(ctx context.Context, s System, name string) (float64, error) {
	fn, ok := s.Stats().Lookup(name)
	if !ok {
		return 0, mgmterr.WithSystem(mgmterr.NotFound("stat", name), s.Kind())
	}
	if !s.Connected() {
		return 0, mgmterr.WithSystem(mgmterr.Connection(OpGetStat, session.ErrNotConnected), s.Kind())
	}
	return fn(ctx, s)
}

// CollectStats computes the requested stats, or every registered stat when
// none are named. The first failure aborts the collection.
func CollectStats(ctx context.Context, s System, names ...string) (map[string]float64, error) {
	if len(names) == 0 {
		names = s.Stats().Names()
	}
	out := make(map[string]float64, len(names))
	for _, name := range names {
		v, err := GetStat(ctx, s, name)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// ListVMStates returns every VM with its normalized state.
func ListVMStates(ctx context.Context, s System) ([]VM, error) {
	names, err := s.ListVMs(ctx)
	if err != nil {
		return nil, err
	}
	vms := make([]VM, 0, len(names))
	for _, name := range names {
		st, err := s.VMState(ctx, name)
		if err != nil {
			return nil, err
		}
		vms = append(vms, VM{Name: name, State: st, System: s.Kind()})
	}
	return vms, nil
}

// WaitForState blocks until the named VM reports want or opts.Timeout
// expires. A failing state probe (not-found, connection...) ends the wait
// immediately with that error.
func WaitForState(ctx context.Context, s System, name string, want State, opts wait.Options) (wait.Result, error) {
	if !want.Valid() {
		return wait.Result{}, fmt.Errorf("invalid desired state %q", want)
	}
	if opts.Message == "" {
		opts.Message = fmt.Sprintf("wait for vm %s to reach state %s", name, want)
	}
	return wait.For(ctx, func(ctx context.Context) (bool, error) {
		st, err := s.VMState(ctx, name)
		if err != nil {
			return false, err
		}
		return st == want, nil
	}, opts)
}

// SuspendVM suspends the VM when the backend supports it.
func SuspendVM(ctx context.Context, s System, name string) error {
	if sp, ok := s.(Suspender); ok {
		return sp.SuspendVM(ctx, name)
	}
	return mgmterr.Unsupported(s.Kind(), OpSuspendVM)
}

// RestartVM restarts the VM when the backend has a native restart call.
// There is no stop-then-start fallback.
func RestartVM(ctx context.Context, s System, name string) error {
	if r, ok := s.(Restarter); ok {
		return r.RestartVM(ctx, name)
	}
	return mgmterr.Unsupported(s.Kind(), OpRestartVM)
}
