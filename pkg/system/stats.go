package system

import (
	"context"
	"sort"
	"sync"
)

// StatFunc computes a stat against a connected System. It runs on every
// lookup; results are never cached.
type StatFunc func(ctx context.Context, s System) (float64, error)

// Registry maps stat names to computations for one backend type.
//
// Registering a name that already exists replaces the previous definition.
// Extend copies the parent's definitions into a new registry at the time of
// the call, so a backend can inherit common stats and override some of them
// without affecting the parent.
type Registry struct {
	name string

	mu   sync.RWMutex
	defs map[string]StatFunc
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{name: name, defs: make(map[string]StatFunc)}
}

// Extend returns a new registry seeded with r's current definitions.
func (r *Registry) Extend(name string) *Registry {
	child := NewRegistry(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k, fn := range r.defs {
		child.defs[k] = fn
	}
	return child
}

// Register binds stat to fn; the last registration wins. It returns r for chaining.
func (r *Registry) Register(stat string, fn StatFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[stat] = fn
	return r
}

// Lookup returns the computation registered for stat.
func (r *Registry) Lookup(stat string) (StatFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.defs[stat]
	return fn, ok
}

// Names returns the registered stat names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.defs))
	for k := range r.defs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Name() string { return r.name }

// Stat names shared across backends.
const (
	StatNumVM        = "num_vm"
	StatNumTemplate  = "num_template"
	StatNumHost      = "num_host"
	StatNumCluster   = "num_cluster"
	StatNumDatastore = "num_datastore"
	StatNumRunning   = "num_running_vm"
)

// Count turns a list operation into a stat, e.g. Count(System.ListVMs).
func Count(list func(System, context.Context) ([]string, error)) StatFunc {
	return func(ctx context.Context, s System) (float64, error) {
		items, err := list(s, ctx)
		if err != nil {
			return 0, err
		}
		return float64(len(items)), nil
	}
}

// CountRunning counts VMs whose normalized state is running.
func CountRunning(ctx context.Context, s System) (float64, error) {
	vms, err := ListVMStates(ctx, s)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, vm := range vms {
		if vm.State == StateRunning {
			n++
		}
	}
	return float64(n), nil
}

// CommonStats holds the counting stats every full VM backend offers.
// Backends Extend it, or build their own registry when some list
// operations are unsupported.
var CommonStats = NewRegistry("common").
	Register(StatNumVM, Count(System.ListVMs)).
	Register(StatNumTemplate, Count(System.ListTemplates)).
	Register(StatNumHost, Count(System.ListHosts)).
	Register(StatNumCluster, Count(System.ListClusters)).
	Register(StatNumDatastore, Count(System.ListDatastores))
