package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Collect builds a Snapshot from a connected system. Unsupported
// operations are recorded by name; any other failure aborts.
func Collect(ctx context.Context, provider string, s system.System) (Snapshot, error) {
	snap := Snapshot{
		Provider:    provider,
		Kind:        s.Kind(),
		CollectedAt: time.Now().UTC(),
		Stats:       map[string]float64{},
	}

	// skip records op as unsupported and reports whether err was that.
	skip := func(op string, err error) bool {
		if errors.Is(err, mgmterr.ErrUnsupported) {
			snap.Unsupported = append(snap.Unsupported, op)
			return true
		}
		return false
	}

	info, err := s.Info(ctx)
	if err != nil && !skip(system.OpInfo, err) {
		return Snapshot{}, err
	}
	snap.Info = info

	vms, err := system.ListVMStates(ctx, s)
	if err != nil && !skip(system.OpListVM, err) {
		return Snapshot{}, err
	}
	snap.VMs = vms

	lists := []struct {
		op   string
		list func(context.Context) ([]string, error)
		dst  *[]string
	}{
		{system.OpListTemplate, s.ListTemplates, &snap.Templates},
		{system.OpListHost, s.ListHosts, &snap.Hosts},
		{system.OpListCluster, s.ListClusters, &snap.Clusters},
		{system.OpListDatastore, s.ListDatastores, &snap.Datastores},
	}
	for _, l := range lists {
		items, err := l.list(ctx)
		if err != nil {
			if skip(l.op, err) {
				continue
			}
			return Snapshot{}, err
		}
		*l.dst = items
	}

	for _, name := range s.Stats().Names() {
		v, err := system.GetStat(ctx, s, name)
		if err != nil {
			if skip(system.OpGetStat+":"+name, err) {
				continue
			}
			return Snapshot{}, err
		}
		snap.Stats[name] = v
	}
	return snap, nil
}
