// Package containerd adapts a containerd daemon to the System contract.
// Containers are VMs and images are templates; hosts, clusters and
// datastores have no containerd equivalent.
package containerd

import (
	"context"
	"fmt"
	"sort"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Kind is the provider kind for this backend.
const Kind = "containerd"

var states = system.StateMap{
	"running": system.StateRunning,
	"created": system.StateStopped,
	"stopped": system.StateStopped,
	"paused":  system.StatePaused,
	"pausing": system.StatePaused,
	"unknown": system.StateUnknown,
}

var stats = system.NewRegistry(Kind).
	Register(system.StatNumVM, system.Count(system.System.ListVMs)).
	Register(system.StatNumTemplate, system.Count(system.System.ListTemplates)).
	Register(system.StatNumRunning, system.CountRunning)

// Dialer opens a containerd runtime.
type Dialer func(ctx context.Context) (Runtime, error)

// System is the containerd backend.
type System struct {
	system.Base
	cfg  session.Config
	sess *session.Session[Runtime]
}

var _ system.System = (*System)(nil)

// New creates a disconnected containerd system. Endpoint is the socket
// path; the "namespace" option selects the containerd namespace.
func New(cfg session.Config) *System {
	address := cfg.Endpoint
	if address == "" {
		address = configs.Defaults.Containerd.Address
	}
	namespace := cfg.Option("namespace", configs.Defaults.Containerd.Namespace)
	return NewWithDialer(cfg, func(ctx context.Context) (Runtime, error) {
		return Dial(address, namespace, cfg.EffectiveConnectTimeout())
	})
}

// NewWithDialer creates a system with an injected runtime.
func NewWithDialer(cfg session.Config, dial Dialer) *System {
	s := &System{
		Base: system.NewBase(Kind, cfg.EffectiveLogger(), states),
		cfg:  cfg,
	}
	s.sess = session.New(
		func(ctx context.Context) (Runtime, error) {
			rt, err := dial(ctx)
			if err != nil {
				return nil, classify(system.OpConnect, "", err)
			}
			// the client connects lazily; probe so a dead socket fails here
			if _, err := rt.Version(ctx); err != nil {
				_ = rt.Close()
				return nil, classify(system.OpConnect, "", err)
			}
			return rt, nil
		},
		func(_ context.Context, rt Runtime) error {
			return classify(system.OpDisconnect, "", rt.Close())
		},
		cfg.EffectiveConnectTimeout(),
	)
	return s
}

func (s *System) Connect(ctx context.Context) error { return s.sess.Open(ctx) }

func (s *System) Disconnect(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *System) Connected() bool { return s.sess.Connected() }

func (s *System) Stats() *system.Registry { return stats }

func (s *System) runtime() (Runtime, error) {
	rt, err := s.sess.Handle()
	if err != nil {
		return nil, classify("", "", err)
	}
	return rt, nil
}

func (s *System) Info(ctx context.Context) (string, error) {
	rt, err := s.runtime()
	if err != nil {
		return "", err
	}
	v, err := rt.Version(ctx)
	if err != nil {
		return "", classify(system.OpInfo, "", err)
	}
	return fmt.Sprintf("containerd %s", v), nil
}

func (s *System) ListVMs(ctx context.Context) ([]string, error) {
	rt, err := s.runtime()
	if err != nil {
		return nil, err
	}
	ids, err := rt.Containers(ctx)
	if err != nil {
		return nil, classify(system.OpListVM, "", err)
	}
	return sorted(ids), nil
}

func (s *System) ListTemplates(ctx context.Context) ([]string, error) {
	rt, err := s.runtime()
	if err != nil {
		return nil, err
	}
	names, err := rt.Images(ctx)
	if err != nil {
		return nil, classify(system.OpListTemplate, "", err)
	}
	return sorted(names), nil
}

func (s *System) ListHosts(ctx context.Context) ([]string, error) {
	return nil, s.Unsupported(system.OpListHost)
}

func (s *System) ListClusters(ctx context.Context) ([]string, error) {
	return nil, s.Unsupported(system.OpListCluster)
}

func (s *System) ListDatastores(ctx context.Context) ([]string, error) {
	return nil, s.Unsupported(system.OpListDatastore)
}

func (s *System) VMState(ctx context.Context, name string) (system.State, error) {
	rt, err := s.runtime()
	if err != nil {
		return system.StateUnknown, err
	}
	status, err := rt.TaskStatus(ctx, name)
	if err != nil {
		return system.StateUnknown, classify(system.OpVMState, name, err)
	}
	return s.NormalizeState(status), nil
}

func (s *System) StartVM(ctx context.Context, name string) error {
	rt, err := s.runtime()
	if err != nil {
		return err
	}
	s.Logger().Info("Starting container task", "container", name)
	return classify(system.OpStartVM, name, rt.Start(ctx, name))
}

func (s *System) StopVM(ctx context.Context, name string) error {
	rt, err := s.runtime()
	if err != nil {
		return err
	}
	status, err := rt.TaskStatus(ctx, name)
	if err != nil {
		return classify(system.OpStopVM, name, err)
	}
	if st, _ := states.Normalize(status); st == system.StateStopped {
		return nil
	}
	s.Logger().Info("Stopping container task", "container", name, "state", status)
	return classify(system.OpStopVM, name, rt.Stop(ctx, name))
}

func sorted(items []string) []string {
	out := append([]string{}, items...)
	sort.Strings(out)
	return out
}
