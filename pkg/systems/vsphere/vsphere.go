// Package vsphere adapts a vCenter or ESXi endpoint to the System contract.
//
// VMs are non-template virtual machines; templates are VMs flagged as
// templates. Power operations return once vCenter has accepted the task
// unless the "wait_tasks" option is set.
package vsphere

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"

	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/vcenter"
	"github.com/Bibi40k/vmgmt/pkg/vm"
)

// Kind is the provider kind for this backend.
const Kind = "vsphere"

var states = system.StateMap{
	"poweredOn":  system.StateRunning,
	"poweredOff": system.StateStopped,
	"suspended":  system.StateSuspended,
}

// runningVMs counts from one inventory listing instead of a state query per VM.
func runningVMs(ctx context.Context, s system.System) (float64, error) {
	vs, ok := s.(*System)
	if !ok {
		return system.CountRunning(ctx, s)
	}
	c, err := vs.client()
	if err != nil {
		return 0, err
	}
	infos, err := c.ListVMs(ctx)
	if err != nil {
		return 0, classify(system.OpGetStat, err)
	}
	n := 0
	for _, info := range infos {
		if !info.Template && states[info.PowerState] == system.StateRunning {
			n++
		}
	}
	return float64(n), nil
}

var stats = system.CommonStats.Extend(Kind).
	Register(system.StatNumRunning, runningVMs)

// Dialer opens a vCenter client.
type Dialer func(ctx context.Context) (vcenter.ClientInterface, error)

// System is the vSphere backend.
type System struct {
	system.Base
	cfg   session.Config
	power vm.PowerInterface
	sess  *session.Session[vcenter.ClientInterface]
}

var (
	_ system.System    = (*System)(nil)
	_ system.Suspender = (*System)(nil)
	_ system.Restarter = (*System)(nil)
)

// VCenterConfig derives the govmomi connection settings from cfg.
// Recognized options: port, datacenter.
func VCenterConfig(cfg session.Config) *vcenter.Config {
	return &vcenter.Config{
		Host:       cfg.Endpoint,
		Username:   cfg.Credentials.Username,
		Password:   cfg.Credentials.Password,
		Port:       cfg.IntOption("port", 0),
		Insecure:   cfg.Insecure,
		Datacenter: cfg.Option("datacenter", ""),
	}
}

// New creates a disconnected vSphere system.
func New(cfg session.Config) *System {
	dial := func(ctx context.Context) (vcenter.ClientInterface, error) {
		return vcenter.NewClient(ctx, VCenterConfig(cfg))
	}
	return NewWithDialer(cfg, dial, vm.NewPower(cfg.BoolOption("wait_tasks", false)))
}

// NewWithDialer creates a system with injected vCenter and power clients.
func NewWithDialer(cfg session.Config, dial Dialer, power vm.PowerInterface) *System {
	s := &System{
		Base:  system.NewBase(Kind, cfg.EffectiveLogger(), states),
		cfg:   cfg,
		power: power,
	}
	s.sess = session.New(
		func(ctx context.Context) (vcenter.ClientInterface, error) {
			c, err := dial(ctx)
			if err != nil {
				return nil, classify(system.OpConnect, err)
			}
			s.Logger().Debug("Connected to vCenter", "endpoint", cfg.Endpoint, "about", c.About())
			return c, nil
		},
		func(ctx context.Context, c vcenter.ClientInterface) error {
			return classify(system.OpDisconnect, c.Disconnect(ctx))
		},
		cfg.EffectiveConnectTimeout(),
	)
	return s
}

func (s *System) Connect(ctx context.Context) error { return s.sess.Open(ctx) }

func (s *System) Disconnect(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *System) Connected() bool { return s.sess.Connected() }

func (s *System) Stats() *system.Registry { return stats }

func (s *System) client() (vcenter.ClientInterface, error) {
	c, err := s.sess.Handle()
	if err != nil {
		return nil, classify("", err)
	}
	return c, nil
}

func (s *System) Info(ctx context.Context) (string, error) {
	c, err := s.client()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vSphere %s (%s)", s.cfg.Endpoint, c.About()), nil
}

func (s *System) listVMs(ctx context.Context, op string, templates bool) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	infos, err := c.ListVMs(ctx)
	if err != nil {
		return nil, classify(op, err)
	}
	names := []string{}
	for _, info := range infos {
		if info.Template == templates {
			names = append(names, info.Name)
		}
	}
	return names, nil
}

func (s *System) ListVMs(ctx context.Context) ([]string, error) {
	return s.listVMs(ctx, system.OpListVM, false)
}

func (s *System) ListTemplates(ctx context.Context) ([]string, error) {
	return s.listVMs(ctx, system.OpListTemplate, true)
}

func (s *System) ListHosts(ctx context.Context) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	hosts, err := c.ListHosts(ctx)
	if err != nil {
		return nil, classify(system.OpListHost, err)
	}
	names := make([]string, 0, len(hosts))
	for _, h := range hosts {
		names = append(names, h.Name)
	}
	return names, nil
}

func (s *System) ListClusters(ctx context.Context) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	clusters, err := c.ListClusters(ctx)
	if err != nil {
		return nil, classify(system.OpListCluster, err)
	}
	names := make([]string, 0, len(clusters))
	for _, cl := range clusters {
		names = append(names, cl.Name)
	}
	return names, nil
}

func (s *System) ListDatastores(ctx context.Context) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	stores, err := c.ListDatastores(ctx)
	if err != nil {
		return nil, classify(system.OpListDatastore, err)
	}
	names := make([]string, 0, len(stores))
	for _, ds := range stores {
		names = append(names, ds.Name)
	}
	return names, nil
}

// lookup resolves name to a VM reference and its normalized state.
func (s *System) lookup(ctx context.Context, op, name string) (*object.VirtualMachine, system.State, error) {
	c, err := s.client()
	if err != nil {
		return nil, system.StateUnknown, err
	}
	v, err := c.FindVM(ctx, name)
	if err != nil {
		return nil, system.StateUnknown, classify(op, err)
	}
	if v == nil {
		return nil, system.StateUnknown, s.NotFound("vm", name)
	}
	ps, err := s.power.State(ctx, v)
	if err != nil {
		return nil, system.StateUnknown, classify(op, err)
	}
	return v, s.NormalizeState(string(ps)), nil
}

func (s *System) VMState(ctx context.Context, name string) (system.State, error) {
	_, st, err := s.lookup(ctx, system.OpVMState, name)
	return st, err
}

func (s *System) StartVM(ctx context.Context, name string) error {
	v, st, err := s.lookup(ctx, system.OpStartVM, name)
	if err != nil {
		return err
	}
	if st == system.StateRunning {
		return nil
	}
	s.Logger().Info("Powering on VM", "vm", name, "state", st)
	return classify(system.OpStartVM, s.power.PowerOn(ctx, v))
}

func (s *System) StopVM(ctx context.Context, name string) error {
	v, st, err := s.lookup(ctx, system.OpStopVM, name)
	if err != nil {
		return err
	}
	if st == system.StateStopped {
		return nil
	}
	s.Logger().Info("Powering off VM", "vm", name, "state", st)
	return classify(system.OpStopVM, s.power.PowerOff(ctx, v))
}

func (s *System) SuspendVM(ctx context.Context, name string) error {
	v, st, err := s.lookup(ctx, system.OpSuspendVM, name)
	if err != nil {
		return err
	}
	if st == system.StateSuspended {
		return nil
	}
	return classify(system.OpSuspendVM, s.power.Suspend(ctx, v))
}

func (s *System) RestartVM(ctx context.Context, name string) error {
	v, st, err := s.lookup(ctx, system.OpRestartVM, name)
	if err != nil {
		return err
	}
	if st != system.StateRunning {
		return s.Fail(system.OpRestartVM, fmt.Errorf("vm %q is not running (state=%s)", name, st))
	}
	return classify(system.OpRestartVM, s.power.Reset(ctx, v))
}
