// Package memory is an in-process backend holding a fixed inventory.
// It needs no vendor client and is used for demos, dry runs and as the
// reference implementation of the System contract.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Bibi40k/vmgmt/internal/utils"
	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Kind is the provider kind for this backend.
const Kind = "memory"

// Inventory seeds a memory system.
type Inventory struct {
	VMs        map[string]system.State
	Templates  []string
	Hosts      []string
	Clusters   []string
	Datastores []string
	// Password, when set, must match the configured credentials on Connect.
	// It may be a bcrypt hash.
	Password string
	// TransitionDelay delays start/stop/suspend: the new state becomes
	// visible once this much time has passed since the request.
	TransitionDelay time.Duration
}

var states = system.StateMap{
	"running":   system.StateRunning,
	"stopped":   system.StateStopped,
	"suspended": system.StateSuspended,
	"paused":    system.StatePaused,
	"error":     system.StateError,
}

var stats = system.CommonStats.Extend(Kind).
	Register(system.StatNumRunning, system.CountRunning)

type vmRecord struct {
	id      string
	state   system.State
	pending system.State
	readyAt time.Time // zero when no transition is in flight
}

// current is the state observed at now. It never mutates the record.
func (vm *vmRecord) current(now time.Time) system.State {
	if !vm.readyAt.IsZero() && !now.Before(vm.readyAt) {
		return vm.pending
	}
	return vm.state
}

// settle commits a finished transition.
func (vm *vmRecord) settle(now time.Time) {
	if !vm.readyAt.IsZero() && !now.Before(vm.readyAt) {
		vm.state, vm.readyAt = vm.pending, time.Time{}
	}
}

// store is the "vendor handle": the live inventory owned by one session.
type store struct {
	mu         sync.Mutex
	vms        map[string]*vmRecord
	templates  []string
	hosts      []string
	clusters   []string
	datastores []string
	delay      time.Duration
	now        func() time.Time
}

// System is the in-memory backend.
type System struct {
	system.Base
	cfg  session.Config
	seed Inventory
	sess *session.Session[*store]
	now  func() time.Time
}

var (
	_ system.System    = (*System)(nil)
	_ system.Suspender = (*System)(nil)
	_ system.Restarter = (*System)(nil)
)

// ErrInvalidPassword is returned (wrapped) when the seeded password does not match.
var ErrInvalidPassword = errors.New("invalid username or password")

// New creates a disconnected memory system.
func New(cfg session.Config, seed Inventory) *System {
	s := &System{
		Base: system.NewBase(Kind, cfg.EffectiveLogger(), states),
		cfg:  cfg,
		seed: seed,
		now:  time.Now,
	}
	s.sess = session.New(s.dial, func(context.Context, *store) error { return nil }, cfg.EffectiveConnectTimeout())
	return s
}

func (s *System) dial(ctx context.Context) (*store, error) {
	if s.seed.Password != "" && !utils.CheckPassword(s.seed.Password, s.cfg.Credentials.Password) {
		return nil, mgmterr.WithSystem(mgmterr.Auth(system.OpConnect, ErrInvalidPassword), Kind)
	}
	st := &store{
		vms:        make(map[string]*vmRecord, len(s.seed.VMs)),
		templates:  append([]string{}, s.seed.Templates...),
		hosts:      append([]string{}, s.seed.Hosts...),
		clusters:   append([]string{}, s.seed.Clusters...),
		datastores: append([]string{}, s.seed.Datastores...),
		delay:      s.seed.TransitionDelay,
		now:        s.now,
	}
	for name, state := range s.seed.VMs {
		st.vms[name] = &vmRecord{id: uuid.NewString(), state: state}
	}
	s.Logger().Debug("Memory system connected", "endpoint", s.cfg.Endpoint, "vms", len(st.vms))
	return st, nil
}

func (s *System) Connect(ctx context.Context) error { return s.sess.Open(ctx) }

func (s *System) Disconnect(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *System) Connected() bool { return s.sess.Connected() }

func (s *System) Stats() *system.Registry { return stats }

func (s *System) handle() (*store, error) {
	st, err := s.sess.Handle()
	if err != nil {
		return nil, mgmterr.WithSystem(err, Kind)
	}
	return st, nil
}

func (s *System) Info(ctx context.Context) (string, error) {
	if _, err := s.handle(); err != nil {
		return "", err
	}
	endpoint := s.cfg.Endpoint
	if endpoint == "" {
		endpoint = "local"
	}
	return fmt.Sprintf("memory system %s", endpoint), nil
}

func (s *System) ListVMs(ctx context.Context) ([]string, error) {
	st, err := s.handle()
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	names := make([]string, 0, len(st.vms))
	for name := range st.vms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *System) list(pick func(*store) []string) ([]string, error) {
	st, err := s.handle()
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]string{}, pick(st)...), nil
}

func (s *System) ListTemplates(ctx context.Context) ([]string, error) {
	return s.list(func(st *store) []string { return st.templates })
}

func (s *System) ListHosts(ctx context.Context) ([]string, error) {
	return s.list(func(st *store) []string { return st.hosts })
}

func (s *System) ListClusters(ctx context.Context) ([]string, error) {
	return s.list(func(st *store) []string { return st.clusters })
}

func (s *System) ListDatastores(ctx context.Context) ([]string, error) {
	return s.list(func(st *store) []string { return st.datastores })
}

// transition requests a state change. allowed lists the states the
// request is accepted from; the target state itself is always accepted.
func (s *System) transition(op, name string, target system.State, allowed ...system.State) error {
	st, err := s.handle()
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	vm, ok := st.vms[name]
	if !ok {
		return s.NotFound("vm", name)
	}
	now := st.now()
	vm.settle(now)
	current := vm.state
	if !vm.readyAt.IsZero() {
		current = vm.pending
	}
	if current == target {
		return nil
	}
	accepted := false
	for _, a := range allowed {
		if current == a {
			accepted = true
			break
		}
	}
	if !accepted {
		return s.Fail(op, fmt.Errorf("vm %q cannot go from %s to %s", name, current, target))
	}
	if st.delay > 0 {
		vm.pending, vm.readyAt = target, now.Add(st.delay)
		return nil
	}
	vm.state, vm.readyAt = target, time.Time{}
	return nil
}

func (s *System) StartVM(ctx context.Context, name string) error {
	return s.transition(system.OpStartVM, name, system.StateRunning,
		system.StateStopped, system.StateSuspended, system.StatePaused)
}

func (s *System) StopVM(ctx context.Context, name string) error {
	return s.transition(system.OpStopVM, name, system.StateStopped,
		system.StateRunning, system.StateSuspended, system.StatePaused, system.StateError)
}

func (s *System) SuspendVM(ctx context.Context, name string) error {
	return s.transition(system.OpSuspendVM, name, system.StateSuspended, system.StateRunning)
}

func (s *System) RestartVM(ctx context.Context, name string) error {
	st, err := s.handle()
	if err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	vm, ok := st.vms[name]
	if !ok {
		return s.NotFound("vm", name)
	}
	if cur := vm.current(st.now()); cur != system.StateRunning {
		return s.Fail(system.OpRestartVM, fmt.Errorf("vm %q is not running (state=%s)", name, cur))
	}
	return nil
}

func (s *System) VMState(ctx context.Context, name string) (system.State, error) {
	st, err := s.handle()
	if err != nil {
		return system.StateUnknown, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	vm, ok := st.vms[name]
	if !ok {
		return system.StateUnknown, s.NotFound("vm", name)
	}
	return vm.current(st.now()), nil
}

// VMID returns the opaque identifier assigned to the VM at connect time.
func (s *System) VMID(ctx context.Context, name string) (string, error) {
	st, err := s.handle()
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	vm, ok := st.vms[name]
	if !ok {
		return "", s.NotFound("vm", name)
	}
	return vm.id, nil
}

// ParseInventory builds an Inventory from pass-through options:
//
//	vms: "web-01=running,db-01=stopped"
//	templates, hosts, clusters, datastores: comma-separated names
//	password: required password
//	transition_delay: duration ("2s")
func ParseInventory(cfg session.Config) (Inventory, error) {
	inv := Inventory{
		VMs:             map[string]system.State{},
		Templates:       splitList(cfg.Option("templates", "")),
		Hosts:           splitList(cfg.Option("hosts", "")),
		Clusters:        splitList(cfg.Option("clusters", "")),
		Datastores:      splitList(cfg.Option("datastores", "")),
		Password:        cfg.Option("password", ""),
		TransitionDelay: cfg.DurationOption("transition_delay", 0),
	}
	for _, entry := range splitList(cfg.Option("vms", "")) {
		name, rawState, hasState := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return Inventory{}, fmt.Errorf("invalid vms entry %q", entry)
		}
		state := system.StateStopped
		if hasState {
			st, ok := system.ParseState(rawState)
			if !ok {
				return Inventory{}, fmt.Errorf("invalid state %q for vm %q", rawState, name)
			}
			state = st
		}
		inv.VMs[name] = state
	}
	return inv, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
