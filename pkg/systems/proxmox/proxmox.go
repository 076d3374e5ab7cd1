// Package proxmox adapts a Proxmox VE node or cluster to the System
// contract through its REST API.
//
// Both qemu VMs and lxc containers are VMs; guests flagged as templates
// are templates. Nodes are hosts and storages are datastores. A
// standalone node reports no clusters.
package proxmox

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/internal/utils"
	pve "github.com/Bibi40k/vmgmt/pkg/proxmox"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Kind is the provider kind for this backend.
const Kind = "proxmox"

// qemu guests report the finer qmpstatus; lxc guests only running/stopped.
var states = system.StateMap{
	"running":        system.StateRunning,
	"stopped":        system.StateStopped,
	"shutdown":       system.StateStopped,
	"paused":         system.StatePaused,
	"suspended":      system.StateSuspended,
	"io-error":       system.StateError,
	"internal-error": system.StateError,
	"guest-panicked": system.StateError,
}

// runningVMs counts from one resource listing instead of a status call per guest.
func runningVMs(ctx context.Context, s system.System) (float64, error) {
	ps, ok := s.(*System)
	if !ok {
		return system.CountRunning(ctx, s)
	}
	guests, err := ps.guests(ctx, system.OpGetStat)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range guests {
		if !g.IsTemplate() && g.Status == "running" {
			n++
		}
	}
	return float64(n), nil
}

var stats = system.CommonStats.Extend(Kind).
	Register(system.StatNumRunning, runningVMs)

// Dialer opens an API client.
type Dialer func(ctx context.Context) (pve.ClientInterface, error)

// System is the Proxmox VE backend.
type System struct {
	system.Base
	cfg          session.Config
	gracefulStop bool
	sess         *session.Session[pve.ClientInterface]
}

var (
	_ system.System    = (*System)(nil)
	_ system.Suspender = (*System)(nil)
	_ system.Restarter = (*System)(nil)
)

// BaseURL derives the API base URL from the endpoint, which may be a bare
// host, host:port or a URL. The "port" option overrides the default port.
func BaseURL(cfg session.Config) (string, error) {
	scheme := "https"
	if strings.HasPrefix(strings.ToLower(cfg.Endpoint), "http://") {
		scheme = "http"
	}
	ep, err := utils.ParseEndpoint(cfg.Endpoint, cfg.IntOption("port", configs.Defaults.Proxmox.Port))
	if err != nil {
		return "", err
	}
	return scheme + "://" + ep.Address(), nil
}

// NewClient builds an API client from cfg. Credentials.Token selects API
// token auth ("user@realm!tokenid=secret"); otherwise a ticket is
// requested with Username (default root@pam) and Password.
func NewClient(cfg session.Config) (*pve.Client, error) {
	base, err := BaseURL(cfg)
	if err != nil {
		return nil, err
	}
	timeout := cfg.DurationOption("request_timeout", configs.Defaults.Timeouts.Request())
	if cfg.Credentials.Token != "" {
		return pve.NewClient(base, cfg.Credentials.Token, cfg.Insecure, timeout), nil
	}
	user := cfg.Credentials.Username
	if user == "" {
		user = configs.Defaults.Proxmox.User
	}
	return pve.NewClientWithCredentials(base, user, cfg.Credentials.Password, cfg.Insecure, timeout), nil
}

// New creates a disconnected Proxmox system.
func New(cfg session.Config) *System {
	return NewWithDialer(cfg, func(ctx context.Context) (pve.ClientInterface, error) {
		c, err := NewClient(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// NewWithDialer creates a system with an injected API client.
// Option "graceful_stop" makes StopVM request a guest shutdown instead
// of a hard stop.
func NewWithDialer(cfg session.Config, dial Dialer) *System {
	s := &System{
		Base:         system.NewBase(Kind, cfg.EffectiveLogger(), states),
		cfg:          cfg,
		gracefulStop: cfg.BoolOption("graceful_stop", false),
	}
	s.sess = session.New(
		func(ctx context.Context) (pve.ClientInterface, error) {
			c, err := dial(ctx)
			if err != nil {
				return nil, classify(system.OpConnect, "", err)
			}
			if err := c.Authenticate(ctx); err != nil {
				return nil, classify(system.OpConnect, "", err)
			}
			// token clients authenticate lazily; probe so bad tokens fail here
			v, err := c.Version(ctx)
			if err != nil {
				return nil, classify(system.OpConnect, "", err)
			}
			s.Logger().Debug("Connected to Proxmox VE", "endpoint", cfg.Endpoint, "version", v.Version)
			return c, nil
		},
		// the API is stateless; tickets simply expire
		func(context.Context, pve.ClientInterface) error { return nil },
		cfg.EffectiveConnectTimeout(),
	)
	return s
}

func (s *System) Connect(ctx context.Context) error { return s.sess.Open(ctx) }

func (s *System) Disconnect(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *System) Connected() bool { return s.sess.Connected() }

func (s *System) Stats() *system.Registry { return stats }

func (s *System) client() (pve.ClientInterface, error) {
	c, err := s.sess.Handle()
	if err != nil {
		return nil, classify("", "", err)
	}
	return c, nil
}

func (s *System) Info(ctx context.Context) (string, error) {
	c, err := s.client()
	if err != nil {
		return "", err
	}
	v, err := c.Version(ctx)
	if err != nil {
		return "", classify(system.OpInfo, "", err)
	}
	return fmt.Sprintf("Proxmox VE %s at %s", v.Version, s.cfg.Endpoint), nil
}

func (s *System) resources(ctx context.Context, op, typ string) ([]pve.ClusterResource, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	res, err := c.ClusterResources(ctx, typ)
	if err != nil {
		return nil, classify(op, "", err)
	}
	return res, nil
}

func (s *System) guests(ctx context.Context, op string) ([]pve.ClusterResource, error) {
	res, err := s.resources(ctx, op, "vm")
	if err != nil {
		return nil, err
	}
	out := res[:0]
	for _, r := range res {
		if r.IsGuest() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *System) guestNames(ctx context.Context, op string, templates bool) ([]string, error) {
	guests, err := s.guests(ctx, op)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, g := range guests {
		if g.IsTemplate() == templates {
			names = append(names, g.Name)
		}
	}
	return uniqueSorted(names), nil
}

func (s *System) ListVMs(ctx context.Context) ([]string, error) {
	return s.guestNames(ctx, system.OpListVM, false)
}

func (s *System) ListTemplates(ctx context.Context) ([]string, error) {
	return s.guestNames(ctx, system.OpListTemplate, true)
}

func (s *System) ListHosts(ctx context.Context) ([]string, error) {
	res, err := s.resources(ctx, system.OpListHost, "node")
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, r := range res {
		if r.Type == "node" {
			names = append(names, r.Node)
		}
	}
	return uniqueSorted(names), nil
}

func (s *System) ListClusters(ctx context.Context) ([]string, error) {
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	entries, err := c.ClusterStatus(ctx)
	if err != nil {
		return nil, classify(system.OpListCluster, "", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.Type == "cluster" {
			names = append(names, e.Name)
		}
	}
	return uniqueSorted(names), nil
}

// ListDatastores returns storage IDs; a shared storage appears once.
func (s *System) ListDatastores(ctx context.Context) ([]string, error) {
	res, err := s.resources(ctx, system.OpListDatastore, "storage")
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, r := range res {
		if r.Type == "storage" {
			names = append(names, r.Storage)
		}
	}
	return uniqueSorted(names), nil
}

// resolve finds the guest called name. Proxmox does not enforce unique
// names; the lowest VMID wins.
func (s *System) resolve(ctx context.Context, op, name string) (pve.ClusterResource, error) {
	guests, err := s.guests(ctx, op)
	if err != nil {
		return pve.ClusterResource{}, err
	}
	var (
		found   pve.ClusterResource
		matches int
	)
	for _, g := range guests {
		if g.Name != name {
			continue
		}
		if matches == 0 || g.VMID < found.VMID {
			found = g
		}
		matches++
	}
	if matches == 0 {
		return pve.ClusterResource{}, s.NotFound("vm", name)
	}
	if matches > 1 {
		s.Logger().Warn("Guest name is not unique, using lowest VMID", "name", name, "matches", matches, "vmid", found.VMID)
	}
	return found, nil
}

func (s *System) guestState(ctx context.Context, op string, g pve.ClusterResource) (system.State, error) {
	c, err := s.client()
	if err != nil {
		return system.StateUnknown, err
	}
	st, err := c.GuestStatus(ctx, g.Node, g.Type, g.VMID)
	if err != nil {
		return system.StateUnknown, classify(op, g.Name, err)
	}
	vendor := st.Status
	if st.Status == "running" && st.QMPStatus != "" {
		vendor = st.QMPStatus
	}
	return s.NormalizeState(vendor), nil
}

func (s *System) VMState(ctx context.Context, name string) (system.State, error) {
	g, err := s.resolve(ctx, system.OpVMState, name)
	if err != nil {
		return system.StateUnknown, err
	}
	return s.guestState(ctx, system.OpVMState, g)
}

// act resolves name and issues the status action pick chooses for the
// current state. An empty action means nothing to do.
func (s *System) act(ctx context.Context, op, name string, pick func(system.State) (string, error)) error {
	g, err := s.resolve(ctx, op, name)
	if err != nil {
		return err
	}
	st, err := s.guestState(ctx, op, g)
	if err != nil {
		return err
	}
	action, err := pick(st)
	if err != nil || action == "" {
		return err
	}
	c, err := s.client()
	if err != nil {
		return err
	}
	s.Logger().Info("Issuing guest action", "guest", name, "vmid", g.VMID, "node", g.Node, "action", action, "state", st)
	upid, err := c.GuestAction(ctx, g.Node, g.Type, g.VMID, action)
	if err != nil {
		return classify(op, name, err)
	}
	s.Logger().Debug("Guest task accepted", "upid", upid)
	return nil
}

func (s *System) StartVM(ctx context.Context, name string) error {
	return s.act(ctx, system.OpStartVM, name, func(st system.State) (string, error) {
		switch st {
		case system.StateRunning:
			return "", nil
		case system.StatePaused, system.StateSuspended:
			return "resume", nil
		default:
			return "start", nil
		}
	})
}

func (s *System) StopVM(ctx context.Context, name string) error {
	return s.act(ctx, system.OpStopVM, name, func(st system.State) (string, error) {
		switch {
		case st == system.StateStopped:
			return "", nil
		case s.gracefulStop:
			return "shutdown", nil
		default:
			return "stop", nil
		}
	})
}

// SuspendVM pauses a qemu guest. lxc guests report unsupported-operation.
func (s *System) SuspendVM(ctx context.Context, name string) error {
	return s.act(ctx, system.OpSuspendVM, name, func(st system.State) (string, error) {
		if st == system.StatePaused || st == system.StateSuspended {
			return "", nil
		}
		return "suspend", nil
	})
}

func (s *System) RestartVM(ctx context.Context, name string) error {
	return s.act(ctx, system.OpRestartVM, name, func(st system.State) (string, error) {
		if st != system.StateRunning {
			return "", s.Fail(system.OpRestartVM, fmt.Errorf("guest %q is not running (state=%s)", name, st))
		}
		return "reboot", nil
	})
}

func uniqueSorted(items []string) []string {
	sort.Strings(items)
	out := items[:0]
	for i, it := range items {
		if it == "" || (i > 0 && it == items[i-1]) {
			continue
		}
		out = append(out, it)
	}
	return out
}
