// Package libvirt adapts a KVM host managed by libvirt to the System
// contract. Commands run through virsh on the host over SSH.
//
// Domains are VMs, the host itself is the single host and storage pools
// are datastores. libvirt has no template or cluster concept. SuspendVM
// uses "virsh suspend", which leaves the domain paused.
package libvirt

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/internal/utils"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Kind is the provider kind for this backend.
const Kind = "libvirt"

var states = system.StateMap{
	"running":     system.StateRunning,
	"idle":        system.StateRunning,
	"blocked":     system.StateRunning,
	"in shutdown": system.StateRunning,
	"shut off":    system.StateStopped,
	"paused":      system.StatePaused,
	"pmsuspended": system.StateSuspended,
	"crashed":     system.StateError,
	"dying":       system.StateError,
}

var stats = system.NewRegistry(Kind).
	Register(system.StatNumVM, system.Count(system.System.ListVMs)).
	Register(system.StatNumHost, system.Count(system.System.ListHosts)).
	Register(system.StatNumDatastore, system.Count(system.System.ListDatastores)).
	Register(system.StatNumRunning, system.CountRunning)

// Dialer opens a command runner on the hypervisor host.
type Dialer func(ctx context.Context) (Runner, error)

// System is the libvirt backend.
type System struct {
	system.Base
	cfg   session.Config
	virsh string
	uri   string
	sess  *session.Session[Runner]
}

var (
	_ system.System    = (*System)(nil)
	_ system.Suspender = (*System)(nil)
	_ system.Restarter = (*System)(nil)
)

// SSHConfigFrom derives SSH settings from cfg. The endpoint accepts
// "host", "host:port", "user@host:port" or "ssh://user@host:port".
// Recognized options: key_file, key_passphrase, host_key_fingerprint,
// known_hosts.
func SSHConfigFrom(cfg session.Config) (SSHConfig, error) {
	ep, err := utils.ParseEndpoint(cfg.Endpoint, configs.Defaults.Libvirt.SSHPort)
	if err != nil {
		return SSHConfig{}, err
	}
	user := cfg.Credentials.Username
	if user == "" {
		user = ep.User
	}
	if user == "" {
		user = configs.Defaults.Libvirt.SSHUser
	}
	keyFile := cfg.Option("key_file", "")
	if keyFile == "" {
		keyFile = cfg.Credentials.Extra["key_file"]
	}
	return SSHConfig{
		Address:            ep.Address(),
		User:               user,
		Password:           cfg.Credentials.Password,
		KeyFile:            keyFile,
		KeyPassphrase:      cfg.Option("key_passphrase", ""),
		HostKeyFingerprint: cfg.Option("host_key_fingerprint", ""),
		KnownHostsFile:     cfg.Option("known_hosts", ""),
		Insecure:           cfg.Insecure,
		Timeout:            cfg.EffectiveConnectTimeout(),
	}, nil
}

// New creates a disconnected libvirt system.
func New(cfg session.Config) *System {
	return NewWithDialer(cfg, func(ctx context.Context) (Runner, error) {
		sshCfg, err := SSHConfigFrom(cfg)
		if err != nil {
			return nil, err
		}
		return DialSSH(ctx, sshCfg)
	})
}

// NewWithDialer creates a system with an injected runner.
// Options "uri" and "virsh" override the libvirt URI and virsh binary.
func NewWithDialer(cfg session.Config, dial Dialer) *System {
	s := &System{
		Base:  system.NewBase(Kind, cfg.EffectiveLogger(), states),
		cfg:   cfg,
		virsh: cfg.Option("virsh", configs.Defaults.Libvirt.Virsh),
		uri:   cfg.Option("uri", configs.Defaults.Libvirt.URI),
	}
	s.sess = session.New(
		func(ctx context.Context) (Runner, error) {
			r, err := dial(ctx)
			if err != nil {
				return nil, classify(system.OpConnect, "", err)
			}
			// fail on connect when virsh is missing or the URI is wrong
			if _, err := r.Run(ctx, s.command("uri")); err != nil {
				_ = r.Close()
				return nil, classify(system.OpConnect, "", err)
			}
			return r, nil
		},
		func(_ context.Context, r Runner) error {
			return classify(system.OpDisconnect, "", r.Close())
		},
		cfg.EffectiveConnectTimeout(),
	)
	return s
}

// command builds a quoted virsh invocation.
func (s *System) command(args ...string) string {
	return shellquote.Join(append([]string{s.virsh, "-c", s.uri}, args...)...)
}

func (s *System) run(ctx context.Context, op, name string, args ...string) (string, error) {
	r, err := s.sess.Handle()
	if err != nil {
		return "", classify(op, "", err)
	}
	cmd := s.command(args...)
	s.Logger().Debug("Running virsh", "cmd", cmd)
	out, err := r.Run(ctx, cmd)
	if err != nil {
		return "", classify(op, name, err)
	}
	return out, nil
}

// lines splits virsh output into trimmed non-empty lines.
func lines(out string) []string {
	result := []string{}
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			result = append(result, l)
		}
	}
	return result
}

func (s *System) Connect(ctx context.Context) error { return s.sess.Open(ctx) }

func (s *System) Disconnect(ctx context.Context) error { return s.sess.Close(ctx) }

func (s *System) Connected() bool { return s.sess.Connected() }

func (s *System) Stats() *system.Registry { return stats }

func (s *System) Info(ctx context.Context) (string, error) {
	host, err := s.run(ctx, system.OpInfo, "", "hostname")
	if err != nil {
		return "", err
	}
	out, err := s.run(ctx, system.OpInfo, "", "version")
	if err != nil {
		return "", err
	}
	version := ""
	for _, l := range lines(out) {
		if strings.HasPrefix(l, "Running hypervisor:") {
			version = strings.TrimSpace(strings.TrimPrefix(l, "Running hypervisor:"))
			break
		}
	}
	info := fmt.Sprintf("libvirt %s on %s", s.uri, strings.TrimSpace(host))
	if version != "" {
		info += " (" + version + ")"
	}
	return info, nil
}

func (s *System) ListVMs(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, system.OpListVM, "", "list", "--all", "--name")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (s *System) ListTemplates(ctx context.Context) ([]string, error) {
	return nil, s.Unsupported(system.OpListTemplate)
}

func (s *System) ListHosts(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, system.OpListHost, "", "hostname")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (s *System) ListClusters(ctx context.Context) ([]string, error) {
	return nil, s.Unsupported(system.OpListCluster)
}

func (s *System) ListDatastores(ctx context.Context) ([]string, error) {
	out, err := s.run(ctx, system.OpListDatastore, "", "pool-list", "--all", "--name")
	if err != nil {
		return nil, err
	}
	return lines(out), nil
}

func (s *System) VMState(ctx context.Context, name string) (system.State, error) {
	out, err := s.run(ctx, system.OpVMState, name, "domstate", name)
	if err != nil {
		return system.StateUnknown, err
	}
	return s.NormalizeState(strings.TrimSpace(out)), nil
}

// transition runs a virsh power command unless the domain is already in
// the target state.
func (s *System) transition(ctx context.Context, op, name string, target system.State, args ...string) error {
	st, err := s.VMState(ctx, name)
	if err != nil {
		return err
	}
	if st == target {
		return nil
	}
	s.Logger().Info("Changing domain state", "domain", name, "from", st, "to", target)
	_, err = s.run(ctx, op, name, args...)
	return err
}

func (s *System) StartVM(ctx context.Context, name string) error {
	st, err := s.VMState(ctx, name)
	if err != nil {
		return err
	}
	switch st {
	case system.StateRunning:
		return nil
	case system.StatePaused:
		_, err = s.run(ctx, system.OpStartVM, name, "resume", name)
	case system.StateSuspended:
		_, err = s.run(ctx, system.OpStartVM, name, "dompmwakeup", name)
	default:
		_, err = s.run(ctx, system.OpStartVM, name, "start", name)
	}
	return err
}

// StopVM requests a guest shutdown and returns without waiting for it.
func (s *System) StopVM(ctx context.Context, name string) error {
	return s.transition(ctx, system.OpStopVM, name, system.StateStopped, "shutdown", name)
}

// SuspendVM pauses the domain. A guest already in pmsuspended is left as is.
func (s *System) SuspendVM(ctx context.Context, name string) error {
	st, err := s.VMState(ctx, name)
	if err != nil {
		return err
	}
	if st == system.StatePaused || st == system.StateSuspended {
		return nil
	}
	s.Logger().Info("Changing domain state", "domain", name, "from", st, "to", system.StatePaused)
	_, err = s.run(ctx, system.OpSuspendVM, name, "suspend", name)
	return err
}

func (s *System) RestartVM(ctx context.Context, name string) error {
	st, err := s.VMState(ctx, name)
	if err != nil {
		return err
	}
	if st != system.StateRunning {
		return s.Fail(system.OpRestartVM, fmt.Errorf("domain %q is not running (state=%s)", name, st))
	}
	_, err = s.run(ctx, system.OpRestartVM, name, "reboot", name)
	return err
}
