// Package provider loads named backend definitions from a YAML file and
// builds the matching System for each.
package provider

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/vmgmt/configs"
	"github.com/Bibi40k/vmgmt/internal/utils"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/systems/libvirt"
	"github.com/Bibi40k/vmgmt/pkg/systems/proxmox"
	"github.com/Bibi40k/vmgmt/pkg/systems/vsphere"
)

// Provider is one backend definition.
type Provider struct {
	Name           string            `yaml:"name" json:"name"`
	Kind           string            `yaml:"kind" json:"kind"`
	Endpoint       string            `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Username       string            `yaml:"username,omitempty" json:"username,omitempty"`
	Password       string            `yaml:"password,omitempty" json:"-"`
	Token          string            `yaml:"token,omitempty" json:"-"`
	Insecure       bool              `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	ConnectTimeout string            `yaml:"connect_timeout,omitempty" json:"connect_timeout,omitempty"` // e.g. "30s"
	Options        map[string]string `yaml:"options,omitempty" json:"options,omitempty"`
}

// File is the YAML structure of a providers file.
type File struct {
	Providers []Provider `yaml:"providers"`
}

// ConfigError reports an invalid providers file or definition.
type ConfigError struct {
	Provider string
	Msg      string
}

func (e *ConfigError) Error() string {
	if e.Provider == "" {
		return "provider config: " + e.Msg
	}
	return fmt.Sprintf("provider %q: %s", e.Provider, e.Msg)
}

// Load reads a providers file. Files named *.sops.yaml are decrypted with
// the sops CLI first. ${VAR} references in endpoints, credentials and
// options are expanded from the environment.
func Load(path string) (*File, error) {
	var (
		data []byte
		err  error
	)
	if IsSOPS(path) {
		data, err = Decrypt(path)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return Parse(data)
}

// Parse decodes, expands and validates providers YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse providers: %w", err)
	}
	for i := range f.Providers {
		f.Providers[i].expand()
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// IsSOPS reports whether path names a SOPS-encrypted providers file.
func IsSOPS(path string) bool {
	base := filepath.Base(path)
	return strings.HasSuffix(base, ".sops.yaml") || strings.HasSuffix(base, ".sops.yml")
}

func (p *Provider) expand() {
	p.Endpoint = os.ExpandEnv(p.Endpoint)
	p.Username = os.ExpandEnv(p.Username)
	p.Password = os.ExpandEnv(p.Password)
	p.Token = os.ExpandEnv(p.Token)
	for k, v := range p.Options {
		p.Options[k] = os.ExpandEnv(v)
	}
}

// Validate checks names are present and unique, kinds are known and
// timeouts parse.
func (f *File) Validate() error {
	seen := map[string]bool{}
	for i, p := range f.Providers {
		if strings.TrimSpace(p.Name) == "" {
			return &ConfigError{Msg: fmt.Sprintf("providers[%d]: name is required", i)}
		}
		if seen[p.Name] {
			return &ConfigError{Provider: p.Name, Msg: "duplicate name"}
		}
		seen[p.Name] = true
		if !IsKnownKind(p.Kind) {
			return &ConfigError{Provider: p.Name,
				Msg: fmt.Sprintf("unknown kind %q (want one of %s)", p.Kind, strings.Join(Kinds(), ", "))}
		}
		if _, err := p.timeout(); err != nil {
			return &ConfigError{Provider: p.Name, Msg: err.Error()}
		}
		if port, ok := p.Options["port"]; ok {
			if _, err := utils.ValidatePort(port); err != nil {
				return &ConfigError{Provider: p.Name, Msg: "options.port: " + err.Error()}
			}
		}
	}
	return nil
}

// defaultPort returns the TCP port each networked kind listens on when the
// endpoint names none.
func defaultPort(kind string) (int, bool) {
	switch kind {
	case vsphere.Kind:
		return configs.Defaults.VCenter.Port, true
	case proxmox.Kind:
		return configs.Defaults.Proxmox.Port, true
	case libvirt.Kind:
		return configs.Defaults.Libvirt.SSHPort, true
	}
	return 0, false
}

// Address resolves the endpoint to host and port. ok is false for kinds
// reached without TCP (memory, containerd over its unix socket).
func (p Provider) Address() (ep utils.Endpoint, ok bool, err error) {
	port, ok := defaultPort(p.Kind)
	if !ok {
		return utils.Endpoint{}, false, nil
	}
	if v, set := p.Options["port"]; set {
		if port, err = utils.ValidatePort(v); err != nil {
			return utils.Endpoint{}, true, &ConfigError{Provider: p.Name, Msg: "options.port: " + err.Error()}
		}
	}
	ep, err = utils.ParseEndpoint(p.Endpoint, port)
	if err != nil {
		return utils.Endpoint{}, true, &ConfigError{Provider: p.Name, Msg: err.Error()}
	}
	return ep, true, nil
}

// Reachable reports whether the endpoint accepts TCP connections within
// timeout. Kinds without a TCP endpoint report "n/a".
func (p Provider) Reachable(timeout time.Duration) string {
	ep, ok, err := p.Address()
	switch {
	case !ok:
		return "n/a"
	case err != nil:
		return "invalid"
	case utils.IsPortOpen(ep.Host, ep.Port, timeout):
		return "open"
	default:
		return "closed"
	}
}

// Names returns the provider names in file order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Providers))
	for _, p := range f.Providers {
		names = append(names, p.Name)
	}
	return names
}

// Find returns the provider called name.
func (f *File) Find(name string) (Provider, error) {
	for _, p := range f.Providers {
		if p.Name == name {
			return p, nil
		}
	}
	known := f.Names()
	sort.Strings(known)
	return Provider{}, &ConfigError{Provider: name,
		Msg: fmt.Sprintf("not defined (known: %s)", strings.Join(known, ", "))}
}

func (p Provider) timeout() (time.Duration, error) {
	if p.ConnectTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.ConnectTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid connect_timeout %q: %w", p.ConnectTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("connect_timeout must not be negative: %s", p.ConnectTimeout)
	}
	return d, nil
}

// SessionConfig converts the definition into backend construction config.
func (p Provider) SessionConfig(logger *slog.Logger) (session.Config, error) {
	d, err := p.timeout()
	if err != nil {
		return session.Config{}, &ConfigError{Provider: p.Name, Msg: err.Error()}
	}
	if logger == nil {
		logger = slog.Default()
	}
	opts := make(map[string]string, len(p.Options))
	for k, v := range p.Options {
		opts[k] = v
	}
	return session.Config{
		Endpoint: p.Endpoint,
		Credentials: session.Credentials{
			Username: p.Username,
			Password: p.Password,
			Token:    p.Token,
		},
		Insecure:       p.Insecure,
		ConnectTimeout: d,
		Options:        opts,
		Logger:         logger.With("provider", p.Name),
	}, nil
}
