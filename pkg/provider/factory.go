package provider

import (
	"log/slog"
	"sort"

	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/systems/containerd"
	"github.com/Bibi40k/vmgmt/pkg/systems/libvirt"
	"github.com/Bibi40k/vmgmt/pkg/systems/memory"
	"github.com/Bibi40k/vmgmt/pkg/systems/proxmox"
	"github.com/Bibi40k/vmgmt/pkg/systems/vsphere"
)

type constructor func(cfg session.Config) (system.System, error)

var constructors = map[string]constructor{
	vsphere.Kind:    func(cfg session.Config) (system.System, error) { return vsphere.New(cfg), nil },
	containerd.Kind: func(cfg session.Config) (system.System, error) { return containerd.New(cfg), nil },
	libvirt.Kind:    func(cfg session.Config) (system.System, error) { return libvirt.New(cfg), nil },
	proxmox.Kind:    func(cfg session.Config) (system.System, error) { return proxmox.New(cfg), nil },
	memory.Kind: func(cfg session.Config) (system.System, error) {
		seed, err := memory.ParseInventory(cfg)
		if err != nil {
			return nil, err
		}
		return memory.New(cfg, seed), nil
	},
}

// Kinds returns the supported provider kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(constructors))
	for k := range constructors {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IsKnownKind reports whether kind has a backend.
func IsKnownKind(kind string) bool {
	_, ok := constructors[kind]
	return ok
}

// New builds a disconnected System for p. Callers own its lifecycle.
func New(p Provider, logger *slog.Logger) (system.System, error) {
	ctor, ok := constructors[p.Kind]
	if !ok {
		return nil, &ConfigError{Provider: p.Name, Msg: "unknown kind " + p.Kind}
	}
	cfg, err := p.SessionConfig(logger)
	if err != nil {
		return nil, err
	}
	s, err := ctor(cfg)
	if err != nil {
		return nil, &ConfigError{Provider: p.Name, Msg: err.Error()}
	}
	return s, nil
}
