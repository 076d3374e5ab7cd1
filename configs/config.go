// Package configs provides library defaults loaded from an embedded YAML file.
// All hardcoded values live in defaults.yaml.
package configs

import (
	_ "embed"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Defaults holds all library default values (loaded from defaults.yaml at startup).
var Defaults LibDefaults

func init() {
	if err := yaml.Unmarshal(defaultsYAML, &Defaults); err != nil {
		panic("vmgmt: invalid defaults.yaml: " + err.Error())
	}
}

// LibDefaults holds all configurable library defaults.
type LibDefaults struct {
	VCenter    VCenterDefaults    `yaml:"vcenter"`
	Proxmox    ProxmoxDefaults    `yaml:"proxmox"`
	Libvirt    LibvirtDefaults    `yaml:"libvirt"`
	Containerd ContainerdDefaults `yaml:"containerd"`
	Timeouts   TimeoutDefaults    `yaml:"timeouts"`
	Stats      StatsDefaults      `yaml:"stats"`
	Output     OutputDefaults     `yaml:"output"`
}

// VCenterDefaults holds vCenter connection defaults.
type VCenterDefaults struct {
	Port int `yaml:"port"`
}

// ProxmoxDefaults holds Proxmox VE API defaults.
type ProxmoxDefaults struct {
	Port int    `yaml:"port"`
	User string `yaml:"user"`
}

// LibvirtDefaults holds defaults for the libvirt-over-SSH backend.
type LibvirtDefaults struct {
	SSHPort int    `yaml:"ssh_port"`
	SSHUser string `yaml:"ssh_user"`
	URI     string `yaml:"uri"`
	Virsh   string `yaml:"virsh"`
}

// ContainerdDefaults holds containerd socket defaults.
type ContainerdDefaults struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// TimeoutDefaults holds all timeout and polling values.
type TimeoutDefaults struct {
	ConnectSeconds   int `yaml:"connect_seconds"`
	RequestSeconds   int `yaml:"request_seconds"`
	WaitSeconds      int `yaml:"wait_seconds"`
	WaitDelaySeconds int `yaml:"wait_delay_seconds"`
}

// As time.Duration convenience methods.

func (t TimeoutDefaults) Connect() time.Duration {
	return time.Duration(t.ConnectSeconds) * time.Second
}
func (t TimeoutDefaults) Request() time.Duration {
	return time.Duration(t.RequestSeconds) * time.Second
}
func (t TimeoutDefaults) Wait() time.Duration {
	return time.Duration(t.WaitSeconds) * time.Second
}
func (t TimeoutDefaults) WaitDelay() time.Duration {
	return time.Duration(t.WaitDelaySeconds) * time.Second
}

// StatsDefaults holds stats history defaults.
type StatsDefaults struct {
	HistoryPath  string `yaml:"history_path"`
	HistoryLimit int    `yaml:"history_limit"`
}

// OutputDefaults holds CLI output defaults.
type OutputDefaults struct {
	ProvidersPath string `yaml:"providers_path"`
	InventoryPath string `yaml:"inventory_path"`
}
