// Package inventory captures a point-in-time view of one backend: its
// info string, every list operation, VM states and stats.
package inventory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/vmgmt/pkg/system"
)

// Snapshot is the normalized inventory of one provider.
// A nil list means the backend does not support that listing; the
// operation is then named in Unsupported.
type Snapshot struct {
	Provider    string             `json:"provider" yaml:"provider"`
	Kind        string             `json:"kind" yaml:"kind"`
	Info        string             `json:"info,omitempty" yaml:"info,omitempty"`
	CollectedAt time.Time          `json:"collected_at" yaml:"collected_at"`
	VMs         []system.VM        `json:"vms" yaml:"vms"`
	Templates   []string           `json:"templates,omitempty" yaml:"templates,omitempty"`
	Hosts       []string           `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Clusters    []string           `json:"clusters,omitempty" yaml:"clusters,omitempty"`
	Datastores  []string           `json:"datastores,omitempty" yaml:"datastores,omitempty"`
	Stats       map[string]float64 `json:"stats,omitempty" yaml:"stats,omitempty"`
	Unsupported []string           `json:"unsupported,omitempty" yaml:"unsupported,omitempty"`
}

// Validate checks the minimum a snapshot must carry to be useful.
func (s Snapshot) Validate() error {
	if strings.TrimSpace(s.Provider) == "" {
		return fmt.Errorf("inventory provider is required")
	}
	if strings.TrimSpace(s.Kind) == "" {
		return fmt.Errorf("inventory kind is required")
	}
	for i, vm := range s.VMs {
		if strings.TrimSpace(vm.Name) == "" {
			return fmt.Errorf("inventory vms[%d]: name is required", i)
		}
		if !vm.State.Valid() {
			return fmt.Errorf("inventory vm %q: invalid state %q", vm.Name, vm.State)
		}
	}
	return nil
}

// Running returns the number of VMs in the running state.
func (s Snapshot) Running() int {
	n := 0
	for _, vm := range s.VMs {
		if vm.State == system.StateRunning {
			n++
		}
	}
	return n
}

func isJSON(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// Load reads a Snapshot from YAML or JSON.
func Load(path string) (Snapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read inventory %s: %w", path, err)
	}

	var out Snapshot
	if isJSON(path) {
		err = json.Unmarshal(content, &out)
	} else {
		err = yaml.Unmarshal(content, &out)
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("parse inventory %s: %w", path, err)
	}

	if err := out.Validate(); err != nil {
		return Snapshot{}, err
	}
	return out, nil
}

// Save writes a Snapshot to YAML or JSON based on file extension.
func Save(path string, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}

	var (
		content []byte
		err     error
	)
	if isJSON(path) {
		content, err = json.MarshalIndent(snap, "", "  ")
	} else {
		content, err = yaml.Marshal(snap)
	}
	if err != nil {
		return fmt.Errorf("marshal inventory %s: %w", path, err)
	}

	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("write inventory %s: %w", path, err)
	}
	return nil
}
