package proxmox

import "encoding/json"

// APIResponse is the envelope of every Proxmox VE API response.
type APIResponse struct {
	Data json.RawMessage `json:"data"`
}

// ClusterResource represents a resource from the cluster/resources API.
type ClusterResource struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"` // qemu, lxc, node, storage, pool, sdn
	Node     string  `json:"node"`
	Status   string  `json:"status"`
	Name     string  `json:"name"`
	Storage  string  `json:"storage,omitempty"`
	VMID     int     `json:"vmid,omitempty"`
	MaxCPU   int     `json:"maxcpu,omitempty"`
	CPU      float64 `json:"cpu,omitempty"`
	MaxMem   int64   `json:"maxmem,omitempty"`
	Mem      int64   `json:"mem,omitempty"`
	MaxDisk  int64   `json:"maxdisk,omitempty"`
	Disk     int64   `json:"disk,omitempty"`
	Uptime   int64   `json:"uptime,omitempty"`
	Template int     `json:"template,omitempty"`
}

// IsGuest reports whether the resource is a VM or container.
func (r ClusterResource) IsGuest() bool {
	return r.Type == "qemu" || r.Type == "lxc"
}

// IsTemplate reports whether the guest is a template.
func (r ClusterResource) IsTemplate() bool {
	return r.Template == 1
}

// ClusterStatusEntry is one row of the cluster/status API: either the
// cluster itself or one of its nodes.
type ClusterStatusEntry struct {
	Type    string `json:"type"` // cluster or node
	Name    string `json:"name"`
	ID      string `json:"id"`
	Nodes   int    `json:"nodes,omitempty"`
	Quorate int    `json:"quorate,omitempty"`
	Online  int    `json:"online,omitempty"`
}

// GuestStatus is the current status of a guest.
type GuestStatus struct {
	VMID      int    `json:"vmid"`
	Name      string `json:"name"`
	Status    string `json:"status"`              // running or stopped
	QMPStatus string `json:"qmpstatus,omitempty"` // qemu only: running, paused, suspended, prelaunch...
	Uptime    int64  `json:"uptime,omitempty"`
}

// Version is the API server version.
type Version struct {
	Version string `json:"version"`
	Release string `json:"release"`
	RepoID  string `json:"repoid"`
}
