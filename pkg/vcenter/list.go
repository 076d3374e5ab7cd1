package vcenter

import (
	"context"
	"sort"
	"strings"

	"github.com/vmware/govmomi/view"
	"github.com/vmware/govmomi/vim25/mo"
	"github.com/vmware/govmomi/vim25/types"
)

// VMInfo holds the properties of a virtual machine or template.
type VMInfo struct {
	Name       string
	Ref        types.ManagedObjectReference
	UUID       string
	PowerState string // vSphere power state, e.g. "poweredOn"
	Template   bool
}

// HostInfo holds information about an ESXi host.
type HostInfo struct {
	Name            string
	ConnectionState string
	PowerState      string
}

// ClusterInfo holds information about a compute cluster.
type ClusterInfo struct {
	Name     string
	NumHosts int
}

// DatastoreInfo holds information about a vCenter datastore.
type DatastoreInfo struct {
	Name        string
	CapacityGB  float64
	FreeSpaceGB float64
	Accessible  bool
	Type        string // "SSD" or "HDD" (inferred from name)
}

// retrieve loads props of every managed object of kind under the client root.
func (c *Client) retrieve(ctx context.Context, kind string, props []string, dst any) error {
	m := view.NewManager(c.conn.Client)
	v, err := m.CreateContainerView(ctx, c.root, []string{kind}, true)
	if err != nil {
		return err
	}
	defer func() { _ = v.Destroy(ctx) }()

	return v.Retrieve(ctx, []string{kind}, props, dst)
}

// ListVMs returns every virtual machine and template, sorted by name.
func (c *Client) ListVMs(ctx context.Context) ([]VMInfo, error) {
	var vms []mo.VirtualMachine
	props := []string{"name", "config.template", "config.uuid", "runtime.powerState"}
	if err := c.retrieve(ctx, "VirtualMachine", props, &vms); err != nil {
		return nil, err
	}

	result := make([]VMInfo, 0, len(vms))
	for _, vm := range vms {
		info := VMInfo{
			Name:       vm.Name,
			Ref:        vm.Reference(),
			PowerState: string(vm.Runtime.PowerState),
		}
		// config is unset while a VM is being created
		if vm.Config != nil {
			info.Template = vm.Config.Template
			info.UUID = vm.Config.Uuid
		}
		result = append(result, info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListHosts returns all ESXi hosts.
func (c *Client) ListHosts(ctx context.Context) ([]HostInfo, error) {
	var hosts []mo.HostSystem
	props := []string{"name", "runtime.connectionState", "runtime.powerState"}
	if err := c.retrieve(ctx, "HostSystem", props, &hosts); err != nil {
		return nil, err
	}

	result := make([]HostInfo, 0, len(hosts))
	for _, h := range hosts {
		result = append(result, HostInfo{
			Name:            h.Name,
			ConnectionState: string(h.Runtime.ConnectionState),
			PowerState:      string(h.Runtime.PowerState),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListClusters returns all compute clusters.
func (c *Client) ListClusters(ctx context.Context) ([]ClusterInfo, error) {
	var clusters []mo.ClusterComputeResource
	if err := c.retrieve(ctx, "ClusterComputeResource", []string{"name", "host"}, &clusters); err != nil {
		return nil, err
	}

	result := make([]ClusterInfo, 0, len(clusters))
	for _, cl := range clusters {
		result = append(result, ClusterInfo{Name: cl.Name, NumHosts: len(cl.Host)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListDatastores returns all datastores.
func (c *Client) ListDatastores(ctx context.Context) ([]DatastoreInfo, error) {
	var stores []mo.Datastore
	if err := c.retrieve(ctx, "Datastore", []string{"summary"}, &stores); err != nil {
		return nil, err
	}

	result := make([]DatastoreInfo, 0, len(stores))
	for _, ds := range stores {
		s := ds.Summary
		result = append(result, DatastoreInfo{
			Name:        s.Name,
			CapacityGB:  float64(s.Capacity) / (1024 * 1024 * 1024),
			FreeSpaceGB: float64(s.FreeSpace) / (1024 * 1024 * 1024),
			Accessible:  s.Accessible,
			Type:        inferStorageType(s.Name),
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// inferStorageType infers SSD vs HDD from the datastore name.
func inferStorageType(name string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "ssd") || strings.Contains(lower, "nvme") {
		return "SSD"
	}
	return "HDD"
}
