package vcenter

import (
	"context"

	"github.com/vmware/govmomi/object"
)

// ClientInterface abstracts vCenter inventory operations.
// The real implementation uses govmomi; tests inject a mock.
type ClientInterface interface {
	About() string
	ListVMs(ctx context.Context) ([]VMInfo, error)
	ListHosts(ctx context.Context) ([]HostInfo, error)
	ListClusters(ctx context.Context) ([]ClusterInfo, error)
	ListDatastores(ctx context.Context) ([]DatastoreInfo, error)
	FindVM(ctx context.Context, name string) (*object.VirtualMachine, error)
	Disconnect(ctx context.Context) error
}

// compile-time interface compliance check
var _ ClientInterface = (*Client)(nil)
