package proxmox

import "context"

// ClientInterface defines the API calls the backend makes.
// The real implementation is Client; tests use proxmoxtest.
type ClientInterface interface {
	Authenticate(ctx context.Context) error
	Version(ctx context.Context) (*Version, error)
	ClusterResources(ctx context.Context, typ string) ([]ClusterResource, error)
	ClusterStatus(ctx context.Context) ([]ClusterStatusEntry, error)
	GuestStatus(ctx context.Context, node, kind string, vmid int) (*GuestStatus, error)
	GuestAction(ctx context.Context, node, kind string, vmid int, action string) (string, error)
}

// compile-time interface compliance check
var _ ClientInterface = (*Client)(nil)
