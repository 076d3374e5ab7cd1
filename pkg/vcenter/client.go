// Package vcenter provides a wrapper around the govmomi library for vCenter operations.
package vcenter

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/Bibi40k/vmgmt/configs"
)

// Client wraps govmomi client and provides high-level vCenter operations.
type Client struct {
	conn   *govmomi.Client
	finder *find.Finder
	// root scopes inventory views; the service root folder unless a
	// datacenter was configured.
	root types.ManagedObjectReference
}

// Config holds vCenter connection parameters.
type Config struct {
	Host       string // vCenter hostname, IP or https URL
	Username   string
	Password   string
	Port       int    // default: configs.Defaults.VCenter.Port
	Insecure   bool   // skip TLS verification
	Datacenter string // optional: restrict inventory to one datacenter
}

// URL builds the SDK endpoint for cfg, without credentials.
func (cfg *Config) URL() (*url.URL, error) {
	port := cfg.Port
	if port == 0 {
		port = configs.Defaults.VCenter.Port
	}

	if !strings.Contains(cfg.Host, "://") {
		if cfg.Host == "" {
			return nil, fmt.Errorf("vCenter host is required")
		}
		return &url.URL{
			Scheme: "https",
			Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
			Path:   "/sdk",
		}, nil
	}

	parsed, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid vCenter URL %q: %w", cfg.Host, err)
	}
	if parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported vCenter URL scheme %q (https required)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("invalid vCenter URL (missing host): %q", cfg.Host)
	}
	if parsed.Path == "" {
		parsed.Path = "/sdk"
	}
	if parsed.Port() == "" {
		parsed.Host = fmt.Sprintf("%s:%d", parsed.Hostname(), port)
	}
	parsed.User = nil
	return parsed, nil
}

// NewClient connects and logs in to the vCenter server.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	vcURL, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	vcURL.User = url.UserPassword(cfg.Username, cfg.Password)

	client, err := govmomi.NewClient(ctx, vcURL, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to vCenter: %w", err)
	}

	c := &Client{
		conn:   client,
		finder: find.NewFinder(client.Client, true),
		root:   client.ServiceContent.RootFolder,
	}

	if cfg.Datacenter != "" {
		dc, err := c.FindDatacenter(ctx, cfg.Datacenter)
		if err != nil {
			_ = client.Logout(ctx)
			return nil, err
		}
		c.root = dc.Reference()
		c.finder.SetDatacenter(dc)
	}

	return c, nil
}

// Disconnect logs out of the vCenter session.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.conn != nil {
		return c.conn.Logout(ctx)
	}
	return nil
}

// About returns the product description reported by the server,
// e.g. "VMware vCenter Server 8.0.2 build-22617221".
func (c *Client) About() string {
	return c.conn.ServiceContent.About.FullName
}

// FindDatacenter locates a datacenter by name.
func (c *Client) FindDatacenter(ctx context.Context, name string) (*object.Datacenter, error) {
	dc, err := c.finder.Datacenter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("datacenter %q not found: %w", name, err)
	}
	return dc, nil
}

// FindVM locates a virtual machine by name anywhere under the client's
// inventory root. Templates are skipped.
// Returns nil if VM doesn't exist (no error).
func (c *Client) FindVM(ctx context.Context, name string) (*object.VirtualMachine, error) {
	vms, err := c.ListVMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find VM %q: %w", name, err)
	}
	for _, vm := range vms {
		if vm.Name == name && !vm.Template {
			return object.NewVirtualMachine(c.conn.Client, vm.Ref), nil
		}
	}
	return nil, nil
}

// Client returns the underlying govmomi client for advanced operations.
func (c *Client) Client() *govmomi.Client {
	return c.conn
}

// SOAPClient returns the underlying SOAP client for low-level operations.
func (c *Client) SOAPClient() *soap.Client {
	return c.conn.Client.Client
}
