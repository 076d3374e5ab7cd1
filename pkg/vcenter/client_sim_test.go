package vcenter

import (
	"context"
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/simulator"
)

func newSimModel(t *testing.T) *simulator.Model {
	t.Helper()

	model := simulator.VPX()
	model.Datacenter = 1
	model.Cluster = 1
	model.Host = 1
	model.Pool = 1
	model.Machine = 1

	require.NoError(t, model.Create())
	model.Service.TLS = new(tls.Config)
	t.Cleanup(model.Remove)
	return model
}

func newSimClient(t *testing.T, cfg Config) (*Client, context.Context) {
	t.Helper()

	model := newSimModel(t)
	s := model.Service.NewServer()
	t.Cleanup(s.Close)

	ctx := context.Background()
	cfg.Host = "https://" + s.URL.Host + s.URL.Path
	cfg.Insecure = true
	if cfg.Username == "" {
		cfg.Username = simulator.DefaultLogin.Username()
		cfg.Password, _ = simulator.DefaultLogin.Password()
	}

	client, err := NewClient(ctx, &cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client, ctx
}

func TestNewClient_HTTPHostFails(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{
		Host:     "http://example.com/sdk",
		Username: "user",
		Password: "pass",
		Insecure: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "https required")
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), &Config{
		Host:     "https://bad::url",
		Username: "user",
		Password: "pass",
		Insecure: true,
	})
	require.Error(t, err)
}

func TestNewClient_UnknownDatacenter(t *testing.T) {
	model := newSimModel(t)
	s := model.Service.NewServer()
	defer s.Close()

	pass, _ := simulator.DefaultLogin.Password()
	_, err := NewClient(context.Background(), &Config{
		Host:       "https://" + s.URL.Host + s.URL.Path,
		Username:   simulator.DefaultLogin.Username(),
		Password:   pass,
		Insecure:   true,
		Datacenter: "nowhere",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `datacenter "nowhere" not found`)
}

func TestConfigURL(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "bare host uses default port", cfg: Config{Host: "vc.example.com"}, want: "https://vc.example.com:443/sdk"},
		{name: "custom port", cfg: Config{Host: "vc.example.com", Port: 8443}, want: "https://vc.example.com:8443/sdk"},
		{name: "url keeps path", cfg: Config{Host: "https://vc.example.com:9443/custom"}, want: "https://vc.example.com:9443/custom"},
		{name: "url without path", cfg: Config{Host: "https://vc.example.com"}, want: "https://vc.example.com:443/sdk"},
		{name: "credentials in url are dropped", cfg: Config{Host: "https://u:p@vc.example.com/sdk"}, want: "https://vc.example.com:443/sdk"},
		{name: "http rejected", cfg: Config{Host: "http://vc.example.com"}, wantErr: true},
		{name: "empty host", cfg: Config{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := tt.cfg.URL()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, u.String())
		})
	}
}

func TestClient_DisconnectNil(t *testing.T) {
	c := &Client{}
	require.NoError(t, c.Disconnect(context.Background()))
}

func TestClient_Inventory(t *testing.T) {
	client, ctx := newSimClient(t, Config{})

	assert.Contains(t, client.About(), "VMware")

	vms, err := client.ListVMs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, vms)
	for _, vm := range vms {
		assert.NotEmpty(t, vm.Name)
		assert.Equal(t, "VirtualMachine", vm.Ref.Type)
		assert.Equal(t, "poweredOn", vm.PowerState)
		assert.False(t, vm.Template)
	}

	hosts, err := client.ListHosts(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, hosts)
	assert.Equal(t, "connected", hosts[0].ConnectionState)

	clusters, err := client.ListClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Positive(t, clusters[0].NumHosts)

	datastores, err := client.ListDatastores(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, datastores)
	assert.True(t, datastores[0].Accessible)

	require.NotNil(t, client.Client())
	require.NotNil(t, client.SOAPClient())
}

func TestClient_TemplatesAreFlagged(t *testing.T) {
	client, ctx := newSimClient(t, Config{})

	vms, err := client.ListVMs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, vms)

	vm := object.NewVirtualMachine(client.Client().Client, vms[0].Ref)
	task, err := vm.PowerOff(ctx)
	require.NoError(t, err)
	require.NoError(t, task.Wait(ctx))
	require.NoError(t, vm.MarkAsTemplate(ctx))

	vms, err = client.ListVMs(ctx)
	require.NoError(t, err)
	for _, info := range vms {
		if info.Ref == vm.Reference() {
			assert.True(t, info.Template)

			found, err := client.FindVM(ctx, info.Name)
			require.NoError(t, err)
			assert.Nil(t, found, "templates are not power targets")
			return
		}
	}
	t.Fatal("template not listed")
}

func TestClient_FindVM(t *testing.T) {
	client, ctx := newSimClient(t, Config{})

	vms, err := client.ListVMs(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, vms)

	found, err := client.FindVM(ctx, vms[0].Name)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, vms[0].Ref, found.Reference())

	missing, err := client.FindVM(ctx, "does-not-exist")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestClient_DatacenterScope(t *testing.T) {
	client, ctx := newSimClient(t, Config{Datacenter: "DC0"})

	assert.Equal(t, "Datacenter", client.root.Type)
	vms, err := client.ListVMs(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, vms)
}

func TestInferStorageType(t *testing.T) {
	assert.Equal(t, "SSD", inferStorageType("fast-ssd-datastore"))
	assert.Equal(t, "SSD", inferStorageType("NVMe-01"))
	assert.Equal(t, "HDD", inferStorageType("slow-hdd"))
}
