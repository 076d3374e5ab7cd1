package vsphere

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/vcenter"
	vcmocks "github.com/Bibi40k/vmgmt/pkg/vcenter/mocks"
	vmmocks "github.com/Bibi40k/vmgmt/pkg/vm/mocks"
)

var inventory = []vcenter.VMInfo{
	{Name: "web-01", PowerState: "poweredOn"},
	{Name: "db-01", PowerState: "poweredOff"},
	{Name: "tpl-ubuntu", PowerState: "poweredOff", Template: true},
}

func newMocked(t *testing.T) (*System, *vcmocks.ClientInterface, *vmmocks.PowerInterface) {
	t.Helper()
	client := &vcmocks.ClientInterface{}
	power := &vmmocks.PowerInterface{}
	client.On("About").Return("VMware vCenter Server 8.0.2").Maybe()
	client.On("Disconnect", mock.Anything).Return(nil).Maybe()

	s := NewWithDialer(session.Config{Endpoint: "vc.example.com"},
		func(context.Context) (vcenter.ClientInterface, error) { return client, nil },
		power)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() {
		_ = s.Disconnect(context.Background())
		client.AssertExpectations(t)
		power.AssertExpectations(t)
	})
	return s, client, power
}

func fakeVM(id string) *object.VirtualMachine {
	return object.NewVirtualMachine(nil, types.ManagedObjectReference{Type: "VirtualMachine", Value: id})
}

func TestListSplitsTemplates(t *testing.T) {
	s, client, _ := newMocked(t)
	client.On("ListVMs", mock.Anything).Return(inventory, nil)

	vms, err := s.ListVMs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"web-01", "db-01"}, vms)

	tpls, err := s.ListTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tpl-ubuntu"}, tpls)
}

func TestListEmptyInventory(t *testing.T) {
	s, client, _ := newMocked(t)
	client.On("ListVMs", mock.Anything).Return([]vcenter.VMInfo{}, nil)
	client.On("ListHosts", mock.Anything).Return([]vcenter.HostInfo{}, nil)

	vms, err := s.ListVMs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, vms)
	assert.Empty(t, vms)

	hosts, err := s.ListHosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestStartVM(t *testing.T) {
	ctx := context.Background()

	t.Run("stopped vm is powered on", func(t *testing.T) {
		s, client, power := newMocked(t)
		v := fakeVM("vm-1")
		client.On("FindVM", mock.Anything, "db-01").Return(v, nil)
		power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOff, nil)
		power.On("PowerOn", mock.Anything, v).Return(nil).Once()

		require.NoError(t, s.StartVM(ctx, "db-01"))
	})

	t.Run("running vm is left alone", func(t *testing.T) {
		s, client, power := newMocked(t)
		v := fakeVM("vm-2")
		client.On("FindVM", mock.Anything, "web-01").Return(v, nil)
		power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOn, nil)

		require.NoError(t, s.StartVM(ctx, "web-01"))
		power.AssertNotCalled(t, "PowerOn", mock.Anything, mock.Anything)
	})

	t.Run("missing vm", func(t *testing.T) {
		s, client, _ := newMocked(t)
		client.On("FindVM", mock.Anything, "ghost").Return(nil, nil)

		err := s.StartVM(ctx, "ghost")
		require.ErrorIs(t, err, mgmterr.ErrNotFound)
		assert.EqualError(t, err, `not-found [vsphere]: vm "ghost" not found`)
	})

	t.Run("vendor fault not supported", func(t *testing.T) {
		s, client, power := newMocked(t)
		v := fakeVM("vm-3")
		client.On("FindVM", mock.Anything, "db-01").Return(v, nil)
		power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOff, nil)
		power.On("PowerOn", mock.Anything, v).Return(soap.WrapVimFault(&types.NotSupported{}))

		err := s.StartVM(ctx, "db-01")
		assert.ErrorIs(t, err, mgmterr.ErrUnsupported)
	})

	t.Run("plain vendor failure keeps cause", func(t *testing.T) {
		s, client, power := newMocked(t)
		v := fakeVM("vm-4")
		cause := errors.New("failed to power on VM: insufficient resources")
		client.On("FindVM", mock.Anything, "db-01").Return(v, nil)
		power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOff, nil)
		power.On("PowerOn", mock.Anything, v).Return(cause)

		err := s.StartVM(ctx, "db-01")
		require.ErrorIs(t, err, cause)
		assert.Equal(t, mgmterr.CategoryVendor, mgmterr.CategoryOf(err))
	})
}

func TestStopSuspendRestart(t *testing.T) {
	ctx := context.Background()
	s, client, power := newMocked(t)
	v := fakeVM("vm-1")
	client.On("FindVM", mock.Anything, "web-01").Return(v, nil)
	power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOn, nil)
	power.On("PowerOff", mock.Anything, v).Return(nil).Once()
	power.On("Suspend", mock.Anything, v).Return(nil).Once()
	power.On("Reset", mock.Anything, v).Return(nil).Once()

	require.NoError(t, s.StopVM(ctx, "web-01"))
	require.NoError(t, system.SuspendVM(ctx, s, "web-01"))
	require.NoError(t, system.RestartVM(ctx, s, "web-01"))
}

func TestRestartStoppedVM(t *testing.T) {
	s, client, power := newMocked(t)
	v := fakeVM("vm-1")
	client.On("FindVM", mock.Anything, "db-01").Return(v, nil)
	power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerStatePoweredOff, nil)

	err := s.RestartVM(context.Background(), "db-01")
	require.Error(t, err)
	assert.Equal(t, mgmterr.CategoryVendor, mgmterr.CategoryOf(err))
	power.AssertNotCalled(t, "Reset", mock.Anything, mock.Anything)
}

func TestVMStateUnmapped(t *testing.T) {
	s, client, power := newMocked(t)
	v := fakeVM("vm-1")
	client.On("FindVM", mock.Anything, "odd").Return(v, nil)
	power.On("State", mock.Anything, v).Return(types.VirtualMachinePowerState("migrating"), nil)

	st, err := s.VMState(context.Background(), "odd")
	require.NoError(t, err)
	assert.Equal(t, system.StateUnknown, st)
}

func TestRunningStatUsesInventory(t *testing.T) {
	s, client, _ := newMocked(t)
	client.On("ListVMs", mock.Anything).Return(inventory, nil).Once()

	n, err := system.GetStat(context.Background(), s, system.StatNumRunning)
	require.NoError(t, err)
	assert.Equal(t, 1.0, n)
}

func TestInfo(t *testing.T) {
	s, _, _ := newMocked(t)

	info, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "vSphere vc.example.com (VMware vCenter Server 8.0.2)", info)
}

func TestDialErrors(t *testing.T) {
	urlErr := &url.Error{Op: "Post", URL: "https://vc/sdk", Err: errors.New("connection refused")}

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"transport", urlErr, mgmterr.ErrConnection},
		{"wrapped transport", errors.Join(errors.New("failed to connect to vCenter"), urlErr), mgmterr.ErrConnection},
		{"login fault", soap.WrapVimFault(&types.InvalidLogin{}), mgmterr.ErrAuthentication},
		{"permission fault", soap.WrapVimFault(&types.NoPermission{}), mgmterr.ErrAuthentication},
		{"other", errors.New("bad certificate pin"), mgmterr.ErrVendor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewWithDialer(session.Config{},
				func(context.Context) (vcenter.ClientInterface, error) { return nil, tt.err },
				&vmmocks.PowerInterface{})

			err := s.Connect(context.Background())
			require.ErrorIs(t, err, tt.want)
			assert.False(t, s.Connected())
			assert.NoError(t, s.Disconnect(context.Background()))
		})
	}
}

func TestVCenterConfig(t *testing.T) {
	cfg := VCenterConfig(session.Config{
		Endpoint:    "vc.example.com",
		Credentials: session.Credentials{Username: "admin", Password: "pw"},
		Insecure:    true,
		Options:     map[string]string{"port": "8443", "datacenter": "DC1"},
	})
	assert.Equal(t, &vcenter.Config{
		Host:       "vc.example.com",
		Username:   "admin",
		Password:   "pw",
		Port:       8443,
		Insecure:   true,
		Datacenter: "DC1",
	}, cfg)
}
