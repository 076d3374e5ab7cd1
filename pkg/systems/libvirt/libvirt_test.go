package libvirt

import (
	"context"
	"errors"
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/system/systemtest"
	"github.com/Bibi40k/vmgmt/pkg/systems/libvirt/mocks"
)

var unsupported = []string{system.OpListTemplate, system.OpListCluster}

func withHost(h *fakeHost) *System {
	return NewWithDialer(session.Config{}, func(context.Context) (Runner, error) { return h, nil })
}

func connected(t *testing.T, h *fakeHost) *System {
	t.Helper()
	s := withHost(h)
	require.NoError(t, s.Connect(context.Background()))
	t.Cleanup(func() { _ = s.Disconnect(context.Background()) })
	return s
}

func TestContract(t *testing.T) {
	systemtest.Run(t, systemtest.Fixture{
		New: func(t *testing.T) system.System { return withHost(newFakeHost()) },
		BadAuth: func(t *testing.T) system.System {
			return NewWithDialer(session.Config{}, func(context.Context) (Runner, error) {
				return nil, errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")
			})
		},
		Unsupported: unsupported,
		Startable:   "db-01",
	})
}

func TestLists(t *testing.T) {
	s := connected(t, newFakeHost())
	ctx := context.Background()

	vms, err := s.ListVMs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch-01", "db-01", "web-01"}, vms)

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kvm01"}, hosts)

	pools, err := s.ListDatastores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"default", "nvme"}, pools)
}

func TestEmptyDomainList(t *testing.T) {
	h := newFakeHost()
	h.domains = map[string]string{}
	s := connected(t, h)

	vms, err := s.ListVMs(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, vms)
	assert.Empty(t, vms)
}

func TestVMStateMapping(t *testing.T) {
	h := newFakeHost()
	for vendor := range states {
		h.domains["d-"+vendor] = vendor
	}
	h.domains["odd"] = "migrating"
	s := connected(t, h)

	for vendor, want := range states {
		got, err := s.VMState(context.Background(), "d-"+vendor)
		require.NoError(t, err)
		assert.Equal(t, want, got, vendor)
	}
	got, err := s.VMState(context.Background(), "odd")
	require.NoError(t, err)
	assert.Equal(t, system.StateUnknown, got)
}

func TestPowerOperations(t *testing.T) {
	h := newFakeHost()
	s := connected(t, h)
	ctx := context.Background()

	require.NoError(t, s.StartVM(ctx, "db-01"))
	assert.Equal(t, "running", h.domains["db-01"])

	// already running: no start command issued
	require.NoError(t, s.StartVM(ctx, "db-01"))
	assert.Contains(t, h.last(), "domstate")

	require.NoError(t, system.SuspendVM(ctx, s, "db-01"))
	st, err := s.VMState(ctx, "db-01")
	require.NoError(t, err)
	assert.Equal(t, system.StatePaused, st)

	// paused domains are resumed, not started
	require.NoError(t, s.StartVM(ctx, "db-01"))
	assert.Contains(t, h.last(), "resume")

	require.NoError(t, system.RestartVM(ctx, s, "db-01"))
	assert.Contains(t, h.last(), "reboot")

	require.NoError(t, s.StopVM(ctx, "db-01"))
	require.NoError(t, s.StopVM(ctx, "db-01"))
	assert.Equal(t, "shut off", h.domains["db-01"])

	err = s.RestartVM(ctx, "db-01")
	require.Error(t, err)
	assert.Equal(t, mgmterr.CategoryVendor, mgmterr.CategoryOf(err))
}

func TestPMSuspendedDomain(t *testing.T) {
	h := newFakeHost()
	h.domains["sleepy"] = "pmsuspended"
	s := connected(t, h)
	ctx := context.Background()

	st, err := s.VMState(ctx, "sleepy")
	require.NoError(t, err)
	assert.Equal(t, system.StateSuspended, st)

	// already suspended: no suspend command issued
	require.NoError(t, system.SuspendVM(ctx, s, "sleepy"))
	assert.Contains(t, h.last(), "domstate")
	assert.Equal(t, "pmsuspended", h.domains["sleepy"])

	require.NoError(t, s.StartVM(ctx, "sleepy"))
	assert.Contains(t, h.last(), "dompmwakeup sleepy")
	assert.Equal(t, "running", h.domains["sleepy"])
}

func TestMissingDomain(t *testing.T) {
	s := connected(t, newFakeHost())

	err := s.StartVM(context.Background(), "ghost")
	require.ErrorIs(t, err, mgmterr.ErrNotFound)
	assert.Contains(t, err.Error(), `domain "ghost" not found`)
	assert.Contains(t, err.Error(), "failed to get domain 'ghost'")
}

func TestCommandQuoting(t *testing.T) {
	h := newFakeHost()
	h.domains["web 01; rm -rf /"] = "running"
	s := connected(t, h)

	st, err := s.VMState(context.Background(), "web 01; rm -rf /")
	require.NoError(t, err)
	assert.Equal(t, system.StateRunning, st)

	argv, err := shellquote.Split(h.last())
	require.NoError(t, err)
	assert.Equal(t, []string{"virsh", "-c", "qemu:///system", "domstate", "web 01; rm -rf /"}, argv)
}

func TestOptionsOverrideVirsh(t *testing.T) {
	r := &mocks.Runner{}
	r.On("Run", mock.Anything, "/usr/local/bin/virsh -c qemu+ssh://other/system uri").Return("qemu+ssh://other/system\n", nil)
	r.On("Run", mock.Anything, "/usr/local/bin/virsh -c qemu+ssh://other/system hostname").Return("kvm02\n", nil)
	r.On("Close").Return(nil)

	s := NewWithDialer(session.Config{Options: map[string]string{
		"virsh": "/usr/local/bin/virsh",
		"uri":   "qemu+ssh://other/system",
	}}, func(context.Context) (Runner, error) { return r, nil })
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	hosts, err := s.ListHosts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kvm02"}, hosts)

	require.NoError(t, s.Disconnect(ctx))
	r.AssertExpectations(t)
}

func TestConnectProbeFailure(t *testing.T) {
	r := &mocks.Runner{}
	r.On("Run", mock.Anything, mock.Anything).Return("", &CommandError{
		Cmd:    "virsh -c qemu:///system uri",
		Stderr: "error: failed to connect to the hypervisor\nerror: Failed to connect socket to '/var/run/libvirt/libvirt-sock': No such file or directory",
	})
	r.On("Close").Return(nil).Once()

	s := NewWithDialer(session.Config{}, func(context.Context) (Runner, error) { return r, nil })
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, mgmterr.ErrConnection)
	assert.False(t, s.Connected())
	r.AssertExpectations(t)
}

func TestInfo(t *testing.T) {
	s := connected(t, newFakeHost())

	info, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "libvirt qemu:///system on kvm01 (QEMU 6.2.0)", info)
}

func TestStats(t *testing.T) {
	s := connected(t, newFakeHost())

	stats, err := system.CollectStats(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{
		system.StatNumVM:        3,
		system.StatNumHost:      1,
		system.StatNumDatastore: 2,
		system.StatNumRunning:   1,
	}, stats)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		err    error
		want   mgmterr.Category
	}{
		{"missing domain", "x", cmdErr("virsh start x", "error: failed to get domain 'x'"), mgmterr.CategoryNotFound},
		{"missing domain without name", "", cmdErr("virsh list", "error: Domain not found"), mgmterr.CategoryVendor},
		{"libvirt auth", "", cmdErr("virsh uri", "error: authentication failed: access denied"), mgmterr.CategoryAuthentication},
		{"unknown command", "", cmdErr("virsh foo", "error: unknown command: 'foo'"), mgmterr.CategoryUnsupported},
		{"ssh auth", "", errors.New("ssh: handshake failed: ssh: unable to authenticate"), mgmterr.CategoryAuthentication},
		{"host key", "", &HostKeyError{Host: "kvm01", Want: "SHA256:a", Got: "SHA256:b"}, mgmterr.CategoryAuthentication},
		{"deadline", "", context.DeadlineExceeded, mgmterr.CategoryConnection},
		{"other", "", errors.New("boom"), mgmterr.CategoryVendor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(system.OpStartVM, tt.domain, tt.err)
			assert.Equal(t, tt.want, mgmterr.CategoryOf(err))
		})
	}
	assert.NoError(t, classify(system.OpStartVM, "x", nil))
}

func TestSSHConfigFrom(t *testing.T) {
	tests := []struct {
		name string
		cfg  session.Config
		want SSHConfig
	}{
		{
			name: "defaults",
			cfg:  session.Config{Endpoint: "kvm01", Credentials: session.Credentials{Password: "pw"}},
			want: SSHConfig{Address: "kvm01:22", User: "root", Password: "pw"},
		},
		{
			name: "user from endpoint",
			cfg:  session.Config{Endpoint: "ops@kvm01:2222"},
			want: SSHConfig{Address: "kvm01:2222", User: "ops"},
		},
		{
			name: "credentials win and options apply",
			cfg: session.Config{
				Endpoint:    "ssh://ops@kvm01",
				Credentials: session.Credentials{Username: "admin", Extra: map[string]string{"key_file": "/keys/id"}},
				Insecure:    true,
				Options:     map[string]string{"host_key_fingerprint": "SHA256:abc", "known_hosts": "/tmp/kh"},
			},
			want: SSHConfig{
				Address: "kvm01:22", User: "admin", KeyFile: "/keys/id",
				HostKeyFingerprint: "SHA256:abc", KnownHostsFile: "/tmp/kh", Insecure: true,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SSHConfigFrom(tt.cfg)
			require.NoError(t, err)
			got.Timeout = 0
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SSHConfigFrom(session.Config{})
	assert.Error(t, err)
}
