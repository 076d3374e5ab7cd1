// Package mocks provides testify-based mock implementations for testing
// without a real vCenter connection.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vmware/govmomi/object"

	"github.com/Bibi40k/vmgmt/pkg/vcenter"
)

// ClientInterface is a mock for vcenter.ClientInterface.
type ClientInterface struct {
	mock.Mock
}

func (m *ClientInterface) About() string {
	args := m.Called()
	return args.String(0)
}

func (m *ClientInterface) ListVMs(ctx context.Context) ([]vcenter.VMInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vcenter.VMInfo), args.Error(1)
}

func (m *ClientInterface) ListHosts(ctx context.Context) ([]vcenter.HostInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vcenter.HostInfo), args.Error(1)
}

func (m *ClientInterface) ListClusters(ctx context.Context) ([]vcenter.ClusterInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vcenter.ClusterInfo), args.Error(1)
}

func (m *ClientInterface) ListDatastores(ctx context.Context) ([]vcenter.DatastoreInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vcenter.DatastoreInfo), args.Error(1)
}

func (m *ClientInterface) FindVM(ctx context.Context, name string) (*object.VirtualMachine, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*object.VirtualMachine), args.Error(1)
}

func (m *ClientInterface) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
