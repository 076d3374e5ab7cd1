// Package mocks provides testify-based mock implementations for testing
// without a real vCenter connection.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
)

// PowerInterface is a mock for vm.PowerInterface.
type PowerInterface struct {
	mock.Mock
}

func (m *PowerInterface) PowerOn(ctx context.Context, v *object.VirtualMachine) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *PowerInterface) PowerOff(ctx context.Context, v *object.VirtualMachine) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *PowerInterface) Suspend(ctx context.Context, v *object.VirtualMachine) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *PowerInterface) Reset(ctx context.Context, v *object.VirtualMachine) error {
	args := m.Called(ctx, v)
	return args.Error(0)
}

func (m *PowerInterface) State(ctx context.Context, v *object.VirtualMachine) (types.VirtualMachinePowerState, error) {
	args := m.Called(ctx, v)
	return args.Get(0).(types.VirtualMachinePowerState), args.Error(1)
}
