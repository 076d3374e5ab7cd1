package vm

import (
	"context"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
)

// compile-time interface compliance check
var _ PowerInterface = (*Power)(nil)

// PowerInterface abstracts VM power operations.
// The real implementation uses govmomi; tests inject a mock.
type PowerInterface interface {
	PowerOn(ctx context.Context, vm *object.VirtualMachine) error
	PowerOff(ctx context.Context, vm *object.VirtualMachine) error
	Suspend(ctx context.Context, vm *object.VirtualMachine) error
	Reset(ctx context.Context, vm *object.VirtualMachine) error
	State(ctx context.Context, vm *object.VirtualMachine) (types.VirtualMachinePowerState, error)
}
