// Package vm provides virtual machine power operations.
package vm

import (
	"context"
	"fmt"

	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/vim25/types"
)

// Power issues power operations against vSphere VMs.
//
// By default an operation returns as soon as vCenter accepts the task;
// callers observe the resulting state through State. With WaitTasks set,
// each operation blocks until the task completes.
type Power struct {
	WaitTasks bool
}

// NewPower creates a power controller.
func NewPower(waitTasks bool) *Power {
	return &Power{WaitTasks: waitTasks}
}

func (p *Power) finish(ctx context.Context, task *object.Task) error {
	if !p.WaitTasks {
		return nil
	}
	return task.Wait(ctx)
}

// PowerOn powers on the VM.
func (p *Power) PowerOn(ctx context.Context, vm *object.VirtualMachine) error {
	task, err := vm.PowerOn(ctx)
	if err != nil {
		return fmt.Errorf("failed to power on VM: %w", err)
	}
	return p.finish(ctx, task)
}

// PowerOff powers off the VM without a guest shutdown.
func (p *Power) PowerOff(ctx context.Context, vm *object.VirtualMachine) error {
	task, err := vm.PowerOff(ctx)
	if err != nil {
		return fmt.Errorf("failed to power off VM: %w", err)
	}
	return p.finish(ctx, task)
}

// Suspend suspends the VM.
func (p *Power) Suspend(ctx context.Context, vm *object.VirtualMachine) error {
	task, err := vm.Suspend(ctx)
	if err != nil {
		return fmt.Errorf("failed to suspend VM: %w", err)
	}
	return p.finish(ctx, task)
}

// Reset hard-resets a running VM.
func (p *Power) Reset(ctx context.Context, vm *object.VirtualMachine) error {
	task, err := vm.Reset(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset VM: %w", err)
	}
	return p.finish(ctx, task)
}

// State returns the VM's vSphere power state.
func (p *Power) State(ctx context.Context, vm *object.VirtualMachine) (types.VirtualMachinePowerState, error) {
	st, err := vm.PowerState(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get power state: %w", err)
	}
	return st, nil
}
