// Package mocks provides testify-based mock implementations for testing
// without a hypervisor host.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Runner is a mock for libvirt.Runner.
type Runner struct {
	mock.Mock
}

func (m *Runner) Run(ctx context.Context, cmd string) (string, error) {
	args := m.Called(ctx, cmd)
	return args.String(0), args.Error(1)
}

func (m *Runner) Close() error {
	args := m.Called()
	return args.Error(0)
}
