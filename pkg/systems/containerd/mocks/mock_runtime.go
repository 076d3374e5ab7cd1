// Package mocks provides testify-based mock implementations for testing
// without a containerd daemon.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// Runtime is a mock for containerd.Runtime.
type Runtime struct {
	mock.Mock
}

func (m *Runtime) Version(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Runtime) Containers(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Runtime) Images(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *Runtime) TaskStatus(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *Runtime) Start(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Runtime) Stop(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *Runtime) Close() error {
	args := m.Called()
	return args.Error(0)
}
