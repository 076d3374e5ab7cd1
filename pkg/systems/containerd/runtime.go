package containerd

import (
	"context"
	"fmt"
	"syscall"
	"time"

	ctd "github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/errdefs"
)

// Runtime is the slice of the containerd client this backend uses.
// The real implementation talks to the daemon socket; tests inject a mock.
type Runtime interface {
	Version(ctx context.Context) (string, error)
	Containers(ctx context.Context) ([]string, error)
	Images(ctx context.Context) ([]string, error)
	// TaskStatus returns the containerd process status of the container's
	// task, or "stopped" when the container has no task.
	TaskStatus(ctx context.Context, id string) (string, error)
	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Close() error
}

// compile-time interface compliance check
var _ Runtime = (*clientRuntime)(nil)

type clientRuntime struct {
	client *ctd.Client
}

// Dial connects to the containerd socket at address, scoping every call to
// namespace.
func Dial(address, namespace string, timeout time.Duration) (Runtime, error) {
	opts := []ctd.ClientOpt{ctd.WithDefaultNamespace(namespace)}
	if timeout > 0 {
		opts = append(opts, ctd.WithTimeout(timeout))
	}
	client, err := ctd.New(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("Dial: %w", err)
	}
	return &clientRuntime{client: client}, nil
}

func (r *clientRuntime) Version(ctx context.Context) (string, error) {
	v, err := r.client.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("Version: %w", err)
	}
	return fmt.Sprintf("%s (%s)", v.Version, v.Revision), nil
}

func (r *clientRuntime) Containers(ctx context.Context) ([]string, error) {
	containers, err := r.client.Containers(ctx)
	if err != nil {
		return nil, fmt.Errorf("Containers: %w", err)
	}
	ids := make([]string, len(containers))
	for i, c := range containers {
		ids[i] = c.ID()
	}
	return ids, nil
}

func (r *clientRuntime) Images(ctx context.Context) ([]string, error) {
	images, err := r.client.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("Images: %w", err)
	}
	names := make([]string, len(images))
	for i, img := range images {
		names[i] = img.Name()
	}
	return names, nil
}

// task loads the container's task; a nil task with nil error means none exists.
func (r *clientRuntime) task(ctx context.Context, id string) (ctd.Container, ctd.Task, error) {
	container, err := r.client.LoadContainer(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return container, nil, nil
		}
		return nil, nil, err
	}
	return container, task, nil
}

func (r *clientRuntime) TaskStatus(ctx context.Context, id string) (string, error) {
	_, task, err := r.task(ctx, id)
	if err != nil {
		return "", fmt.Errorf("TaskStatus: %w", err)
	}
	if task == nil {
		return string(ctd.Stopped), nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("TaskStatus: %w", err)
	}
	return string(status.Status), nil
}

// Start runs the container's task, replacing an exited one and resuming a
// paused one.
func (r *clientRuntime) Start(ctx context.Context, id string) error {
	container, task, err := r.task(ctx, id)
	if err != nil {
		return fmt.Errorf("Start: %w", err)
	}

	if task != nil {
		status, err := task.Status(ctx)
		if err != nil {
			return fmt.Errorf("Start: %w", err)
		}
		switch status.Status {
		case ctd.Running:
			return nil
		case ctd.Paused, ctd.Pausing:
			if err := task.Resume(ctx); err != nil {
				return fmt.Errorf("Start: Resume: %w", err)
			}
			return nil
		case ctd.Created:
			if err := task.Start(ctx); err != nil {
				return fmt.Errorf("Start: %w", err)
			}
			return nil
		default:
			if _, err := task.Delete(ctx); err != nil {
				return fmt.Errorf("Start: Delete: %w", err)
			}
		}
	}

	task, err = container.NewTask(ctx, cio.NullIO)
	if err != nil {
		return fmt.Errorf("Start: NewTask: %w", err)
	}
	if err := task.Start(ctx); err != nil {
		if _, derr := task.Delete(ctx); derr != nil {
			return fmt.Errorf("Start: %w (cleanup: %v)", err, derr)
		}
		return fmt.Errorf("Start: %w", err)
	}
	return nil
}

// Stop signals the task with SIGTERM and returns without waiting for exit.
// A task that already exited is left alone; a paused task is resumed first
// so it can receive the signal.
func (r *clientRuntime) Stop(ctx context.Context, id string) error {
	_, task, err := r.task(ctx, id)
	if err != nil {
		return fmt.Errorf("Stop: %w", err)
	}
	if task == nil {
		return nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return fmt.Errorf("Stop: %w", err)
	}
	switch status.Status {
	case ctd.Stopped, ctd.Created:
		return nil
	case ctd.Paused, ctd.Pausing:
		if err := task.Resume(ctx); err != nil {
			return fmt.Errorf("Stop: Resume: %w", err)
		}
	}
	if err := task.Kill(ctx, syscall.SIGTERM); err != nil {
		return fmt.Errorf("Stop: %w", err)
	}
	return nil
}

func (r *clientRuntime) Close() error {
	if err := r.client.Close(); err != nil {
		return fmt.Errorf("Close: %w", err)
	}
	return nil
}
