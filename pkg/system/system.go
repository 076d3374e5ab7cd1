// Package system defines the normalized contract every management-system
// backend implements, plus the shared vocabulary (VM state, stats) callers
// use without knowing which backend they hold.
package system

import (
	"context"
)

// Operation names used in unsupported-operation errors and logs.
const (
	OpConnect        = "connect"
	OpDisconnect     = "disconnect"
	OpInfo           = "info"
	OpListVM         = "list_vm"
	OpListTemplate   = "list_template"
	OpListHost       = "list_host"
	OpListCluster    = "list_cluster"
	OpListDatastore  = "list_datastore"
	OpStartVM        = "start_vm"
	OpStopVM         = "stop_vm"
	OpSuspendVM      = "suspend_vm"
	OpRestartVM      = "restart_vm"
	OpVMState        = "vm_state"
	OpGetStat        = "get_stat"
	OpWaitForVMState = "wait_for_vm_state"
)

// System is one authenticated handle to a backend.
//
// Every method returns errors from pkg/mgmterr. Operations a backend
// cannot perform return mgmterr.ErrUnsupported explicitly; they never
// return an empty result in its place. List operations return an empty
// slice, not an error, when the backend has no such resources.
//
// A System is not safe for concurrent use; distinct Systems are.
type System interface {
	// Kind names the backend type, e.g. "vsphere".
	Kind() string

	// Connect opens the vendor session. Calling it on a connected System
	// reuses the existing handle.
	Connect(ctx context.Context) error
	// Disconnect releases the vendor handle. It is safe on a closed System.
	Disconnect(ctx context.Context) error
	Connected() bool

	// Info returns a short name/version description of the backend.
	Info(ctx context.Context) (string, error)

	ListVMs(ctx context.Context) ([]string, error)
	ListTemplates(ctx context.Context) ([]string, error)
	ListHosts(ctx context.Context) ([]string, error)
	ListClusters(ctx context.Context) ([]string, error)
	ListDatastores(ctx context.Context) ([]string, error)

	// StartVM and StopVM return once the backend accepted the request,
	// not necessarily once the transition finished. Use WaitForState to
	// wait for completion.
	StartVM(ctx context.Context, name string) error
	StopVM(ctx context.Context, name string) error

	// VMState returns the normalized power state of the named VM.
	VMState(ctx context.Context, name string) (State, error)

	// Stats returns the stat registry for this backend type.
	Stats() *Registry
}

// Suspender is implemented by backends that can suspend a VM.
type Suspender interface {
	SuspendVM(ctx context.Context, name string) error
}

// Restarter is implemented by backends with a native restart/reboot call.
type Restarter interface {
	RestartVM(ctx context.Context, name string) error
}

// VM is the normalized view of a VM/instance.
type VM struct {
	Name   string `json:"name" yaml:"name"`
	ID     string `json:"id,omitempty" yaml:"id,omitempty"` // opaque backend identifier when names are not unique
	State  State  `json:"state" yaml:"state"`
	System string `json:"system" yaml:"system"`
}
