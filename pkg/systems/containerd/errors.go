package containerd

import (
	"context"
	"errors"
	"io/fs"
	"net"

	"github.com/containerd/containerd/errdefs"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// classify maps containerd errors onto the normalized taxonomy. name is the
// container the operation targeted, if any.
func classify(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if mgmterr.IsCategorized(err) {
		return mgmterr.WithSystem(err, Kind)
	}

	var out error
	var netErr net.Error
	switch {
	case errors.Is(err, fs.ErrPermission):
		out = mgmterr.Auth(op, err)
	case errdefs.IsNotFound(err) && name != "":
		out = &mgmterr.Error{Category: mgmterr.CategoryNotFound, Op: op, Kind: "container", Name: name, Err: err}
	case errdefs.IsNotImplemented(err):
		out = mgmterr.Unsupported(Kind, op)
	case errdefs.IsUnavailable(err), errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr),
		op == system.OpConnect:
		out = mgmterr.Connection(op, err)
	default:
		out = mgmterr.Vendor(op, err)
	}
	return mgmterr.WithSystem(out, Kind)
}
