package vsphere

import (
	"errors"
	"net"
	"net/url"

	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
)

// vimFault returns the vSphere fault carried anywhere in err's chain.
func vimFault(err error) types.AnyType {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if soap.IsSoapFault(e) {
			return soap.ToSoapFault(e).VimFault()
		}
		if soap.IsVimFault(e) {
			return soap.ToVimFault(e)
		}
	}
	return nil
}

// classify maps a govmomi error onto the normalized taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if mgmterr.IsCategorized(err) {
		return mgmterr.WithSystem(err, Kind)
	}

	var out error
	switch vimFault(err).(type) {
	case types.InvalidLogin, *types.InvalidLogin,
		types.NotAuthenticated, *types.NotAuthenticated,
		types.NoPermission, *types.NoPermission:
		out = mgmterr.Auth(op, err)
	case types.ManagedObjectNotFound, *types.ManagedObjectNotFound:
		out = &mgmterr.Error{Category: mgmterr.CategoryNotFound, Op: op, Kind: "object", Err: err}
	case types.NotSupported, *types.NotSupported:
		out = mgmterr.Unsupported(Kind, op)
	default:
		var urlErr *url.Error
		var netErr net.Error
		if errors.As(err, &urlErr) || errors.As(err, &netErr) {
			out = mgmterr.Connection(op, err)
		} else {
			out = mgmterr.Vendor(op, err)
		}
	}
	return mgmterr.WithSystem(out, Kind)
}
