package proxmox

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	pve "github.com/Bibi40k/vmgmt/pkg/proxmox"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// classify maps API failures onto the normalized taxonomy.
// name is the guest the operation targeted, if any.
func classify(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if mgmterr.IsCategorized(err) {
		return mgmterr.WithSystem(err, Kind)
	}

	var (
		out    error
		apiErr *pve.APIError
		urlErr *url.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized, apiErr.StatusCode == http.StatusForbidden:
			out = mgmterr.Auth(op, err)
		case apiErr.StatusCode == http.StatusNotImplemented:
			out = mgmterr.Unsupported(Kind, op)
		case name != "" && (apiErr.StatusCode == http.StatusNotFound ||
			strings.Contains(apiErr.Message, "does not exist")):
			out = &mgmterr.Error{Category: mgmterr.CategoryNotFound, Op: op, Kind: "vm", Name: name, Err: err}
		default:
			out = mgmterr.Vendor(op, err)
		}
	case errors.As(err, &urlErr), errors.As(err, &netErr),
		errors.Is(err, context.DeadlineExceeded), op == system.OpConnect:
		out = mgmterr.Connection(op, err)
	default:
		out = mgmterr.Vendor(op, err)
	}
	return mgmterr.WithSystem(out, Kind)
}
