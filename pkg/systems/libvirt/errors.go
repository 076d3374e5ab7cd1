package libvirt

import (
	"context"
	"errors"
	"net"
	"strings"

	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/system"
)

// virsh reports a missing domain with either of these, depending on version.
var domainNotFound = []string{"failed to get domain", "domain not found"}

func stderrHas(stderr string, needles ...string) bool {
	lower := strings.ToLower(stderr)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// classify maps SSH and virsh failures onto the normalized taxonomy.
// name is the domain the operation targeted, if any.
func classify(op, name string, err error) error {
	if err == nil {
		return nil
	}
	if mgmterr.IsCategorized(err) {
		return mgmterr.WithSystem(err, Kind)
	}

	var (
		out     error
		cmdErr  *CommandError
		hostErr *HostKeyError
		keyErr  *knownhosts.KeyError
		netErr  net.Error
	)
	switch {
	case errors.As(err, &cmdErr):
		switch {
		case name != "" && stderrHas(cmdErr.Stderr, domainNotFound...):
			out = &mgmterr.Error{Category: mgmterr.CategoryNotFound, Op: op, Kind: "domain", Name: name, Err: err}
		case stderrHas(cmdErr.Stderr, "authentication failed", "permission denied"):
			out = mgmterr.Auth(op, err)
		case stderrHas(cmdErr.Stderr, "failed to connect to the hypervisor"):
			out = mgmterr.Connection(op, err)
		case stderrHas(cmdErr.Stderr, "unknown command", "not supported"):
			out = mgmterr.Unsupported(Kind, op)
		default:
			out = mgmterr.Vendor(op, err)
		}
	case errors.As(err, &hostErr), errors.As(err, &keyErr),
		strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "knownhosts:"),
		strings.Contains(err.Error(), "host key mismatch"),
		strings.Contains(err.Error(), "no SSH credentials"):
		out = mgmterr.Auth(op, err)
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded), op == system.OpConnect:
		out = mgmterr.Connection(op, err)
	default:
		out = mgmterr.Vendor(op, err)
	}
	return mgmterr.WithSystem(out, Kind)
}
