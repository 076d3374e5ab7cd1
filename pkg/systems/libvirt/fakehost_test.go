package libvirt

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"
)

// fakeHost emulates the virsh commands this backend issues.
type fakeHost struct {
	mu       sync.Mutex
	hostname string
	domains  map[string]string // name -> virsh state
	pools    []string
	commands []string
	closed   bool
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		hostname: "kvm01",
		domains: map[string]string{
			"web-01":   "running",
			"db-01":    "shut off",
			"batch-01": "paused",
		},
		pools: []string{"default", "nvme"},
	}
}

func cmdErr(cmd, stderr string) error {
	return &CommandError{Cmd: cmd, Stderr: stderr, Err: fmt.Errorf("Process exited with status 1")}
}

func (h *fakeHost) Run(_ context.Context, cmd string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, cmd)

	argv, err := shellquote.Split(cmd)
	if err != nil || len(argv) < 4 || argv[0] != "virsh" || argv[1] != "-c" {
		return "", cmdErr(cmd, "sh: unexpected command")
	}
	args := argv[3:]

	domain := func() (string, error) {
		if len(args) < 2 {
			return "", cmdErr(cmd, "error: command '"+args[0]+"' requires <domain> option")
		}
		if _, ok := h.domains[args[1]]; !ok {
			return "", cmdErr(cmd, fmt.Sprintf("error: failed to get domain '%s'", args[1]))
		}
		return args[1], nil
	}

	switch args[0] {
	case "uri":
		return argv[2] + "\n", nil
	case "hostname":
		return h.hostname + "\n", nil
	case "version":
		return "Compiled against library: libvirt 8.0.0\nUsing library: libvirt 8.0.0\nUsing API: QEMU 8.0.0\nRunning hypervisor: QEMU 6.2.0\n", nil
	case "list":
		names := make([]string, 0, len(h.domains))
		for n := range h.domains {
			names = append(names, n)
		}
		sort.Strings(names)
		return strings.Join(names, "\n") + "\n\n", nil
	case "pool-list":
		return strings.Join(h.pools, "\n") + "\n", nil
	case "domstate":
		name, err := domain()
		if err != nil {
			return "", err
		}
		return h.domains[name] + "\n\n", nil
	case "start", "shutdown", "suspend", "resume", "dompmwakeup", "reboot":
		name, err := domain()
		if err != nil {
			return "", err
		}
		return h.power(cmd, args[0], name)
	}
	return "", cmdErr(cmd, fmt.Sprintf("error: unknown command: '%s'", args[0]))
}

func (h *fakeHost) power(cmd, verb, name string) (string, error) {
	state := h.domains[name]
	switch verb {
	case "start":
		if state != "shut off" {
			return "", cmdErr(cmd, "error: Domain is already active")
		}
		h.domains[name] = "running"
		return fmt.Sprintf("Domain '%s' started\n", name), nil
	case "shutdown":
		if state == "shut off" {
			return "", cmdErr(cmd, "error: Requested operation is not valid: domain is not running")
		}
		h.domains[name] = "shut off"
		return fmt.Sprintf("Domain '%s' is being shutdown\n", name), nil
	case "suspend":
		if state != "running" {
			return "", cmdErr(cmd, "error: Requested operation is not valid: domain is not running")
		}
		h.domains[name] = "paused"
		return fmt.Sprintf("Domain '%s' suspended\n", name), nil
	case "resume":
		if state != "paused" {
			return "", cmdErr(cmd, "error: Requested operation is not valid: domain is not paused")
		}
		h.domains[name] = "running"
		return fmt.Sprintf("Domain '%s' resumed\n", name), nil
	case "dompmwakeup":
		if state != "pmsuspended" {
			return "", cmdErr(cmd, "error: Requested operation is not valid: guest is not pmsuspended")
		}
		h.domains[name] = "running"
		return fmt.Sprintf("Domain '%s' successfully woken up\n", name), nil
	default:
		return fmt.Sprintf("Domain '%s' is being rebooted\n", name), nil
	}
}

func (h *fakeHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHost) last() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commands[len(h.commands)-1]
}
