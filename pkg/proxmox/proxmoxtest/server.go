// Package proxmoxtest provides an in-memory Proxmox VE API server for tests.
package proxmoxtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/Bibi40k/vmgmt/pkg/proxmox"
)

// Guest is one emulated qemu VM or lxc container.
type Guest struct {
	VMID      int
	Name      string
	Node      string
	Kind      string // qemu or lxc
	Status    string // running or stopped
	QMPStatus string // qemu only
	Template  bool
}

// Server emulates the subset of the API the client uses.
type Server struct {
	*httptest.Server

	Username string
	Password string
	Token    string // accepted "PVEAPIToken=" value, e.g. "root@pam!ci=secret"

	mu       sync.Mutex
	cluster  string
	nodes    []string
	storages map[string][]string // node -> storage names
	guests   map[int]*Guest
	actions  []string
	failures map[string]int // action -> status code
}

const (
	ticket = "PVE:root@pam:4EEC61E2::fake"
	csrf   = "4EEC61E2:fakecsrf"
)

// NewServer starts a server with user root@pam/secret and token
// root@pam!ci=secret. It is closed when the test ends.
func NewServer(t testing.TB) *Server {
	s := &Server{
		Username: "root@pam",
		Password: "secret",
		Token:    "root@pam!ci=secret",
		storages: map[string][]string{},
		guests:   map[int]*Guest{},
		failures: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api2/json/access/ticket", s.handleTicket)
	mux.HandleFunc("GET /api2/json/version", s.auth(s.handleVersion))
	mux.HandleFunc("GET /api2/json/cluster/resources", s.auth(s.handleResources))
	mux.HandleFunc("GET /api2/json/cluster/status", s.auth(s.handleClusterStatus))
	mux.HandleFunc("GET /api2/json/nodes/{node}/{kind}/{vmid}/status/current", s.auth(s.handleStatus))
	mux.HandleFunc("POST /api2/json/nodes/{node}/{kind}/{vmid}/status/{action}", s.auth(s.handleAction))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetCluster names the cluster. An empty name emulates a standalone node.
func (s *Server) SetCluster(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cluster = name
}

// AddNode adds a node with the given storages.
func (s *Server) AddNode(name string, storages ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = append(s.nodes, name)
	s.storages[name] = storages
}

// AddGuest adds a guest. QMPStatus defaults to Status for qemu guests.
func (s *Server) AddGuest(g Guest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.Kind == "" {
		g.Kind = "qemu"
	}
	if g.Status == "" {
		g.Status = "stopped"
	}
	if g.Kind == "qemu" && g.QMPStatus == "" {
		g.QMPStatus = g.Status
	}
	s.guests[g.VMID] = &g
}

// Guest returns a copy of the guest with vmid.
func (s *Server) Guest(vmid int) (Guest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guests[vmid]
	if !ok {
		return Guest{}, false
	}
	return *g, true
}

// SetQMPStatus overrides the reported qmpstatus of a guest.
func (s *Server) SetQMPStatus(vmid int, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.guests[vmid]; ok {
		g.QMPStatus = status
	}
}

// FailAction makes every request for action answer with code.
func (s *Server) FailAction(action string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[action] = code
}

// Actions returns the recorded status actions as "action vmid".
func (s *Server) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.actions...)
}

func writeData(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": nil, "message": fmt.Sprintf(format, args...)})
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "PVEAPIToken="+s.Token {
			next(w, r)
			return
		}
		c, err := r.Cookie("PVEAuthCookie")
		if err != nil || c.Value != ticket {
			writeError(w, http.StatusUnauthorized, "authentication failure")
			return
		}
		if r.Method != http.MethodGet && r.Header.Get("CSRFPreventionToken") != csrf {
			writeError(w, http.StatusUnauthorized, "Permission check failed (invalid csrf token)")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	if r.PostForm.Get("username") != s.Username || r.PostForm.Get("password") != s.Password {
		writeError(w, http.StatusUnauthorized, "authentication failure")
		return
	}
	writeData(w, map[string]string{
		"ticket":              ticket,
		"CSRFPreventionToken": csrf,
		"username":            s.Username,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeData(w, proxmox.Version{Version: "8.2.4", Release: "8.2", RepoID: "faa83925c9641325"})
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	typ := r.URL.Query().Get("type")
	res := []proxmox.ClusterResource{}
	if typ == "" || typ == "node" {
		for _, n := range s.nodes {
			res = append(res, proxmox.ClusterResource{ID: "node/" + n, Type: "node", Node: n, Status: "online", Name: n})
		}
	}
	if typ == "" || typ == "storage" {
		for _, n := range s.nodes {
			for _, st := range s.storages[n] {
				res = append(res, proxmox.ClusterResource{ID: "storage/" + n + "/" + st, Type: "storage",
					Node: n, Status: "available", Storage: st})
			}
		}
	}
	if typ == "" || typ == "vm" {
		ids := make([]int, 0, len(s.guests))
		for id := range s.guests {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			g := s.guests[id]
			cr := proxmox.ClusterResource{ID: fmt.Sprintf("%s/%d", g.Kind, id), Type: g.Kind, Node: g.Node,
				Status: g.Status, Name: g.Name, VMID: id}
			if g.Template {
				cr.Template = 1
			}
			res = append(res, cr)
		}
	}
	writeData(w, res)
}

func (s *Server) handleClusterStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := []proxmox.ClusterStatusEntry{}
	if s.cluster != "" {
		entries = append(entries, proxmox.ClusterStatusEntry{Type: "cluster", Name: s.cluster, ID: "cluster",
			Nodes: len(s.nodes), Quorate: 1})
	}
	for _, n := range s.nodes {
		entries = append(entries, proxmox.ClusterStatusEntry{Type: "node", Name: n, ID: "node/" + n, Online: 1})
	}
	writeData(w, entries)
}

// guest resolves the path guest. Callers hold s.mu.
func (s *Server) guest(w http.ResponseWriter, r *http.Request) (*Guest, bool) {
	vmid, err := strconv.Atoi(r.PathValue("vmid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid vmid %q", r.PathValue("vmid"))
		return nil, false
	}
	g, ok := s.guests[vmid]
	if !ok || g.Node != r.PathValue("node") || g.Kind != r.PathValue("kind") {
		conf := "qemu-server"
		if r.PathValue("kind") == "lxc" {
			conf = "lxc"
		}
		writeError(w, http.StatusInternalServerError, "Configuration file 'nodes/%s/%s/%d.conf' does not exist",
			r.PathValue("node"), conf, vmid)
		return nil, false
	}
	return g, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guest(w, r)
	if !ok {
		return
	}
	writeData(w, proxmox.GuestStatus{VMID: g.VMID, Name: g.Name, Status: g.Status, QMPStatus: g.QMPStatus})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guest(w, r)
	if !ok {
		return
	}
	action := r.PathValue("action")
	s.actions = append(s.actions, fmt.Sprintf("%s %d", action, g.VMID))
	if code, ok := s.failures[action]; ok {
		writeError(w, code, "%s failed", action)
		return
	}

	set := func(status, qmp string) {
		g.Status = status
		if g.Kind == "qemu" {
			g.QMPStatus = qmp
		}
	}
	switch action {
	case "start":
		if g.Template {
			writeError(w, http.StatusInternalServerError, "you can't start a vm if it's a template")
			return
		}
		if g.Status == "running" {
			writeError(w, http.StatusInternalServerError, "VM %d already running", g.VMID)
			return
		}
		set("running", "running")
	case "stop", "shutdown":
		set("stopped", "stopped")
	case "suspend":
		if g.Kind != "qemu" {
			writeError(w, http.StatusNotImplemented, "Method 'POST /nodes/%s/lxc/%d/status/suspend' not implemented",
				g.Node, g.VMID)
			return
		}
		if g.Status != "running" {
			writeError(w, http.StatusInternalServerError, "VM %d not running", g.VMID)
			return
		}
		set("running", "paused")
	case "resume":
		set("running", "running")
	case "reboot":
		if g.Status != "running" {
			writeError(w, http.StatusInternalServerError, "VM %d not running", g.VMID)
			return
		}
	default:
		writeError(w, http.StatusNotImplemented, "Method 'POST %s' not implemented", strings.TrimPrefix(r.URL.Path, "/api2/json"))
		return
	}
	writeData(w, fmt.Sprintf("UPID:%s:0000ABCD:00000000:00000000:q%s:%d:root@pam:", g.Node, action, g.VMID))
}
