package utils

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoint is a parsed host[:port] address with an optional user.
type Endpoint struct {
	User string
	Host string
	Port int
}

// Address returns host:port, bracketing IPv6 hosts.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint parses "host", "host:port", "[v6]:port", "user@host:port"
// or a URL such as "ssh://user@host:2222". defPort applies when no port is given.
// Example: "root@kvm01:2222" -> {User: "root", Host: "kvm01", Port: 2222}
func ParseEndpoint(raw string, defPort int) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", raw, err)
		}
		ep := Endpoint{Host: u.Hostname(), Port: defPort}
		if u.User != nil {
			ep.User = u.User.Username()
		}
		if p := u.Port(); p != "" {
			port, err := ValidatePort(p)
			if err != nil {
				return Endpoint{}, err
			}
			ep.Port = port
		}
		if ep.Host == "" {
			return Endpoint{}, fmt.Errorf("invalid endpoint (missing host): %q", raw)
		}
		return ep, nil
	}

	var ep Endpoint
	if at := strings.LastIndex(raw, "@"); at >= 0 {
		ep.User, raw = raw[:at], raw[at+1:]
	}

	host, portStr, err := net.SplitHostPort(raw)
	if err != nil {
		// no port: bare host or bare IPv6 address
		host, portStr = strings.Trim(raw, "[]"), ""
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("invalid endpoint (missing host): %q", raw)
	}
	ep.Host, ep.Port = host, defPort
	if portStr != "" {
		port, err := ValidatePort(portStr)
		if err != nil {
			return Endpoint{}, err
		}
		ep.Port = port
	}
	return ep, nil
}

// ValidatePort parses a TCP port number (1-65535).
func ValidatePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port: %s", s)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port out of range: %d", port)
	}
	return port, nil
}

// IsPortOpen checks if a TCP port is accessible within the given timeout.
func IsPortOpen(host string, port int, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
