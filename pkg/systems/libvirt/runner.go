package libvirt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Bibi40k/vmgmt/internal/utils"
)

// Runner executes shell commands on the hypervisor host.
// The real implementation uses SSH; tests inject a mock.
type Runner interface {
	Run(ctx context.Context, cmd string) (string, error)
	Close() error
}

// CommandError is a remote command that ran but failed.
type CommandError struct {
	Cmd    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %s", e.Cmd, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// SSHConfig holds the SSH connection parameters.
type SSHConfig struct {
	Address            string // host:port
	User               string
	Password           string
	KeyFile            string // private key path
	KeyPassphrase      string
	HostKeyFingerprint string // pinned "SHA256:..." fingerprint
	KnownHostsFile     string // default: ~/.ssh/known_hosts
	Insecure           bool   // accept any host key
	Timeout            time.Duration
}

func (cfg SSHConfig) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	if cfg.KeyFile != "" {
		pem, err := os.ReadFile(utils.ExpandHome(cfg.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		var signer ssh.Signer
		if cfg.KeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(cfg.KeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("parse key file: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		methods = append(methods, ssh.Password(cfg.Password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("no SSH credentials: set a password or key file")
	}
	return methods, nil
}

func (cfg SSHConfig) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case cfg.HostKeyFingerprint != "":
		want := cfg.HostKeyFingerprint
		return func(hostname string, _ net.Addr, key ssh.PublicKey) error {
			if got := ssh.FingerprintSHA256(key); got != want {
				return &HostKeyError{Host: hostname, Want: want, Got: got}
			}
			return nil
		}, nil
	case cfg.Insecure:
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path := cfg.KnownHostsFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(utils.ExpandHome(path))
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w", err)
	}
	return cb, nil
}

// HostKeyError is a host key that does not match the pinned fingerprint.
type HostKeyError struct {
	Host, Want, Got string
}

func (e *HostKeyError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: want %s, got %s", e.Host, e.Want, e.Got)
}

type sshRunner struct {
	client *ssh.Client
}

// DialSSH opens an SSH connection. ctx bounds the TCP connect and handshake.
func DialSSH(ctx context.Context, cfg SSHConfig) (Runner, error) {
	auth, err := cfg.authMethods()
	if err != nil {
		return nil, err
	}
	hostKey, err := cfg.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	d := net.Dialer{Timeout: cfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.Address, &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         cfg.Timeout,
	})
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return &sshRunner{client: ssh.NewClient(c, chans, reqs)}, nil
}

func (r *sshRunner) Run(ctx context.Context, cmd string) (string, error) {
	sess, err := r.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer func() { _ = sess.Close() }()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = sess.Close()
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			return stdout.String(), &CommandError{Cmd: cmd, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		}
		return stdout.String(), nil
	}
}

func (r *sshRunner) Close() error {
	if err := r.client.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
