package libvirt

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/session"
	"github.com/Bibi40k/vmgmt/pkg/system"
	"github.com/Bibi40k/vmgmt/pkg/system/systemtest"
)

type sshServer struct {
	addr        string
	fingerprint string
	hostKey     ssh.PublicKey
}

// startSSHServer serves exec requests from host over SSH, accepting
// root/s3cret only.
func startSSHServer(t *testing.T, host Runner) sshServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == "root" && string(pass) == "s3cret" {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, cfg, host)
		}
	}()

	return sshServer{
		addr:        ln.Addr().String(),
		fingerprint: ssh.FingerprintSHA256(signer.PublicKey()),
		hostKey:     signer.PublicKey(),
	}
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig, host Runner) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	defer func() { _ = sconn.Close() }()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			return
		}
		go func() {
			defer func() { _ = ch.Close() }()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
					_ = req.Reply(false, nil)
					return
				}
				_ = req.Reply(true, nil)

				out, err := host.Run(context.Background(), payload.Command)
				_, _ = io.WriteString(ch, out)
				status := uint32(0)
				if err != nil {
					status = 1
					var ce *CommandError
					if errors.As(err, &ce) {
						_, _ = io.WriteString(ch.Stderr(), ce.Stderr+"\n")
					}
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func sshSession(srv sshServer, password string, opts map[string]string) session.Config {
	if opts == nil {
		opts = map[string]string{"host_key_fingerprint": srv.fingerprint}
	}
	return session.Config{
		Endpoint:       "root@" + srv.addr,
		Credentials:    session.Credentials{Password: password},
		ConnectTimeout: 5 * time.Second,
		Options:        opts,
	}
}

func TestSSHContract(t *testing.T) {
	srv := startSSHServer(t, newFakeHost())

	systemtest.Run(t, systemtest.Fixture{
		New:         func(t *testing.T) system.System { return New(sshSession(srv, "s3cret", nil)) },
		BadAuth:     func(t *testing.T) system.System { return New(sshSession(srv, "wrong", nil)) },
		Unsupported: unsupported,
		Startable:   "db-01",
	})
}

func TestSSHRunnerOutputAndErrors(t *testing.T) {
	srv := startSSHServer(t, newFakeHost())
	ctx := context.Background()

	r, err := DialSSH(ctx, SSHConfig{
		Address:            srv.addr,
		User:               "root",
		Password:           "s3cret",
		HostKeyFingerprint: srv.fingerprint,
		Timeout:            5 * time.Second,
	})
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	out, err := r.Run(ctx, "virsh -c qemu:///system hostname")
	require.NoError(t, err)
	assert.Equal(t, "kvm01\n", out)

	_, err = r.Run(ctx, "virsh -c qemu:///system domstate ghost")
	var ce *CommandError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "error: failed to get domain 'ghost'", ce.Stderr)
	var exit *ssh.ExitError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.ExitStatus())
}

func TestSSHHostKeyPinning(t *testing.T) {
	srv := startSSHServer(t, newFakeHost())

	s := New(sshSession(srv, "s3cret", map[string]string{"host_key_fingerprint": "SHA256:not-the-key"}))
	err := s.Connect(context.Background())
	require.ErrorIs(t, err, mgmterr.ErrAuthentication)
	assert.Contains(t, err.Error(), "host key mismatch")
	assert.False(t, s.Connected())
}

func TestSSHKnownHosts(t *testing.T) {
	srv := startSSHServer(t, newFakeHost())
	dir := t.TempDir()

	trusted := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(srv.addr)}, srv.hostKey)
	require.NoError(t, os.WriteFile(trusted, []byte(line+"\n"), 0o600))

	s := New(sshSession(srv, "s3cret", map[string]string{"known_hosts": trusted}))
	require.NoError(t, s.Connect(context.Background()))
	require.NoError(t, s.Disconnect(context.Background()))

	empty := filepath.Join(dir, "empty_known_hosts")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	s = New(sshSession(srv, "s3cret", map[string]string{"known_hosts": empty}))
	assert.ErrorIs(t, s.Connect(context.Background()), mgmterr.ErrAuthentication)
}

func TestSSHInsecure(t *testing.T) {
	srv := startSSHServer(t, newFakeHost())

	cfg := sshSession(srv, "s3cret", map[string]string{})
	cfg.Insecure = true
	s := New(cfg)
	require.NoError(t, s.Connect(context.Background()))
	assert.NoError(t, s.Disconnect(context.Background()))
}

func TestSSHUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s := New(session.Config{
		Endpoint:       "root@" + addr,
		Credentials:    session.Credentials{Password: "s3cret"},
		Insecure:       true,
		ConnectTimeout: time.Second,
	})
	assert.ErrorIs(t, s.Connect(context.Background()), mgmterr.ErrConnection)
}

func TestSSHNoCredentials(t *testing.T) {
	s := New(session.Config{Endpoint: "kvm01", Insecure: true})
	assert.ErrorIs(t, s.Connect(context.Background()), mgmterr.ErrAuthentication)
}
