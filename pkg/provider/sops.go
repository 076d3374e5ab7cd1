package provider

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrSOPSMissing is returned when an encrypted file is loaded without the
// sops binary on PATH.
var ErrSOPSMissing = errors.New("'sops' not found in PATH")

// Decrypt decrypts a SOPS-encrypted file and returns the plaintext.
// Tests replace it to avoid shelling out.
var Decrypt = sopsDecrypt

func sopsDecrypt(path string) ([]byte, error) {
	if _, err := exec.LookPath("sops"); err != nil {
		return nil, ErrSOPSMissing
	}
	cmd := exec.Command("sops", "-d", path)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("sops -d %s: %s", filepath.Base(path), msg)
		}
		return nil, fmt.Errorf("sops -d %s: %w", filepath.Base(path), err)
	}
	return out, nil
}
