package main

import (
	"errors"
	"fmt"

	"github.com/Bibi40k/vmgmt/pkg/mgmterr"
	"github.com/Bibi40k/vmgmt/pkg/provider"
)

type userError struct {
	msg  string
	hint string
	err  error
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Hint() string  { return e.hint }
func (e *userError) Unwrap() error { return e.err }

// describeError attaches an operator hint to normalized failures.
// Errors that are already user errors, or carry no category, pass through.
func describeError(err error) error {
	if err == nil {
		return nil
	}
	var ue *userError
	if errors.As(err, &ue) {
		return err
	}
	var cfgErr *provider.ConfigError
	if errors.As(err, &cfgErr) {
		return &userError{msg: err.Error(), hint: "Fix the providers file (see configs/providers.example.yaml)", err: err}
	}
	var me *mgmterr.Error
	if !errors.As(err, &me) {
		return err
	}

	var hint string
	switch me.Category {
	case mgmterr.CategoryConnection:
		hint = "Check the provider endpoint is reachable and the service is running"
	case mgmterr.CategoryAuthentication:
		hint = "Check the provider credentials; an empty password is prompted for on a terminal"
	case mgmterr.CategoryNotFound:
		switch me.Kind {
		case "stat":
			hint = "Run 'vmgmt stats' to list the stats this provider supports"
		default:
			hint = "Run 'vmgmt list vms' to see available names"
		}
	case mgmterr.CategoryUnsupported:
		hint = fmt.Sprintf("The %s backend does not implement %s", systemOrDefault(me.System), me.Op)
	case mgmterr.CategoryTimeout:
		hint = "Increase --wait-timeout or check the VM on the management console"
	default:
		return err
	}
	return &userError{msg: err.Error(), hint: hint, err: err}
}

func systemOrDefault(s string) string {
	if s == "" {
		return "selected"
	}
	return s
}
