// Package mgmterr defines the normalized error categories shared by every
// management-system backend.
//
// Adapters translate vendor failures into one of these categories before
// returning from a contract operation, so callers can write a single
// error-handling path with errors.Is:
//
//	if errors.Is(err, mgmterr.ErrUnsupported) { ... }
package mgmterr

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is a normalized failure class.
type Category int

const (
	// CategoryVendor is an unclassifiable backend failure; the original error is kept.
	CategoryVendor Category = iota
	CategoryConnection
	CategoryAuthentication
	CategoryNotFound
	CategoryUnsupported
	CategoryTimeout
)

func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryAuthentication:
		return "authentication"
	case CategoryNotFound:
		return "not-found"
	case CategoryUnsupported:
		return "unsupported-operation"
	case CategoryTimeout:
		return "timeout"
	default:
		return "vendor"
	}
}

type sentinel struct{ c Category }

func (s *sentinel) Error() string { return s.c.String() + " error" }

// Sentinels for errors.Is. Every *Error matches the sentinel of its category.
var (
	ErrVendor         error = &sentinel{CategoryVendor}
	ErrConnection     error = &sentinel{CategoryConnection}
	ErrAuthentication error = &sentinel{CategoryAuthentication}
	ErrNotFound       error = &sentinel{CategoryNotFound}
	ErrUnsupported    error = &sentinel{CategoryUnsupported}
	ErrTimeout        error = &sentinel{CategoryTimeout}
)

// Error is a categorized failure. Err holds the original vendor error, if any.
type Error struct {
	Category Category
	Op       string        // normalized operation, e.g. "start_vm"
	System   string        // backend of origin, e.g. "vsphere"
	Kind     string        // resource kind for NotFound, e.g. "vm", "stat"
	Name     string        // resource name for NotFound
	Elapsed  time.Duration // Timeout only
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Category.String())
	if e.System != "" {
		sb.WriteString(" [")
		sb.WriteString(e.System)
		sb.WriteString("]")
	}
	switch e.Category {
	case CategoryNotFound:
		fmt.Fprintf(&sb, ": %s %q not found", kindOrDefault(e.Kind), e.Name)
	case CategoryUnsupported:
		fmt.Fprintf(&sb, ": %s is not supported", e.Op)
	case CategoryTimeout:
		fmt.Fprintf(&sb, ": %s timed out after %s", e.Op, e.Elapsed.Round(time.Millisecond))
	default:
		if e.Op != "" {
			sb.WriteString(": ")
			sb.WriteString(e.Op)
		}
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the category sentinel, so errors.Is(err, ErrNotFound) works
// regardless of the wrapped vendor error.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.c == e.Category
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return "resource"
	}
	return kind
}

// Connection reports an unreachable endpoint or transport failure.
func Connection(op string, err error) *Error {
	return &Error{Category: CategoryConnection, Op: op, Err: err}
}

// Auth reports rejected or expired credentials.
func Auth(op string, err error) *Error {
	return &Error{Category: CategoryAuthentication, Op: op, Err: err}
}

// NotFound reports a named resource missing on the backend.
func NotFound(kind, name string) *Error {
	return &Error{Category: CategoryNotFound, Kind: kind, Name: name}
}

// Unsupported reports an operation the backend cannot perform.
func Unsupported(system, op string) *Error {
	return &Error{Category: CategoryUnsupported, System: system, Op: op}
}

// Timeout reports a bounded wait that expired.
func Timeout(desc string, elapsed time.Duration) *Error {
	return &Error{Category: CategoryTimeout, Op: desc, Elapsed: elapsed}
}

// Vendor wraps an unclassifiable backend failure.
func Vendor(op string, err error) *Error {
	return &Error{Category: CategoryVendor, Op: op, Err: err}
}

// Wrap returns err unchanged when it is already categorized and wraps it as
// CategoryVendor otherwise. A nil err yields nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Vendor(op, err)
}

// WithSystem stamps the backend of origin on a categorized error that has none.
func WithSystem(err error, system string) error {
	var e *Error
	if errors.As(err, &e) && e.System == "" {
		e.System = system
	}
	return err
}

// CategoryOf returns the category of err, or CategoryVendor for uncategorized errors.
func CategoryOf(err error) Category {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return CategoryVendor
}

// IsCategorized reports whether err carries a normalized category.
func IsCategorized(err error) bool {
	var e *Error
	return errors.As(err, &e)
}
