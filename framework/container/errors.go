package container

import (
	"errors"
	"fmt"
	"reflect"
)

// ── Sentinels ─────────────────────────────────────────────────────────────────

// Sentinel errors matched with errors.Is against anything the container returns.
var (
	ErrNotFound           = errors.New("container: not found")
	ErrConfiguration      = errors.New("container: invalid configuration")
	ErrResolution         = errors.New("container: resolution failed")
	ErrCircularDependency = errors.New("container: circular dependency")
	ErrMissingArgument    = errors.New("container: missing mandatory argument")
	ErrTypeMismatch       = errors.New("container: argument type mismatch")
)

var (
	errEmptyID            = errors.New("identifier is empty")
	errSelfAlias          = errors.New("identifier is aliased to itself")
	errSharedCreated      = errors.New("cannot disable sharing after a shared instance was created")
	errSharedNamed        = errors.New("named instances are always shared")
	errPropagateReference = errors.New("reference resolvers cannot propagate options")
	errNotAType           = errors.New("not a type identifier")
	errUnknownType        = errors.New("type is not in the catalog")
	errNotConstructible   = errors.New("type cannot be constructed")
)

// ── Typed errors ──────────────────────────────────────────────────────────────

// NotFoundError reports an identifier with no resolver and no autowirable type.
type NotFoundError struct {
	ID     string
	Reason string
}

func (e *NotFoundError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("container: [%s] not found", e.ID)
	}
	return fmt.Sprintf("container: [%s] not found: %s", e.ID, e.Reason)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConfigurationError reports an invalid registration or option.
type ConfigurationError struct {
	ID  string
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("container: configure [%s]: %v", e.ID, e.Err)
	}
	return fmt.Sprintf("container: configure [%s] %s: %v", e.ID, e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ResolutionError reports a failure while building an instance.
// Position is the zero-based parameter index, or -1 when no parameter is involved.
type ResolutionError struct {
	ID       string
	Method   string
	Position int
	Expected reflect.Type
	Actual   reflect.Type
	Err      error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("container: resolve [%s]", e.ID)
	if e.Method != "" {
		msg += " " + e.Method
	}
	if e.Position >= 0 {
		msg += fmt.Sprintf(" parameter %d", e.Position)
	}
	if e.Expected != nil {
		msg += " (expected " + e.Expected.String()
		if e.Actual != nil {
			msg += ", got " + e.Actual.String()
		}
		msg += ")"
	}
	return msg + ": " + e.Err.Error()
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

func configErr(id, op string, err error) *ConfigurationError {
	return &ConfigurationError{ID: id, Op: op, Err: err}
}

func circularErr(id string) *ResolutionError {
	return &ResolutionError{ID: id, Position: -1, Err: ErrCircularDependency}
}
