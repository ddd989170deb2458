package chat

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error kinds. Use errors.Is(err, ErrNetwork) and friends to classify failures.
var (
	ErrNetwork      = errors.New("network error")
	ErrNotFound     = errors.New("conversation not found")
	ErrNotConnected = errors.New("not connected")
	ErrAuth         = errors.New("credential rejected")
)

// Error carries an error kind, the failed operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError wraps err with the given kind. A nil err is allowed.
func NewError(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether an automatic retry with the same credential can succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrAuth) && !errors.Is(err, ErrNotFound)
}

func errMissingField(name string) error {
	return errors.Errorf("missing required field %q", name)
}
