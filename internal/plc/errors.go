package plc

import (
	"errors"
	"fmt"
)

// ConnError reports a transport-level failure on the controller link.
// The monitor retries these with backoff; one-shot callers surface them.
type ConnError struct {
	Address string
	Op      string
	Err     error
}

func (e *ConnError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plc %s: %s: %v", e.Address, e.Op, e.Err)
	}
	return fmt.Sprintf("plc %s: %s failed", e.Address, e.Op)
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// IsConnError reports whether err is (or wraps) a transport failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
