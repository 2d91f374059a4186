package blacklist

import (
	"errors"
	"fmt"
)

var (
	// ErrBlocked marks a visitor denied entry by a standing blacklist entry.
	ErrBlocked = errors.New("visitor_blacklisted")

	// ErrNotFound marks a missing blacklist entry.
	ErrNotFound = errors.New("not_found")

	// ErrInvalidInput marks malformed input.
	ErrInvalidInput = errors.New("invalid_input")
)

// OpError carries the failing operation alongside the sentinel kind.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }
