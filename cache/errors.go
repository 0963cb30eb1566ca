package cache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the expiration policy or a loader is
	// used before it was bound, or bound a second time. It indicates a
	// programming error and is never worth retrying.
	ErrConfiguration = errors.New("cache: configuration error")

	// ErrNotFound is returned by loaders to report that a key does not exist
	// in the backing source. Such results are never cached.
	ErrNotFound = errors.New("cache: not found")

	// ErrTimeout is returned when a key's lock could not be acquired before
	// the caller's deadline. The cache is left untouched; retrying is safe.
	ErrTimeout = errors.New("cache: timed out waiting for key lock")

	// ErrClosed is returned by operations started after Close.
	ErrClosed = errors.New("cache: closed")
)

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// lockErr maps a failed lock wait to the public taxonomy. Deadline expiry
// becomes ErrTimeout (still matching context.DeadlineExceeded); plain
// cancellation is returned as is.
func lockErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
