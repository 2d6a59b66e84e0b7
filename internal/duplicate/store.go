// Package duplicate detects receipt images that were already submitted within
// a retention window.
package duplicate

import (
	"context"
	"fmt"
)

// Store remembers fingerprints. CheckAndAdd must be atomic per fingerprint:
// two concurrent calls with the same value see exactly one "not seen" result.
type Store interface {
	// CheckAndAdd reports whether fingerprint was already recorded and not
	// expired, recording it when it was not.
	CheckAndAdd(ctx context.Context, fingerprint string) (bool, error)
	Close() error
}

// HashingError reports that a submission could not be fingerprinted or looked up
type HashingError struct {
	Err error
}

func (e *HashingError) Error() string {
	return fmt.Sprintf("hashing receipt: %v", e.Err)
}

func (e *HashingError) Unwrap() error {
	return e.Err
}
