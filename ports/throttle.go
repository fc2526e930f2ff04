package ports

import (
	"context"
	"time"
)

// ThrottleStore tracks failed login attempts per remote address and the
// resulting lockouts. Implementations expire both on their own; callers
// never enumerate them.
type ThrottleStore interface {
	// RecordFailure counts one failed attempt and returns the number of
	// failures seen within the current window.
	RecordFailure(ctx context.Context, remoteAddr string, window time.Duration) (int, error)

	// Block locks the address out for the given cooldown.
	Block(ctx context.Context, remoteAddr string, cooldown time.Duration) error

	// IsBlocked reports whether the address is currently locked out.
	IsBlocked(ctx context.Context, remoteAddr string) (bool, error)
}
