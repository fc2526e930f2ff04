package events

import (
	"context"

	"github.com/blackhole-dns/warden/ports"
)

// NoopPublisher discards all events. Used when no message broker is
// configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher() ports.EventPublisher {
	return NoopPublisher{}
}

func (NoopPublisher) PublishLogin(ctx context.Context, remoteAddr string, sessionID int) error {
	return nil
}

func (NoopPublisher) PublishLogout(ctx context.Context, remoteAddr string, sessionID int) error {
	return nil
}

func (NoopPublisher) PublishLockout(ctx context.Context, remoteAddr string) error {
	return nil
}
