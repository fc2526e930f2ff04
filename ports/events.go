package ports

import "context"

// EventPublisher announces session lifecycle changes so sibling engine
// processes (web UI, query-log housekeeping) can react.
type EventPublisher interface {
	PublishLogin(ctx context.Context, remoteAddr string, sessionID int) error
	PublishLogout(ctx context.Context, remoteAddr string, sessionID int) error
	PublishLockout(ctx context.Context, remoteAddr string) error
}
