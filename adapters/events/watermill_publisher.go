package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/blackhole-dns/warden/ports"
)

// Topics carrying session lifecycle events.
const (
	LoginTopic   = "warden.auth.login"
	LogoutTopic  = "warden.auth.logout"
	LockoutTopic = "warden.auth.lockout"
)

// SessionEvent is the payload published on every topic. SessionID is -1
// for lockouts, which have no session.
type SessionEvent struct {
	RemoteAddr string `json:"remote_addr"`
	SessionID  int    `json:"session_id"`
	At         int64  `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishLogin(ctx context.Context, remoteAddr string, sessionID int) error {
	return p.publish(LoginTopic, remoteAddr, sessionID)
}

func (p *WatermillPublisher) PublishLogout(ctx context.Context, remoteAddr string, sessionID int) error {
	return p.publish(LogoutTopic, remoteAddr, sessionID)
}

func (p *WatermillPublisher) PublishLockout(ctx context.Context, remoteAddr string) error {
	return p.publish(LockoutTopic, remoteAddr, -1)
}

func (p *WatermillPublisher) publish(topic, remoteAddr string, sessionID int) error {
	payload, err := json.Marshal(SessionEvent{
		RemoteAddr: remoteAddr,
		SessionID:  sessionID,
		At:         time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
