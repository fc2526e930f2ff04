package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/ports"
	"github.com/blackhole-dns/warden/store"
)

// Config is the read-only slice of engine configuration the auth core
// consumes.
type Config struct {
	// PasswordHash is the stored double-SHA-256 password hash. Empty means
	// no authentication is required at all.
	PasswordHash string

	// SessionTimeout is the sliding session validity window.
	SessionTimeout time.Duration

	// LocalAuthRequired forces loopback clients through the normal login.
	LocalAuthRequired bool
}

// Lockout parameters: 10 failed logins within a minute block the address
// for five minutes.
const (
	maxLoginFailures = 10
	failureWindow    = time.Minute
	lockoutCooldown  = 5 * time.Minute
)

// AuthService is the gateway every management request passes through. It
// owns the session and challenge tables and the single mutex serializing
// all access to them. The lock is held only across the in-memory table
// operations, never across event or throttle I/O.
type AuthService struct {
	mu         sync.Mutex
	sessions   store.SessionTable
	challenges store.ChallengeTable

	throttle ports.ThrottleStore
	events   ports.EventPublisher
	cfg      Config
	log      *slog.Logger

	now func() time.Time
}

// NewAuthService creates a new authentication gateway.
func NewAuthService(cfg Config, throttle ports.ThrottleStore, events ports.EventPublisher, logger *slog.Logger) *AuthService {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = core.DefaultSessionTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		throttle: throttle,
		events:   events,
		cfg:      cfg,
		log:      logger,
		now:      time.Now,
	}
}

// SessionTimeout returns the configured sliding window, used for cookie
// expiry.
func (s *AuthService) SessionTimeout() time.Duration {
	return s.cfg.SessionTimeout
}

// Authenticate classifies a request. Evaluation order is fixed: loopback
// bypass, empty-password bypass, then session lookup. A matching session
// is renewed in the same critical section, so lookup and sliding-window
// renewal cannot interleave with other requests.
func (s *AuthService) Authenticate(ctx context.Context, remoteAddr, sid string) core.Identity {
	if !s.cfg.LocalAuthRequired && isLoopback(remoteAddr) {
		return core.Identity{State: core.StateLocalhost, SessionID: -1}
	}

	if s.cfg.PasswordHash == "" {
		return core.Identity{State: core.StateEmptyPassword, SessionID: -1}
	}

	if sid == "" {
		s.log.DebugContext(ctx, "authentication failed", "reason", "no session id provided", "remote_addr", remoteAddr)
		return core.Identity{State: core.StateUnauthenticated, SessionID: -1}
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessions.FindValid(now, remoteAddr, sid)
	if !ok {
		s.log.DebugContext(ctx, "authentication failed", "reason", "session id invalid or expired", "remote_addr", remoteAddr)
		return core.Identity{State: core.StateUnauthenticated, SessionID: -1}
	}

	s.sessions.Renew(id, now, s.cfg.SessionTimeout)
	s.log.DebugContext(ctx, "recognized known session", "session_id", id, "remote_addr", remoteAddr)

	return core.Identity{State: core.StateSession, SessionID: id, SID: sid}
}

// Login validates a challenge response and claims a session slot. Both
// steps run in one critical section: a response is consumed at most once,
// and the consumed challenge stays spent even when no seat is free.
func (s *AuthService) Login(ctx context.Context, remoteAddr, userAgent, response string) (core.Identity, error) {
	blocked, err := s.throttle.IsBlocked(ctx, remoteAddr)
	if err != nil {
		s.log.WarnContext(ctx, "throttle store unavailable", "error", err)
	}
	if blocked {
		return core.Identity{SessionID: -1}, core.ErrTooManyAttempts
	}

	now := s.now()
	emptyPassword := s.cfg.PasswordHash == ""

	s.mu.Lock()
	correct := emptyPassword || s.challenges.Consume(now, response)
	if !correct {
		s.mu.Unlock()
		s.log.DebugContext(ctx, "login failed", "reason", "incorrect response", "remote_addr", remoteAddr)
		s.recordFailure(ctx, remoteAddr)
		return core.Identity{SessionID: -1}, core.ErrUnauthorized
	}

	id, sid, err := s.sessions.Create(now, s.cfg.SessionTimeout, remoteAddr, userAgent)
	s.mu.Unlock()
	if err != nil {
		if err == core.ErrNoFreeSlot {
			s.log.WarnContext(ctx, "no free session slots available, not authenticating client", "remote_addr", remoteAddr)
			return core.Identity{SessionID: -1}, core.ErrUnauthorized
		}
		return core.Identity{SessionID: -1}, fmt.Errorf("failed to create session: %w", err)
	}

	s.log.InfoContext(ctx, "session created", "session_id", id, "remote_addr", remoteAddr,
		"reason", loginReason(emptyPassword))

	if err := s.events.PublishLogin(ctx, remoteAddr, id); err != nil {
		s.log.WarnContext(ctx, "failed to publish login event", "error", err)
	}

	return core.Identity{State: core.StateSession, SessionID: id, SID: sid}, nil
}

// IssueChallenge mints a new login challenge.
func (s *AuthService) IssueChallenge(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.challenges.Issue(s.now(), s.cfg.PasswordHash)
}

// Logout destroys the caller's session. Bypass identities have nothing to
// destroy.
func (s *AuthService) Logout(ctx context.Context, ident core.Identity) {
	if ident.State != core.StateSession {
		return
	}

	s.mu.Lock()
	slot, ok := s.sessions.Get(ident.SessionID)
	s.sessions.Delete(ident.SessionID)
	s.mu.Unlock()

	s.log.InfoContext(ctx, "session destroyed", "session_id", ident.SessionID)

	remoteAddr := ""
	if ok {
		remoteAddr = slot.RemoteAddr
	}
	if err := s.events.PublishLogout(ctx, remoteAddr, ident.SessionID); err != nil {
		s.log.WarnContext(ctx, "failed to publish logout event", "error", err)
	}
}

// Remaining returns how long the caller's session stays valid, or -1 for
// anything that is not a slot-backed session.
func (s *AuthService) Remaining(ident core.Identity) time.Duration {
	if ident.State != core.StateSession {
		return -1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.sessions.Get(ident.SessionID)
	if !ok {
		return -1
	}

	return slot.ValidUntil.Sub(s.now())
}

// Sessions snapshots the session table for the list endpoint.
func (s *AuthService) Sessions(ident core.Identity) []core.SessionInfo {
	currentID := -1
	if ident.State == core.StateSession {
		currentID = ident.SessionID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sessions.All(s.now(), s.cfg.SessionTimeout, currentID)
}

// DeleteAllSessions wipes the session table. Called at shutdown so no
// session id survives the process.
func (s *AuthService) DeleteAllSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions.DeleteAll()
}

// recordFailure feeds the lockout counter and blocks the address once it
// crosses the limit. Runs outside the table lock.
func (s *AuthService) recordFailure(ctx context.Context, remoteAddr string) {
	n, err := s.throttle.RecordFailure(ctx, remoteAddr, failureWindow)
	if err != nil {
		s.log.WarnContext(ctx, "throttle store unavailable", "error", err)
		return
	}
	if n < maxLoginFailures {
		return
	}

	if err := s.throttle.Block(ctx, remoteAddr, lockoutCooldown); err != nil {
		s.log.WarnContext(ctx, "failed to block address", "error", err)
		return
	}
	s.log.WarnContext(ctx, "address locked out after repeated login failures",
		"remote_addr", remoteAddr, "failures", n, "cooldown", lockoutCooldown)

	if err := s.events.PublishLockout(ctx, remoteAddr); err != nil {
		s.log.WarnContext(ctx, "failed to publish lockout event", "error", err)
	}
}

func loginReason(emptyPassword bool) string {
	if emptyPassword {
		return "empty password"
	}
	return "correct response"
}

// isLoopback reports whether the remote address is a loopback address.
func isLoopback(remoteAddr string) bool {
	addr, err := netip.ParseAddr(remoteAddr)
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}
