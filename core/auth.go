package core

import "time"

// Capacity and format constants of the authentication core. The sizes
// mirror the engine's wire format: SIDs are 128 random bits in base64,
// challenges and responses are SHA-256 digests in hex.
const (
	// MaxSessions is the number of concurrent API sessions.
	MaxSessions = 16

	// MaxChallenges is the number of outstanding login challenges.
	MaxChallenges = 5

	// ChallengeTTL is how long an issued challenge may be answered.
	ChallengeTTL = 30 * time.Second

	// SIDLength is the length of a session identifier (16 bytes, base64).
	SIDLength = 24

	// ChallengeLength is the length of a challenge or response in hex.
	ChallengeLength = 64

	// RemoteAddrMax bounds the stored remote address (fits IPv4 and IPv6).
	RemoteAddrMax = 48

	// UserAgentMax bounds the stored user agent.
	UserAgentMax = 128

	// DefaultSessionTimeout applies when no timeout is configured.
	DefaultSessionTimeout = 300 * time.Second
)

// SessionSlot is one entry of the fixed session table.
type SessionSlot struct {
	InUse      bool
	LoginAt    time.Time
	ValidUntil time.Time
	RemoteAddr string
	UserAgent  string
	SID        string
}

// Valid reports whether the slot holds a live session at the given time.
func (s *SessionSlot) Valid(now time.Time) bool {
	return s.InUse && !s.ValidUntil.Before(now)
}

// ChallengeSlot is one entry of the fixed challenge table. A slot's content
// is meaningless once ValidUntil has passed; consuming a challenge zeroes
// ValidUntil so the same response can never be accepted twice.
type ChallengeSlot struct {
	Challenge  string
	Response   string
	ValidUntil time.Time
}

// State classifies how a request is authorized.
type State int

const (
	// StateUnauthenticated means no valid credential was presented.
	StateUnauthenticated State = iota

	// StateLocalhost means the caller is loopback and local auth is off.
	StateLocalhost

	// StateEmptyPassword means no password hash is configured.
	StateEmptyPassword

	// StateSession means a valid session slot matched the presented SID.
	StateSession
)

func (s State) String() string {
	switch s {
	case StateLocalhost:
		return "localhost"
	case StateEmptyPassword:
		return "empty-password"
	case StateSession:
		return "session"
	default:
		return "unauthenticated"
	}
}

// Identity is the outcome of classifying a request.
type Identity struct {
	State State

	// SessionID is the slot index of the caller's session. Only meaningful
	// when State is StateSession.
	SessionID int

	// SID is the session token, re-issued in the session cookie on every
	// authenticated response. Empty for bypass states.
	SID string
}

// Authorized reports whether the request may proceed.
func (id Identity) Authorized() bool {
	return id.State != StateUnauthenticated
}

// Bypassed reports whether the request was accepted without a session.
func (id Identity) Bypassed() bool {
	return id.State == StateLocalhost || id.State == StateEmptyPassword
}

// SessionInfo is one entry of the session list endpoint.
type SessionInfo struct {
	ID             int    `json:"id"`
	CurrentSession bool   `json:"current_session"`
	Valid          bool   `json:"valid"`
	LoginAt        int64  `json:"login_at"`
	LastActive     int64  `json:"last_active"`
	ValidUntil     int64  `json:"valid_until"`
	RemoteAddr     string `json:"remote_addr"`
	UserAgent      string `json:"user_agent"`
}
