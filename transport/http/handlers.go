package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/service"
)

// AuthHandlers contains HTTP handlers for auth endpoints
type AuthHandlers struct {
	authService *service.AuthService
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(authService *service.AuthService) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
	}
}

// sessionStatus is the "session" object of every auth response.
type sessionStatus struct {
	Valid    bool    `json:"valid"`
	SID      *string `json:"sid"`
	Validity int     `json:"validity"`
}

// authStatus is the body of every auth response. Challenge is only set
// when an unauthenticated GET asks for one.
type authStatus struct {
	Challenge *string       `json:"challenge"`
	Session   sessionStatus `json:"session"`
}

// Auth handles /api/auth. GET checks authentication and hands out a login
// challenge, POST attempts a login, DELETE logs out.
func (h *AuthHandlers) Auth(c *gin.Context) {
	body, err := requestBody(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, "bad_request", "Could not read request body", err.Error())
		return
	}
	sid := extractSID(c, body)

	ident := h.authService.Authenticate(c.Request.Context(), clientAddr(c), sid)

	// A recognized caller gets the status reply for any method, including
	// the logout handling for DELETE.
	if ident.Authorized() {
		h.sendAuthStatus(c, ident)
		return
	}

	switch c.Request.Method {
	case http.MethodPost:
		h.login(c, body)
	case http.MethodDelete:
		// Nothing to log out of, reject and ask to drop the cookie.
		h.sendAuthStatus(c, ident)
	default:
		h.sendChallenge(c)
	}
}

// login validates the POST payload and attempts the challenge/response
// login. Payload errors are rejected before any table state is touched.
func (h *AuthHandlers) login(c *gin.Context, body []byte) {
	if len(body) == 0 {
		sendError(c, http.StatusBadRequest, "bad_request", "No request body data", nil)
		return
	}

	var req struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		sendError(c, http.StatusBadRequest, "bad_request",
			"Invalid request body data (no valid JSON), error before hint", err.Error())
		return
	}
	if req.Response == nil {
		sendError(c, http.StatusBadRequest, "bad_request", "No response found in JSON payload", nil)
		return
	}
	if len(*req.Response) != core.ChallengeLength {
		sendError(c, http.StatusBadRequest, "bad_request", "Invalid response length", nil)
		return
	}

	ident, err := h.authService.Login(c.Request.Context(), clientAddr(c), c.Request.UserAgent(), *req.Response)
	if err != nil {
		switch err {
		case core.ErrUnauthorized:
			h.sendAuthStatus(c, ident)
		case core.ErrTooManyAttempts:
			sendError(c, http.StatusTooManyRequests, "too_many_requests",
				"Too many failed login attempts, try again later", nil)
		default:
			sendError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
		}
		return
	}

	h.sendAuthStatus(c, ident)
}

// sendChallenge mints a challenge for a client that wants to log in.
func (h *AuthHandlers) sendChallenge(c *gin.Context) {
	challenge, err := h.authService.IssueChallenge(c.Request.Context())
	if err != nil {
		sendError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, authStatus{
		Challenge: &challenge,
		Session:   sessionStatus{Valid: false, SID: nil, Validity: -1},
	})
}

// sendAuthStatus translates an identity into the status reply: 200 for
// anything valid, 410 for a logout, 401 otherwise. Session responses
// refresh the cookie; logout and rejection delete it.
func (h *AuthHandlers) sendAuthStatus(c *gin.Context, ident core.Identity) {
	switch {
	case ident.Bypassed():
		c.JSON(http.StatusOK, authStatus{
			Session: sessionStatus{Valid: true, SID: nil, Validity: -1},
		})

	case ident.State == core.StateSession && c.Request.Method == http.MethodDelete:
		h.authService.Logout(c.Request.Context(), ident)
		deleteSessionCookie(c)
		c.JSON(http.StatusGone, authStatus{
			Session: sessionStatus{Valid: false, SID: nil, Validity: -1},
		})

	case ident.State == core.StateSession:
		setSessionCookie(c, ident.SID, h.authService.SessionTimeout())
		sid := ident.SID
		c.JSON(http.StatusOK, authStatus{
			Session: sessionStatus{
				Valid:    true,
				SID:      &sid,
				Validity: int(h.authService.Remaining(ident).Round(time.Second).Seconds()),
			},
		})

	default:
		deleteSessionCookie(c)
		c.JSON(http.StatusUnauthorized, authStatus{
			Session: sessionStatus{Valid: false, SID: nil, Validity: -1},
		})
	}
}

// Sessions returns the full session table. Requires authentication.
func (h *AuthHandlers) Sessions(c *gin.Context) {
	ident, ok := c.Get(identityKey)
	if !ok {
		sendError(c, http.StatusInternalServerError, "internal_error", "Internal server error", nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": h.authService.Sessions(ident.(core.Identity)),
	})
}

func sendError(c *gin.Context, code int, key, message string, hint any) {
	c.JSON(code, gin.H{
		"error": gin.H{
			"key":     key,
			"message": message,
			"hint":    hint,
		},
	})
}
