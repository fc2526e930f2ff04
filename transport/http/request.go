package http

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// SessionHeader is the vendor header carrying the session id for clients
// that cannot use cookies.
const SessionHeader = "X-Warden-SID"

const (
	cookieName  = "sid"
	bodyKey     = "rawBody"
	identityKey = "identity"

	maxBodySize = 64 << 10
)

// requestBody reads the request body once and caches it in the Gin context
// so both the session id extraction and the login payload parsing can see
// it.
func requestBody(c *gin.Context) ([]byte, error) {
	if cached, ok := c.Get(bodyKey); ok {
		return cached.([]byte), nil
	}

	var body []byte
	if c.Request.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
	}
	c.Set(bodyKey, body)

	return body, nil
}

// extractSID pulls the session id from the request. Source priority: the
// sid cookie, a form-encoded body field, a JSON body field, then the sid
// and vendor headers. The first non-empty value wins.
func extractSID(c *gin.Context, body []byte) string {
	sid, source := findSID(c, body)
	if sid != "" {
		slog.Debug("read session id", "source", source)
	}
	return sid
}

func findSID(c *gin.Context, body []byte) (string, string) {
	// Read the cookie raw: the SID is base64 and gin's Cookie helper would
	// unescape '+' into a space.
	if cookie, err := c.Request.Cookie(cookieName); err == nil && cookie.Value != "" {
		return cookie.Value, "cookie"
	}

	if len(body) > 0 {
		if vals, err := url.ParseQuery(string(body)); err == nil {
			if sid := vals.Get("sid"); sid != "" {
				// Form decoding turned the base64 '+' into spaces.
				return strings.ReplaceAll(sid, " ", "+"), "payload (form-data)"
			}
		}

		var payload struct {
			SID string `json:"sid"`
		}
		if err := json.Unmarshal(body, &payload); err == nil && payload.SID != "" {
			return payload.SID, "payload (JSON)"
		}
	}

	if sid := c.GetHeader("sid"); sid != "" {
		return sid, "header"
	}

	return c.GetHeader(SessionHeader), "header"
}

// clientAddr strips the port from the peer address.
func clientAddr(c *gin.Context) string {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

// setSessionCookie writes the cookie through net/http directly so the SID
// goes out verbatim. '+', '/' and '=' are legal cookie-value bytes; gin's
// SetCookie would percent-escape them and break clients that present the
// token from the JSON body.
func setSessionCookie(c *gin.Context, sid string, timeout time.Duration) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    sid,
		Path:     "/",
		MaxAge:   int(timeout.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func deleteSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cookieName,
		Value:    "deleted",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteStrictMode,
	})
}
