package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-dns/warden/adapters/events"
	"github.com/blackhole-dns/warden/adapters/store"
	"github.com/blackhole-dns/warden/core"
	"github.com/blackhole-dns/warden/internal/credential"
	"github.com/blackhole-dns/warden/service"
)

const testPasswordHash = "d45c7c9867c121b8cee96976c275872649a6c0e02e96f07ee3c49b19dbed0aac" // "letmein"

func init() {
	gin.SetMode(gin.TestMode)
}

type authResponse struct {
	Challenge *string `json:"challenge"`
	Session   struct {
		Valid    bool    `json:"valid"`
		SID      *string `json:"sid"`
		Validity int     `json:"validity"`
	} `json:"session"`
	Error *struct {
		Key     string `json:"key"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T, cfg service.Config) *gin.Engine {
	t.Helper()

	svc := service.NewAuthService(cfg, store.NewMemoryStore(), events.NewNoopPublisher(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	return SetupRouter(svc)
}

// doAuth performs a request against /api/auth from the given peer address.
func doAuth(t *testing.T, router *gin.Engine, method, remoteAddr, body string, header map[string]string) (*httptest.ResponseRecorder, authResponse) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}

	req := httptest.NewRequest(method, "/api/auth", reader)
	req.RemoteAddr = remoteAddr + ":51234"
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))

	return w, parsed
}

// loginSID walks the challenge/response handshake and returns the SID.
func loginSID(t *testing.T, router *gin.Engine, remoteAddr string) string {
	t.Helper()

	_, challenge := doAuth(t, router, http.MethodGet, remoteAddr, "", nil)
	require.NotNil(t, challenge.Challenge)

	response := credential.ExpectedResponse(*challenge.Challenge, testPasswordHash)

	w, login := doAuth(t, router, http.MethodPost, remoteAddr,
		fmt.Sprintf(`{"response":%q}`, response), nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, login.Session.SID)

	return *login.Session.SID
}

func TestGetChallengeWhenUnauthenticated(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	w, got := doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, got.Challenge)
	assert.Len(t, *got.Challenge, core.ChallengeLength)
	assert.False(t, got.Session.Valid)
	assert.Nil(t, got.Session.SID)
	assert.Equal(t, -1, got.Session.Validity)

	// Challenge replies never touch the cookie.
	assert.Empty(t, w.Header().Get("Set-Cookie"))
}

func TestFullLoginFlow(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash, SessionTimeout: 5 * time.Minute})

	_, challenge := doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)
	require.NotNil(t, challenge.Challenge)

	response := credential.ExpectedResponse(*challenge.Challenge, testPasswordHash)

	w, login := doAuth(t, router, http.MethodPost, "10.0.0.9",
		fmt.Sprintf(`{"response":%q}`, response), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, login.Session.Valid)
	require.NotNil(t, login.Session.SID)
	assert.Len(t, *login.Session.SID, core.SIDLength)
	assert.Equal(t, 300, login.Session.Validity)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "sid="+*login.Session.SID)
	assert.Contains(t, cookie, "Max-Age=300")
	assert.Contains(t, cookie, "Path=/")
	assert.Contains(t, cookie, "HttpOnly")
	assert.Contains(t, cookie, "SameSite=Strict")

	// Status check with the cookie refreshes the session.
	w2, status := doAuth(t, router, http.MethodGet, "10.0.0.9", "",
		map[string]string{"Cookie": "sid=" + *login.Session.SID})
	assert.Equal(t, http.StatusOK, w2.Code)
	assert.True(t, status.Session.Valid)
	assert.Nil(t, status.Challenge)
	assert.Contains(t, w2.Header().Get("Set-Cookie"), "sid="+*login.Session.SID)
}

func TestLoginWrongResponse(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)

	bad := strings.Repeat("0", core.ChallengeLength)
	w, got := doAuth(t, router, http.MethodPost, "10.0.0.9",
		fmt.Sprintf(`{"response":%q}`, bad), nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, got.Session.Valid)
	assert.Nil(t, got.Session.SID)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sid=deleted")
}

func TestLoginResponseReplayRejected(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	_, challenge := doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)
	response := credential.ExpectedResponse(*challenge.Challenge, testPasswordHash)
	body := fmt.Sprintf(`{"response":%q}`, response)

	w, _ := doAuth(t, router, http.MethodPost, "10.0.0.9", body, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w2, _ := doAuth(t, router, http.MethodPost, "10.0.0.9", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
}

func TestLoginBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"empty body", "", "No request body data"},
		{"invalid json", "{not json", "Invalid request body data (no valid JSON), error before hint"},
		{"missing response", `{"foo":"bar"}`, "No response found in JSON payload"},
		{"short response", `{"response":"abc"}`, "Invalid response length"},
		{"long response", fmt.Sprintf(`{"response":%q}`, strings.Repeat("a", 65)), "Invalid response length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

			w, got := doAuth(t, router, http.MethodPost, "10.0.0.9", tt.body, nil)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			require.NotNil(t, got.Error)
			assert.Equal(t, "bad_request", got.Error.Key)
			assert.Equal(t, tt.message, got.Error.Message)
		})
	}
}

func TestLogout(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	w, got := doAuth(t, router, http.MethodDelete, "10.0.0.9", "",
		map[string]string{"Cookie": "sid=" + sid})

	assert.Equal(t, http.StatusGone, w.Code)
	assert.False(t, got.Session.Valid)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sid=deleted")

	// The session is gone afterwards.
	_, status := doAuth(t, router, http.MethodGet, "10.0.0.9", "",
		map[string]string{"Cookie": "sid=" + sid})
	assert.NotNil(t, status.Challenge)
	assert.False(t, status.Session.Valid)
}

func TestLogoutWithoutSession(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	w, got := doAuth(t, router, http.MethodDelete, "10.0.0.9", "", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, got.Session.Valid)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sid=deleted")
}

func TestLocalhostBypass(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
		w, got := doAuth(t, router, method, "127.0.0.1", "", nil)

		assert.Equal(t, http.StatusOK, w.Code, method)
		assert.True(t, got.Session.Valid, method)
		assert.Nil(t, got.Session.SID, method)
		assert.Equal(t, -1, got.Session.Validity, method)
		assert.Nil(t, got.Challenge, method)
	}
}

func TestEmptyPasswordBypass(t *testing.T) {
	router := newTestRouter(t, service.Config{})

	w, got := doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, got.Session.Valid)
	assert.Nil(t, got.Session.SID)
	assert.Equal(t, -1, got.Session.Validity)
}

func TestLocalAuthRequired(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash, LocalAuthRequired: true})

	w, got := doAuth(t, router, http.MethodGet, "127.0.0.1", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, got.Challenge)
	assert.False(t, got.Session.Valid)
}

func TestSIDFromHeaders(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	for _, header := range []string{"sid", SessionHeader} {
		w, got := doAuth(t, router, http.MethodGet, "10.0.0.9", "",
			map[string]string{header: sid})

		assert.Equal(t, http.StatusOK, w.Code, header)
		assert.True(t, got.Session.Valid, header)
	}
}

func TestSIDFromFormPayload(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	// Form decoding turns '+' into spaces; the extraction must undo that.
	w, got := doAuth(t, router, http.MethodPost, "10.0.0.9",
		"sid="+strings.ReplaceAll(sid, "+", " "), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, got.Session.Valid)
}

func TestSIDFromJSONPayload(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	w, got := doAuth(t, router, http.MethodPost, "10.0.0.9",
		fmt.Sprintf(`{"sid":%q}`, sid), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, got.Session.Valid)
}

func TestSessionBoundToAddress(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	w, got := doAuth(t, router, http.MethodGet, "10.0.0.10", "",
		map[string]string{"Cookie": "sid=" + sid})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, got.Challenge)
	assert.False(t, got.Session.Valid)
}

func TestThrottledLoginReturns429(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	bad := fmt.Sprintf(`{"response":%q}`, strings.Repeat("0", core.ChallengeLength))
	for i := 0; i < 10; i++ {
		w, _ := doAuth(t, router, http.MethodPost, "10.0.0.9", bad, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w, got := doAuth(t, router, http.MethodPost, "10.0.0.9", bad, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	require.NotNil(t, got.Error)
	assert.Equal(t, "too_many_requests", got.Error.Key)
}

func TestSessionCookieCarriesRawSID(t *testing.T) {
	// '+', '/' and '=' are part of the base64 alphabet and must survive the
	// cookie round trip byte for byte.
	sid := "mgbm66Xu+eI/GZkN9j44sg=="

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	setSessionCookie(c, sid, 5*time.Minute)

	cookie := w.Header().Get("Set-Cookie")
	assert.Contains(t, cookie, "sid="+sid)
	assert.NotContains(t, cookie, "%")

	// Reading the cookie back must not unescape anything either.
	req := httptest.NewRequest(http.MethodGet, "/api/auth", nil)
	req.Header.Set("Cookie", "sid="+sid)

	c2, _ := gin.CreateTestContext(httptest.NewRecorder())
	c2.Request = req

	got, source := findSID(c2, nil)
	assert.Equal(t, sid, got)
	assert.Equal(t, "cookie", source)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestUnreadableBodyRejected(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	req := httptest.NewRequest(http.MethodPost, "/api/auth", failingReader{})
	req.RemoteAddr = "10.0.0.9:51234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var got authResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.Error)
	assert.Equal(t, "bad_request", got.Error.Key)
	assert.Equal(t, "Could not read request body", got.Error.Message)
}

func TestSessionsEndpoint(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	sid := loginSID(t, router, "10.0.0.9")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.RemoteAddr = "10.0.0.9:51234"
	req.Header.Set("Cookie", "sid="+sid)
	req.Header.Set("User-Agent", "test-agent")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Sessions []core.SessionInfo `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got.Sessions, 1)

	assert.True(t, got.Sessions[0].Valid)
	assert.True(t, got.Sessions[0].CurrentSession)
	assert.Equal(t, "10.0.0.9", got.Sessions[0].RemoteAddr)

	// The lookup renewed the session, so the refreshed cookie comes back.
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sid="+sid)
}

func TestSessionsEndpointUnauthorized(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/sessions", nil)
	req.RemoteAddr = "10.0.0.9:51234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "sid=deleted")
}

func TestSessionCapacityExhaustion(t *testing.T) {
	router := newTestRouter(t, service.Config{PasswordHash: testPasswordHash})

	for i := 0; i < core.MaxSessions; i++ {
		loginSID(t, router, "10.0.0.9")
	}

	_, challenge := doAuth(t, router, http.MethodGet, "10.0.0.9", "", nil)
	response := credential.ExpectedResponse(*challenge.Challenge, testPasswordHash)

	w, got := doAuth(t, router, http.MethodPost, "10.0.0.9",
		fmt.Sprintf(`{"response":%q}`, response), nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, got.Session.Valid)
}
