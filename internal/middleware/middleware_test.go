package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"snapify/internal/models"
	"snapify/internal/rules"
	"snapify/internal/security"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsers map[string]models.User

func (s stubUsers) GetByID(_ context.Context, id string) (models.User, error) {
	u, ok := s[id]
	if !ok {
		return models.User{}, rules.ErrNotFound
	}
	return u, nil
}

type stubSessions map[string]models.Session

func (s stubSessions) GetByID(_ context.Context, id string) (models.Session, error) {
	sess, ok := s[id]
	if !ok {
		return models.Session{}, errors.New("session not found")
	}
	return sess, nil
}

func (s stubSessions) Touch(context.Context, string, string, string) error { return nil }

type stubEvents map[string]models.Event

func (s stubEvents) GetByCode(_ context.Context, code string) (models.Event, error) {
	e, ok := s[strings.ToUpper(code)]
	if !ok {
		return models.Event{}, fmt.Errorf("event %w", rules.ErrNotFound)
	}
	return e, nil
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	tok, err := security.IssueAccessToken(testSecret, security.Subject{
		UserID:    userID,
		SessionID: "sess-" + userID,
		DeviceID:  "dev-" + userID,
		Role:      role,
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func authFixture() (stubUsers, stubSessions) {
	users := stubUsers{
		"alice": {ID: "alice", Role: models.UserRoleUser, Status: models.UserStatusActive},
		"root":  {ID: "root", Role: models.UserRoleAdmin, Status: models.UserStatusActive},
		"mallo": {ID: "mallo", Role: models.UserRoleUser, Status: models.UserStatusSuspended},
		"bob":   {ID: "bob", Role: models.UserRoleUser, Status: models.UserStatusActive},
	}
	sessions := stubSessions{}
	for id := range users {
		sessions["sess-"+id] = models.Session{ID: "sess-" + id, UserID: id, DeviceID: "dev-" + id}
	}
	return users, sessions
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body.Error.Code
}

func TestAuth(t *testing.T) {
	users, sessions := authFixture()
	router := gin.New()
	router.GET("/me", Auth(testSecret, users, sessions), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.String(http.StatusOK, user.ID)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"valid", "Bearer " + token(t, "alice", "user"), http.StatusOK},
		{"suspended", "Bearer " + token(t, "mallo", "user"), http.StatusForbidden},
		{"unknown session", "Bearer " + token(t, "ghost", "user"), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
		}
	}
}

func TestRequireEventOwner(t *testing.T) {
	users, sessions := authFixture()
	alice := "alice"
	events := stubEvents{
		"OWNED1": {ID: "e1", Code: "OWNED1", CreatedByID: &alice},
		"LEGACY": {ID: "e2", Code: "LEGACY"},
	}

	router := gin.New()
	router.DELETE("/events/:code",
		Auth(testSecret, users, sessions),
		RequireEventOwner(events),
		func(c *gin.Context) {
			event, _ := Event(c)
			c.String(http.StatusOK, event.ID)
		},
	)

	cases := []struct {
		name   string
		user   string
		role   string
		code   string
		status int
	}{
		{"owner", "alice", "user", "owned1", http.StatusOK},
		{"stranger", "bob", "user", "OWNED1", http.StatusForbidden},
		{"admin", "root", "admin", "OWNED1", http.StatusOK},
		{"legacy user", "alice", "user", "LEGACY", http.StatusForbidden},
		{"legacy admin", "root", "admin", "LEGACY", http.StatusOK},
		{"missing", "alice", "user", "NOPE00", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodDelete, "/events/"+tc.code, nil)
		req.Header.Set("Authorization", "Bearer "+token(t, tc.user, tc.role))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
		}
	}
}

func TestRequireRoles(t *testing.T) {
	users, sessions := authFixture()
	router := gin.New()
	router.GET("/admin", Auth(testSecret, users, sessions), RequireRoles(models.UserRoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for user, want := range map[string]int{"alice": http.StatusForbidden, "root": http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token(t, user, string(users[user].Role)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", user, rec.Code, want)
		}
	}
}

func TestGate(t *testing.T) {
	router := gin.New()
	router.Use(Gate(testSecret, "snapify_access"))
	router.NoRoute(func(c *gin.Context) { c.String(http.StatusOK, "page") })

	cases := []struct {
		name     string
		path     string
		cookie   string
		status   int
		location string
	}{
		{"guest admin", "/admin/events", "", http.StatusFound, "/auth/signin"},
		{"guest dashboard", "/dashboard", "", http.StatusFound, "/auth/signin"},
		{"guest create", "/events/create", "", http.StatusFound, "/auth/signup"},
		{"guest event page", "/events/ABC123", "", http.StatusFound, "/capture/ABC123"},
		{"user admin", "/admin", token(t, "alice", "user"), http.StatusFound, "/"},
		{"user event page", "/events/ABC123", token(t, "alice", "user"), http.StatusOK, ""},
		{"admin admin", "/admin", token(t, "root", "admin"), http.StatusOK, ""},
		{"forged cookie", "/dashboard", "not-a-token", http.StatusFound, "/auth/signin"},
		{"guest capture", "/capture/ABC123", "", http.StatusOK, ""},
		{"api untouched", "/api/v1/events/ABC123", "", http.StatusOK, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.cookie != "" {
			req.AddCookie(&http.Cookie{Name: "snapify_access", Value: tc.cookie})
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.status)
			continue
		}
		if tc.location != "" && rec.Header().Get("Location") != tc.location {
			t.Errorf("%s: location = %q, want %q", tc.name, rec.Header().Get("Location"), tc.location)
		}
	}
}

type memNonces map[string]bool

func (m memNonces) Remember(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m[key] {
		return false, nil
	}
	m[key] = true
	return true, nil
}

func TestSignature(t *testing.T) {
	users, sessions := authFixture()
	router := gin.New()
	router.POST("/events",
		Auth(testSecret, users, sessions),
		Signature(true, "sig-secret", memNonces{}),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)

	body := `{"title":"Party"}`
	date := time.Now().UTC().Format(time.RFC3339)
	sig := security.Sign("sig-secret", security.SignedRequest{
		DeviceID: "dev-alice",
		Method:   http.MethodPost,
		Path:     "/events",
		Body:     []byte(body),
		Date:     date,
		Nonce:    "n-1",
	})

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token(t, "alice", "user"))
		if signature != "" {
			req.Header.Set(security.HeaderDate, date)
			req.Header.Set(security.HeaderNonce, "n-1")
			req.Header.Set(security.HeaderSignature, signature)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(""); rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "SIGNATURE_REQUIRED" {
		t.Fatalf("unsigned: %d %s", rec.Code, rec.Body.String())
	}
	if rec := send("bogus"); rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "SIGNATURE_INVALID" {
		t.Fatalf("bad signature: %d %s", rec.Code, rec.Body.String())
	}
	if rec := send(sig); rec.Code != http.StatusCreated {
		t.Fatalf("signed: %d %s", rec.Code, rec.Body.String())
	}
	if rec := send(sig); rec.Code != http.StatusUnauthorized || errorCode(t, rec) != "SIGNATURE_REPLAYED" {
		t.Fatalf("replay: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignatureRejectsOversizedBody(t *testing.T) {
	users, sessions := authFixture()
	router := gin.New()
	router.POST("/events",
		Auth(testSecret, users, sessions),
		Signature(true, "sig-secret", memNonces{}),
		func(c *gin.Context) { c.Status(http.StatusCreated) },
	)

	req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(strings.Repeat("a", MaxSignedBody+1)))
	req.Header.Set("Authorization", "Bearer "+token(t, "alice", "user"))
	req.Header.Set(security.HeaderDate, time.Now().UTC().Format(time.RFC3339))
	req.Header.Set(security.HeaderNonce, "n-big")
	req.Header.Set(security.HeaderSignature, "whatever")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge || errorCode(t, rec) != "PAYLOAD_TOO_LARGE" {
		t.Fatalf("oversized body: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignatureDisabled(t *testing.T) {
	router := gin.New()
	router.POST("/x", Signature(false, "", nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://snap.example"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://snap.example")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://snap.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin allowed: %q", got)
	}
}

func TestRecoveryAndRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Recovery(zerolog.Nop()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(requestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != "INTERNAL_ERROR" {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get(requestIDHeader) != "req-1" {
		t.Fatalf("request id = %q", rec.Header().Get(requestIDHeader))
	}
}
