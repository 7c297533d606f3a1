package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/db"
	"github.com/suPer8Hu/comet/internal/httpapi/handlers"
	"github.com/suPer8Hu/comet/internal/httpapi/middleware"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

const testSecret = "test-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router   *gin.Engine
	access   *access.Repo
	mod      *moderation.Repo
	sessions *session.MemoryStore
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Connect("sqlite", filepath.Join(t.TempDir(), "ops.db"))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := &testServer{
		access:   access.NewRepo(gdb, time.UTC),
		mod:      moderation.NewRepo(gdb),
		sessions: session.NewMemoryStore(),
	}
	h := handlers.NewHandler(s.mod, s.access, s.sessions, time.UTC, logger)
	s.router = NewRouter(h, testSecret, logger)

	s.token, err = middleware.IssueToken(testSecret, "ops", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return s
}

func (s *testServer) do(t *testing.T, method, path string, auth bool) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func TestPing(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodGet, "/ping", false)
	if code != http.StatusOK || env.Code != 0 {
		t.Fatalf("ping = %d %+v", code, env)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	if code, _ := s.do(t, http.MethodGet, "/moderation", false); code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", code)
	}

	other, _ := middleware.IssueToken("other-secret", "ops", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/moderation", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: %d", w.Code)
	}

	expired, _ := middleware.IssueToken(testSecret, "ops", -time.Minute)
	if _, err := middleware.ParseToken(testSecret, expired); err == nil {
		t.Fatalf("expired token accepted")
	}
}

func TestListModeration(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _ = s.mod.Insert(ctx, moderation.Result{ID: "modr-1", Flagged: true, CategoryScores: map[string]float64{"hate": 0.9}})
	_, _ = s.mod.Insert(ctx, moderation.Result{ID: "modr-2", Flagged: true, CategoryScores: map[string]float64{"violence": 0.8}})

	code, env := s.do(t, http.MethodGet, "/moderation?limit=1", true)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var data struct {
		Records []moderation.Record `json:"records"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(data.Records) != 1 || data.Records[0].ModerationID != "modr-2" {
		t.Fatalf("records = %+v", data.Records)
	}

	if code, _ := s.do(t, http.MethodGet, "/moderation?limit=abc", true); code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", code)
	}
}

func TestAccessEndpoints(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_ = s.access.Record(ctx, 42, access.Blocked)
	_ = s.access.Record(ctx, 43, access.Advanced)
	if _, err := s.access.Revoke(ctx, 42, access.Blocked); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	code, env := s.do(t, http.MethodGet, "/access/blocked", true)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var ids struct {
		UserIDs []int64 `json:"user_ids"`
	}
	_ = json.Unmarshal(env.Data, &ids)
	if len(ids.UserIDs) != 0 {
		t.Fatalf("blocked ids = %v", ids.UserIDs)
	}

	code, env = s.do(t, http.MethodGet, "/access/users/42/history", true)
	if code != http.StatusOK {
		t.Fatalf("history code = %d", code)
	}
	var hist struct {
		Entries []access.Entry `json:"entries"`
	}
	_ = json.Unmarshal(env.Data, &hist)
	if len(hist.Entries) != 1 || hist.Entries[0].RmDate == nil {
		t.Fatalf("history = %+v", hist.Entries)
	}

	if code, _ := s.do(t, http.MethodGet, "/access/superuser", true); code != http.StatusBadRequest {
		t.Fatalf("unknown type: %d", code)
	}
	if code, _ := s.do(t, http.MethodGet, "/access/users/42/history?from=yesterday", true); code != http.StatusBadRequest {
		t.Fatalf("bad date: %d", code)
	}
}

func TestGetSession(t *testing.T) {
	s := newTestServer(t)
	sys := "secret system prompt"
	_ = s.sessions.Set(context.Background(), "t1", session.Config{Provider: session.Claude, Model: "claude", SystemPrompt: &sys})

	code, env := s.do(t, http.MethodGet, "/sessions/t1", true)
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var data struct {
		Config session.Config `json:"config"`
	}
	_ = json.Unmarshal(env.Data, &data)
	if data.Config.Model != "claude" || data.Config.SystemPrompt != nil {
		t.Fatalf("config = %+v", data.Config)
	}

	if code, _ := s.do(t, http.MethodGet, "/sessions/missing", true); code != http.StatusNotFound {
		t.Fatalf("missing: %d", code)
	}
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)
	if code, env := s.do(t, http.MethodGet, "/nope", false); code != http.StatusNotFound || env.Code != 40400 {
		t.Fatalf("no route = %d %+v", code, env)
	}
}
