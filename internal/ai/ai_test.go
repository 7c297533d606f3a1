package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

type fakeGate struct {
	res   moderation.Result
	err   error
	calls int
}

func (g *fakeGate) Classify(ctx context.Context, text string) (moderation.Result, error) {
	g.calls++
	return g.res, g.err
}

type fakeRecorder struct {
	got []moderation.Event
}

func (r *fakeRecorder) Record(ctx context.Context, res moderation.Result, ev moderation.Event) error {
	r.got = append(r.got, ev)
	return nil
}

func strPtr(s string) *string { return &s }

func TestOpenAIProvider_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hi there!"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "k", "be nice", "comet")
	history := []chat.Message{{Role: "alice", Content: "Hello"}, {Role: "comet", Content: "yo"}}
	out := p.Complete(context.Background(), history, session.Config{Provider: session.GPT, Model: "gpt-4o", Temperature: 0.5, TopP: 1, MaxTokens: 64})

	if out.Status != StatusSuccess || out.Text != "Hi there!" {
		t.Fatalf("outcome = %+v", out)
	}
	msgs, _ := got["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("messages = %v", got["messages"])
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "developer" || first["content"] != "be nice" {
		t.Fatalf("first message = %v", first)
	}
	if msgs[1].(map[string]any)["role"] != "user" || msgs[2].(map[string]any)["role"] != "assistant" {
		t.Fatalf("roles not normalized: %v", msgs)
	}
	last := msgs[3].(map[string]any)
	if last["role"] != "assistant" || last["content"] != "" {
		t.Fatalf("placeholder = %v", last)
	}
	if got["model"] != "gpt-4o" || got["temperature"] != 0.5 || got["max_tokens"] != float64(64) {
		t.Fatalf("params = %v", got)
	}
}

func TestOpenAIProvider_NullContentIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":null}}]}`))
	}))
	defer srv.Close()

	gate := &fakeGate{}
	p := NewOpenAIProvider(srv.URL, "", "", "comet")
	p.Output = &OutputModeration{Gate: gate, Policy: PolicyBlock}
	out := p.Complete(context.Background(), nil, session.Config{Model: "m"})
	if out.Status != StatusSuccess || out.Text != "" {
		t.Fatalf("outcome = %+v", out)
	}
	if gate.calls != 0 {
		t.Fatalf("moderation called for empty output")
	}
}

func TestProviders_ErrorClassification(t *testing.T) {
	cases := []struct {
		code int
		want Status
	}{
		{http.StatusBadRequest, StatusProviderError},
		{http.StatusInternalServerError, StatusProviderError},
		{http.StatusServiceUnavailable, StatusProviderError},
		{http.StatusUnauthorized, StatusUnknownError},
		{http.StatusTooManyRequests, StatusUnknownError},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"nope"}`, tc.code)
		}))
		cfg := session.Config{Model: "m", MaxTokens: 10}

		out := NewOpenAIProvider(srv.URL, "", "", "comet").Complete(context.Background(), nil, cfg)
		if out.Status != tc.want {
			t.Fatalf("openai %d: status = %v", tc.code, out.Status)
		}
		out = NewAnthropicProvider(srv.URL, "", "comet").Complete(context.Background(), nil, cfg)
		if out.Status != tc.want {
			t.Fatalf("anthropic %d: status = %v", tc.code, out.Status)
		}
		srv.Close()
	}
}

func TestProviders_ConnectionErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	out := NewOpenAIProvider(url, "", "", "comet").Complete(context.Background(), nil, session.Config{Model: "m"})
	if out.Status != StatusProviderError {
		t.Fatalf("status = %v (%s)", out.Status, out.Detail)
	}
}

func TestAnthropicProvider_SystemAndJoin(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "k" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("headers = %v", r.Header)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hi "},{"type":"tool_use"},{"type":"text","text":"there!"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(srv.URL, "k", "comet")
	cfg := session.Config{Provider: session.Claude, Model: "claude", MaxTokens: 100, Temperature: 0.3, TopP: 0.9, SystemPrompt: strPtr("sys")}
	out := p.Complete(context.Background(), []chat.Message{{Role: "bob", Content: "Hello"}}, cfg)
	if out.Status != StatusSuccess || out.Text != "Hi there!" {
		t.Fatalf("outcome = %+v", out)
	}
	if got["system"] != "sys" {
		t.Fatalf("system = %v", got["system"])
	}
	msgs := got["messages"].([]any)
	for _, m := range msgs {
		if m.(map[string]any)["role"] == "developer" {
			t.Fatalf("developer message leaked into messages: %v", msgs)
		}
	}
}

func TestOutputModeration_Policies(t *testing.T) {
	flagged := moderation.Result{ID: "modr-1", Flagged: true}
	ctx := context.Background()

	rec := &fakeRecorder{}
	m := &OutputModeration{Gate: &fakeGate{res: flagged}, Recorder: rec, Policy: PolicyRecord}
	if out := m.check(ctx, session.GPT, Success("bad")); out.Status != StatusSuccess || out.Text != "bad" {
		t.Fatalf("record policy outcome = %+v", out)
	}
	if len(rec.got) != 1 || rec.got[0].Source != "output" || rec.got[0].Provider != "gpt" {
		t.Fatalf("recorded = %+v", rec.got)
	}

	m = &OutputModeration{Gate: &fakeGate{res: flagged}, Recorder: &fakeRecorder{}, Policy: PolicyBlock}
	if out := m.check(ctx, session.GPT, Success("bad")); out.Status != StatusFlagged || out.Text != "" {
		t.Fatalf("block policy outcome = %+v", out)
	}

	gate := &fakeGate{res: flagged}
	m = &OutputModeration{Gate: gate, Policy: PolicyOff}
	if out := m.check(ctx, session.GPT, Success("bad")); out.Status != StatusSuccess || gate.calls != 0 {
		t.Fatalf("off policy outcome = %+v calls=%d", out, gate.calls)
	}

	m = &OutputModeration{Gate: &fakeGate{err: errors.New("down")}, Policy: PolicyBlock}
	if out := m.check(ctx, session.GPT, Success("x")); out.Status != StatusProviderError {
		t.Fatalf("block with gate error = %+v", out)
	}
	m = &OutputModeration{Gate: &fakeGate{err: errors.New("down")}, Policy: PolicyRecord}
	if out := m.check(ctx, session.GPT, Success("x")); out.Status != StatusSuccess {
		t.Fatalf("record with gate error = %+v", out)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	p := NewOpenAIProvider("", "", "", "comet")
	r.Register(session.GPT, p)
	got, err := r.Get(session.GPT)
	if err != nil || got != p {
		t.Fatalf("Get(gpt) = %v, %v", got, err)
	}
	if _, err := r.Get(session.Claude); err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}
