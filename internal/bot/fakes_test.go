package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/ai"
	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/config"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

const (
	testGuild = int64(10)
	testAdmin = int64(1)
	testUser  = int64(42)
)

type fakeAccess struct {
	mu    sync.Mutex
	types map[int64][]access.Type
	err   error
}

func newFakeAccess() *fakeAccess { return &fakeAccess{types: map[int64][]access.Type{}} }

func (f *fakeAccess) Has(ctx context.Context, userID int64, t access.Type) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, got := range f.types[userID] {
		if got == t {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccess) Record(ctx context.Context, userID int64, t access.Type) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types[userID] = append(f.types[userID], t)
	return nil
}

func (f *fakeAccess) Revoke(ctx context.Context, userID int64, t access.Type) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []access.Type
	var n int64
	for _, got := range f.types[userID] {
		if got == t {
			n++
			continue
		}
		kept = append(kept, got)
	}
	f.types[userID] = kept
	return n, nil
}

func (f *fakeAccess) Types(ctx context.Context, userID int64) ([]access.Type, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]access.Type(nil), f.types[userID]...), nil
}

type fakeGate struct {
	flagged bool
	err     error
	texts   []string
}

func (g *fakeGate) Classify(ctx context.Context, text string) (moderation.Result, error) {
	g.texts = append(g.texts, text)
	if g.err != nil {
		return moderation.Result{}, g.err
	}
	return moderation.Result{ID: "modr-test", Flagged: g.flagged}, nil
}

type fakeRecorder struct{ events []moderation.Event }

func (r *fakeRecorder) Record(ctx context.Context, res moderation.Result, ev moderation.Event) error {
	r.events = append(r.events, ev)
	return nil
}

type completerCall struct {
	history []chat.Message
	cfg     session.Config
}

type fakeCompleter struct {
	out   ai.Outcome
	calls []completerCall
}

func (c *fakeCompleter) Complete(ctx context.Context, history []chat.Message, cfg session.Config) ai.Outcome {
	c.calls = append(c.calls, completerCall{history: history, cfg: cfg})
	return c.out
}

type fakeResponder struct {
	// steps records the call order: "defer", "reply", "notify", "open"
	steps    []string
	gate     *fakeGate
	gateSeen int
	replies  []string
	notices  []Notice
	starts   []StartEmbed
	names    []string
	threadID string
	openErr  error
}

func (r *fakeResponder) Defer(ctx context.Context) error {
	r.steps = append(r.steps, "defer")
	if r.gate != nil {
		r.gateSeen = len(r.gate.texts)
	}
	return nil
}

func (r *fakeResponder) Reply(ctx context.Context, text string) error {
	r.steps = append(r.steps, "reply")
	r.replies = append(r.replies, text)
	return nil
}

func (r *fakeResponder) Notify(ctx context.Context, n Notice) error {
	r.steps = append(r.steps, "notify")
	r.notices = append(r.notices, n)
	return nil
}

func (r *fakeResponder) OpenThread(ctx context.Context, start StartEmbed, name string) (string, error) {
	if r.openErr != nil {
		return "", r.openErr
	}
	r.steps = append(r.steps, "open")
	r.starts = append(r.starts, start)
	r.names = append(r.names, name)
	return r.threadID, nil
}

type sent struct {
	threadID string
	text     string
}

type fakePlatform struct {
	sent    []sent
	notices []Notice
	closed  []string
	history map[string][]chat.PlatformMessage
	limits  []int
}

func (p *fakePlatform) Send(ctx context.Context, threadID, text string) error {
	p.sent = append(p.sent, sent{threadID, text})
	return nil
}

func (p *fakePlatform) Notify(ctx context.Context, threadID string, n Notice) error {
	p.notices = append(p.notices, n)
	return nil
}

func (p *fakePlatform) Typing(ctx context.Context, threadID string) error { return nil }

func (p *fakePlatform) History(ctx context.Context, threadID string, limit int) ([]chat.PlatformMessage, error) {
	p.limits = append(p.limits, limit)
	h := p.history[threadID]
	if len(h) > limit {
		h = h[:limit]
	}
	return h, nil
}

func (p *fakePlatform) Close(ctx context.Context, threadID string) error {
	p.closed = append(p.closed, threadID)
	return nil
}

type harness struct {
	cfg      *config.Config
	access   *fakeAccess
	gate     *fakeGate
	recorder *fakeRecorder
	sessions *session.MemoryStore
	gpt      *fakeCompleter
	claude   *fakeCompleter
	platform *fakePlatform
	svc      *Service
}

func testConfig() *config.Config {
	return &config.Config{
		AuthorizedServerIDs: []int64{testGuild},
		AdminUserIDs:        []int64{testAdmin},
		BotName:             "comet",
		MaxCharsPerResponse: 2000,
		GPT: config.ProviderConfig{
			Models:             []config.ModelChoice{{Name: "gpt-4o-mini", Value: 100}, {Name: "gpt-4o", Value: 101}},
			DefaultTemperature: 1,
			DefaultTopP:        1,
			MaxContextWindow:   5,
			MaxTokens:          256,
			OutputModeration:   "record",
			InputModeration:    true,
		},
		Claude: config.ProviderConfig{
			Models:             []config.ModelChoice{{Name: "claude-3-5-sonnet-latest", Value: 200}},
			DefaultTemperature: 1,
			DefaultTopP:        1,
			MaxContextWindow:   5,
			MaxTokens:          512,
			OutputModeration:   "off",
		},
		ChatModels: []config.ModelChoice{{Name: "gpt-4o-mini", Value: 100}},
		Prompts:    config.Prompts{Claude: "default claude system"},
	}
}

func newHarness() *harness {
	h := &harness{
		cfg:      testConfig(),
		access:   newFakeAccess(),
		gate:     &fakeGate{},
		recorder: &fakeRecorder{},
		sessions: session.NewMemoryStore(),
		gpt:      &fakeCompleter{out: ai.Success("Hi there!")},
		claude:   &fakeCompleter{out: ai.Success("Hello from claude")},
		platform: &fakePlatform{history: map[string][]chat.PlatformMessage{}},
	}
	reg := ai.NewRegistry()
	reg.Register(session.GPT, h.gpt)
	reg.Register(session.Claude, h.claude)
	guard := NewGuard(h.cfg.AuthorizedServerIDs, h.cfg.AdminUserIDs, h.access)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewService(h.cfg, guard, h.gate, h.recorder, h.sessions, reg, h.platform, logger)
	return h
}

var errBoom = errors.New("boom")

func f64(v float64) *float64 { return &v }
