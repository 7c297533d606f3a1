package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/suPer8Hu/comet/internal/ai"
	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/config"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

type Command string

const (
	CommandGPT    Command = "gpt"
	CommandClaude Command = "claude"
	CommandChat   Command = "chat"
)

const threadNamePromptLen = 30

// commandDef is the static description of a thread-creation command.
type commandDef struct {
	prefix   string
	provider session.Provider
	models   []config.ModelChoice
	settings config.ProviderConfig
	maxTemp  float64
	guards   []Predicate
}

// StartRequest is a thread-creation command invocation.
type StartRequest struct {
	Command  Command
	Caller   Caller
	UserName string
	Prompt   string
	Model    int
	// nil means the provider default
	Temperature  *float64
	TopP         *float64
	SystemPrompt *string
}

// IncomingMessage is a message posted to a channel the bot can see.
type IncomingMessage struct {
	ChannelID  string
	InThread   bool
	ThreadName string
	// thread created by this bot
	BotOwned     bool
	Archived     bool
	Locked       bool
	MessageCount int

	FromSelf bool
	AuthorID int64
	Content  string
}

type Service struct {
	cfg       *config.Config
	commands  map[Command]commandDef
	gate      moderation.Gate
	recorder  ai.Recorder
	sessions  session.Store
	providers *ai.Registry
	platform  Platform
	logger    *slog.Logger
}

func NewService(cfg *config.Config, guard *Guard, gate moderation.Gate, recorder ai.Recorder,
	sessions session.Store, providers *ai.Registry, platform Platform, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg: cfg,
		commands: map[Command]commandDef{
			CommandGPT: {
				prefix: "g:", provider: session.GPT, models: cfg.GPT.Models, settings: cfg.GPT, maxTemp: 2,
				guards: []Predicate{guard.AuthorizedServer(), guard.NotBlocked()},
			},
			CommandChat: {
				prefix: ">>>", provider: session.GPT, models: cfg.ChatModels, settings: cfg.GPT, maxTemp: 2,
				guards: []Predicate{guard.AuthorizedServer(), guard.NotBlocked()},
			},
			CommandClaude: {
				prefix: "c:", provider: session.Claude, models: cfg.Claude.Models, settings: cfg.Claude, maxTemp: 1,
				guards: []Predicate{guard.AuthorizedServer(), guard.AdvancedUser(), guard.NotBlocked()},
			},
		},
		gate:      gate,
		recorder:  recorder,
		sessions:  sessions,
		providers: providers,
		platform:  platform,
		logger:    logger,
	}
}

// SetPlatform attaches the transport once it exists; the Discord adapter needs the
// service for its handlers and the service needs the adapter for sending.
func (s *Service) SetPlatform(p Platform) { s.platform = p }

func (s *Service) settings(p session.Provider) config.ProviderConfig {
	if p == session.Claude {
		return s.cfg.Claude
	}
	return s.cfg.GPT
}

func (s *Service) recoverEvent(logger *slog.Logger, where string) {
	if r := recover(); r != nil {
		logger.Error("panic in event handler", "handler", where, "panic", r)
	}
}

func threadName(prefix, prompt string) string {
	runes := []rune(prompt)
	if len(runes) > threadNamePromptLen {
		runes = runes[:threadNamePromptLen]
	}
	return prefix + " " + string(runes)
}

func (s *Service) validate(def commandDef, req StartRequest) (session.Config, error) {
	choice, ok := config.Lookup(def.models, req.Model)
	if !ok {
		return session.Config{}, &ValidationError{Field: "model", Message: "unknown model"}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return session.Config{}, &ValidationError{Field: "prompt", Message: "**prompt** must not be empty"}
	}

	temperature := def.settings.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	topP := def.settings.DefaultTopP
	if req.TopP != nil {
		topP = *req.TopP
	}
	if temperature < 0 || temperature > def.maxTemp {
		return session.Config{}, &ValidationError{
			Field:   "temperature",
			Message: fmt.Sprintf("**temperature** must be between 0.0 and %.1f", def.maxTemp),
		}
	}
	if topP < 0 || topP > 1 {
		return session.Config{}, &ValidationError{Field: "top_p", Message: "**top_p** must be between 0.0 and 1.0"}
	}

	cfg := session.Config{
		Provider:    def.provider,
		Model:       choice.Name,
		Temperature: temperature,
		TopP:        topP,
		MaxTokens:   def.settings.MaxTokens,
	}
	if def.provider == session.Claude {
		sys := s.cfg.Prompts.Claude
		if req.SystemPrompt != nil {
			sys = *req.SystemPrompt
		}
		cfg.SystemPrompt = &sys
	}
	return cfg, nil
}

// moderateInput runs the input gate. It reports whether the text may be forwarded;
// a gate failure counts as not verified.
func (s *Service) moderateInput(ctx context.Context, logger *slog.Logger, text string, ev moderation.Event) (bool, bool) {
	res, err := s.gate.Classify(ctx, text)
	if err != nil {
		logger.Error("input moderation failed", "err", err)
		return false, false
	}
	if !res.Flagged {
		return true, true
	}
	logger.Info("input flagged", "moderation_id", res.ID)
	if s.recorder != nil {
		ev.Source = "input"
		if err := s.recorder.Record(ctx, res, ev); err != nil {
			logger.Error("record input moderation failed", "moderation_id", res.ID, "err", err)
		}
	}
	return false, true
}

// StartThread handles gpt, claude and chat commands. Rejections leave no state behind.
func (s *Service) StartThread(ctx context.Context, req StartRequest, resp Responder) error {
	logger := s.logger.With("event_id", ulid.Make().String(), "command", req.Command, "user_id", req.Caller.UserID)
	defer s.recoverEvent(logger, "start_thread")

	def, ok := s.commands[req.Command]
	if !ok {
		return fmt.Errorf("unknown command %q", req.Command)
	}
	logger.Info("command invoked", "prompt", truncate(req.Prompt, 20))

	if err := Authorize(ctx, req.Caller, def.guards...); err != nil {
		if errors.Is(err, ErrPermission) {
			logger.Info("command denied", "err", err)
			_ = resp.Reply(ctx, msgPermissionDenied)
			return err
		}
		logger.Error("permission check failed", "err", err)
		_ = resp.Reply(ctx, noticeUnknownError.Text)
		return err
	}

	cfg, err := s.validate(def, req)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			_ = resp.Reply(ctx, ve.Message)
		}
		return err
	}

	if s.settings(def.provider).InputModeration {
		// the moderation round trip can outlast the interaction acknowledgement window
		if err := resp.Defer(ctx); err != nil {
			logger.Error("defer interaction failed", "err", err)
			return err
		}
		ev := moderation.Event{Provider: string(def.provider), UserID: req.Caller.UserID}
		allowed, verified := s.moderateInput(ctx, logger, req.Prompt, ev)
		if !verified {
			return resp.Reply(ctx, noticeUnverified.Text)
		}
		if !allowed {
			return resp.Notify(ctx, noticeInputFlagged)
		}
	}

	threadID, err := resp.OpenThread(ctx, StartEmbed{
		UserID:      req.Caller.UserID,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		TopP:        cfg.TopP,
		Prompt:      req.Prompt,
	}, threadName(def.prefix, req.Prompt))
	if err != nil {
		logger.Error("open thread failed", "err", err)
		return err
	}
	logger = logger.With("thread_id", threadID)

	if err := s.sessions.Set(ctx, threadID, cfg); err != nil {
		logger.Error("store session failed", "err", err)
		return s.platform.Notify(ctx, threadID, noticeUnknownError)
	}

	history := []chat.Message{{Role: req.UserName, Content: req.Prompt}}
	return s.complete(ctx, logger, threadID, history, cfg)
}

// HandleMessage continues a conversation in a thread this bot created. Anything else is
// ignored.
func (s *Service) HandleMessage(ctx context.Context, msg IncomingMessage) error {
	if !s.relayable(msg) {
		return nil
	}
	logger := s.logger.With("event_id", ulid.Make().String(), "thread_id", msg.ChannelID, "user_id", msg.AuthorID)
	defer s.recoverEvent(logger, "message")

	cfg, err := s.sessions.Get(ctx, msg.ChannelID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			logger.Warn("no session for thread", "err", err)
			return s.platform.Notify(ctx, msg.ChannelID, noticeConfigError)
		}
		logger.Error("load session failed", "err", err)
		return s.platform.Notify(ctx, msg.ChannelID, noticeUnknownError)
	}

	settings := s.settings(cfg.Provider)
	if msg.MessageCount > settings.MaxContextWindow {
		logger.Info("context limit reached", "message_count", msg.MessageCount, "window", settings.MaxContextWindow)
		if err := s.platform.Notify(ctx, msg.ChannelID, noticeClosing); err != nil {
			logger.Warn("send closing notice failed", "err", err)
		}
		return s.platform.Close(ctx, msg.ChannelID)
	}

	if settings.InputModeration {
		ev := moderation.Event{Provider: string(cfg.Provider), ThreadID: msg.ChannelID, UserID: msg.AuthorID}
		allowed, verified := s.moderateInput(ctx, logger, msg.Content, ev)
		if !verified {
			return s.platform.Notify(ctx, msg.ChannelID, noticeUnverified)
		}
		if !allowed {
			return s.platform.Notify(ctx, msg.ChannelID, noticeInputFlagged)
		}
	}

	recent, err := s.platform.History(ctx, msg.ChannelID, settings.MaxContextWindow)
	if err != nil {
		logger.Error("load history failed", "err", err)
		return s.platform.Notify(ctx, msg.ChannelID, noticeUnknownError)
	}
	return s.complete(ctx, logger, msg.ChannelID, chat.History(recent), cfg)
}

func (s *Service) relayable(msg IncomingMessage) bool {
	if msg.FromSelf || !msg.InThread || !msg.BotOwned || msg.Archived || msg.Locked {
		return false
	}
	return s.RelaysThread(msg.ThreadName)
}

// RelaysThread reports whether a thread name carries one of the command prefixes.
func (s *Service) RelaysThread(name string) bool {
	for _, def := range s.commands {
		if strings.HasPrefix(name, def.prefix) {
			return true
		}
	}
	return false
}

func (s *Service) complete(ctx context.Context, logger *slog.Logger, threadID string, history []chat.Message, cfg session.Config) error {
	completer, err := s.providers.Get(cfg.Provider)
	if err != nil {
		logger.Error("no completer", "err", err)
		return s.platform.Notify(ctx, threadID, noticeConfigError)
	}
	if err := s.platform.Typing(ctx, threadID); err != nil {
		logger.Debug("typing indicator failed", "err", err)
	}

	out := completer.Complete(ctx, history, cfg)
	logger.Info("completion finished", "provider", cfg.Provider, "model", cfg.Model, "status", out.Status)
	return s.deliver(ctx, logger, threadID, out)
}

func (s *Service) deliver(ctx context.Context, logger *slog.Logger, threadID string, out ai.Outcome) error {
	switch out.Status {
	case ai.StatusSuccess:
		if out.Text == "" {
			return s.platform.Notify(ctx, threadID, noticeEmpty)
		}
		for _, chunk := range chat.Split(out.Text, s.cfg.MaxCharsPerResponse) {
			if err := s.platform.Send(ctx, threadID, chunk); err != nil {
				return err
			}
		}
		return nil
	case ai.StatusFlagged:
		logger.Warn("completion withheld", "detail", out.Detail)
		return s.platform.Notify(ctx, threadID, noticeOutputFlagged)
	case ai.StatusProviderError:
		logger.Error("provider error", "detail", out.Detail)
		return s.platform.Notify(ctx, threadID, noticeProviderError)
	default:
		logger.Error("unknown completion error", "detail", out.Detail)
		return s.platform.Notify(ctx, threadID, noticeUnknownError)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
