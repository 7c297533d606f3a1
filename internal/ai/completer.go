package ai

import (
	"context"
	"log/slog"

	"github.com/suPer8Hu/comet/internal/chat"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

// Completer turns a conversation into one assistant reply. Errors are folded into the
// Outcome; Complete never panics on provider failures.
type Completer interface {
	Complete(ctx context.Context, history []chat.Message, cfg session.Config) Outcome
}

type Recorder interface {
	Record(ctx context.Context, res moderation.Result, ev moderation.Event) error
}

type Policy string

const (
	// store flagged output for audit, deliver anyway
	PolicyRecord Policy = "record"
	// store flagged output and withhold it
	PolicyBlock Policy = "block"
	PolicyOff   Policy = "off"
)

// OutputModeration re-checks assistant output after a successful completion.
type OutputModeration struct {
	Gate     moderation.Gate
	Recorder Recorder
	Policy   Policy
	Logger   *slog.Logger
}

func (m *OutputModeration) enabled() bool {
	return m != nil && m.Gate != nil && m.Policy != PolicyOff && m.Policy != ""
}

// check returns the outcome to deliver for a successful, non-empty text.
func (m *OutputModeration) check(ctx context.Context, provider session.Provider, out Outcome) Outcome {
	if !m.enabled() || out.Status != StatusSuccess || out.Text == "" {
		return out
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	res, err := m.Gate.Classify(ctx, out.Text)
	if err != nil {
		if m.Policy == PolicyBlock {
			return Outcome{Status: StatusProviderError, Detail: "output moderation unavailable: " + err.Error()}
		}
		logger.Warn("output moderation failed", "provider", provider, "err", err)
		return out
	}
	if !res.Flagged {
		return out
	}
	if m.Recorder != nil {
		if err := m.Recorder.Record(ctx, res, moderation.Event{Source: "output", Provider: string(provider)}); err != nil {
			logger.Error("record output moderation failed", "provider", provider, "moderation_id", res.ID, "err", err)
		}
	}
	if m.Policy == PolicyBlock {
		return Outcome{Status: StatusFlagged, Detail: "assistant output flagged: " + res.ID}
	}
	return out
}

// withPlaceholder renders history and appends the empty assistant turn.
func withPlaceholder(history []chat.Message, botName string) []chat.Message {
	msgs := chat.Render(history, botName)
	return append(msgs, chat.Message{Role: chat.RoleAssistant})
}
