package moderation

import (
	"context"
	"log/slog"
	"time"
)

// Event is the audit message fanned out for each stored flagged verdict.
type Event struct {
	ModerationID   string             `json:"moderation_id"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Source         string             `json:"source"` // "input" or "output"
	Provider       string             `json:"provider,omitempty"`
	ThreadID       string             `json:"thread_id,omitempty"`
	UserID         int64              `json:"user_id,omitempty"`
	At             time.Time          `json:"at"`
}

type Publisher interface {
	PublishModeration(ctx context.Context, ev Event) error
}

// Log stores flagged verdicts and optionally publishes them.
type Log struct {
	repo      *Repo
	publisher Publisher
	logger    *slog.Logger
}

func NewLog(repo *Repo, publisher Publisher, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{repo: repo, publisher: publisher, logger: logger}
}

// Record is a no-op for unflagged results. A failed publish is logged, not returned:
// the database row is the record of truth.
func (l *Log) Record(ctx context.Context, res Result, ev Event) error {
	written, err := l.repo.Insert(ctx, res)
	if err != nil || !written {
		return err
	}
	if l.publisher == nil {
		return nil
	}
	ev.ModerationID = res.ID
	ev.CategoryScores = res.CategoryScores
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	if err := l.publisher.PublishModeration(ctx, ev); err != nil {
		l.logger.Warn("publish moderation event failed", "moderation_id", res.ID, "err", err)
	}
	return nil
}

func (l *Log) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	return l.repo.ListRecent(ctx, limit)
}
