package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/suPer8Hu/comet/internal/access"
	"github.com/suPer8Hu/comet/internal/moderation"
	"github.com/suPer8Hu/comet/internal/session"
)

type ModerationLister interface {
	ListRecent(ctx context.Context, limit int) ([]moderation.Record, error)
}

type AccessReader interface {
	UserIDs(ctx context.Context, t access.Type) ([]int64, error)
	History(ctx context.Context, userID int64, from, to time.Time) ([]access.Entry, error)
}

type Handler struct {
	Moderation ModerationLister
	Access     AccessReader
	Sessions   session.Store
	Location   *time.Location
	Logger     *slog.Logger
}

func NewHandler(mod ModerationLister, acc AccessReader, sessions session.Store, loc *time.Location, logger *slog.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Moderation: mod, Access: acc, Sessions: sessions, Location: loc, Logger: logger}
}
