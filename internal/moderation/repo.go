package moderation

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Insert persists r only when it is flagged; it reports whether a row was written.
func (r *Repo) Insert(ctx context.Context, res Result) (bool, error) {
	if !res.Flagged {
		return false, nil
	}
	scores, err := json.Marshal(res.CategoryScores)
	if err != nil {
		return false, err
	}
	rec := &Record{
		ModerationID:   res.ID,
		CategoryScores: scores,
		Flagged:        true,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return false, err
	}
	return true, nil
}

// ListRecent returns the newest records first.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var recs []Record
	if err := r.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
