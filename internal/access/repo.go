package access

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// NewRepo stamps add/remove dates with today's date in loc.
func NewRepo(db *gorm.DB, loc *time.Location) *Repo {
	if loc == nil {
		loc = time.UTC
	}
	return &Repo{db: db, loc: loc, now: time.Now}
}

// today returns the calendar date in the configured timezone, stored as a UTC midnight
// so that date comparisons do not depend on the driver's offset handling.
func (r *Repo) today() time.Time {
	return dateOf(r.now().In(r.loc))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Record appends a new entry. Duplicate active entries are allowed.
func (r *Repo) Record(ctx context.Context, userID int64, t Type) error {
	return r.db.WithContext(ctx).Create(&Entry{
		UserID:     userID,
		AccessType: t,
		AddDate:    r.today(),
	}).Error
}

// Revoke soft-deletes every active entry of (userID, t) and reports how many were touched.
// Revoking when nothing is active is not an error.
func (r *Repo) Revoke(ctx context.Context, userID int64, t Type) (int64, error) {
	res := r.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND access_type = ? AND rm_date IS NULL", userID, t).
		Update("rm_date", r.today())
	return res.RowsAffected, res.Error
}

// UserIDs returns the users holding an active entry of type t.
func (r *Repo) UserIDs(ctx context.Context, t Type) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("access_type = ? AND rm_date IS NULL", t).
		Distinct().
		Order("user_id ASC").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Has reports whether userID holds an active entry of type t.
func (r *Repo) Has(ctx context.Context, userID int64, t Type) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND access_type = ? AND rm_date IS NULL", userID, t).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// Types returns the distinct active access types of userID.
func (r *Repo) Types(ctx context.Context, userID int64) ([]Type, error) {
	var types []Type
	if err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND rm_date IS NULL", userID).
		Distinct().
		Order("access_type ASC").
		Pluck("access_type", &types).Error; err != nil {
		return nil, err
	}
	return types, nil
}

// History returns every entry of userID added within [from, to] (dates, inclusive),
// revoked ones included, oldest first. A zero bound is open.
func (r *Repo) History(ctx context.Context, userID int64, from, to time.Time) ([]Entry, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if !from.IsZero() {
		q = q.Where("add_date >= ?", dateOf(from))
	}
	if !to.IsZero() {
		q = q.Where("add_date <= ?", dateOf(to))
	}
	var entries []Entry
	if err := q.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
