package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// AnalysisResult is a persisted classification, one row per analyzed
// image. The interpreted parameters travel as a JSON blob in
// result_data; relational access only ever needs id, user_id and
// created_at.
type AnalysisResult struct {
	ID         int64     `gorm:"primaryKey"`
	UserID     int64     `gorm:"column:user_id;index"`
	ImageRef   string    `gorm:"column:image_ref;size:512"`
	ResultData string    `gorm:"column:result_data;type:text"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName overrides the default table name.
func (AnalysisResult) TableName() string {
	return "analysis_results"
}

// ResultAggregate summarizes an owner's stored results.
type ResultAggregate struct {
	TotalCount int64
	NewestAt   time.Time
	OldestAt   time.Time
}

// ResultRepository provides persistence APIs for analysis results.
type ResultRepository struct {
	db *gorm.DB
}

// NewResultRepository creates a new repository instance.
func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// AutoMigrate ensures the results schema is available.
func (r *ResultRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&AnalysisResult{})
}

// SaveResult persists a new row, assigning id and created_at.
func (r *ResultRepository) SaveResult(ctx context.Context, row *AnalysisResult) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListByOwner returns all results for an owner, newest first. An owner
// with no rows gets an empty slice, not an error.
func (r *ResultRepository) ListByOwner(ctx context.Context, ownerID int64) ([]AnalysisResult, error) {
	rows := []AnalysisResult{}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteOwned removes the row matching both id and owner. Zero matched
// rows is reported as ErrNotFound so callers can decide whether that is
// a 404; it is never treated as a storage failure.
func (r *ResultRepository) DeleteOwned(ctx context.Context, id, ownerID int64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, ownerID).
		Delete(&AnalysisResult{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AggregateByOwner computes summary counts for an owner's history.
func (r *ResultRepository) AggregateByOwner(ctx context.Context, ownerID int64) (*ResultAggregate, error) {
	var agg struct {
		TotalCount int64
		NewestAt   *time.Time
		OldestAt   *time.Time
	}
	err := r.db.WithContext(ctx).
		Model(&AnalysisResult{}).
		Select("COUNT(*) AS total_count, MAX(created_at) AS newest_at, MIN(created_at) AS oldest_at").
		Where("user_id = ?", ownerID).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}

	out := &ResultAggregate{TotalCount: agg.TotalCount}
	if agg.NewestAt != nil {
		out.NewestAt = *agg.NewestAt
	}
	if agg.OldestAt != nil {
		out.OldestAt = *agg.OldestAt
	}
	return out, nil
}
