package usecase

import (
	"context"
	"time"

	"github.com/asmraihan/fluidiy-lab-app/internal/logging"
)

// HistorySummary aggregates an owner's stored analysis results.
type HistorySummary struct {
	TotalResults int64      `json:"total_results"`
	NewestAt     *time.Time `json:"newest_at,omitempty"`
	OldestAt     *time.Time `json:"oldest_at,omitempty"`
}

// GetHistorySummary computes summary figures for one owner's history.
func (uc *ResultUseCase) GetHistorySummary(ctx context.Context, ownerID int64) (*HistorySummary, error) {
	agg, err := uc.repo.AggregateByOwner(ctx, ownerID)
	if err != nil {
		return nil, logging.NewOperationError("usecase.history_summary", "", err)
	}

	summary := &HistorySummary{TotalResults: agg.TotalCount}
	if agg.TotalCount > 0 {
		newest, oldest := agg.NewestAt, agg.OldestAt
		summary.NewestAt = &newest
		summary.OldestAt = &oldest
	}
	return summary, nil
}
