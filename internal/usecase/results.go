package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asmraihan/fluidiy-lab-app/internal/inference"
	"github.com/asmraihan/fluidiy-lab-app/internal/logging"
	"github.com/asmraihan/fluidiy-lab-app/internal/repository"
)

// ErrResultNotFound indicates no stored result matched both id and owner.
var ErrResultNotFound = errors.New("usecase: result not found")

const listCacheTTL = 5 * time.Minute

// ResultRepository defines the persistence operations needed by the
// result flow.
type ResultRepository interface {
	SaveResult(ctx context.Context, row *repository.AnalysisResult) error
	ListByOwner(ctx context.Context, ownerID int64) ([]repository.AnalysisResult, error)
	DeleteOwned(ctx context.Context, id, ownerID int64) error
	AggregateByOwner(ctx context.Context, ownerID int64) (*repository.ResultAggregate, error)
}

// ResultUseCase encapsulates business logic around stored analysis
// results. The cache is best effort: a redis failure is logged and the
// request proceeds against the database.
type ResultUseCase struct {
	repo   ResultRepository
	cache  Cache
	logger *zap.Logger
}

// NewResultUseCase constructs a new result use case.
func NewResultUseCase(repo ResultRepository, cache Cache, logger *zap.Logger) *ResultUseCase {
	return &ResultUseCase{
		repo:   repo,
		cache:  cache,
		logger: logger.Named("result_usecase"),
	}
}

// SaveResult persists an unsaved analysis result for its owner and
// returns the stored row with id and creation time assigned.
func (uc *ResultUseCase) SaveResult(ctx context.Context, ownerID int64, candidate *inference.Result) (*inference.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.save_result", requestID)

	data, err := json.Marshal(candidate.Parameters)
	if err != nil {
		return nil, logging.NewOperationError("usecase.encode_result", requestID, err)
	}

	row := &repository.AnalysisResult{
		UserID:     ownerID,
		ImageRef:   candidate.ImageRef,
		ResultData: string(data),
	}
	if err := uc.repo.SaveResult(ctx, row); err != nil {
		wrapped := logging.NewOperationError("usecase.save_result", requestID, err)
		opLogger.Error("failed to persist result", zap.Error(wrapped))
		return nil, wrapped
	}

	uc.invalidateListCache(ctx, ownerID, opLogger)

	return &inference.Result{
		ID:         row.ID,
		OwnerID:    row.UserID,
		CreatedAt:  row.CreatedAt,
		ImageRef:   row.ImageRef,
		Parameters: candidate.Parameters,
	}, nil
}

// ListResults returns the owner's history, newest first.
func (uc *ResultUseCase) ListResults(ctx context.Context, ownerID int64) ([]inference.Result, error) {
	opLogger := logging.WithOperation(uc.logger, "usecase.list_results", "")
	cacheKey := listCacheKey(ownerID)

	if uc.cache != nil {
		if cached, err := uc.cache.Get(ctx, cacheKey); err == nil {
			var results []inference.Result
			decodeErr := json.Unmarshal([]byte(cached), &results)
			if decodeErr == nil {
				return results, nil
			}
			opLogger.Warn("failed to decode cached results", zap.Error(decodeErr))
		}
	}

	rows, err := uc.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		wrapped := logging.NewOperationError("usecase.list_results", "", err)
		opLogger.Error("failed to load results", zap.Error(wrapped))
		return nil, wrapped
	}

	results := make([]inference.Result, 0, len(rows))
	for _, row := range rows {
		results = append(results, uc.toResult(row, opLogger))
	}

	if uc.cache != nil {
		if serialized, err := json.Marshal(results); err == nil {
			if err := uc.cache.Set(ctx, cacheKey, string(serialized), listCacheTTL); err != nil {
				opLogger.Warn("failed to cache results", zap.Error(err))
			}
		}
	}

	return results, nil
}

// DeleteResult removes the result only when both id and owner match.
func (uc *ResultUseCase) DeleteResult(ctx context.Context, id, ownerID int64) error {
	opLogger := logging.WithOperation(uc.logger, "usecase.delete_result", "")

	if err := uc.repo.DeleteOwned(ctx, id, ownerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResultNotFound
		}
		wrapped := logging.NewOperationError("usecase.delete_result", "", err)
		opLogger.Error("failed to delete result", zap.Error(wrapped))
		return wrapped
	}

	uc.invalidateListCache(ctx, ownerID, opLogger)
	return nil
}

func (uc *ResultUseCase) toResult(row repository.AnalysisResult, opLogger *zap.Logger) inference.Result {
	result := inference.Result{
		ID:        row.ID,
		OwnerID:   row.UserID,
		CreatedAt: row.CreatedAt,
		ImageRef:  row.ImageRef,
	}
	if err := json.Unmarshal([]byte(row.ResultData), &result.Parameters); err != nil {
		opLogger.Warn("failed to decode stored result data",
			zap.Int64("result_id", row.ID), zap.Error(err))
		result.Parameters = []inference.ParameterResult{}
	}
	return result
}

func (uc *ResultUseCase) invalidateListCache(ctx context.Context, ownerID int64, opLogger *zap.Logger) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Del(ctx, listCacheKey(ownerID)); err != nil {
		opLogger.Warn("failed to invalidate result cache", zap.Error(err))
	}
}

func listCacheKey(ownerID int64) string {
	return fmt.Sprintf("results:%d", ownerID)
}
