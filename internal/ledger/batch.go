package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
	"github.com/angelmondragon/earnings-ledger/pkg/types"
)

// BatchResult aggregates per-item outcomes of a bulk request.
type BatchResult struct {
	Total     int                     `json:"total"`
	Succeeded int                     `json:"succeeded"`
	Failed    int                     `json:"failed"`
	Results   []types.BatchItemResult `json:"results"`
}

// SucceededIDs lists the ids that were processed successfully.
func (r BatchResult) SucceededIDs() []string {
	ids := make([]string, 0, r.Succeeded)
	for _, item := range r.Results {
		if item.Success {
			ids = append(ids, item.ID)
		}
	}
	return ids
}

// BatchMetrics observes bulk item outcomes.
type BatchMetrics interface {
	ObserveBatchItem(op string, err error)
}

// BatchRunner applies a single-item operation to many ids. Every item runs on
// its own; an item error becomes a failed result and never stops the loop.
type BatchRunner struct {
	logg    *logger.Logger
	metrics BatchMetrics
}

// NewBatchRunner builds a runner. metrics may be nil.
func NewBatchRunner(logg *logger.Logger, metrics BatchMetrics) *BatchRunner {
	return &BatchRunner{logg: logg, metrics: metrics}
}

// ValidateBatch rejects empty requests and requests above limit.
func ValidateBatch(ids []uuid.UUID, limit int) error {
	if len(ids) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one id is required")
	}
	if limit > 0 && len(ids) > limit {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "batch exceeds the limit of %d items", limit).
			WithDetails(map[string]any{"limit": limit, "received": len(ids)})
	}
	return nil
}

// Run calls fn once per distinct id, in order.
func (b *BatchRunner) Run(ctx context.Context, op string, ids []uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) BatchResult {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	result := BatchResult{Results: make([]types.BatchItemResult, 0, len(ids))}

	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		result.Total++

		err := b.runItem(ctx, id, fn)
		if b.metrics != nil {
			b.metrics.ObserveBatchItem(op, err)
		}
		if err != nil {
			result.Failed++
			result.Results = append(result.Results, types.BatchItemResult{
				ID:    id.String(),
				Error: pkgerrors.Message(err),
				Code:  string(pkgerrors.CodeOf(err)),
			})
			if b.logg != nil {
				b.logg.Warn(b.logg.WithFields(ctx, map[string]any{
					"op":      op,
					"item_id": id.String(),
					"error":   err.Error(),
				}), "batch item failed")
			}
			continue
		}
		result.Succeeded++
		result.Results = append(result.Results, types.BatchItemResult{ID: id.String(), Success: true})
	}
	return result
}

func (b *BatchRunner) runItem(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, id uuid.UUID) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("batch item panicked: %v", r))
		}
	}()
	return fn(ctx, id)
}
