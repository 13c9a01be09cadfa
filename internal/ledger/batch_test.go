package ledger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
	"github.com/angelmondragon/earnings-ledger/pkg/logger"
)

type countingMetrics struct {
	ok, failed int
}

func (m *countingMetrics) ObserveBatchItem(_ string, err error) {
	if err != nil {
		m.failed++
		return
	}
	m.ok++
}

func TestBatchRunner_IsolatesFailures(t *testing.T) {
	buf := &bytes.Buffer{}
	metrics := &countingMetrics{}
	runner := NewBatchRunner(logger.New(logger.Options{ServiceName: "test", Output: buf}), metrics)

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	var seen []uuid.UUID
	result := runner.Run(context.Background(), "approve", []uuid.UUID{a, b, a, c}, func(_ context.Context, id uuid.UUID) error {
		seen = append(seen, id)
		switch id {
		case b:
			return pkgerrors.New(pkgerrors.CodeInvalidState, "commission is not pending")
		case c:
			panic("boom")
		}
		return nil
	})

	assert.Equal(t, []uuid.UUID{a, b, c}, seen, "duplicates run once and order is preserved")
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 2, result.Failed)
	require.Len(t, result.Results, 3)
	assert.True(t, result.Results[0].Success)
	assert.Equal(t, "commission is not pending", result.Results[1].Error)
	assert.Equal(t, string(pkgerrors.CodeInvalidState), result.Results[1].Code)
	assert.Equal(t, string(pkgerrors.CodeInternal), result.Results[2].Code)
	assert.Equal(t, []string{a.String()}, result.SucceededIDs())
	assert.Equal(t, 1, metrics.ok)
	assert.Equal(t, 2, metrics.failed)
	assert.Contains(t, buf.String(), "batch item failed")
}

func TestBatchRunner_PlainErrorsKeepMessage(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	id := uuid.New()
	result := runner.Run(context.Background(), "pay", []uuid.UUID{id}, func(context.Context, uuid.UUID) error {
		return errors.New("connection reset")
	})
	require.Len(t, result.Results, 1)
	assert.Equal(t, "connection reset", result.Results[0].Error)
	assert.Equal(t, string(pkgerrors.CodeInternal), result.Results[0].Code)
}

func TestValidateBatch(t *testing.T) {
	assert.True(t, pkgerrors.IsCode(ValidateBatch(nil, 10), pkgerrors.CodeValidation))
	ids := make([]uuid.UUID, 3)
	assert.True(t, pkgerrors.IsCode(ValidateBatch(ids, 2), pkgerrors.CodeValidation))
	assert.NoError(t, ValidateBatch(ids, 3))
	assert.NoError(t, ValidateBatch(ids, 0))
}
