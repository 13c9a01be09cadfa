package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/angelmondragon/earnings-ledger/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testModel struct {
	ID        int
	Reference string `gorm:"uniqueIndex:ux_test_models_reference"`
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := dbtest.Open(t, &testModel{})
	client := NewFromGorm(conn)

	ctx := context.Background()
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Reference: "committed"}).Error
	}))

	var count int64
	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count)

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Reference: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	require.NoError(t, conn.Model(&testModel{}).Count(&count).Error)
	require.Equal(t, int64(1), count, "rollback should leave the committed row only")
}

func TestPing(t *testing.T) {
	client := NewFromGorm(dbtest.Open(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestForUpdateIsIgnoredBySQLite(t *testing.T) {
	conn := dbtest.Open(t, &testModel{})
	require.NoError(t, conn.Create(&testModel{Reference: "locked"}).Error)

	client := NewFromGorm(conn)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var row testModel
		return ForUpdate(tx).Where("reference = ?", "locked").First(&row).Error
	})
	require.NoError(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	conn := dbtest.Open(t, &testModel{})
	require.NoError(t, conn.Create(&testModel{Reference: "dup"}).Error)

	err := conn.Create(&testModel{Reference: "dup"}).Error
	require.Error(t, err)
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "reference"))
	require.False(t, IsUniqueViolation(err, "invoice_number"))

	require.False(t, IsUniqueViolation(errors.New("connection reset"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
	require.True(t, IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "ux_invoices_invoice_number"`), "invoice_number"))
}

func TestIsNotFound(t *testing.T) {
	conn := dbtest.Open(t, &testModel{})
	var row testModel
	err := conn.First(&row, "reference = ?", "missing").Error
	require.True(t, IsNotFound(err))
	require.False(t, IsNotFound(errors.New("other")))
}

func TestWithTxReplaysSerializationFailures(t *testing.T) {
	conn := dbtest.Open(t, &testModel{})
	client := NewFromGorm(conn)

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&testModel{Reference: fmt.Sprintf("try-%d", attempts)}).Error; err != nil {
			return err
		}
		if attempts == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)

	var refs []string
	require.NoError(t, conn.Model(&testModel{}).Pluck("reference", &refs).Error)
	require.Equal(t, []string{"try-2"}, refs)
}

func TestWithTxGivesUpAfterRetries(t *testing.T) {
	client := NewFromGorm(dbtest.Open(t))
	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "retries exhausted")
	require.Equal(t, defaultTxRetries+1, attempts)
}

func TestWithTxDoesNotReplayOrdinaryErrors(t *testing.T) {
	client := NewFromGorm(dbtest.Open(t))
	attempts := 0
	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "23505"}
	})
	require.Equal(t, 1, attempts)
}
