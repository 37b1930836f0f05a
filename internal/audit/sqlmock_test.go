package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcf-pg-loader/vcf-pg-loader/internal/domain"
)

func TestAppendBatchRollsBackOnPartialFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO audit_log")
	mock.ExpectExec("INSERT INTO audit_log").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = store.AppendBatch(context.Background(), []domain.AuditEntry{
		{EventTime: time.Now().UTC(), EventType: "x", Action: "x", Success: true, EntryHash: "h1"},
	})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendBatchCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO audit_log")
	mock.ExpectExec("INSERT INTO audit_log").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = store.AppendBatch(context.Background(), []domain.AuditEntry{
		{EventTime: time.Now().UTC(), EventType: "x", Action: "x", Success: true, EntryHash: "h1"},
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
