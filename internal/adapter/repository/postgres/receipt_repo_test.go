package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transfa/transfa-core/internal/domain"
	"github.com/transfa/transfa-core/internal/usecase/reconciler"
)

func newMockRepo(t *testing.T) (*ReceiptRepository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewReceiptRepository(&DB{DB: sqlDB}), mock
}

func TestReceiptRepository_RecordResult(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := reconciler.Result{
		Kind: domain.OutcomePartialFailure,
		Receipts: []domain.Receipt{
			{TransactionID: "tx_1", AmountMinor: 500000, FeeMinor: 1000, Narration: "rent", RecipientUsername: "bob"},
		},
		Failures: []domain.TransferFailure{
			{RecipientUsername: "carol", AmountMinor: 250000, Error: "Insufficient recipient KYC"},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_attempts")).
		WithArgs("01ATTEMPT", "partial_failure", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transfer_receipts")).
		WithArgs("tx_1", "01ATTEMPT", "bob", int64(500000), int64(1000), "rent").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transfer_failures")).
		WithArgs("01ATTEMPT", "carol", int64(250000), "Insufficient recipient KYC").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.RecordResult(context.Background(), "01ATTEMPT", result)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_RecordResultRollsBackOnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	result := reconciler.Result{
		Kind:     domain.OutcomeSuccess,
		Receipts: []domain.Receipt{{TransactionID: "tx_1", AmountMinor: 100, Narration: "tea", RecipientUsername: "bob"}},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_attempts")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO transfer_receipts")).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.RecordResult(context.Background(), "01ATTEMPT", result)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_UpdateStatus(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE transfer_receipts")).
		WithArgs("tx_1", "failed", "Recipient account closed").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), domain.TransactionStatus{
		TransactionID: "tx_1", Status: domain.StatusFailed, FailureReason: "Recipient account closed",
	})
	require.NoError(t, err)

	// Entries without an id were never stored.
	require.NoError(t, repo.UpdateStatus(context.Background(), domain.TransactionStatus{Status: domain.StatusFailed}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_ListRecent(t *testing.T) {
	repo, mock := newMockRepo(t)

	rows := sqlmock.NewRows([]string{
		"transaction_id", "attempt_id", "recipient_username", "amount", "fee", "narration", "status", "failure_reason",
	}).
		AddRow("tx_2", "01B", "carol", int64(250000), int64(1000), "gift", "completed", "").
		AddRow("tx_1", "01A", "bob", int64(500000), int64(1000), "rent", "pending", "")
	mock.ExpectQuery(regexp.QuoteMeta("FROM transfer_receipts")).WithArgs(10).WillReturnRows(rows)

	records, err := repo.ListRecent(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "tx_2", records[0].TransactionID)
	assert.Equal(t, domain.StatusCompleted, records[0].Status.Status)
	assert.Equal(t, int64(500000), records[1].AmountMinor)
	assert.NoError(t, mock.ExpectationsWereMet())
}
