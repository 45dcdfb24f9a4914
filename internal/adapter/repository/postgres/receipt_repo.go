package postgres

import (
	"context"
	"fmt"

	"github.com/transfa/transfa-core/internal/domain"
	"github.com/transfa/transfa-core/internal/usecase/reconciler"
)

// ReceiptRepository keeps the history of reconciled submission attempts
type ReceiptRepository struct {
	db *DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// RecordResult stores one attempt with its receipts and failures in a database transaction
func (r *ReceiptRepository) RecordResult(ctx context.Context, attemptID string, result reconciler.Result) error {
	// Start a database transaction
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	_, err = dbTx.ExecContext(ctx, `
		INSERT INTO submission_attempts (id, outcome, message)
		VALUES ($1, $2, $3)
	`, attemptID, string(result.Kind), result.Message)
	if err != nil {
		return fmt.Errorf("failed to insert submission attempt: %w", err)
	}

	insertReceiptQuery := `
		INSERT INTO transfer_receipts (transaction_id, attempt_id, recipient_username, amount, fee, narration)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (transaction_id) DO NOTHING
	`
	for _, rc := range result.Receipts {
		_, err = dbTx.ExecContext(ctx, insertReceiptQuery,
			rc.TransactionID,
			attemptID,
			rc.RecipientUsername,
			rc.AmountMinor,
			rc.FeeMinor,
			rc.Narration,
		)
		if err != nil {
			return fmt.Errorf("failed to insert receipt: %w", err)
		}
	}

	insertFailureQuery := `
		INSERT INTO transfer_failures (attempt_id, recipient_username, amount, error)
		VALUES ($1, $2, $3, $4)
	`
	for _, f := range result.Failures {
		_, err = dbTx.ExecContext(ctx, insertFailureQuery, attemptID, f.RecipientUsername, f.AmountMinor, f.Error)
		if err != nil {
			return fmt.Errorf("failed to insert transfer failure: %w", err)
		}
	}

	// Commit the transaction
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// UpdateStatus records the latest observed status of a receipt
func (r *ReceiptRepository) UpdateStatus(ctx context.Context, status domain.TransactionStatus) error {
	if status.TransactionID == "" {
		return nil
	}

	query := `
		UPDATE transfer_receipts
		SET status = $2, failure_reason = $3
		WHERE transaction_id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, status.TransactionID, string(status.Status), status.FailureReason); err != nil {
		return fmt.Errorf("failed to update receipt status: %w", err)
	}
	return nil
}

// ReceiptRecord is a stored receipt with its last known status
type ReceiptRecord struct {
	domain.Receipt
	AttemptID string
	Status    domain.TransactionStatus
}

// ListRecent returns the most recent receipts, newest first
func (r *ReceiptRepository) ListRecent(ctx context.Context, limit int) ([]ReceiptRecord, error) {
	query := `
		SELECT transaction_id, attempt_id, recipient_username, amount, fee, narration, status, failure_reason
		FROM transfer_receipts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var records []ReceiptRecord
	for rows.Next() {
		var (
			rec    ReceiptRecord
			status string
		)
		err := rows.Scan(
			&rec.TransactionID,
			&rec.AttemptID,
			&rec.RecipientUsername,
			&rec.AmountMinor,
			&rec.FeeMinor,
			&rec.Narration,
			&status,
			&rec.Status.FailureReason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		rec.Status.TransactionID = rec.TransactionID
		rec.Status.Status = domain.NormalizeStatus(status)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating receipts: %w", err)
	}

	return records, nil
}
