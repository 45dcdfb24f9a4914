package submitter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/transfa/transfa-core/internal/domain"
	"go.uber.org/zap"
)

const genericBulkFailureMessage = "Transfer failed. Please try again."

// Submitter routes a finalized draft set to the remote transfer service and classifies the result
type Submitter struct {
	Transfers domain.TransferService
	NewKey    func(prefix string) string
	logger    *zap.Logger
}

// NewSubmitter creates a new Submitter instance
func NewSubmitter(transfers domain.TransferService, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{
		Transfers: transfers,
		NewKey:    domain.NewIdempotencyKey,
		logger:    logger,
	}
}

// Submit sends the drafts with the given credential.
// Logic:
//  1. Check the local precondition (1..MaxBatchSize drafts)
//  2. One draft goes through SubmitSingle, two or more through SubmitBulk
//  3. Every call is a new logical attempt and gets a fresh idempotency key
//  4. Remote errors are classified: a rejected PIN or a missing PIN come back as
//     typed errors, anything else becomes a Failure outcome
//
// The draft set is never mutated here.
func (s *Submitter) Submit(ctx context.Context, drafts []domain.TransferDraft, cred domain.Credential) (domain.SubmissionOutcome, error) {
	if len(drafts) == 0 {
		return domain.SubmissionOutcome{}, domain.ErrNoDrafts
	}
	if len(drafts) > domain.MaxBatchSize {
		return domain.SubmissionOutcome{}, &domain.ValidationError{
			Field: "recipient",
			Msg:   fmt.Sprintf("you can send to at most %d recipients at once", domain.MaxBatchSize),
		}
	}

	key := s.NewKey(domain.IdempotencyPrefixTransfer)
	logger := s.logger.With(
		zap.String("idempotency_key", key),
		zap.Int("transfers", len(drafts)),
		zap.Int64("total_minor", domain.TotalAmount(drafts)),
	)

	if len(drafts) == 1 {
		return s.submitSingle(ctx, logger, drafts[0], cred, key)
	}
	return s.submitBulk(ctx, logger, drafts, cred, key)
}

func (s *Submitter) submitSingle(
	ctx context.Context,
	logger *zap.Logger,
	d domain.TransferDraft,
	cred domain.Credential,
	key string,
) (domain.SubmissionOutcome, error) {
	logger.Info("submitting single transfer", zap.String("recipient", d.Key()))

	result, err := s.Transfers.SubmitSingle(ctx, domain.SingleTransferRequest{
		Transfer:       toRequest(d),
		Credential:     cred,
		IdempotencyKey: key,
	})
	if err != nil {
		return s.classify(logger, []domain.TransferDraft{d}, err)
	}

	logger.Info("single transfer accepted", zap.String("transaction_id", result.TransactionID))
	return domain.Success([]domain.Receipt{{
		TransactionID:     result.TransactionID,
		AmountMinor:       result.AmountMinor,
		FeeMinor:          result.FeeMinor,
		Narration:         d.Narration,
		RecipientUsername: d.Recipient.Username,
	}}), nil
}

func (s *Submitter) submitBulk(
	ctx context.Context,
	logger *zap.Logger,
	drafts []domain.TransferDraft,
	cred domain.Credential,
	key string,
) (domain.SubmissionOutcome, error) {
	transfers := make([]domain.TransferRequest, 0, len(drafts))
	for _, d := range drafts {
		transfers = append(transfers, toRequest(d))
	}

	logger.Info("submitting bulk transfer")

	result, err := s.Transfers.SubmitBulk(ctx, domain.BulkTransferRequest{
		Transfers:      transfers,
		Credential:     cred,
		IdempotencyKey: key,
	})
	if err != nil {
		return s.classify(logger, drafts, err)
	}

	receipts := make([]domain.Receipt, 0, len(result.SuccessfulTransfers))
	for _, st := range result.SuccessfulTransfers {
		receipts = append(receipts, domain.Receipt{
			TransactionID: st.TransactionID,
			AmountMinor:   st.AmountMinor,
			FeeMinor:      st.FeeMinor,
		})
	}

	logger.Info("bulk transfer answered",
		zap.String("status", result.Status),
		zap.Int("successful", len(result.SuccessfulTransfers)),
		zap.Int("failed", len(result.FailedTransfers)),
	)

	switch strings.ToLower(result.Status) {
	case domain.BulkStatusCompleted:
		return domain.Success(receipts), nil
	case domain.BulkStatusPartialFailed:
		return domain.PartialFailure(receipts, result.FailedTransfers), nil
	default:
		message := genericBulkFailureMessage
		if len(result.FailedTransfers) > 0 && result.FailedTransfers[0].Error != "" {
			message = result.FailedTransfers[0].Error
		}
		failures := result.FailedTransfers
		if len(failures) == 0 {
			failures = failAll(drafts, message)
		}
		return domain.Failure(failures, message), nil
	}
}

// classify turns a remote error into either a typed credential error or a Failure outcome
func (s *Submitter) classify(logger *zap.Logger, drafts []domain.TransferDraft, err error) (domain.SubmissionOutcome, error) {
	message := remoteMessage(err)
	lowered := strings.ToLower(message)

	switch {
	case strings.Contains(lowered, "invalid transaction pin"), strings.Contains(lowered, "unauthorized"):
		logger.Warn("transfer credential rejected")
		return domain.SubmissionOutcome{}, &domain.CredentialRejectedError{Msg: message}
	case strings.Contains(lowered, "pin is not set"):
		logger.Warn("transfer credential not configured")
		return domain.SubmissionOutcome{}, &domain.CredentialNotConfiguredError{Msg: message}
	}

	logger.Error("transfer submission failed", zap.Error(err))
	return domain.Failure(failAll(drafts, message), message), nil
}

func remoteMessage(err error) string {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) && remoteErr.Message != "" {
		return remoteErr.Message
	}
	return err.Error()
}

func failAll(drafts []domain.TransferDraft, message string) []domain.TransferFailure {
	failures := make([]domain.TransferFailure, 0, len(drafts))
	for _, d := range drafts {
		failures = append(failures, domain.TransferFailure{
			RecipientUsername: d.Recipient.Username,
			AmountMinor:       d.AmountMinor,
			Error:             message,
		})
	}
	return failures
}

func toRequest(d domain.TransferDraft) domain.TransferRequest {
	return domain.TransferRequest{
		RecipientUsername: d.Recipient.Username,
		AmountMinor:       d.AmountMinor,
		Narration:         strings.TrimSpace(d.Narration),
	}
}
