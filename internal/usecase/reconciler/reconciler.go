package reconciler

import (
	"github.com/shopspring/decimal"
	"github.com/transfa/transfa-core/internal/domain"
)

// Result is what remains after a submission attempt has been reconciled
type Result struct {
	Kind     domain.OutcomeKind
	Message  string
	Receipts []domain.Receipt
	Failures []domain.TransferFailure
	Retained []domain.TransferDraft // Drafts the user can edit and retry
}

// Reconciler maps a SubmissionOutcome back onto the drafts that produced it
type Reconciler struct{}

// NewReconciler creates a new Reconciler instance
func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile pairs receipts with their originating drafts and decides which drafts are retained.
// Logic:
//  1. Success: nothing is retained
//  2. PartialFailure: drafts whose recipient key appears in the failure list are retained
//  3. Failure: every submitted draft is retained, no receipts
//
// Receipts are paired with the submitted drafts after removing failed recipients.
// When every receipt names its recipient the pairing is by recipient key, otherwise
// it is positional and relies on the remote service preserving submission order.
func (r *Reconciler) Reconcile(submitted []domain.TransferDraft, outcome domain.SubmissionOutcome) Result {
	result := Result{
		Kind:     outcome.Kind,
		Message:  outcome.Message,
		Failures: append([]domain.TransferFailure(nil), outcome.Failures...),
	}

	switch outcome.Kind {
	case domain.OutcomeSuccess, domain.OutcomePartialFailure:
		failed := outcome.FailedKeys()
		var remaining, retained []domain.TransferDraft
		for _, d := range submitted {
			if _, ok := failed[d.Key()]; ok {
				retained = append(retained, d)
				continue
			}
			remaining = append(remaining, d)
		}
		result.Receipts = pair(remaining, outcome.Receipts)
		if outcome.Kind == domain.OutcomePartialFailure {
			result.Retained = retained
		}
	default:
		result.Retained = append([]domain.TransferDraft(nil), submitted...)
	}

	if result.Retained == nil {
		result.Retained = []domain.TransferDraft{}
	}
	return result
}

func pair(drafts []domain.TransferDraft, receipts []domain.Receipt) []domain.Receipt {
	paired := make([]domain.Receipt, 0, len(receipts))

	if byKey, ok := indexByRecipient(drafts, receipts); ok {
		for _, rc := range receipts {
			d := byKey[domain.NormalizeUsername(rc.RecipientUsername)]
			paired = append(paired, fill(rc, d))
		}
		return paired
	}

	for i, rc := range receipts {
		if i < len(drafts) {
			rc = fill(rc, drafts[i])
		}
		paired = append(paired, rc)
	}
	return paired
}

// indexByRecipient returns the drafts keyed by recipient when every receipt names a submitted recipient
func indexByRecipient(drafts []domain.TransferDraft, receipts []domain.Receipt) (map[string]domain.TransferDraft, bool) {
	if len(receipts) == 0 {
		return nil, false
	}
	byKey := make(map[string]domain.TransferDraft, len(drafts))
	for _, d := range drafts {
		byKey[d.Key()] = d
	}
	for _, rc := range receipts {
		if rc.RecipientUsername == "" {
			return nil, false
		}
		if _, ok := byKey[domain.NormalizeUsername(rc.RecipientUsername)]; !ok {
			return nil, false
		}
	}
	return byKey, true
}

func fill(rc domain.Receipt, d domain.TransferDraft) domain.Receipt {
	if rc.AmountMinor == 0 {
		rc.AmountMinor = d.AmountMinor
	}
	if rc.Narration == "" {
		rc.Narration = d.Narration
	}
	if rc.RecipientUsername == "" {
		rc.RecipientUsername = d.Recipient.Username
	}
	return rc
}

// Headline summarizes a result for the result surface
type Headline string

const (
	HeadlineSuccess Headline = "success"
	HeadlinePartial Headline = "partial"
	HeadlineFailed  Headline = "failed"
)

// ResultEntry is one line of the result surface with the seed its status observation starts from
type ResultEntry struct {
	TransactionID     string
	RecipientUsername string
	AmountMinor       int64
	FeeMinor          int64
	Narration         string
	Seed              domain.TransactionStatus
}

// ResultPayload is the data handed to the result surface after a submission
type ResultPayload struct {
	Headline Headline
	Message  string
	Entries  []ResultEntry
	Sent     decimal.Decimal
	Fees     decimal.Decimal
}

// Payload builds the result-surface payload for a reconciled result
func Payload(result Result) ResultPayload {
	payload := ResultPayload{
		Entries: make([]ResultEntry, 0, len(result.Receipts)+len(result.Failures)),
		Sent:    decimal.Zero,
		Fees:    decimal.Zero,
	}

	switch result.Kind {
	case domain.OutcomeSuccess:
		payload.Headline = HeadlineSuccess
		payload.Message = "Transfer sent successfully."
	case domain.OutcomePartialFailure:
		payload.Headline = HeadlinePartial
		payload.Message = "Some transfers could not be completed."
	default:
		payload.Headline = HeadlineFailed
		payload.Message = result.Message
		if payload.Message == "" {
			payload.Message = "Transfer failed. Please try again."
		}
	}

	for _, rc := range result.Receipts {
		payload.Sent = payload.Sent.Add(domain.MinorToMajor(rc.AmountMinor))
		payload.Fees = payload.Fees.Add(domain.MinorToMajor(rc.FeeMinor))
		payload.Entries = append(payload.Entries, ResultEntry{
			TransactionID:     rc.TransactionID,
			RecipientUsername: rc.RecipientUsername,
			AmountMinor:       rc.AmountMinor,
			FeeMinor:          rc.FeeMinor,
			Narration:         rc.Narration,
			Seed: domain.TransactionStatus{
				TransactionID: rc.TransactionID,
				Status:        domain.StatusPending,
			},
		})
	}

	for _, f := range result.Failures {
		payload.Entries = append(payload.Entries, ResultEntry{
			RecipientUsername: f.RecipientUsername,
			AmountMinor:       f.AmountMinor,
			Seed: domain.TransactionStatus{
				Status:        domain.StatusFailed,
				FailureReason: f.Error,
			},
		})
	}

	return payload
}
