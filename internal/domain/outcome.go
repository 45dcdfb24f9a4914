package domain

// OutcomeKind tags a SubmissionOutcome
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomePartialFailure OutcomeKind = "partial_failure"
	OutcomeFailure        OutcomeKind = "failure"
)

// Receipt is the confirmed record of one successfully submitted transfer.
// AmountMinor, FeeMinor, Narration and RecipientUsername may be zero when the
// remote service did not report them; the reconciler fills them from the draft.
type Receipt struct {
	TransactionID     string
	AmountMinor       int64
	FeeMinor          int64
	Narration         string
	RecipientUsername string
}

// TransferFailure is a per-recipient failure reported by the remote service
type TransferFailure struct {
	RecipientUsername string
	AmountMinor       int64
	Error             string
}

// SubmissionOutcome is the classified result of one submission attempt
type SubmissionOutcome struct {
	Kind     OutcomeKind
	Receipts []Receipt
	Failures []TransferFailure
	Message  string // Set for OutcomeFailure
}

// Success builds a Success outcome
func Success(receipts []Receipt) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeSuccess, Receipts: receipts}
}

// PartialFailure builds a PartialFailure outcome
func PartialFailure(receipts []Receipt, failures []TransferFailure) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomePartialFailure, Receipts: receipts, Failures: failures}
}

// Failure builds a Failure outcome
func Failure(failures []TransferFailure, message string) SubmissionOutcome {
	return SubmissionOutcome{Kind: OutcomeFailure, Failures: failures, Message: message}
}

// FailedKeys returns the set of normalized recipient keys present in the failure list
func (o SubmissionOutcome) FailedKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(o.Failures))
	for _, f := range o.Failures {
		keys[NormalizeUsername(f.RecipientUsername)] = struct{}{}
	}
	return keys
}
