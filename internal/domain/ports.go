package domain

import "context"

// TransferRequest is one transfer line sent to the remote service
type TransferRequest struct {
	RecipientUsername string
	AmountMinor       int64
	Narration         string
}

// SingleTransferRequest is the input of TransferService.SubmitSingle
type SingleTransferRequest struct {
	Transfer       TransferRequest
	Credential     Credential
	IdempotencyKey string
}

// SingleTransferResult is what the remote service returns for a single transfer.
// AmountMinor and FeeMinor are zero when not reported.
type SingleTransferResult struct {
	TransactionID string
	AmountMinor   int64
	FeeMinor      int64
}

// BulkTransferRequest is the input of TransferService.SubmitBulk
type BulkTransferRequest struct {
	Transfers      []TransferRequest
	Credential     Credential
	IdempotencyKey string
}

// Bulk completion tags reported by the remote service
const (
	BulkStatusCompleted     = "completed"
	BulkStatusPartialFailed = "partial_failed"
)

// BulkTransferResult is what the remote service returns for a bulk transfer
type BulkTransferResult struct {
	Status              string
	SuccessfulTransfers []SingleTransferResult
	FailedTransfers     []TransferFailure
}

// RemoteStatus is the raw status reported for one transaction
type RemoteStatus struct {
	Status        string
	FailureReason string
}

// BiometricResult is the outcome of a device biometric prompt
type BiometricResult int

const (
	BiometricSuccess BiometricResult = iota
	BiometricCancelled
)

// ClaimResult is the outcome of claiming a MoneyDrop
type ClaimResult struct {
	TransactionID string
	AmountMinor   int64
	Status        string
}

// TransferService submits transfers to the remote API
type TransferService interface {
	// SubmitSingle submits exactly one transfer
	SubmitSingle(ctx context.Context, req SingleTransferRequest) (SingleTransferResult, error)

	// SubmitBulk submits two or more transfers as one logical operation that may partially fail
	SubmitBulk(ctx context.Context, req BulkTransferRequest) (BulkTransferResult, error)
}

// StatusFetcher looks up the remote status of a transaction.
// Implementations own polling cadence and transport retries.
type StatusFetcher interface {
	FetchStatus(ctx context.Context, transactionID string) (RemoteStatus, error)
}

// CredentialStore gives access to a previously stored PIN surrogate
type CredentialStore interface {
	// StoredCredential returns the stored credential, or false when none exists
	StoredCredential(ctx context.Context) (Credential, bool, error)
}

// BiometricSensor wraps the device biometric prompt
type BiometricSensor interface {
	// Available reports whether hardware is present and enrolled
	Available(ctx context.Context) bool

	// Prompt shows the device prompt and blocks until the user answers
	Prompt(ctx context.Context) (BiometricResult, error)
}

// Notifier receives the haptic/notification side effect of a terminal status transition
type Notifier interface {
	NotifyTerminal(ctx context.Context, status TransactionStatus)
}

// MoneyDropService claims MoneyDrop gifts
type MoneyDropService interface {
	ClaimMoneyDrop(ctx context.Context, dropID string, idempotencyKey string) (ClaimResult, error)
}
