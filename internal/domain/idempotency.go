package domain

import "github.com/google/uuid"

const (
	IdempotencyPrefixTransfer       = "transfer_"
	IdempotencyPrefixMoneyDropClaim = "mdclaim_"
)

// NewIdempotencyKey returns a fresh key for one logical operation.
// Retries of the same request must reuse it; a materially different request must not.
func NewIdempotencyKey(prefix string) string {
	return prefix + uuid.NewString()
}
