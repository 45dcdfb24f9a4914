package domain

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// MinNarrationLength and MaxNarrationLength bound the trimmed narration, in runes.
	MinNarrationLength = 3
	MaxNarrationLength = 100

	// MaxBatchSize is the largest number of drafts a single submission may carry.
	MaxBatchSize = 10

	// MaxAmountMinor caps a single draft (NGN 10 trillion) so batch totals stay within int64.
	MaxAmountMinor int64 = 1_000_000_000_000_000
)

// Recipient identifies the user a transfer is sent to
type Recipient struct {
	ID       string
	Username string
	FullName string // Optional, display only
}

// Key returns the normalized recipient key used for de-duplication and matching.
func (r Recipient) Key() string {
	return NormalizeUsername(r.Username)
}

// Same reports whether two recipients refer to the same user.
// IDs win when both sides carry one; otherwise the normalized usernames are compared.
func (r Recipient) Same(other Recipient) bool {
	if r.ID != "" && other.ID != "" {
		return r.ID == other.ID
	}
	return r.Key() != "" && r.Key() == other.Key()
}

// NormalizeUsername lower-cases and trims a username and drops a leading "@".
func NormalizeUsername(username string) string {
	key := strings.ToLower(strings.TrimSpace(username))
	return strings.TrimPrefix(key, "@")
}

// TransferDraft represents a single composed, not yet submitted transfer
type TransferDraft struct {
	Recipient   Recipient
	AmountMinor int64 // kobo
	Narration   string
}

// Key returns the normalized key of the draft's recipient.
func (d TransferDraft) Key() string {
	return d.Recipient.Key()
}

// Validate ensures the draft adheres to domain rules for the given acting user.
// Returns a *ValidationError naming the offending field.
func (d TransferDraft) Validate(actingUser Recipient) error {
	if d.Key() == "" {
		return &ValidationError{Field: "recipient", Msg: "recipient is required"}
	}

	if d.AmountMinor <= 0 {
		return &ValidationError{Field: "amount", Msg: "amount must be greater than zero"}
	}
	if d.AmountMinor > MaxAmountMinor {
		return &ValidationError{Field: "amount", Msg: "amount is too large"}
	}

	narrationLen := utf8.RuneCountInString(strings.TrimSpace(d.Narration))
	if narrationLen < MinNarrationLength || narrationLen > MaxNarrationLength {
		return &ValidationError{
			Field: "narration",
			Msg:   fmt.Sprintf("narration must be between %d and %d characters", MinNarrationLength, MaxNarrationLength),
		}
	}

	if d.Recipient.Same(actingUser) {
		return &ValidationError{Field: "recipient", Msg: "you cannot send money to yourself"}
	}

	return nil
}

// TotalAmount sums the amounts of the given drafts in minor units.
// The sum saturates at math.MaxInt64 instead of wrapping.
func TotalAmount(drafts []TransferDraft) int64 {
	var total int64
	for _, d := range drafts {
		if d.AmountMinor > 0 && total > math.MaxInt64-d.AmountMinor {
			return math.MaxInt64
		}
		total += d.AmountMinor
	}
	return total
}
