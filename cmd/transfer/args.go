package main

import (
	"fmt"
	"strings"

	"github.com/transfa/transfa-core/internal/domain"
)

// transferFlags collects repeated -to flags
type transferFlags []string

func (f *transferFlags) String() string {
	return strings.Join(*f, ", ")
}

func (f *transferFlags) Set(v string) error {
	*f = append(*f, v)
	return nil
}

// parseTransfer parses "recipient:amount:narration", amount in naira.
// The narration may itself contain colons.
func parseTransfer(raw string) (domain.TransferDraft, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return domain.TransferDraft{}, fmt.Errorf("invalid transfer %q, expected recipient:amount:narration", raw)
	}

	amount, err := domain.ParseMajor(parts[1])
	if err != nil {
		return domain.TransferDraft{}, fmt.Errorf("invalid transfer %q: %w", raw, err)
	}

	return domain.TransferDraft{
		Recipient:   domain.Recipient{Username: strings.TrimPrefix(strings.TrimSpace(parts[0]), "@")},
		AmountMinor: amount,
		Narration:   parts[2],
	}, nil
}
