package moneydrop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/transfa/transfa-core/internal/domain"
	"go.uber.org/zap"
)

// Claimer claims MoneyDrop gifts on behalf of the acting user
type Claimer struct {
	drops  domain.MoneyDropService
	NewKey func(prefix string) string
	logger *zap.Logger
}

// NewClaimer creates a new Claimer instance
func NewClaimer(drops domain.MoneyDropService, logger *zap.Logger) *Claimer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Claimer{
		drops:  drops,
		NewKey: domain.NewIdempotencyKey,
		logger: logger,
	}
}

// Claim claims one drop. Each call is a new logical attempt with its own
// idempotency key; transport retries inside the service reuse that key.
func (c *Claimer) Claim(ctx context.Context, dropID string) (domain.ClaimResult, error) {
	dropID = strings.TrimSpace(dropID)
	if dropID == "" {
		return domain.ClaimResult{}, &domain.ValidationError{Field: "drop_id", Msg: "money drop id is required"}
	}

	key := c.NewKey(domain.IdempotencyPrefixMoneyDropClaim)
	logger := c.logger.With(zap.String("drop_id", dropID), zap.String("idempotency_key", key))

	result, err := c.drops.ClaimMoneyDrop(ctx, dropID, key)
	if err != nil {
		var remoteErr *domain.RemoteError
		if errors.As(err, &remoteErr) {
			logger.Warn("money drop claim rejected", zap.Int("status_code", remoteErr.StatusCode), zap.String("message", remoteErr.Message))
		} else {
			logger.Error("money drop claim failed", zap.Error(err))
		}
		return domain.ClaimResult{}, fmt.Errorf("claim money drop %s: %w", dropID, err)
	}

	logger.Info("money drop claimed",
		zap.String("transaction_id", result.TransactionID),
		zap.Int64("amount_minor", result.AmountMinor),
	)
	return result, nil
}
