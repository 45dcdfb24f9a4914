package sandbox

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	grpcadapter "github.com/transfa/transfa-core/internal/adapter/grpc"
	"github.com/transfa/transfa-core/internal/domain"
)

var _ grpcadapter.Ledger = (*Ledger)(nil)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(Options{BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, SeedDemo(l))
	return l
}

func requireRemoteError(t *testing.T, err error, code int, msg string) {
	t.Helper()
	var remoteErr *domain.RemoteError
	require.True(t, errors.As(err, &remoteErr), "expected *domain.RemoteError, got %v", err)
	assert.Equal(t, code, remoteErr.StatusCode)
	assert.Equal(t, msg, remoteErr.Message)
}

func TestLedger_SubmitSingle(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	result, err := l.SubmitSingle(ctx, "alice", domain.TransferRequest{RecipientUsername: "@Bob", AmountMinor: 500000, Narration: "rent"}, "1234", "transfer_k1")

	require.NoError(t, err)
	assert.NotEmpty(t, result.TransactionID)
	assert.Equal(t, int64(500000), result.AmountMinor)
	assert.Equal(t, DefaultFeeMinor, result.FeeMinor)

	balance, _ := l.Balance("alice")
	assert.Equal(t, int64(5_000_000-500000-1000), balance)
}

func TestLedger_SubmitSingleErrors(t *testing.T) {
	tests := []struct {
		name     string
		sender   string
		transfer domain.TransferRequest
		pin      string
		wantCode int
		wantMsg  string
	}{
		{
			name:     "wrong pin",
			sender:   "alice",
			transfer: domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 100, Narration: "tea"},
			pin:      "9999",
			wantCode: http.StatusUnauthorized,
			wantMsg:  "Invalid transaction pin",
		},
		{
			name:     "pin not set",
			sender:   "erin",
			transfer: domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 100, Narration: "tea"},
			pin:      "1234",
			wantCode: http.StatusForbidden,
			wantMsg:  "Transaction PIN is not set",
		},
		{
			name:     "unknown recipient",
			sender:   "alice",
			transfer: domain.TransferRequest{RecipientUsername: "zed", AmountMinor: 100, Narration: "tea"},
			pin:      "1234",
			wantCode: http.StatusNotFound,
			wantMsg:  "Recipient not found",
		},
		{
			name:     "insufficient funds",
			sender:   "carol",
			transfer: domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 250000, Narration: "all of it"},
			pin:      "1234",
			wantCode: http.StatusBadRequest,
			wantMsg:  "Insufficient funds",
		},
		{
			name:     "self transfer",
			sender:   "alice",
			transfer: domain.TransferRequest{RecipientUsername: "alice", AmountMinor: 100, Narration: "me"},
			pin:      "1234",
			wantCode: http.StatusBadRequest,
			wantMsg:  "You cannot send money to yourself",
		},
		{
			name:     "unknown sender",
			sender:   "mallory",
			transfer: domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 100, Narration: "tea"},
			pin:      "1234",
			wantCode: http.StatusUnauthorized,
			wantMsg:  "unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			_, err := l.SubmitSingle(context.Background(), tt.sender, tt.transfer, tt.pin, "")
			requireRemoteError(t, err, tt.wantCode, tt.wantMsg)
		})
	}
}

func TestLedger_HugeAmountIsInsufficientFunds(t *testing.T) {
	l := NewLedger(Options{BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, l.AddAccount(Account{Username: "alice", PIN: "1234", BalanceMinor: 5000}))
	require.NoError(t, l.AddAccount(Account{Username: "bob"}))

	_, err := l.SubmitSingle(context.Background(), "alice",
		domain.TransferRequest{RecipientUsername: "bob", AmountMinor: math.MaxInt64 - 10, Narration: "everything"}, "1234", "")

	requireRemoteError(t, err, http.StatusBadRequest, "Insufficient funds")
	balance, _ := l.Balance("alice")
	assert.Equal(t, int64(5000), balance)
}

func TestLedger_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	transfer := domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 100000, Narration: "lunch"}

	first, err := l.SubmitSingle(ctx, "alice", transfer, "1234", "transfer_same")
	require.NoError(t, err)
	second, err := l.SubmitSingle(ctx, "alice", transfer, "1234", "transfer_same")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	balance, _ := l.Balance("alice")
	assert.Equal(t, int64(5_000_000-101000), balance, "a replay must not debit twice")

	transfer.AmountMinor = 200000
	_, err = l.SubmitSingle(ctx, "alice", transfer, "1234", "transfer_same")
	requireRemoteError(t, err, http.StatusConflict, "Idempotency key was already used for a different request")
}

func TestLedger_SubmitBulk(t *testing.T) {
	tests := []struct {
		name       string
		transfers  []domain.TransferRequest
		wantStatus string
		wantOK     int
		wantFailed []string
	}{
		{
			name: "all accepted",
			transfers: []domain.TransferRequest{
				{RecipientUsername: "bob", AmountMinor: 500000, Narration: "rent"},
				{RecipientUsername: "carol", AmountMinor: 250000, Narration: "gift"},
			},
			wantStatus: domain.BulkStatusCompleted,
			wantOK:     2,
		},
		{
			name: "one unknown recipient",
			transfers: []domain.TransferRequest{
				{RecipientUsername: "bob", AmountMinor: 500000, Narration: "rent"},
				{RecipientUsername: "zed", AmountMinor: 250000, Narration: "gift"},
			},
			wantStatus: domain.BulkStatusPartialFailed,
			wantOK:     1,
			wantFailed: []string{"Recipient not found"},
		},
		{
			name: "nothing accepted",
			transfers: []domain.TransferRequest{
				{RecipientUsername: "zed", AmountMinor: 500000, Narration: "rent"},
				{RecipientUsername: "bob", AmountMinor: 9_000_000, Narration: "car"},
			},
			wantStatus: "failed",
			wantFailed: []string{"Recipient not found", "Insufficient funds"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)

			result, err := l.SubmitBulk(context.Background(), "alice", tt.transfers, "1234", "transfer_bulk")

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Len(t, result.SuccessfulTransfers, tt.wantOK)
			require.Len(t, result.FailedTransfers, len(tt.wantFailed))
			for i, msg := range tt.wantFailed {
				assert.Equal(t, msg, result.FailedTransfers[i].Error)
			}
		})
	}
}

func TestLedger_SubmitBulkChecksPinFirst(t *testing.T) {
	l := newTestLedger(t)
	transfers := []domain.TransferRequest{
		{RecipientUsername: "bob", AmountMinor: 500000, Narration: "rent"},
		{RecipientUsername: "carol", AmountMinor: 250000, Narration: "gift"},
	}

	_, err := l.SubmitBulk(context.Background(), "alice", transfers, "0000", "")

	requireRemoteError(t, err, http.StatusUnauthorized, "Invalid transaction pin")
	balance, _ := l.Balance("alice")
	assert.Equal(t, int64(5_000_000), balance)
}

func TestLedger_SubmitBulkRejectsOversizedBatch(t *testing.T) {
	l := newTestLedger(t)
	transfers := make([]domain.TransferRequest, MaxBulkTransfers+1)

	_, err := l.SubmitBulk(context.Background(), "alice", transfers, "1234", "")

	requireRemoteError(t, err, http.StatusBadRequest, "A bulk transfer can include at most 10 recipients")
}

func TestLedger_StatusProgression(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	ok, err := l.SubmitSingle(ctx, "alice", domain.TransferRequest{RecipientUsername: "bob", AmountMinor: 100000, Narration: "lunch"}, "1234", "")
	require.NoError(t, err)
	reversed, err := l.SubmitSingle(ctx, "alice", domain.TransferRequest{RecipientUsername: "dave", AmountMinor: 100000, Narration: "loan"}, "1234", "")
	require.NoError(t, err)

	var seen []string
	for i := 0; i < 4; i++ {
		st, err := l.Status(ctx, ok.TransactionID)
		require.NoError(t, err)
		seen = append(seen, st.Status)
	}
	assert.Equal(t, []string{"pending", "processing", "completed", "completed"}, seen)
	bobBalance, _ := l.Balance("bob")
	assert.Equal(t, int64(1_100_000), bobBalance)

	for i := 0; i < 2; i++ {
		_, err := l.Status(ctx, reversed.TransactionID)
		require.NoError(t, err)
	}
	st, err := l.Status(ctx, reversed.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "failed", st.Status)
	assert.Equal(t, "Recipient account is restricted", st.FailureReason)

	aliceBalance, _ := l.Balance("alice")
	assert.Equal(t, int64(5_000_000-101000), aliceBalance, "reversed transfer is refunded")

	_, err = l.Status(ctx, "missing")
	requireRemoteError(t, err, http.StatusNotFound, "Transaction not found")
}

func TestLedger_ClaimMoneyDrop(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)

	result, err := l.ClaimMoneyDrop(ctx, "bob", DemoMoneyDrop, "mdclaim_1")
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), result.AmountMinor)
	assert.Equal(t, "completed", result.Status)

	replayed, err := l.ClaimMoneyDrop(ctx, "bob", DemoMoneyDrop, "mdclaim_1")
	require.NoError(t, err)
	assert.Equal(t, result, replayed)

	_, err = l.ClaimMoneyDrop(ctx, "bob", DemoMoneyDrop, "mdclaim_2")
	requireRemoteError(t, err, http.StatusConflict, "You have already claimed this money drop")

	_, err = l.ClaimMoneyDrop(ctx, "alice", DemoMoneyDrop, "mdclaim_3")
	requireRemoteError(t, err, http.StatusBadRequest, "You cannot claim your own money drop")

	_, err = l.ClaimMoneyDrop(ctx, "carol", "drop_missing", "mdclaim_4")
	requireRemoteError(t, err, http.StatusNotFound, "Money drop not found")

	bobBalance, _ := l.Balance("bob")
	assert.Equal(t, int64(1_050_000), bobBalance)
}

func TestLedger_MoneyDropRunsOut(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(Options{BcryptCost: bcrypt.MinCost}, nil)
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, l.AddAccount(Account{Username: name}))
	}
	require.NoError(t, l.AddMoneyDrop("drop_1", "alice", 1000, 1))

	_, err := l.ClaimMoneyDrop(ctx, "bob", "drop_1", "")
	require.NoError(t, err)
	_, err = l.ClaimMoneyDrop(ctx, "carol", "drop_1", "")

	requireRemoteError(t, err, http.StatusGone, "This money drop has been fully claimed")
}

func TestLedger_AddAccountValidation(t *testing.T) {
	l := NewLedger(Options{BcryptCost: bcrypt.MinCost}, nil)

	assert.Error(t, l.AddAccount(Account{Username: "  "}))
	require.NoError(t, l.AddAccount(Account{Username: "Alice"}))
	assert.Error(t, l.AddAccount(Account{Username: "@alice"}))
	assert.Error(t, l.AddMoneyDrop("drop_1", "nobody", 1000, 1))
}
