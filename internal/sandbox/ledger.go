package sandbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/transfa/transfa-core/internal/domain"
)

const (
	// DefaultFeeMinor is the flat fee charged per transfer (10.00 NGN)
	DefaultFeeMinor int64 = 1000

	// MaxBulkTransfers mirrors the limit the real API enforces
	MaxBulkTransfers = 10
)

// Messages returned by the ledger. Clients classify some of them by content.
const (
	msgInvalidPIN        = "Invalid transaction pin"
	msgPINNotSet         = "Transaction PIN is not set"
	msgInsufficientFunds = "Insufficient funds"
	msgRecipientNotFound = "Recipient not found"
	msgSelfTransfer      = "You cannot send money to yourself"
	msgInvalidAmount     = "Amount must be greater than zero"
	msgRestricted        = "Recipient account is restricted"
	msgKeyReused         = "Idempotency key was already used for a different request"
)

// Account describes a sandbox user
type Account struct {
	Username     string
	BalanceMinor int64
	PIN          string // Empty leaves the transaction PIN unset
	Restricted   bool   // Incoming transfers are accepted and then fail during settlement
}

// Options tunes a Ledger
type Options struct {
	FeeMinor   int64
	BcryptCost int
}

type account struct {
	username   string
	balance    int64
	pinHash    []byte
	restricted bool
}

type transaction struct {
	id        string
	sender    string
	recipient string
	amount    int64
	fee       int64
	status    domain.Status
	reason    string
}

type moneyDrop struct {
	owner     string
	perClaim  int64
	remaining int
	claimed   map[string]struct{}
}

type idempotentReply struct {
	fingerprint string
	single      domain.SingleTransferResult
	bulk        domain.BulkTransferResult
	claim       domain.ClaimResult
}

// Ledger is an in-memory stand-in for the Transfa transfer API.
// Transactions settle one step per status lookup: pending, processing, then
// completed or failed.
type Ledger struct {
	mu           sync.Mutex
	accounts     map[string]*account
	transactions map[string]*transaction
	drops        map[string]*moneyDrop
	replies      map[string]idempotentReply

	fee    int64
	cost   int
	newID  func() string
	logger *zap.Logger
}

// NewLedger creates a new empty ledger
func NewLedger(opts Options, logger *zap.Logger) *Ledger {
	if opts.FeeMinor <= 0 {
		opts.FeeMinor = DefaultFeeMinor
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		accounts:     make(map[string]*account),
		transactions: make(map[string]*transaction),
		drops:        make(map[string]*moneyDrop),
		replies:      make(map[string]idempotentReply),
		fee:          opts.FeeMinor,
		cost:         opts.BcryptCost,
		newID:        uuid.NewString,
		logger:       logger,
	}
}

// AddAccount registers a user. The PIN is only kept as a bcrypt hash.
func (l *Ledger) AddAccount(a Account) error {
	username := domain.NormalizeUsername(a.Username)
	if username == "" {
		return errors.New("username is required")
	}

	acc := &account{username: username, balance: a.BalanceMinor, restricted: a.Restricted}
	if a.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.PIN), l.cost)
		if err != nil {
			return fmt.Errorf("failed to hash pin for %s: %w", username, err)
		}
		acc.pinHash = hash
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[username]; exists {
		return fmt.Errorf("account %s already exists", username)
	}
	l.accounts[username] = acc
	return nil
}

// AddMoneyDrop registers a gift that `claims` users can each claim once
func (l *Ledger) AddMoneyDrop(id, owner string, perClaimMinor int64, claims int) error {
	if strings.TrimSpace(id) == "" || perClaimMinor <= 0 || claims <= 0 {
		return fmt.Errorf("invalid money drop %q", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	ownerKey := domain.NormalizeUsername(owner)
	if _, ok := l.accounts[ownerKey]; !ok {
		return fmt.Errorf("owner %s not found", owner)
	}
	l.drops[id] = &moneyDrop{
		owner:     ownerKey,
		perClaim:  perClaimMinor,
		remaining: claims,
		claimed:   make(map[string]struct{}),
	}
	return nil
}

// Balance returns a user's balance in kobo
func (l *Ledger) Balance(username string) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[domain.NormalizeUsername(username)]
	if !ok {
		return 0, false
	}
	return acc.balance, true
}

// SubmitSingle debits the sender and records one pending transaction
func (l *Ledger) SubmitSingle(ctx context.Context, sender string, t domain.TransferRequest, pin, idempotencyKey string) (domain.SingleTransferResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fingerprint := fmt.Sprintf("single|%s|%s|%d|%s", sender, domain.NormalizeUsername(t.RecipientUsername), t.AmountMinor, t.Narration)
	if reply, ok, err := l.replay(sender, idempotencyKey, fingerprint); ok || err != nil {
		return reply.single, err
	}

	from, err := l.authorize(sender, pin)
	if err != nil {
		return domain.SingleTransferResult{}, err
	}

	tx, err := l.transfer(from, t)
	if err != nil {
		code := http.StatusBadRequest
		if err.Error() == msgRecipientNotFound {
			code = http.StatusNotFound
		}
		return domain.SingleTransferResult{}, &domain.RemoteError{StatusCode: code, Message: err.Error()}
	}

	result := domain.SingleTransferResult{TransactionID: tx.id, AmountMinor: tx.amount, FeeMinor: tx.fee}
	l.remember(sender, idempotencyKey, idempotentReply{fingerprint: fingerprint, single: result})
	l.logger.Info("transfer accepted",
		zap.String("transaction_id", tx.id),
		zap.String("sender", from.username),
		zap.String("recipient", tx.recipient),
		zap.Int64("amount", tx.amount),
	)
	return result, nil
}

// SubmitBulk applies each line independently after a single PIN check.
// Lines that cannot be applied are reported in FailedTransfers.
func (l *Ledger) SubmitBulk(ctx context.Context, sender string, ts []domain.TransferRequest, pin, idempotencyKey string) (domain.BulkTransferResult, error) {
	if len(ts) == 0 {
		return domain.BulkTransferResult{}, &domain.RemoteError{StatusCode: http.StatusBadRequest, Message: "At least one transfer is required"}
	}
	if len(ts) > MaxBulkTransfers {
		return domain.BulkTransferResult{}, &domain.RemoteError{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("A bulk transfer can include at most %d recipients", MaxBulkTransfers),
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var fp strings.Builder
	fp.WriteString("bulk|" + sender)
	for _, t := range ts {
		fmt.Fprintf(&fp, "|%s:%d:%s", domain.NormalizeUsername(t.RecipientUsername), t.AmountMinor, t.Narration)
	}
	fingerprint := fp.String()
	if reply, ok, err := l.replay(sender, idempotencyKey, fingerprint); ok || err != nil {
		return reply.bulk, err
	}

	from, err := l.authorize(sender, pin)
	if err != nil {
		return domain.BulkTransferResult{}, err
	}

	result := domain.BulkTransferResult{
		SuccessfulTransfers: []domain.SingleTransferResult{},
		FailedTransfers:     []domain.TransferFailure{},
	}
	for _, t := range ts {
		tx, err := l.transfer(from, t)
		if err != nil {
			result.FailedTransfers = append(result.FailedTransfers, domain.TransferFailure{
				RecipientUsername: t.RecipientUsername,
				AmountMinor:       t.AmountMinor,
				Error:             err.Error(),
			})
			continue
		}
		result.SuccessfulTransfers = append(result.SuccessfulTransfers, domain.SingleTransferResult{
			TransactionID: tx.id,
			AmountMinor:   tx.amount,
			FeeMinor:      tx.fee,
		})
	}

	switch {
	case len(result.FailedTransfers) == 0:
		result.Status = domain.BulkStatusCompleted
	case len(result.SuccessfulTransfers) == 0:
		result.Status = "failed"
	default:
		result.Status = domain.BulkStatusPartialFailed
	}

	l.remember(sender, idempotencyKey, idempotentReply{fingerprint: fingerprint, bulk: result})
	l.logger.Info("bulk transfer processed",
		zap.String("sender", from.username),
		zap.String("status", result.Status),
		zap.Int("successful", len(result.SuccessfulTransfers)),
		zap.Int("failed", len(result.FailedTransfers)),
	)
	return result, nil
}

// Status returns the current status of a transaction and advances it one step
func (l *Ledger) Status(ctx context.Context, transactionID string) (domain.RemoteStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, ok := l.transactions[transactionID]
	if !ok {
		return domain.RemoteStatus{}, &domain.RemoteError{StatusCode: http.StatusNotFound, Message: "Transaction not found"}
	}

	current := domain.RemoteStatus{Status: string(tx.status), FailureReason: tx.reason}
	l.advance(tx)
	return current, nil
}

// ClaimMoneyDrop credits the claimant with one share of a money drop
func (l *Ledger) ClaimMoneyDrop(ctx context.Context, claimant, dropID, idempotencyKey string) (domain.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	fingerprint := "claim|" + claimant + "|" + dropID
	if reply, ok, err := l.replay(claimant, idempotencyKey, fingerprint); ok || err != nil {
		return reply.claim, err
	}

	acc, ok := l.accounts[domain.NormalizeUsername(claimant)]
	if !ok {
		return domain.ClaimResult{}, &domain.RemoteError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}
	}
	drop, ok := l.drops[dropID]
	if !ok {
		return domain.ClaimResult{}, &domain.RemoteError{StatusCode: http.StatusNotFound, Message: "Money drop not found"}
	}
	if drop.owner == acc.username {
		return domain.ClaimResult{}, &domain.RemoteError{StatusCode: http.StatusBadRequest, Message: "You cannot claim your own money drop"}
	}
	if _, done := drop.claimed[acc.username]; done {
		return domain.ClaimResult{}, &domain.RemoteError{StatusCode: http.StatusConflict, Message: "You have already claimed this money drop"}
	}
	if drop.remaining == 0 {
		return domain.ClaimResult{}, &domain.RemoteError{StatusCode: http.StatusGone, Message: "This money drop has been fully claimed"}
	}

	drop.remaining--
	drop.claimed[acc.username] = struct{}{}
	acc.balance += drop.perClaim

	tx := &transaction{
		id:        l.newID(),
		sender:    drop.owner,
		recipient: acc.username,
		amount:    drop.perClaim,
		status:    domain.StatusCompleted,
	}
	l.transactions[tx.id] = tx

	result := domain.ClaimResult{TransactionID: tx.id, AmountMinor: tx.amount, Status: string(tx.status)}
	l.remember(claimant, idempotencyKey, idempotentReply{fingerprint: fingerprint, claim: result})
	return result, nil
}

// authorize checks the sender's PIN. Callers hold l.mu.
func (l *Ledger) authorize(sender, pin string) (*account, error) {
	acc, ok := l.accounts[domain.NormalizeUsername(sender)]
	if !ok {
		return nil, &domain.RemoteError{StatusCode: http.StatusUnauthorized, Message: "unauthorized"}
	}
	if len(acc.pinHash) == 0 {
		return nil, &domain.RemoteError{StatusCode: http.StatusForbidden, Message: msgPINNotSet}
	}
	if err := bcrypt.CompareHashAndPassword(acc.pinHash, []byte(pin)); err != nil {
		return nil, &domain.RemoteError{StatusCode: http.StatusUnauthorized, Message: msgInvalidPIN}
	}
	return acc, nil
}

// transfer validates one line and debits the sender. Callers hold l.mu.
func (l *Ledger) transfer(from *account, t domain.TransferRequest) (*transaction, error) {
	recipientKey := domain.NormalizeUsername(t.RecipientUsername)
	if t.AmountMinor <= 0 {
		return nil, errors.New(msgInvalidAmount)
	}
	to, ok := l.accounts[recipientKey]
	if !ok {
		return nil, errors.New(msgRecipientNotFound)
	}
	if to.username == from.username {
		return nil, errors.New(msgSelfTransfer)
	}
	if t.AmountMinor > from.balance-l.fee {
		return nil, errors.New(msgInsufficientFunds)
	}

	from.balance -= t.AmountMinor + l.fee
	tx := &transaction{
		id:        l.newID(),
		sender:    from.username,
		recipient: to.username,
		amount:    t.AmountMinor,
		fee:       l.fee,
		status:    domain.StatusPending,
	}
	l.transactions[tx.id] = tx
	return tx, nil
}

// advance moves a transaction one settlement step forward. Callers hold l.mu.
func (l *Ledger) advance(tx *transaction) {
	switch tx.status {
	case domain.StatusPending:
		tx.status = domain.StatusProcessing
	case domain.StatusProcessing:
		to := l.accounts[tx.recipient]
		if to.restricted {
			tx.status = domain.StatusFailed
			tx.reason = msgRestricted
			if from, ok := l.accounts[tx.sender]; ok {
				from.balance += tx.amount + tx.fee
			}
			l.logger.Warn("transfer reversed", zap.String("transaction_id", tx.id), zap.String("reason", tx.reason))
			return
		}
		tx.status = domain.StatusCompleted
		to.balance += tx.amount
	}
}

// replay returns the stored reply for a key. Callers hold l.mu.
func (l *Ledger) replay(user, key, fingerprint string) (idempotentReply, bool, error) {
	if key == "" {
		return idempotentReply{}, false, nil
	}
	reply, ok := l.replies[domain.NormalizeUsername(user)+"|"+key]
	if !ok {
		return idempotentReply{}, false, nil
	}
	if reply.fingerprint != fingerprint {
		return idempotentReply{}, false, &domain.RemoteError{StatusCode: http.StatusConflict, Message: msgKeyReused}
	}
	l.logger.Debug("replaying idempotent request", zap.String("idempotency_key", key))
	return reply, true, nil
}

func (l *Ledger) remember(user, key string, reply idempotentReply) {
	if key == "" {
		return
	}
	l.replies[domain.NormalizeUsername(user)+"|"+key] = reply
}
