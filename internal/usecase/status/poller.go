package status

import (
	"context"
	"sync"

	"github.com/transfa/transfa-core/internal/domain"
	"go.uber.org/zap"
)

// DefaultMaxConsecutiveErrors is how many fetch errors in a row end an observation
const DefaultMaxConsecutiveErrors = 5

// Seed is the locally known status an observation starts from
type Seed struct {
	Status        domain.Status
	FailureReason string
}

// Poller follows the settlement status of submitted transactions.
// Cadence and transport retries belong to the StatusFetcher; the poller only
// normalizes, merges and reports changes.
type Poller struct {
	fetcher              domain.StatusFetcher
	notifier             domain.Notifier
	MaxConsecutiveErrors int
	logger               *zap.Logger
}

// NewPoller creates a new Poller instance. notifier may be nil.
func NewPoller(fetcher domain.StatusFetcher, notifier domain.Notifier, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		fetcher:              fetcher,
		notifier:             notifier,
		MaxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		logger:               logger,
	}
}

// Observe streams status changes for one transaction. The channel is closed when a
// terminal status is reached, the context is cancelled, or the fetcher keeps failing.
// Logic:
//  1. No transaction id: emit the seed (failed unless told otherwise) and stop, no fetch
//  2. Emit the seed (pending by default)
//  3. Fetch sequentially, normalize, merge with the current status, emit on change
//  4. A terminal seed gets exactly one fetch, which may only replace it with another terminal status
func (p *Poller) Observe(ctx context.Context, transactionID string, seed *Seed) <-chan domain.TransactionStatus {
	out := make(chan domain.TransactionStatus)

	go func() {
		defer close(out)
		o := &observation{poller: p, out: out}

		if transactionID == "" {
			current := domain.TransactionStatus{Status: domain.StatusFailed}
			if seed != nil {
				if seed.Status != "" {
					current.Status = seed.Status
				}
				current.FailureReason = seed.FailureReason
			}
			o.emit(ctx, current)
			return
		}

		current := domain.TransactionStatus{TransactionID: transactionID, Status: domain.StatusPending}
		if seed != nil && seed.Status != "" {
			current.Status = seed.Status
			current.FailureReason = seed.FailureReason
		}
		if !o.emit(ctx, current) {
			return
		}
		p.follow(ctx, o, current)
	}()

	return out
}

// ObserveAll fans out one observation per seed and merges them into a single stream
func (p *Poller) ObserveAll(ctx context.Context, seeds []domain.TransactionStatus) <-chan domain.TransactionStatus {
	out := make(chan domain.TransactionStatus)

	var wg sync.WaitGroup
	for _, s := range seeds {
		wg.Add(1)
		go func(s domain.TransactionStatus) {
			defer wg.Done()
			for update := range p.Observe(ctx, s.TransactionID, &Seed{Status: s.Status, FailureReason: s.FailureReason}) {
				select {
				case out <- update:
				case <-ctx.Done():
				}
			}
		}(s)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

func (p *Poller) follow(ctx context.Context, o *observation, current domain.TransactionStatus) {
	logger := p.logger.With(zap.String("transaction_id", current.TransactionID))
	seededTerminal := current.Status.IsTerminal()
	failures := 0

	for {
		remote, err := p.fetcher.FetchStatus(ctx, current.TransactionID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			failures++
			logger.Warn("status fetch failed", zap.Int("consecutive_errors", failures), zap.Error(err))
			if seededTerminal || failures >= p.maxErrors() {
				logger.Error("giving up on status updates", zap.String("last_status", string(current.Status)))
				return
			}
			continue
		}
		failures = 0

		next := domain.MergeStatus(current, domain.TransactionStatus{
			TransactionID: current.TransactionID,
			Status:        domain.NormalizeStatus(remote.Status),
			FailureReason: remote.FailureReason,
		})
		if next != current {
			logger.Debug("status changed",
				zap.String("from", string(current.Status)),
				zap.String("to", string(next.Status)),
			)
			if !o.emit(ctx, next) {
				return
			}
			current = next
		}

		if seededTerminal || current.Status.IsTerminal() {
			return
		}
	}
}

func (p *Poller) maxErrors() int {
	if p.MaxConsecutiveErrors <= 0 {
		return DefaultMaxConsecutiveErrors
	}
	return p.MaxConsecutiveErrors
}

// observation tracks what has been emitted for one transaction so the terminal
// side effect fires once per terminal state reached
type observation struct {
	poller *Poller
	out    chan<- domain.TransactionStatus
	last   domain.Status
}

func (o *observation) emit(ctx context.Context, s domain.TransactionStatus) bool {
	select {
	case o.out <- s:
	case <-ctx.Done():
		return false
	}

	if s.Status.IsTerminal() && s.Status != o.last && o.poller.notifier != nil {
		o.poller.notifier.NotifyTerminal(ctx, s)
	}
	o.last = s.Status
	return true
}
