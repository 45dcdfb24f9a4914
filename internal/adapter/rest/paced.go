package rest

import (
	"context"
	"sync"
	"time"

	"github.com/transfa/transfa-core/internal/domain"
)

// PacedStatusFetcher spaces status fetches for the same transaction by Interval
// and backs off exponentially while fetches fail. It owns the polling cadence so
// the status poller can simply ask again.
type PacedStatusFetcher struct {
	next       domain.StatusFetcher
	Interval   time.Duration
	MaxBackoff time.Duration

	mu    sync.Mutex
	state map[string]*paceState
	now   func() time.Time
}

type paceState struct {
	last     time.Time
	failures int
}

// NewPacedStatusFetcher creates a new PacedStatusFetcher around next
func NewPacedStatusFetcher(next domain.StatusFetcher, interval time.Duration) *PacedStatusFetcher {
	return &PacedStatusFetcher{
		next:       next,
		Interval:   interval,
		MaxBackoff: 30 * time.Second,
		state:      make(map[string]*paceState),
		now:        time.Now,
	}
}

// FetchStatus waits until the transaction is due, then fetches once
func (p *PacedStatusFetcher) FetchStatus(ctx context.Context, transactionID string) (domain.RemoteStatus, error) {
	if err := sleepWithContext(ctx, p.wait(transactionID)); err != nil {
		return domain.RemoteStatus{}, err
	}

	status, err := p.next.FetchStatus(ctx, transactionID)
	p.record(transactionID, err)
	if err == nil && domain.NormalizeStatus(status.Status).IsTerminal() {
		p.forget(transactionID)
	}
	return status, err
}

func (p *PacedStatusFetcher) wait(transactionID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.state[transactionID]
	if !ok {
		return 0
	}

	delay := p.Interval
	if st.failures > 0 {
		delay = capped(exponential(p.Interval, st.failures), p.MaxBackoff)
	}
	return st.last.Add(delay).Sub(p.now())
}

func (p *PacedStatusFetcher) record(transactionID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.state[transactionID]
	if !ok {
		st = &paceState{}
		p.state[transactionID] = st
	}
	st.last = p.now()
	if err != nil {
		st.failures++
	} else {
		st.failures = 0
	}
}

func (p *PacedStatusFetcher) forget(transactionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.state, transactionID)
}
