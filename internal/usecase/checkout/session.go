package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/transfa/transfa-core/internal/domain"
	"github.com/transfa/transfa-core/internal/usecase/authorization"
	"github.com/transfa/transfa-core/internal/usecase/draft"
	"github.com/transfa/transfa-core/internal/usecase/reconciler"
	"go.uber.org/zap"
)

// TransferSubmitter submits a finalized draft set
type TransferSubmitter interface {
	Submit(ctx context.Context, drafts []domain.TransferDraft, cred domain.Credential) (domain.SubmissionOutcome, error)
}

// ReceiptRecorder keeps a history of reconciled submission attempts
type ReceiptRecorder interface {
	RecordResult(ctx context.Context, attemptID string, result reconciler.Result) error
}

// Session owns the state of one composing session: the drafts, the gate that
// authorizes them and the result of the last submission attempt.
type Session struct {
	builder    *draft.Builder
	gate       *authorization.Gate
	submitter  TransferSubmitter
	reconciler *reconciler.Reconciler
	recorder   ReceiptRecorder
	logger     *zap.Logger

	mu            sync.Mutex
	inFlight      bool
	needsSetup    bool
	lastAttemptID string
	lastResult    *reconciler.Result
}

// NewSession creates a new Session. recorder may be nil.
func NewSession(
	builder *draft.Builder,
	gate *authorization.Gate,
	submitter TransferSubmitter,
	recorder ReceiptRecorder,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		builder:    builder,
		gate:       gate,
		submitter:  submitter,
		reconciler: reconciler.NewReconciler(),
		recorder:   recorder,
		logger:     logger,
	}
}

// Drafts returns the session's draft builder
func (s *Session) Drafts() *draft.Builder {
	return s.builder
}

// Gate returns the session's authorization gate
func (s *Session) Gate() *authorization.Gate {
	return s.gate
}

// Confirm asks for a credential to submit the saved drafts with
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return domain.ErrSubmissionInFlight
	}
	s.needsSetup = false
	s.mu.Unlock()

	if s.builder.Len() == 0 {
		return domain.ErrNoDrafts
	}
	return s.gate.Request(ctx, s.submit)
}

// EnterDigits forwards keypad input to the gate
func (s *Session) EnterDigits(ctx context.Context, raw string) error {
	return s.gate.Input(ctx, raw)
}

// SubmitPin forwards an explicitly entered PIN to the gate
func (s *Session) SubmitPin(ctx context.Context, raw string) error {
	return s.gate.SubmitPin(ctx, raw)
}

// SubmitBiometric authorizes with the device biometric prompt
func (s *Session) SubmitBiometric(ctx context.Context) error {
	return s.gate.SubmitBiometric(ctx)
}

// Cancel closes the gate. It is refused while a submission is in flight.
func (s *Session) Cancel() error {
	return s.gate.Close()
}

// NeedsCredentialSetup reports whether the last attempt was abandoned because no PIN is set
func (s *Session) NeedsCredentialSetup() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsSetup
}

// LastResult returns the reconciled result of the last completed attempt
func (s *Session) LastResult() (reconciler.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return reconciler.Result{}, false
	}
	return *s.lastResult, true
}

// LastAttemptID returns the id of the last submission attempt
func (s *Session) LastAttemptID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAttemptID
}

// submit is handed to the gate and runs once a credential is obtained.
// Logic:
//  1. Refuse a second submission while one is in flight
//  2. Submit a snapshot of the drafts
//  3. Credential errors leave the drafts untouched and go back to the gate
//  4. Otherwise reconcile and keep only the retained drafts
func (s *Session) submit(ctx context.Context, cred domain.Credential) error {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return domain.ErrSubmissionInFlight
	}
	s.inFlight = true
	attemptID := ulid.Make().String()
	s.lastAttemptID = attemptID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	logger := s.logger.With(zap.String("attempt_id", attemptID))
	submitted := s.builder.Drafts()

	outcome, err := s.submitter.Submit(ctx, submitted, cred)
	if err != nil {
		if errors.Is(err, &domain.CredentialNotConfiguredError{}) {
			s.mu.Lock()
			s.needsSetup = true
			s.mu.Unlock()
		}
		logger.Info("submission not accepted", zap.String("reason", domain.UserMessage(err)))
		return err
	}

	result := s.reconciler.Reconcile(submitted, outcome)
	s.builder.Replace(result.Retained)

	s.mu.Lock()
	s.lastResult = &result
	s.mu.Unlock()

	logger.Info("submission reconciled",
		zap.String("outcome", string(result.Kind)),
		zap.Int("receipts", len(result.Receipts)),
		zap.Int("failures", len(result.Failures)),
		zap.Int("retained", len(result.Retained)),
	)

	if s.recorder != nil {
		if err := s.recorder.RecordResult(ctx, attemptID, result); err != nil {
			logger.Error("failed to record submission result", zap.Error(err))
		}
	}
	return nil
}
