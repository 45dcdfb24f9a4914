package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/transfa/transfa-core/internal/domain"
)

// StatusRecorder persists the final status of a transaction
type StatusRecorder interface {
	UpdateStatus(ctx context.Context, status domain.TransactionStatus) error
}

// LogNotifier is the terminal-status sink of headless clients: it logs the
// transition, rings the terminal bell when asked to and records the status.
type LogNotifier struct {
	logger   *zap.Logger
	recorder StatusRecorder
	bell     func()

	mu       sync.Mutex
	notified int
}

// NewLogNotifier creates a new LogNotifier. recorder and bell may be nil.
func NewLogNotifier(logger *zap.Logger, recorder StatusRecorder, bell func()) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, recorder: recorder, bell: bell}
}

// NotifyTerminal implements domain.Notifier
func (n *LogNotifier) NotifyTerminal(ctx context.Context, status domain.TransactionStatus) {
	n.mu.Lock()
	n.notified++
	n.mu.Unlock()

	fields := []zap.Field{
		zap.String("transaction_id", status.TransactionID),
		zap.String("status", string(status.Status)),
	}
	if status.Status == domain.StatusFailed {
		n.logger.Warn("transfer failed", append(fields, zap.String("reason", status.FailureReason))...)
	} else {
		n.logger.Info("transfer completed", fields...)
	}

	if n.bell != nil {
		n.bell()
	}

	if n.recorder != nil {
		if err := n.recorder.UpdateStatus(ctx, status); err != nil {
			n.logger.Error("failed to record final status", zap.String("transaction_id", status.TransactionID), zap.Error(err))
		}
	}
}

// Count returns how many terminal notifications were delivered
func (n *LogNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.notified
}
