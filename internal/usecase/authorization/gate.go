package authorization

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/transfa/transfa-core/internal/domain"
	"go.uber.org/zap"
)

// State is the authorization gate state
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingCredential State = "awaiting_credential"
	StateVerifying          State = "verifying"
)

// OnObtained receives the credential once the user supplied it.
// Returning an error keeps the gate open for another attempt, except for
// *domain.CredentialNotConfiguredError which abandons the flow.
type OnObtained func(ctx context.Context, cred domain.Credential) error

// Options configures the non-interactive escape path.
// It only takes effect in binaries built with the devbypass tag.
type Options struct {
	SkipPinCheck bool
	DevPIN       string
}

// Gate obtains a transaction credential before a transfer is submitted.
//
//	Idle -> AwaitingCredential -> Verifying -> Idle (handed off)
//	                                        -> AwaitingCredential (rejected, error kept)
type Gate struct {
	sensor domain.BiometricSensor
	store  domain.CredentialStore
	opts   Options
	logger *zap.Logger

	mu         sync.Mutex
	state      State
	digits     string
	onObtained OnObtained
	lastErr    error
}

// NewGate creates a new Gate. sensor and store may be nil when the device has neither.
func NewGate(sensor domain.BiometricSensor, store domain.CredentialStore, opts Options, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		sensor: sensor,
		store:  store,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// Request opens the gate. onObtained is invoked with the credential once one is supplied.
func (g *Gate) Request(ctx context.Context, onObtained OnObtained) error {
	if onObtained == nil {
		return errors.New("authorization callback is required")
	}

	g.mu.Lock()
	if g.state == StateVerifying {
		g.mu.Unlock()
		return domain.ErrVerificationInFlight
	}
	g.state = StateAwaitingCredential
	g.onObtained = onObtained
	g.digits = ""
	g.lastErr = nil
	g.mu.Unlock()

	if !g.bypassEnabled() {
		return nil
	}

	cred, err := g.bypassCredential(ctx)
	if err != nil {
		g.logger.Warn("pin check bypass enabled but no credential available, falling back to entry", zap.Error(err))
		return nil
	}
	g.logger.Warn("pin check bypassed")
	return g.verify(ctx, cred)
}

// Input records keypad input. Non-digits are stripped and at most PINLength digits
// are kept; reaching PINLength digits triggers verification automatically.
func (g *Gate) Input(ctx context.Context, raw string) error {
	digits := domain.SanitizePIN(raw)
	if len(digits) > domain.PINLength {
		digits = digits[:domain.PINLength]
	}

	g.mu.Lock()
	if err := g.checkAwaitingLocked(); err != nil {
		g.mu.Unlock()
		return err
	}
	g.digits = digits
	g.mu.Unlock()

	if len(digits) < domain.PINLength {
		return nil
	}
	return g.SubmitPin(ctx, digits)
}

// SubmitPin verifies an explicitly entered PIN
func (g *Gate) SubmitPin(ctx context.Context, raw string) error {
	cred, err := domain.ParseCredential(raw)
	if err != nil {
		return err
	}
	return g.verify(ctx, cred)
}

// SubmitBiometric runs the device prompt and, on success, verifies the stored PIN surrogate
// as if it had been typed.
func (g *Gate) SubmitBiometric(ctx context.Context) error {
	g.mu.Lock()
	err := g.checkAwaitingLocked()
	g.mu.Unlock()
	if err != nil {
		return err
	}

	if g.sensor == nil || !g.sensor.Available(ctx) {
		return &domain.SensorUnavailableError{}
	}

	result, err := g.sensor.Prompt(ctx)
	if err != nil {
		return fmt.Errorf("biometric prompt: %w", err)
	}
	if result == domain.BiometricCancelled {
		return &domain.UserCancelledError{}
	}

	if g.store == nil {
		return &domain.CredentialMissingError{}
	}
	cred, ok, err := g.store.StoredCredential(ctx)
	if err != nil {
		return fmt.Errorf("load stored credential: %w", err)
	}
	if !ok || cred.IsZero() {
		return &domain.CredentialMissingError{}
	}

	return g.verify(ctx, cred)
}

// Close resets the gate. It is refused while a credential is being verified.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == StateVerifying {
		return domain.ErrVerificationInFlight
	}
	g.resetLocked()
	g.lastErr = nil
	return nil
}

// State returns the current gate state
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// EnteredDigits returns how many PIN digits are currently entered
func (g *Gate) EnteredDigits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.digits)
}

// LastError returns the error of the last failed verification, shown next to the keypad
func (g *Gate) LastError() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastErr
}

func (g *Gate) verify(ctx context.Context, cred domain.Credential) error {
	g.mu.Lock()
	if err := g.checkAwaitingLocked(); err != nil {
		g.mu.Unlock()
		return err
	}
	g.state = StateVerifying
	onObtained := g.onObtained
	g.mu.Unlock()

	err := onObtained(ctx, cred)

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case err == nil:
		g.resetLocked()
		g.lastErr = nil
	case errors.Is(err, &domain.CredentialNotConfiguredError{}):
		g.resetLocked()
		g.lastErr = err
	default:
		g.state = StateAwaitingCredential
		g.digits = ""
		g.lastErr = err
	}
	return err
}

func (g *Gate) checkAwaitingLocked() error {
	switch g.state {
	case StateAwaitingCredential:
		return nil
	case StateVerifying:
		return domain.ErrVerificationInFlight
	default:
		return domain.ErrNotAwaitingCredential
	}
}

func (g *Gate) resetLocked() {
	g.state = StateIdle
	g.digits = ""
	g.onObtained = nil
}

func (g *Gate) bypassEnabled() bool {
	return BypassCompiled && g.opts.SkipPinCheck
}

func (g *Gate) bypassCredential(ctx context.Context) (domain.Credential, error) {
	if g.opts.DevPIN != "" {
		return domain.ParseCredential(g.opts.DevPIN)
	}
	if g.store == nil {
		return domain.Credential{}, &domain.CredentialMissingError{}
	}
	cred, ok, err := g.store.StoredCredential(ctx)
	if err != nil {
		return domain.Credential{}, err
	}
	if !ok {
		return domain.Credential{}, &domain.CredentialMissingError{}
	}
	return cred, nil
}
