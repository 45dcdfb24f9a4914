package authorization

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/transfa/transfa-core/internal/domain"
)

// MockBiometricSensor is a mock implementation of BiometricSensor for testing
type MockBiometricSensor struct {
	mock.Mock
}

func (m *MockBiometricSensor) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockBiometricSensor) Prompt(ctx context.Context) (domain.BiometricResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.BiometricResult), args.Error(1)
}

// MockCredentialStore is a mock implementation of CredentialStore for testing
type MockCredentialStore struct {
	mock.Mock
}

func (m *MockCredentialStore) StoredCredential(ctx context.Context) (domain.Credential, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Credential), args.Bool(1), args.Error(2)
}

// recorder captures the credentials handed off by the gate
type recorder struct {
	calls []string
	err   error
}

func (r *recorder) onObtained(ctx context.Context, cred domain.Credential) error {
	r.calls = append(r.calls, cred.Reveal())
	return r.err
}

func mustCredential(t *testing.T, pin string) domain.Credential {
	t.Helper()
	cred, err := domain.ParseCredential(pin)
	require.NoError(t, err)
	return cred
}

func TestGate_RequestMovesToAwaitingCredential(t *testing.T) {
	gate := NewGate(nil, nil, Options{}, nil)
	assert.Equal(t, StateIdle, gate.State())

	rec := &recorder{}
	require.NoError(t, gate.Request(context.Background(), rec.onObtained))

	assert.Equal(t, StateAwaitingCredential, gate.State())
	assert.Empty(t, rec.calls)
}

func TestGate_InputAutoSubmitsOnFourthDigit(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	rec := &recorder{}
	require.NoError(t, gate.Request(ctx, rec.onObtained))

	require.NoError(t, gate.Input(ctx, "1"))
	require.NoError(t, gate.Input(ctx, "12"))
	require.NoError(t, gate.Input(ctx, "123"))
	assert.Equal(t, 3, gate.EnteredDigits())
	assert.Empty(t, rec.calls)

	require.NoError(t, gate.Input(ctx, "1234"))

	assert.Equal(t, []string{"1234"}, rec.calls)
	assert.Equal(t, StateIdle, gate.State())
	assert.Equal(t, 0, gate.EnteredDigits())
}

func TestGate_InputSanitizesBeforeCountingDigits(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	rec := &recorder{}
	require.NoError(t, gate.Request(ctx, rec.onObtained))

	require.NoError(t, gate.Input(ctx, "12a3"))

	assert.Equal(t, 3, gate.EnteredDigits())
	assert.Empty(t, rec.calls, "three digits must not trigger an attempt")
	assert.Equal(t, StateAwaitingCredential, gate.State())
}

func TestGate_SubmitPinRejectsWrongLength(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	rec := &recorder{}
	require.NoError(t, gate.Request(ctx, rec.onObtained))

	err := gate.SubmitPin(ctx, "12a3")

	assert.True(t, errors.Is(err, &domain.InvalidLengthError{}))
	assert.Empty(t, rec.calls)
	assert.Equal(t, StateAwaitingCredential, gate.State())
}

func TestGate_SubmitPinWithoutRequest(t *testing.T) {
	gate := NewGate(nil, nil, Options{}, nil)

	err := gate.SubmitPin(context.Background(), "1234")

	assert.ErrorIs(t, err, domain.ErrNotAwaitingCredential)
}

func TestGate_FailedVerificationReopensWithError(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	rejected := &domain.CredentialRejectedError{Msg: "Invalid transaction pin"}
	rec := &recorder{err: rejected}
	require.NoError(t, gate.Request(ctx, rec.onObtained))

	err := gate.SubmitPin(ctx, "0000")

	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, StateAwaitingCredential, gate.State())
	assert.Equal(t, rejected, gate.LastError())
	assert.Equal(t, 0, gate.EnteredDigits())

	// A second attempt goes through the same callback.
	rec.err = nil
	require.NoError(t, gate.SubmitPin(ctx, "1234"))
	assert.Equal(t, []string{"0000", "1234"}, rec.calls)
	assert.Equal(t, StateIdle, gate.State())
	assert.NoError(t, gate.LastError())
}

func TestGate_CredentialNotConfiguredClosesGate(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	rec := &recorder{err: &domain.CredentialNotConfiguredError{}}
	require.NoError(t, gate.Request(ctx, rec.onObtained))

	err := gate.SubmitPin(ctx, "1234")

	assert.True(t, errors.Is(err, &domain.CredentialNotConfiguredError{}))
	assert.Equal(t, StateIdle, gate.State())
}

func TestGate_CloseIsRefusedWhileVerifying(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)

	var closeErr error
	var stateDuring State
	require.NoError(t, gate.Request(ctx, func(ctx context.Context, cred domain.Credential) error {
		stateDuring = gate.State()
		closeErr = gate.Close()
		return nil
	}))

	require.NoError(t, gate.SubmitPin(ctx, "1234"))

	assert.Equal(t, StateVerifying, stateDuring)
	assert.ErrorIs(t, closeErr, domain.ErrVerificationInFlight)
	assert.Equal(t, StateIdle, gate.State())
}

func TestGate_CloseClearsDigits(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	require.NoError(t, gate.Request(ctx, (&recorder{}).onObtained))
	require.NoError(t, gate.Input(ctx, "12"))

	require.NoError(t, gate.Close())

	assert.Equal(t, StateIdle, gate.State())
	assert.Equal(t, 0, gate.EnteredDigits())
	assert.ErrorIs(t, gate.Input(ctx, "1"), domain.ErrNotAwaitingCredential)
}

func TestGate_SubmitBiometric(t *testing.T) {
	tests := []struct {
		name      string
		prepareFn func(sensor *MockBiometricSensor, store *MockCredentialStore)
		wantErr   error
		wantCalls []string
	}{
		{
			name: "Success hands off the stored pin",
			prepareFn: func(sensor *MockBiometricSensor, store *MockCredentialStore) {
				sensor.On("Available", mock.Anything).Return(true)
				sensor.On("Prompt", mock.Anything).Return(domain.BiometricSuccess, nil)
				store.On("StoredCredential", mock.Anything).Return(mustCredential(t, "4321"), true, nil)
			},
			wantCalls: []string{"4321"},
		},
		{
			name: "Sensor unavailable",
			prepareFn: func(sensor *MockBiometricSensor, store *MockCredentialStore) {
				sensor.On("Available", mock.Anything).Return(false)
			},
			wantErr: &domain.SensorUnavailableError{},
		},
		{
			name: "User cancels the prompt",
			prepareFn: func(sensor *MockBiometricSensor, store *MockCredentialStore) {
				sensor.On("Available", mock.Anything).Return(true)
				sensor.On("Prompt", mock.Anything).Return(domain.BiometricCancelled, nil)
			},
			wantErr: &domain.UserCancelledError{},
		},
		{
			name: "No stored pin surrogate",
			prepareFn: func(sensor *MockBiometricSensor, store *MockCredentialStore) {
				sensor.On("Available", mock.Anything).Return(true)
				sensor.On("Prompt", mock.Anything).Return(domain.BiometricSuccess, nil)
				store.On("StoredCredential", mock.Anything).Return(domain.Credential{}, false, nil)
			},
			wantErr: &domain.CredentialMissingError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			sensor := new(MockBiometricSensor)
			store := new(MockCredentialStore)
			tt.prepareFn(sensor, store)

			gate := NewGate(sensor, store, Options{}, nil)
			rec := &recorder{}
			require.NoError(t, gate.Request(ctx, rec.onObtained))

			err := gate.SubmitBiometric(ctx)

			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, StateAwaitingCredential, gate.State(), "gate stays open for pin entry")
			} else {
				assert.NoError(t, err)
				assert.Equal(t, StateIdle, gate.State())
			}
			assert.Equal(t, tt.wantCalls, rec.calls)
			sensor.AssertExpectations(t)
			store.AssertExpectations(t)
		})
	}
}

func TestGate_SubmitBiometricWithoutSensor(t *testing.T) {
	ctx := context.Background()
	gate := NewGate(nil, nil, Options{}, nil)
	require.NoError(t, gate.Request(ctx, (&recorder{}).onObtained))

	err := gate.SubmitBiometric(ctx)

	assert.True(t, errors.Is(err, &domain.SensorUnavailableError{}))
}

func TestGate_RequestRequiresCallback(t *testing.T) {
	gate := NewGate(nil, nil, Options{}, nil)

	assert.Error(t, gate.Request(context.Background(), nil))
	assert.Equal(t, StateIdle, gate.State())
}
