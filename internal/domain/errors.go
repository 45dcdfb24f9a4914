package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrVerificationInFlight is returned when the authorization gate is asked to
	// change state while a credential is being verified.
	ErrVerificationInFlight = errors.New("a transfer is being authorized, please wait")
	// ErrNotAwaitingCredential is returned when a credential is offered to a gate that did not request one.
	ErrNotAwaitingCredential = errors.New("authorization was not requested")
	// ErrSubmissionInFlight guards against duplicate submissions from one session.
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	// ErrNoDrafts is returned when confirming an empty draft set.
	ErrNoDrafts = errors.New("add at least one transfer before confirming")
)

// ValidationError reports a draft field that violates domain rules
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// DuplicateRecipientError is returned when a draft for the same recipient already exists
type DuplicateRecipientError struct {
	Key string
}

func (e *DuplicateRecipientError) Error() string {
	return fmt.Sprintf("a transfer to @%s is already in this batch, edit it instead", e.Key)
}

func (e *DuplicateRecipientError) Is(target error) bool {
	_, ok := target.(*DuplicateRecipientError)
	return ok
}

// InvalidLengthError is returned when a PIN does not have exactly Want digits
type InvalidLengthError struct {
	Got  int
	Want int
}

func (e *InvalidLengthError) Error() string {
	return fmt.Sprintf("PIN must be %d digits", e.Want)
}

func (e *InvalidLengthError) Is(target error) bool {
	_, ok := target.(*InvalidLengthError)
	return ok
}

// CredentialRejectedError means the remote service refused the PIN.
// The same drafts may be retried with a new credential.
type CredentialRejectedError struct {
	Msg string
}

func (e *CredentialRejectedError) Error() string {
	if e.Msg == "" {
		return "invalid transaction pin"
	}
	return e.Msg
}

func (e *CredentialRejectedError) Is(target error) bool {
	_, ok := target.(*CredentialRejectedError)
	return ok
}

// CredentialNotConfiguredError means the user has no transaction PIN yet.
// The flow must be abandoned in favour of PIN setup.
type CredentialNotConfiguredError struct {
	Msg string
}

func (e *CredentialNotConfiguredError) Error() string {
	if e.Msg == "" {
		return "transaction pin is not set"
	}
	return e.Msg
}

func (e *CredentialNotConfiguredError) Is(target error) bool {
	_, ok := target.(*CredentialNotConfiguredError)
	return ok
}

// SensorUnavailableError is returned when no biometric hardware or enrollment exists
type SensorUnavailableError struct{}

func (e *SensorUnavailableError) Error() string {
	return "biometric authentication is not available on this device"
}

func (e *SensorUnavailableError) Is(target error) bool {
	_, ok := target.(*SensorUnavailableError)
	return ok
}

// UserCancelledError is returned when the user dismisses the biometric prompt
type UserCancelledError struct{}

func (e *UserCancelledError) Error() string {
	return "biometric authentication was cancelled"
}

func (e *UserCancelledError) Is(target error) bool {
	_, ok := target.(*UserCancelledError)
	return ok
}

// CredentialMissingError is returned when biometrics succeed but no PIN surrogate is stored
type CredentialMissingError struct{}

func (e *CredentialMissingError) Error() string {
	return "no saved PIN for biometric authorization, enter your PIN instead"
}

func (e *CredentialMissingError) Is(target error) bool {
	_, ok := target.(*CredentialMissingError)
	return ok
}

// RemoteError is the single error shape transports hand to the core.
// StatusCode is the HTTP status (or an equivalent for other transports); 0 means the
// request never got a response.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Is(target error) bool {
	_, ok := target.(*RemoteError)
	return ok
}

// Temporary reports whether retrying the identical request may succeed
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500 || e.StatusCode == 429
}

const genericFailureMessage = "Something went wrong. Please try again."

// UserMessage selects the single user-facing message for an error.
// Raw transport text is only used as a last resort.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var (
		validationErr *ValidationError
		remoteErr     *RemoteError
	)
	switch {
	case errors.As(err, &validationErr):
		return validationErr.Msg
	case errors.Is(err, &CredentialRejectedError{}):
		return "Incorrect transaction PIN. Please try again."
	case errors.Is(err, &CredentialNotConfiguredError{}):
		return "Set up your transaction PIN to continue."
	case errors.Is(err, &DuplicateRecipientError{}),
		errors.Is(err, &InvalidLengthError{}),
		errors.Is(err, &SensorUnavailableError{}),
		errors.Is(err, &UserCancelledError{}),
		errors.Is(err, &CredentialMissingError{}),
		errors.Is(err, ErrSubmissionInFlight),
		errors.Is(err, ErrVerificationInFlight),
		errors.Is(err, ErrNoDrafts):
		return err.Error()
	case errors.As(err, &remoteErr) && remoteErr.Message != "":
		return remoteErr.Message
	default:
		if msg := err.Error(); msg != "" {
			return msg
		}
		return genericFailureMessage
	}
}
