package domain

import "strings"

// PINLength is the number of digits of a transaction PIN.
const PINLength = 4

// Credential is the transaction PIN handed to the transfer service.
// It is a transient value; String and GoString are redacted so it never ends up in logs.
type Credential struct {
	pin string
}

// ParseCredential sanitizes raw input and returns a credential when exactly
// PINLength digits remain.
func ParseCredential(raw string) (Credential, error) {
	digits := SanitizePIN(raw)
	if len(digits) != PINLength {
		return Credential{}, &InvalidLengthError{Got: len(digits), Want: PINLength}
	}
	return Credential{pin: digits}, nil
}

// SanitizePIN strips every non-digit character from raw input.
func SanitizePIN(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Reveal returns the raw PIN. Only transports should call it.
func (c Credential) Reveal() string {
	return c.pin
}

// IsZero reports whether the credential is empty.
func (c Credential) IsZero() bool {
	return c.pin == ""
}

func (c Credential) String() string {
	if c.pin == "" {
		return ""
	}
	return "****"
}

func (c Credential) GoString() string {
	return "domain.Credential{****}"
}
