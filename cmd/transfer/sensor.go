package main

import (
	"context"
	"strings"

	"github.com/transfa/transfa-core/internal/domain"
)

// savedPINPrompt stands in for the device biometric prompt on a terminal.
// It is available once a PIN was stored with pin-save; answering yes releases it.
type savedPINPrompt struct {
	app   *app
	store domain.CredentialStore
}

func (p *savedPINPrompt) Available(ctx context.Context) bool {
	_, ok, err := p.store.StoredCredential(ctx)
	return err == nil && ok
}

func (p *savedPINPrompt) Prompt(_ context.Context) (domain.BiometricResult, error) {
	answer, err := p.app.readLine("Use saved PIN? [y/N]: ")
	if err != nil {
		return domain.BiometricCancelled, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return domain.BiometricSuccess, nil
	default:
		return domain.BiometricCancelled, nil
	}
}
