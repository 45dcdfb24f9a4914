package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/transfa/transfa-core/internal/adapter/notify"
	"github.com/transfa/transfa-core/internal/adapter/rest"
	"github.com/transfa/transfa-core/internal/domain"
	"github.com/transfa/transfa-core/internal/usecase/authorization"
	"github.com/transfa/transfa-core/internal/usecase/checkout"
	"github.com/transfa/transfa-core/internal/usecase/draft"
	"github.com/transfa/transfa-core/internal/usecase/moneydrop"
	"github.com/transfa/transfa-core/internal/usecase/reconciler"
	"github.com/transfa/transfa-core/internal/usecase/status"
	"github.com/transfa/transfa-core/internal/usecase/submitter"
)

const maxPINAttempts = 3

func newClaimer(a *app) *moneydrop.Claimer {
	return moneydrop.NewClaimer(a.remote, a.logger.Named("moneydrop"))
}

func (a *app) newSession() *checkout.Session {
	var store domain.CredentialStore
	var sensor domain.BiometricSensor
	if a.store != nil {
		store = a.store
		sensor = &savedPINPrompt{app: a, store: a.store}
	}
	var recorder checkout.ReceiptRecorder
	if a.receipts != nil {
		recorder = a.receipts
	}

	builder := draft.NewBuilder(domain.Recipient{ID: a.cfg.UserID, Username: a.cfg.Username})
	gate := authorization.NewGate(sensor, store, authorization.Options{
		SkipPinCheck: a.cfg.SkipPinCheck,
		DevPIN:       a.cfg.DevPIN,
	}, a.logger.Named("gate"))
	return checkout.NewSession(builder, gate, submitter.NewSubmitter(a.remote, a.logger.Named("submitter")), recorder, a.logger.Named("checkout"))
}

// send builds the drafts, authorizes them and follows every receipt to a final status.
// Logic:
//  1. Parse every -to into a draft; duplicates and invalid drafts abort before anything is sent
//  2. Confirm; offer the saved PIN when one is stored, else read the PIN from stdin (up to 3 tries)
//  3. Print the reconciled result and observe each entry until it settles
func (a *app) send(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ContinueOnError)
	var to transferFlags
	fs.Var(&to, "to", "recipient:amount:narration, repeatable")
	noWait := fs.Bool("no-wait", false, "do not wait for final statuses")
	if err := fs.Parse(args); err != nil {
		return err
	}

	session := a.newSession()
	for _, raw := range to {
		d, err := parseTransfer(raw)
		if err != nil {
			return err
		}
		if err := session.Drafts().AddOrUpdate(d, ""); err != nil {
			return err
		}
	}

	summary := session.Drafts().Summary()
	fmt.Fprintf(a.out, "Sending NGN %s to %d recipient(s)\n", summary.Total.StringFixed(2), summary.Count)

	if err := a.authorize(ctx, session); err != nil {
		return err
	}

	result, ok := session.LastResult()
	if !ok {
		return errors.New("no submission was made")
	}
	payload := reconciler.Payload(result)
	a.printPayload(payload)

	if *noWait || len(payload.Entries) == 0 {
		return nil
	}
	return a.follow(ctx, payload)
}

func (a *app) authorize(ctx context.Context, session *checkout.Session) error {
	if err := session.Confirm(ctx); err != nil {
		return err
	}
	if session.Gate().State() == authorization.StateAwaitingCredential {
		if err := a.useSavedPIN(ctx, session); err != nil {
			return err
		}
	}

	for attempt := 1; session.Gate().State() == authorization.StateAwaitingCredential; attempt++ {
		if attempt > maxPINAttempts {
			_ = session.Cancel()
			return &domain.CredentialRejectedError{Msg: "too many incorrect PIN attempts"}
		}

		raw, err := a.readLine("Transaction PIN: ")
		if err != nil {
			_ = session.Cancel()
			return err
		}

		err = session.EnterDigits(ctx, raw)
		switch {
		case err == nil:
		case errors.Is(err, &domain.CredentialNotConfiguredError{}):
			return err
		case errors.Is(err, &domain.CredentialRejectedError{}), errors.Is(err, &domain.InvalidLengthError{}):
			fmt.Fprintln(a.out, domain.UserMessage(err))
		default:
			_ = session.Cancel()
			return err
		}
	}
	return nil
}

// useSavedPIN tries the stored PIN first. Declining, a missing PIN or a stale one
// falls back to typing it.
func (a *app) useSavedPIN(ctx context.Context, session *checkout.Session) error {
	err := session.SubmitBiometric(ctx)
	switch {
	case err == nil:
	case errors.Is(err, &domain.SensorUnavailableError{}),
		errors.Is(err, &domain.UserCancelledError{}),
		errors.Is(err, &domain.CredentialMissingError{}):
	case errors.Is(err, &domain.CredentialRejectedError{}):
		fmt.Fprintln(a.out, "Saved PIN was not accepted, enter it instead.")
	case errors.Is(err, &domain.CredentialNotConfiguredError{}):
		return err
	default:
		_ = session.Cancel()
		return err
	}
	return nil
}

func (a *app) printPayload(p reconciler.ResultPayload) {
	fmt.Fprintln(a.out, p.Message)
	for _, e := range p.Entries {
		if e.TransactionID == "" {
			fmt.Fprintf(a.out, "  %-12s NGN %12s  failed: %s\n", e.RecipientUsername, domain.FormatMinor(e.AmountMinor), e.Seed.FailureReason)
			continue
		}
		fmt.Fprintf(a.out, "  %-12s NGN %12s  fee %s  %s\n", e.RecipientUsername, domain.FormatMinor(e.AmountMinor), domain.FormatMinor(e.FeeMinor), e.TransactionID)
	}
	fmt.Fprintf(a.out, "Sent NGN %s, fees NGN %s\n", p.Sent.StringFixed(2), p.Fees.StringFixed(2))
}

// follow observes every receipt until it reaches a final status
func (a *app) follow(ctx context.Context, p reconciler.ResultPayload) error {
	var recorder notify.StatusRecorder
	if a.receipts != nil {
		recorder = a.receipts
	}
	notifier := notify.NewLogNotifier(a.logger.Named("notify"), recorder, func() { fmt.Fprint(os.Stderr, "\a") })

	poller := status.NewPoller(rest.NewPacedStatusFetcher(a.remote, a.cfg.PollInterval), notifier, a.logger.Named("status"))
	poller.MaxConsecutiveErrors = a.cfg.PollMaxErrors

	names := make(map[string]string, len(p.Entries))
	seeds := make([]domain.TransactionStatus, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.TransactionID == "" {
			continue
		}
		names[e.TransactionID] = e.RecipientUsername
		seeds = append(seeds, e.Seed)
	}

	for update := range poller.ObserveAll(ctx, seeds) {
		line := fmt.Sprintf("  %-12s %s", names[update.TransactionID], update.Status)
		if update.FailureReason != "" {
			line += ": " + update.FailureReason
		}
		fmt.Fprintln(a.out, line)
	}
	return ctx.Err()
}
