package sandbox_test

import (
	"context"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	grpcadapter "github.com/transfa/transfa-core/internal/adapter/grpc"
	"github.com/transfa/transfa-core/internal/adapter/notify"
	"github.com/transfa/transfa-core/internal/adapter/rest"
	"github.com/transfa/transfa-core/internal/domain"
	"github.com/transfa/transfa-core/internal/sandbox"
	"github.com/transfa/transfa-core/internal/usecase/authorization"
	"github.com/transfa/transfa-core/internal/usecase/checkout"
	"github.com/transfa/transfa-core/internal/usecase/draft"
	"github.com/transfa/transfa-core/internal/usecase/moneydrop"
	"github.com/transfa/transfa-core/internal/usecase/reconciler"
	"github.com/transfa/transfa-core/internal/usecase/status"
	"github.com/transfa/transfa-core/internal/usecase/submitter"
)

var alice = domain.Recipient{ID: "usr_alice", Username: "alice"}

func newLedger(t *testing.T) *sandbox.Ledger {
	t.Helper()
	l := sandbox.NewLedger(sandbox.Options{BcryptCost: bcrypt.MinCost}, nil)
	require.NoError(t, sandbox.SeedDemo(l))
	return l
}

func newSession(transfers domain.TransferService) *checkout.Session {
	gate := authorization.NewGate(nil, nil, authorization.Options{}, nil)
	return checkout.NewSession(draft.NewBuilder(alice), gate, submitter.NewSubmitter(transfers, nil), nil, nil)
}

func addDraft(t *testing.T, s *checkout.Session, username string, amount int64, narration string) {
	t.Helper()
	require.NoError(t, s.Drafts().AddOrUpdate(domain.TransferDraft{
		Recipient:   domain.Recipient{Username: username},
		AmountMinor: amount,
		Narration:   narration,
	}, ""))
}

// finalStatuses drains a status stream and keeps the last status per recipient
func finalStatuses(t *testing.T, entries []reconciler.ResultEntry, updates <-chan domain.TransactionStatus) map[string]domain.TransactionStatus {
	t.Helper()
	byID := make(map[string]string, len(entries))
	for _, e := range entries {
		byID[e.TransactionID] = e.RecipientUsername
	}

	final := make(map[string]domain.TransactionStatus)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return final
			}
			final[byID[s.TransactionID]] = s
		case <-timeout:
			t.Fatal("status stream did not finish")
			return final
		}
	}
}

func TestEndToEnd_RESTBulkWithRetryAndPolling(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	srv := httptest.NewServer(sandbox.NewRouter(ledger, sandbox.DemoTokens, nil))
	t.Cleanup(srv.Close)

	client := rest.NewClient(srv.URL, "dev-token", rest.Options{RetryBackoff: time.Millisecond}, nil)
	session := newSession(client)
	addDraft(t, session, "bob", 500000, "rent")
	addDraft(t, session, "dave", 100000, "loan")
	addDraft(t, session, "zed", 250000, "gift")

	require.NoError(t, session.Confirm(ctx))

	// A wrong PIN keeps every draft and reopens the keypad
	err := session.EnterDigits(ctx, "0000")
	require.ErrorIs(t, err, &domain.CredentialRejectedError{})
	assert.Equal(t, authorization.StateAwaitingCredential, session.Gate().State())
	assert.Equal(t, 3, session.Drafts().Len())

	require.NoError(t, session.EnterDigits(ctx, "1234"))

	result, ok := session.LastResult()
	require.True(t, ok)
	assert.Equal(t, domain.OutcomePartialFailure, result.Kind)
	require.Len(t, result.Receipts, 2)
	assert.Equal(t, "bob", result.Receipts[0].RecipientUsername)
	assert.Equal(t, "dave", result.Receipts[1].RecipientUsername)

	retained := session.Drafts().Drafts()
	require.Len(t, retained, 1)
	assert.Equal(t, "zed", retained[0].Recipient.Username)

	payload := reconciler.Payload(result)
	assert.Equal(t, reconciler.HeadlinePartial, payload.Headline)
	assert.Equal(t, "6000.00", payload.Sent.StringFixed(2))

	seeds := make([]domain.TransactionStatus, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		seeds = append(seeds, e.Seed)
	}

	notifier := notify.NewLogNotifier(nil, nil, nil)
	poller := status.NewPoller(rest.NewPacedStatusFetcher(client, 5*time.Millisecond), notifier, nil)
	final := finalStatuses(t, payload.Entries, poller.ObserveAll(ctx, seeds))

	assert.Equal(t, domain.StatusCompleted, final["bob"].Status)
	assert.Equal(t, domain.StatusFailed, final["dave"].Status)
	assert.Equal(t, "Recipient account is restricted", final["dave"].FailureReason)
	assert.Equal(t, domain.StatusFailed, final["zed"].Status)
	assert.Equal(t, "Recipient not found", final["zed"].FailureReason)
	assert.Equal(t, 3, notifier.Count())

	bobBalance, _ := ledger.Balance("bob")
	assert.Equal(t, int64(1_500_000), bobBalance)
	aliceBalance, _ := ledger.Balance("alice")
	assert.Equal(t, int64(5_000_000-501000), aliceBalance)
}

func TestEndToEnd_RESTPinNotSetAbandonsFlow(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(sandbox.NewRouter(newLedger(t), sandbox.DemoTokens, nil))
	t.Cleanup(srv.Close)

	client := rest.NewClient(srv.URL, "erin-token", rest.Options{}, nil)
	gate := authorization.NewGate(nil, nil, authorization.Options{}, nil)
	session := checkout.NewSession(draft.NewBuilder(domain.Recipient{Username: "erin"}), gate, submitter.NewSubmitter(client, nil), nil, nil)
	addDraft(t, session, "bob", 1000, "coffee")

	require.NoError(t, session.Confirm(ctx))
	err := session.SubmitPin(ctx, "1234")

	require.ErrorIs(t, err, &domain.CredentialNotConfiguredError{})
	assert.True(t, session.NeedsCredentialSetup())
	assert.Equal(t, authorization.StateIdle, session.Gate().State())
	assert.Equal(t, 1, session.Drafts().Len())
}

func startGRPC(t *testing.T, ledger *sandbox.Ledger, token string) *grpcadapter.Client {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer(grpc.UnaryInterceptor(grpcadapter.AuthInterceptor(sandbox.DemoTokens)))
	grpcadapter.RegisterTransferServiceServer(srv, grpcadapter.NewServer(ledger))
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	conn, err := grpcadapter.Dial("passthrough:///bufnet", token,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return grpcadapter.NewClient(conn, nil)
}

func TestEndToEnd_GRPCSingleTransferAndClaim(t *testing.T) {
	ctx := context.Background()
	ledger := newLedger(t)
	client := startGRPC(t, ledger, "dev-token")

	session := newSession(client)
	addDraft(t, session, "@Carol", 120000, "books")
	require.NoError(t, session.Confirm(ctx))
	require.NoError(t, session.SubmitPin(ctx, "1234"))

	result, ok := session.LastResult()
	require.True(t, ok)
	assert.Equal(t, domain.OutcomeSuccess, result.Kind)
	require.Len(t, result.Receipts, 1)
	assert.Equal(t, int64(1000), result.Receipts[0].FeeMinor)
	assert.Equal(t, 0, session.Drafts().Len())

	poller := status.NewPoller(client, nil, nil)
	var last domain.TransactionStatus
	for s := range poller.Observe(ctx, result.Receipts[0].TransactionID, nil) {
		last = s
	}
	assert.Equal(t, domain.StatusCompleted, last.Status)

	claimer := moneydrop.NewClaimer(startGRPC(t, ledger, "bob-token"), nil)
	claim, err := claimer.Claim(ctx, sandbox.DemoMoneyDrop)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), claim.AmountMinor)

	_, err = claimer.Claim(ctx, sandbox.DemoMoneyDrop)
	require.Error(t, err)
	assert.Equal(t, "You have already claimed this money drop", domain.UserMessage(err))
}
