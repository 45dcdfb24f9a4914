package grpc

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/transfa/transfa-core/internal/domain"
)

// retryServiceConfig retries UNAVAILABLE calls. Retried calls keep their
// metadata, so the idempotency key stays the same.
const retryServiceConfig = `{
	"methodConfig": [{
		"name": [{"service": "transfa.transfer.v1.TransferService"}],
		"retryPolicy": {
			"maxAttempts": 4,
			"initialBackoff": "0.2s",
			"maxBackoff": "5s",
			"backoffMultiplier": 2,
			"retryableStatusCodes": ["UNAVAILABLE"]
		}
	}]
}`

// Dial opens a client connection to the transfer service with the token attached to every call
func Dial(target, token string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(retryServiceConfig),
		grpc.WithChainUnaryInterceptor(BearerTokenInterceptor(token)),
	}
	conn, err := grpc.NewClient(target, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("dial transfer service: %w", err)
	}
	return conn, nil
}

// Client talks to the remote transfer API over gRPC.
// Every error it returns carries a *domain.RemoteError.
type Client struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewClient creates a new Client over an established connection
func NewClient(conn grpc.ClientConnInterface, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{conn: conn, logger: logger}
}

// SubmitSingle implements domain.TransferService
func (c *Client) SubmitSingle(ctx context.Context, req domain.SingleTransferRequest) (domain.SingleTransferResult, error) {
	in := &SubmitSingleRequest{
		Transfer:       toLine(req.Transfer),
		TransactionPIN: req.Credential.Reveal(),
	}
	out := new(TransferReceipt)
	if err := c.invoke(withIdempotencyKey(ctx, req.IdempotencyKey), MethodSubmitSingle, in, out); err != nil {
		return domain.SingleTransferResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	return domain.SingleTransferResult{
		TransactionID: out.TransactionID,
		AmountMinor:   out.Amount,
		FeeMinor:      out.Fee,
	}, nil
}

// SubmitBulk implements domain.TransferService
func (c *Client) SubmitBulk(ctx context.Context, req domain.BulkTransferRequest) (domain.BulkTransferResult, error) {
	in := &SubmitBulkRequest{
		Transfers:      make([]TransferLine, 0, len(req.Transfers)),
		TransactionPIN: req.Credential.Reveal(),
	}
	for _, t := range req.Transfers {
		in.Transfers = append(in.Transfers, toLine(t))
	}

	out := new(SubmitBulkResponse)
	if err := c.invoke(withIdempotencyKey(ctx, req.IdempotencyKey), MethodSubmitBulk, in, out); err != nil {
		return domain.BulkTransferResult{}, fmt.Errorf("submit bulk transfer: %w", err)
	}

	result := domain.BulkTransferResult{Status: out.Status}
	for _, st := range out.SuccessfulTransfers {
		result.SuccessfulTransfers = append(result.SuccessfulTransfers, domain.SingleTransferResult{
			TransactionID: st.TransactionID,
			AmountMinor:   st.Amount,
			FeeMinor:      st.Fee,
		})
	}
	for _, f := range out.FailedTransfers {
		result.FailedTransfers = append(result.FailedTransfers, domain.TransferFailure{
			RecipientUsername: f.RecipientUsername,
			AmountMinor:       f.Amount,
			Error:             f.Error,
		})
	}
	return result, nil
}

// FetchStatus implements domain.StatusFetcher
func (c *Client) FetchStatus(ctx context.Context, transactionID string) (domain.RemoteStatus, error) {
	out := new(FetchStatusResponse)
	if err := c.invoke(ctx, MethodFetchStatus, &FetchStatusRequest{TransactionID: transactionID}, out); err != nil {
		return domain.RemoteStatus{}, fmt.Errorf("fetch status of %s: %w", transactionID, err)
	}
	return domain.RemoteStatus{Status: out.Status, FailureReason: out.FailureReason}, nil
}

// ClaimMoneyDrop implements domain.MoneyDropService
func (c *Client) ClaimMoneyDrop(ctx context.Context, dropID string, idempotencyKey string) (domain.ClaimResult, error) {
	out := new(ClaimMoneyDropResponse)
	if err := c.invoke(withIdempotencyKey(ctx, idempotencyKey), MethodClaimMoneyDrop, &ClaimMoneyDropRequest{DropID: dropID}, out); err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{
		TransactionID: out.TransactionID,
		AmountMinor:   out.Amount,
		Status:        out.Status,
	}, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(jsonCodecName))
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	st, ok := status.FromError(err)
	if !ok {
		return &domain.RemoteError{Message: err.Error()}
	}
	c.logger.Debug("transfer service call failed",
		zap.String("method", method),
		zap.String("code", st.Code().String()),
	)
	if st.Code() == codes.Unavailable {
		return &domain.RemoteError{Message: "Unable to reach Transfa. Check your connection and try again."}
	}
	return &domain.RemoteError{StatusCode: httpStatusFromCode(st.Code()), Message: st.Message()}
}

func toLine(t domain.TransferRequest) TransferLine {
	return TransferLine{
		RecipientUsername: t.RecipientUsername,
		Amount:            t.AmountMinor,
		Description:       t.Narration,
	}
}

