package grpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/transfa/transfa-core/internal/domain"
)

// Ledger is the backend the gRPC server exposes.
// Errors are *domain.RemoteError carrying an HTTP status code.
type Ledger interface {
	SubmitSingle(ctx context.Context, sender string, t domain.TransferRequest, pin, idempotencyKey string) (domain.SingleTransferResult, error)
	SubmitBulk(ctx context.Context, sender string, ts []domain.TransferRequest, pin, idempotencyKey string) (domain.BulkTransferResult, error)
	Status(ctx context.Context, transactionID string) (domain.RemoteStatus, error)
	ClaimMoneyDrop(ctx context.Context, claimant, dropID, idempotencyKey string) (domain.ClaimResult, error)
}

// Server implements the TransferService gRPC server
type Server struct {
	Ledger Ledger
}

// NewServer creates a new gRPC server instance
func NewServer(ledger Ledger) *Server {
	return &Server{Ledger: ledger}
}

// SubmitSingle handles the SubmitSingle RPC
func (s *Server) SubmitSingle(ctx context.Context, req *SubmitSingleRequest) (*TransferReceipt, error) {
	sender, ok := UsernameFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	result, err := s.Ledger.SubmitSingle(ctx, sender, fromLine(req.Transfer), req.TransactionPIN, idempotencyKeyFromContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	return &TransferReceipt{
		TransactionID: result.TransactionID,
		Amount:        result.AmountMinor,
		Fee:           result.FeeMinor,
	}, nil
}

// SubmitBulk handles the SubmitBulk RPC
func (s *Server) SubmitBulk(ctx context.Context, req *SubmitBulkRequest) (*SubmitBulkResponse, error) {
	sender, ok := UsernameFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	transfers := make([]domain.TransferRequest, 0, len(req.Transfers))
	for _, line := range req.Transfers {
		transfers = append(transfers, fromLine(line))
	}

	result, err := s.Ledger.SubmitBulk(ctx, sender, transfers, req.TransactionPIN, idempotencyKeyFromContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	resp := &SubmitBulkResponse{
		Status:              result.Status,
		SuccessfulTransfers: make([]TransferReceipt, 0, len(result.SuccessfulTransfers)),
		FailedTransfers:     make([]FailedTransfer, 0, len(result.FailedTransfers)),
	}
	for _, st := range result.SuccessfulTransfers {
		resp.SuccessfulTransfers = append(resp.SuccessfulTransfers, TransferReceipt{
			TransactionID: st.TransactionID,
			Amount:        st.AmountMinor,
			Fee:           st.FeeMinor,
		})
	}
	for _, f := range result.FailedTransfers {
		resp.FailedTransfers = append(resp.FailedTransfers, FailedTransfer{
			RecipientUsername: f.RecipientUsername,
			Amount:            f.AmountMinor,
			Error:             f.Error,
		})
	}
	return resp, nil
}

// FetchStatus handles the FetchStatus RPC
func (s *Server) FetchStatus(ctx context.Context, req *FetchStatusRequest) (*FetchStatusResponse, error) {
	if strings.TrimSpace(req.TransactionID) == "" {
		return nil, status.Error(codes.InvalidArgument, "transaction_id is required")
	}

	result, err := s.Ledger.Status(ctx, req.TransactionID)
	if err != nil {
		return nil, mapError(err)
	}

	return &FetchStatusResponse{Status: result.Status, FailureReason: result.FailureReason}, nil
}

// ClaimMoneyDrop handles the ClaimMoneyDrop RPC
func (s *Server) ClaimMoneyDrop(ctx context.Context, req *ClaimMoneyDropRequest) (*ClaimMoneyDropResponse, error) {
	claimant, ok := UsernameFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	result, err := s.Ledger.ClaimMoneyDrop(ctx, claimant, req.DropID, idempotencyKeyFromContext(ctx))
	if err != nil {
		return nil, mapError(err)
	}

	return &ClaimMoneyDropResponse{
		TransactionID: result.TransactionID,
		Amount:        result.AmountMinor,
		Status:        result.Status,
	}, nil
}

func fromLine(line TransferLine) domain.TransferRequest {
	return domain.TransferRequest{
		RecipientUsername: line.RecipientUsername,
		AmountMinor:       line.Amount,
		Narration:         line.Description,
	}
}

// mapError maps ledger errors to gRPC status errors
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var remoteErr *domain.RemoteError
	if !errors.As(err, &remoteErr) {
		return status.Errorf(codes.Internal, "%s", err.Error())
	}

	switch remoteErr.StatusCode {
	case http.StatusBadRequest:
		return status.Errorf(codes.InvalidArgument, "%s", remoteErr.Message)
	case http.StatusUnauthorized:
		return status.Errorf(codes.Unauthenticated, "%s", remoteErr.Message)
	case http.StatusForbidden:
		return status.Errorf(codes.PermissionDenied, "%s", remoteErr.Message)
	case http.StatusNotFound:
		return status.Errorf(codes.NotFound, "%s", remoteErr.Message)
	case http.StatusConflict:
		return status.Errorf(codes.AlreadyExists, "%s", remoteErr.Message)
	case http.StatusGone, http.StatusUnprocessableEntity:
		return status.Errorf(codes.FailedPrecondition, "%s", remoteErr.Message)
	case http.StatusTooManyRequests:
		return status.Errorf(codes.ResourceExhausted, "%s", remoteErr.Message)
	case http.StatusServiceUnavailable:
		return status.Errorf(codes.Unavailable, "%s", remoteErr.Message)
	}

	// Default to Internal error for unknown errors
	return status.Errorf(codes.Internal, "%s", remoteErr.Message)
}

// httpStatusFromCode is the inverse of mapError, used by the client to build a *domain.RemoteError
func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
