package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "transfa.transfer.v1.TransferService"

// Full method names of the transfer service
const (
	MethodSubmitSingle   = "/" + serviceName + "/SubmitSingle"
	MethodSubmitBulk     = "/" + serviceName + "/SubmitBulk"
	MethodFetchStatus    = "/" + serviceName + "/FetchStatus"
	MethodClaimMoneyDrop = "/" + serviceName + "/ClaimMoneyDrop"
)

// TransferLine is one transfer of a submission. Amounts are in kobo.
type TransferLine struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Description       string `json:"description"`
}

type SubmitSingleRequest struct {
	Transfer       TransferLine `json:"transfer"`
	TransactionPIN string       `json:"transaction_pin"`
}

type TransferReceipt struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount,omitempty"`
	Fee           int64  `json:"fee,omitempty"`
}

type SubmitBulkRequest struct {
	Transfers      []TransferLine `json:"transfers"`
	TransactionPIN string         `json:"transaction_pin"`
}

type FailedTransfer struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Error             string `json:"error"`
}

type SubmitBulkResponse struct {
	Status              string            `json:"status"`
	SuccessfulTransfers []TransferReceipt `json:"successful_transfers"`
	FailedTransfers     []FailedTransfer  `json:"failed_transfers"`
}

type FetchStatusRequest struct {
	TransactionID string `json:"transaction_id"`
}

type FetchStatusResponse struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type ClaimMoneyDropRequest struct {
	DropID string `json:"drop_id"`
}

type ClaimMoneyDropResponse struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

// TransferServiceServer is the server API of the transfer service
type TransferServiceServer interface {
	SubmitSingle(ctx context.Context, req *SubmitSingleRequest) (*TransferReceipt, error)
	SubmitBulk(ctx context.Context, req *SubmitBulkRequest) (*SubmitBulkResponse, error)
	FetchStatus(ctx context.Context, req *FetchStatusRequest) (*FetchStatusResponse, error)
	ClaimMoneyDrop(ctx context.Context, req *ClaimMoneyDropRequest) (*ClaimMoneyDropResponse, error)
}

// TransferServiceDesc describes the transfer service for grpc.Server registration
var TransferServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TransferServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitSingle",
			Handler: unaryHandler(MethodSubmitSingle, func(s TransferServiceServer, ctx context.Context, req *SubmitSingleRequest) (*TransferReceipt, error) {
				return s.SubmitSingle(ctx, req)
			}),
		},
		{
			MethodName: "SubmitBulk",
			Handler: unaryHandler(MethodSubmitBulk, func(s TransferServiceServer, ctx context.Context, req *SubmitBulkRequest) (*SubmitBulkResponse, error) {
				return s.SubmitBulk(ctx, req)
			}),
		},
		{
			MethodName: "FetchStatus",
			Handler: unaryHandler(MethodFetchStatus, func(s TransferServiceServer, ctx context.Context, req *FetchStatusRequest) (*FetchStatusResponse, error) {
				return s.FetchStatus(ctx, req)
			}),
		},
		{
			MethodName: "ClaimMoneyDrop",
			Handler: unaryHandler(MethodClaimMoneyDrop, func(s TransferServiceServer, ctx context.Context, req *ClaimMoneyDropRequest) (*ClaimMoneyDropResponse, error) {
				return s.ClaimMoneyDrop(ctx, req)
			}),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/proto/transfa/transfer/v1/transfer.proto",
}

// RegisterTransferServiceServer registers srv on s
func RegisterTransferServiceServer(s grpc.ServiceRegistrar, srv TransferServiceServer) {
	s.RegisterService(&TransferServiceDesc, srv)
}

func unaryHandler[Req, Resp any](
	fullMethod string,
	call func(TransferServiceServer, context.Context, *Req) (*Resp, error),
) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TransferServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TransferServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
