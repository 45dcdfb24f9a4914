package rest

// JSON bodies of the remote transfer API. Amounts are in kobo.

// P2PTransferRequest is the body of POST /transactions/p2p
type P2PTransferRequest struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Description       string `json:"description"`
	TransactionPIN    string `json:"transaction_pin"`
}

// BulkTransferItem is one line of a bulk transfer
type BulkTransferItem struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Description       string `json:"description"`
}

// BulkTransferRequest is the body of POST /transactions/p2p/bulk
type BulkTransferRequest struct {
	Transfers      []BulkTransferItem `json:"transfers"`
	TransactionPIN string             `json:"transaction_pin"`
}

// TransferResponse describes one accepted transfer
type TransferResponse struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount,omitempty"`
	Fee           int64  `json:"fee,omitempty"`
}

// FailedTransfer describes one rejected line of a bulk transfer
type FailedTransfer struct {
	RecipientUsername string `json:"recipient_username"`
	Amount            int64  `json:"amount"`
	Error             string `json:"error"`
}

// BulkTransferResponse is the response of POST /transactions/p2p/bulk
type BulkTransferResponse struct {
	Status              string             `json:"status"`
	SuccessfulTransfers []TransferResponse `json:"successful_transfers"`
	FailedTransfers     []FailedTransfer   `json:"failed_transfers"`
}

// StatusResponse is the response of GET /transactions/{id}/status
type StatusResponse struct {
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// ClaimResponse is the response of POST /money-drops/{id}/claim
type ClaimResponse struct {
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// IdempotencyKeyHeader carries the client generated idempotency key
const IdempotencyKeyHeader = "Idempotency-Key"
