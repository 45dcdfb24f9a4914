package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/transfa/transfa-core/internal/domain"
	"go.uber.org/zap"
)

const (
	maxResponseBytes = 1 << 20

	networkErrorMessage     = "Unable to reach Transfa. Check your connection and try again."
	unavailableErrorMessage = "Transfa is temporarily unavailable. Please try again shortly."
)

// Options tunes the HTTP transport
type Options struct {
	Timeout      time.Duration
	Retries      int           // Extra attempts after the first one for temporary failures
	RetryBackoff time.Duration // Base delay, doubled on every retry
	MaxBackoff   time.Duration
	HTTPClient   *http.Client
}

// Client talks to the remote transfer API over JSON/HTTP.
// Every error it returns carries a *domain.RemoteError.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	opts       Options
	logger     *zap.Logger
}

// NewClient creates a new Client for the API rooted at baseURL
func NewClient(baseURL, token string, opts Options, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 200 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: httpClient,
		opts:       opts,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "transfa-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var remoteErr *domain.RemoteError
			if errors.As(err, &remoteErr) {
				return !remoteErr.Temporary()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

// SubmitSingle implements domain.TransferService
func (c *Client) SubmitSingle(ctx context.Context, req domain.SingleTransferRequest) (domain.SingleTransferResult, error) {
	body := P2PTransferRequest{
		RecipientUsername: req.Transfer.RecipientUsername,
		Amount:            req.Transfer.AmountMinor,
		Description:       req.Transfer.Narration,
		TransactionPIN:    req.Credential.Reveal(),
	}

	var resp TransferResponse
	if err := c.do(ctx, http.MethodPost, "/transactions/p2p", req.IdempotencyKey, body, &resp); err != nil {
		return domain.SingleTransferResult{}, fmt.Errorf("submit transfer: %w", err)
	}
	return domain.SingleTransferResult{
		TransactionID: resp.TransactionID,
		AmountMinor:   resp.Amount,
		FeeMinor:      resp.Fee,
	}, nil
}

// SubmitBulk implements domain.TransferService
func (c *Client) SubmitBulk(ctx context.Context, req domain.BulkTransferRequest) (domain.BulkTransferResult, error) {
	body := BulkTransferRequest{
		Transfers:      make([]BulkTransferItem, 0, len(req.Transfers)),
		TransactionPIN: req.Credential.Reveal(),
	}
	for _, t := range req.Transfers {
		body.Transfers = append(body.Transfers, BulkTransferItem{
			RecipientUsername: t.RecipientUsername,
			Amount:            t.AmountMinor,
			Description:       t.Narration,
		})
	}

	var resp BulkTransferResponse
	if err := c.do(ctx, http.MethodPost, "/transactions/p2p/bulk", req.IdempotencyKey, body, &resp); err != nil {
		return domain.BulkTransferResult{}, fmt.Errorf("submit bulk transfer: %w", err)
	}
	return toBulkResult(resp), nil
}

// FetchStatus implements domain.StatusFetcher. It makes exactly one request.
func (c *Client) FetchStatus(ctx context.Context, transactionID string) (domain.RemoteStatus, error) {
	var resp StatusResponse
	path := "/transactions/" + url.PathEscape(transactionID) + "/status"
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return domain.RemoteStatus{}, fmt.Errorf("fetch status of %s: %w", transactionID, err)
	}
	return domain.RemoteStatus{Status: resp.Status, FailureReason: resp.FailureReason}, nil
}

// ClaimMoneyDrop implements domain.MoneyDropService
func (c *Client) ClaimMoneyDrop(ctx context.Context, dropID string, idempotencyKey string) (domain.ClaimResult, error) {
	var resp ClaimResponse
	path := "/money-drops/" + url.PathEscape(dropID) + "/claim"
	if err := c.do(ctx, http.MethodPost, path, idempotencyKey, struct{}{}, &resp); err != nil {
		return domain.ClaimResult{}, err
	}
	return domain.ClaimResult{
		TransactionID: resp.TransactionID,
		AmountMinor:   resp.Amount,
		Status:        resp.Status,
	}, nil
}

// do sends one logical request. Temporary failures are retried with the same
// body and idempotency key.
func (c *Client) do(ctx context.Context, method, path, idempotencyKey string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	logger := c.logger.With(zap.String("method", method), zap.String("path", path))

	for attempt := 0; ; attempt++ {
		_, err := c.breaker.Execute(func() (any, error) {
			return nil, c.roundTrip(ctx, method, path, idempotencyKey, payload, out)
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Warn("request rejected by circuit breaker", zap.Error(err))
			return &domain.RemoteError{StatusCode: http.StatusServiceUnavailable, Message: unavailableErrorMessage}
		}

		var remoteErr *domain.RemoteError
		if !errors.As(err, &remoteErr) || !remoteErr.Temporary() || attempt >= c.opts.Retries {
			return err
		}

		delay := capped(exponential(c.opts.RetryBackoff, attempt), c.opts.MaxBackoff)
		logger.Warn("retrying request",
			zap.Int("attempt", attempt+1),
			zap.Int("status_code", remoteErr.StatusCode),
			zap.Duration("delay", delay),
		)
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path, idempotencyKey string, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set(IdempotencyKeyHeader, idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		c.logger.Warn("transport error", zap.String("path", path), zap.Error(err))
		return &domain.RemoteError{Message: networkErrorMessage}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &domain.RemoteError{StatusCode: resp.StatusCode, Message: networkErrorMessage}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &domain.RemoteError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.RemoteError{StatusCode: resp.StatusCode, Message: "Unexpected response from Transfa."}
	}
	return nil
}

// errorMessage extracts the message of an error body, whichever field the server used
func errorMessage(statusCode int, data []byte) string {
	var body ErrorResponse
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	if text := strings.TrimSpace(string(data)); text != "" && len(text) < 200 && !strings.HasPrefix(text, "<") {
		return text
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("request failed with status %d", statusCode)
}

func toBulkResult(resp BulkTransferResponse) domain.BulkTransferResult {
	result := domain.BulkTransferResult{
		Status:              resp.Status,
		SuccessfulTransfers: make([]domain.SingleTransferResult, 0, len(resp.SuccessfulTransfers)),
		FailedTransfers:     make([]domain.TransferFailure, 0, len(resp.FailedTransfers)),
	}
	for _, s := range resp.SuccessfulTransfers {
		result.SuccessfulTransfers = append(result.SuccessfulTransfers, domain.SingleTransferResult{
			TransactionID: s.TransactionID,
			AmountMinor:   s.Amount,
			FeeMinor:      s.Fee,
		})
	}
	for _, f := range resp.FailedTransfers {
		result.FailedTransfers = append(result.FailedTransfers, domain.TransferFailure{
			RecipientUsername: f.RecipientUsername,
			AmountMinor:       f.Amount,
			Error:             f.Error,
		})
	}
	return result
}
