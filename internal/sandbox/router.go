package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/transfa/transfa-core/internal/adapter/rest"
	"github.com/transfa/transfa-core/internal/domain"
)

type contextKey string

const usernameKey contextKey = "username"

// Handler serves the transfer API over HTTP on top of a Ledger
type Handler struct {
	ledger *Ledger
	logger *zap.Logger
}

// NewRouter creates the sandbox HTTP router. tokens maps bearer tokens to usernames.
func NewRouter(ledger *Ledger, tokens map[string]string, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{ledger: ledger, logger: logger}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(pr chi.Router) {
		pr.Use(BearerAuth(tokens))

		pr.Route("/transactions", func(r chi.Router) {
			r.Post("/p2p", h.HandleP2PTransfer)
			r.Post("/p2p/bulk", h.HandleBulkTransfer)
			r.Get("/{transactionID}/status", h.HandleStatus)
		})
		pr.Post("/money-drops/{dropID}/claim", h.HandleClaimMoneyDrop)
	})

	return r
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("idempotency_key", r.Header.Get(rest.IdempotencyKeyHeader)))
		})
	}
}

// BearerAuth resolves the Authorization header to a username
func BearerAuth(tokens map[string]string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			username, ok := tokens[strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))]
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func usernameFrom(r *http.Request) string {
	username, _ := r.Context().Value(usernameKey).(string)
	return username
}

// HandleP2PTransfer handles POST /transactions/p2p
func (h *Handler) HandleP2PTransfer(w http.ResponseWriter, r *http.Request) {
	var req rest.P2PTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.ledger.SubmitSingle(r.Context(), usernameFrom(r), domain.TransferRequest{
		RecipientUsername: req.RecipientUsername,
		AmountMinor:       req.Amount,
		Narration:         req.Description,
	}, req.TransactionPIN, r.Header.Get(rest.IdempotencyKeyHeader))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rest.TransferResponse{
		TransactionID: result.TransactionID,
		Amount:        result.AmountMinor,
		Fee:           result.FeeMinor,
	})
}

// HandleBulkTransfer handles POST /transactions/p2p/bulk
func (h *Handler) HandleBulkTransfer(w http.ResponseWriter, r *http.Request) {
	var req rest.BulkTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	transfers := make([]domain.TransferRequest, 0, len(req.Transfers))
	for _, item := range req.Transfers {
		transfers = append(transfers, domain.TransferRequest{
			RecipientUsername: item.RecipientUsername,
			AmountMinor:       item.Amount,
			Narration:         item.Description,
		})
	}

	result, err := h.ledger.SubmitBulk(r.Context(), usernameFrom(r), transfers, req.TransactionPIN, r.Header.Get(rest.IdempotencyKeyHeader))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	resp := rest.BulkTransferResponse{
		Status:              result.Status,
		SuccessfulTransfers: make([]rest.TransferResponse, 0, len(result.SuccessfulTransfers)),
		FailedTransfers:     make([]rest.FailedTransfer, 0, len(result.FailedTransfers)),
	}
	for _, st := range result.SuccessfulTransfers {
		resp.SuccessfulTransfers = append(resp.SuccessfulTransfers, rest.TransferResponse{
			TransactionID: st.TransactionID,
			Amount:        st.AmountMinor,
			Fee:           st.FeeMinor,
		})
	}
	for _, f := range result.FailedTransfers {
		resp.FailedTransfers = append(resp.FailedTransfers, rest.FailedTransfer{
			RecipientUsername: f.RecipientUsername,
			Amount:            f.AmountMinor,
			Error:             f.Error,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleStatus handles GET /transactions/{transactionID}/status
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.Status(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest.StatusResponse{Status: result.Status, FailureReason: result.FailureReason})
}

// HandleClaimMoneyDrop handles POST /money-drops/{dropID}/claim
func (h *Handler) HandleClaimMoneyDrop(w http.ResponseWriter, r *http.Request) {
	result, err := h.ledger.ClaimMoneyDrop(r.Context(), usernameFrom(r), chi.URLParam(r, "dropID"), r.Header.Get(rest.IdempotencyKeyHeader))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rest.ClaimResponse{
		TransactionID: result.TransactionID,
		Amount:        result.AmountMinor,
		Status:        result.Status,
	})
}

func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	var remoteErr *domain.RemoteError
	if errors.As(err, &remoteErr) {
		writeError(w, remoteErr.StatusCode, remoteErr.Message)
		return
	}
	h.logger.Error("ledger error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, rest.ErrorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
