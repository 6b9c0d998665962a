// Package api exposes the settlement engine to the front end over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/groupfi/treasury-engine/internal/metrics/metricsTypes"
	"github.com/groupfi/treasury-engine/pkg/clients/explorer"
	"github.com/groupfi/treasury-engine/pkg/clients/oneinch"
	"github.com/groupfi/treasury-engine/pkg/ledger"
	"github.com/groupfi/treasury-engine/pkg/ledger/ledgerStore"
	"github.com/groupfi/treasury-engine/pkg/settlement"
)

// SettlementService is the engine surface the HTTP layer depends on.
type SettlementService interface {
	EnsureGroup(ctx context.Context, groupID string) (*ledger.Treasury, error)
	Buy(ctx context.Context, groupID string, memberID string, chainID uint64, token string, amount decimal.Decimal, slippageBps uint64) (*settlement.SwapOutcome, error)
	Sell(ctx context.Context, groupID string, memberID string, chainID uint64, token string, slippageBps uint64) (*settlement.SwapOutcome, error)
	RecordDeposit(ctx context.Context, groupID string, memberID string, txHash string) (*settlement.DepositOutcome, error)
	GetPositions(ctx context.Context, groupID string) (*ledger.Treasury, error)
	UpdateSettings(ctx context.Context, groupID string, update *settlement.SettingsUpdate) (*ledger.Treasury, error)
}

type Server struct {
	service SettlementService
	metrics metricsTypes.IMetricsClient
	logger  *zap.Logger
	port    int
}

func NewServer(service SettlementService, metrics metricsTypes.IMetricsClient, port int, l *zap.Logger) *Server {
	return &Server{
		service: service,
		metrics: metrics,
		logger:  l,
		port:    port,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestMetrics)

	r.Route("/groups/{groupId}", func(r chi.Router) {
		r.Post("/", s.handleEnsureGroup)
		r.Post("/buy", s.handleBuy)
		r.Post("/sell", s.handleSell)
		r.Post("/deposits", s.handleDeposit)
		r.Get("/positions", s.handlePositions)
		r.Put("/settings", s.handleSettings)
	})
	return r
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	s.logger.Sugar().Infow("Starting HTTP server", zap.Int("port", s.port))
	return http.ListenAndServe(fmt.Sprintf(":%d", s.port), s.Router())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		_ = s.metrics.Incr(metricsTypes.Metric_Incr_HttpRequest, []metricsTypes.MetricsLabel{
			{Name: "method", Value: r.Method},
			{Name: "path", Value: pattern},
			{Name: "status_code", Value: strconv.Itoa(recorder.status)},
		}, 1)
		s.logger.Sugar().Debugw("Handled request",
			zap.String("method", r.Method),
			zap.String("path", pattern),
			zap.Int("status", recorder.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", zap.Error(err))
	}
}

// writeError maps engine errors onto HTTP statuses. Anything recoverable the
// caller can fix is a 4xx; unknown failures are a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var quoteErr *oneinch.QuoteError
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ledgerStore.ErrGroupNotFound), errors.Is(err, explorer.ErrTxNotFound):
		status = http.StatusNotFound
	case errors.As(err, &quoteErr),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrUnknownMember),
		errors.Is(err, settlement.ErrInvalidToken),
		errors.Is(err, settlement.ErrDepositNotForTreasury),
		errors.Is(err, settlement.ErrDepositNotMined):
		status = http.StatusBadRequest
	case errors.Is(err, settlement.ErrTradingDisabled),
		errors.Is(err, settlement.ErrApprovalOutstanding):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.logger.Sugar().Errorw("Request failed", zap.Error(err))
	}
	s.writeJSON(w, status, &errorResponse{Error: err.Error()})
}

type tradeRequest struct {
	MemberID    string `json:"memberId"`
	ChainID     uint64 `json:"chainId"`
	Token       string `json:"token"`
	Amount      string `json:"amount,omitempty"`
	SlippageBps uint64 `json:"slippageBps,omitempty"`
}

type swapResponse struct {
	TxHash              string `json:"txHash"`
	BlockNumber         uint64 `json:"blockNumber"`
	ChainID             uint64 `json:"chainId"`
	Token               string `json:"token"`
	AmountIn            string `json:"amountIn"`
	AmountOut           string `json:"amountOut"`
	DecodeGap           bool   `json:"decodeGap,omitempty"`
	NeedsReconciliation bool   `json:"needsReconciliation,omitempty"`
	Commentary          string `json:"commentary,omitempty"`
}

func swapResponseFromOutcome(outcome *settlement.SwapOutcome) *swapResponse {
	return &swapResponse{
		TxHash:              outcome.TxHash,
		BlockNumber:         outcome.BlockNumber,
		ChainID:             outcome.ChainID,
		Token:               outcome.Token,
		AmountIn:            outcome.AmountIn.String(),
		AmountOut:           outcome.AmountOut.String(),
		DecodeGap:           outcome.DecodeGap,
		NeedsReconciliation: outcome.NeedsReconciliation,
		Commentary:          outcome.Commentary,
	}
}

func (s *Server) handleEnsureGroup(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	treasury, err := s.service.EnsureGroup(r.Context(), groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"groupId":         treasury.GroupID,
		"treasuryAddress": treasury.TreasuryAddress,
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request body"})
		return
	}

	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: fmt.Sprintf("invalid amount '%s'", req.Amount)})
			return
		}
		amount = parsed
	}

	outcome, err := s.service.Buy(r.Context(), groupID, req.MemberID, req.ChainID, req.Token, amount, req.SlippageBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, swapResponseFromOutcome(outcome))
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request body"})
		return
	}

	outcome, err := s.service.Sell(r.Context(), groupID, req.MemberID, req.ChainID, req.Token, req.SlippageBps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, swapResponseFromOutcome(outcome))
}

type depositRequest struct {
	MemberID string `json:"memberId"`
	TxHash   string `json:"txHash"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request body"})
		return
	}
	if req.TxHash == "" {
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "txHash is required"})
		return
	}

	outcome, err := s.service.RecordDeposit(r.Context(), groupID, req.MemberID, req.TxHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"credited": outcome.Credited,
		"chainId":  outcome.ChainID,
		"amount":   outcome.Amount.String(),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	treasury, err := s.service.GetPositions(r.Context(), groupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, treasury)
}

type settingsRequest struct {
	SlippageBps    *uint64 `json:"slippageBps,omitempty"`
	DefaultBuySize *string `json:"defaultBuySize,omitempty"`
	TradingEnabled *bool   `json:"tradingEnabled,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: "invalid request body"})
		return
	}

	update := &settlement.SettingsUpdate{
		SlippageBps:    req.SlippageBps,
		TradingEnabled: req.TradingEnabled,
	}
	if req.DefaultBuySize != nil {
		parsed, err := decimal.NewFromString(*req.DefaultBuySize)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: fmt.Sprintf("invalid buy size '%s'", *req.DefaultBuySize)})
			return
		}
		update.DefaultBuySize = &parsed
	}

	treasury, err := s.service.UpdateSettings(r.Context(), groupID, update)
	if err != nil {
		if errors.Is(err, ledgerStore.ErrGroupNotFound) {
			s.writeError(w, err)
			return
		}
		// Remaining failures are settings validation, a caller error.
		s.writeJSON(w, http.StatusBadRequest, &errorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, treasury.Settings)
}
