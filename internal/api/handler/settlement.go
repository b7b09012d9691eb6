package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"github.com/ayo6706/dual-currency-settlement/internal/settlement"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// SettlementStore reads journaled settlements. It is nil when the process runs
// without Postgres.
type SettlementStore interface {
	GetSettlement(ctx context.Context, id uuid.UUID) (*settlement.Settlement, error)
	ListSettlements(ctx context.Context, account domain.Address, limit, offset int32) ([]*settlement.Settlement, error)
}

// SettlementHandler serves settlement submission, quotes, the journal and the
// engine's admin surface.
type SettlementHandler struct {
	net   *service.Network
	store SettlementStore
}

func NewSettlementHandler(net *service.Network, store SettlementStore) *SettlementHandler {
	return &SettlementHandler{net: net, store: store}
}

type settleRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Amount    string `json:"amount" validate:"required,numeric"`
}

type feeRequest struct {
	FeeBps *uint32 `json:"fee_bps" validate:"required"`
}

type providerRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
}

type engineResponse struct {
	SourceCurrency      string            `json:"source_currency"`
	DestinationCurrency string            `json:"destination_currency"`
	FeeBps              uint32            `json:"fee_bps"`
	Paused              bool              `json:"paused"`
	Provider            providerSummary   `json:"provider"`
	Custody             string            `json:"custody"`
	Authorities         map[string]string `json:"authorities"`
}

type providerSummary struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

func (h *SettlementHandler) SettleForward(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, domain.DirectionForward)
}

func (h *SettlementHandler) SettleReverse(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, domain.DirectionReverse)
}

func (h *SettlementHandler) settle(w http.ResponseWriter, r *http.Request, dir domain.Direction) {
	var req settleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, r, req.Amount)
	if !ok {
		return
	}

	rec, err := h.net.Engine.Settle(r.Context(), dir, requestCaller(r), domain.NewAddress(req.Recipient), amount)
	if err != nil {
		observability.IncrementSettlement(string(dir), settlementResult(err))
		respondDomainError(w, r, "settle "+string(dir), err)
		return
	}
	RespondJSON(w, http.StatusCreated, rec)
}

// settlementResult labels a failed settlement for metrics.
func settlementResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrSystemPaused):
		return "paused"
	case errors.Is(err, domain.ErrInsufficientBalance), errors.Is(err, domain.ErrInsufficientAllowance):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrInvalidRate), errors.Is(err, domain.ErrFeedUnavailable):
		return "rate_unavailable"
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidAccount):
		return "rejected"
	default:
		return "failed"
	}
}

// Quote handles GET /v1/settlements/quote?direction=&amount=.
func (h *SettlementHandler) Quote(w http.ResponseWriter, r *http.Request) {
	dir, err := domain.ParseDirection(r.URL.Query().Get("direction"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-direction", "direction must be forward or reverse")
		return
	}
	amount, ok := parseAmount(w, r, r.URL.Query().Get("amount"))
	if !ok {
		return
	}
	q, err := h.net.Engine.Quote(r.Context(), dir, amount)
	if err != nil {
		respondDomainError(w, r, "quote", err)
		return
	}
	RespondJSON(w, http.StatusOK, q)
}

// Engine handles GET /v1/settlement.
func (h *SettlementHandler) Engine(w http.ResponseWriter, r *http.Request) {
	e := h.net.Engine
	src, dst := e.Ledgers()
	srcAuth, dstAuth := e.Authorities()
	p := e.Provider()
	RespondJSON(w, http.StatusOK, engineResponse{
		SourceCurrency:      src.Code(),
		DestinationCurrency: dst.Code(),
		FeeBps:              e.FeeRate(),
		Paused:              e.Paused(),
		Provider:            providerSummary{ID: p.ID(), Kind: string(p.Kind())},
		Custody:             e.Custody().String(),
		Authorities: map[string]string{
			src.Code(): srcAuth.String(),
			dst.Code(): dstAuth.String(),
		},
	})
}

// Get handles GET /v1/settlements/{id}.
func (h *SettlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "journal/disabled", "settlement journal is not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-id", "Invalid settlement id")
		return
	}
	rec, err := h.store.GetSettlement(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, "get settlement", err)
		return
	}
	RespondJSON(w, http.StatusOK, rec)
}

// ListByAccount handles GET /v1/accounts/{account}/settlements?limit=&offset=.
func (h *SettlementHandler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		RespondError(w, r, http.StatusServiceUnavailable, "journal/disabled", "settlement journal is not configured")
		return
	}
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	account := domain.NewAddress(chi.URLParam(r, "account"))
	recs, err := h.store.ListSettlements(r.Context(), account, limit, offset)
	if err != nil {
		respondDomainError(w, r, "list settlements", err)
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"account":     account,
		"settlements": recs,
		"limit":       limit,
		"offset":      offset,
	})
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int32, ok bool) {
	limit, offset = 50, 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v <= 0 || v > 500 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-limit", "limit must be between 1 and 500")
			return 0, 0, false
		}
		limit = int32(v)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || v < 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-offset", "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = int32(v)
	}
	return limit, offset, true
}

// UpdateFee handles POST /v1/settlement/fee.
func (h *SettlementHandler) UpdateFee(w http.ResponseWriter, r *http.Request) {
	var req feeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.net.Engine.UpdateFee(requestCaller(r), *req.FeeBps); err != nil {
		respondDomainError(w, r, "update fee", err)
		return
	}
	h.Engine(w, r)
}

// UpdateRateProvider handles POST /v1/settlement/rate-provider.
func (h *SettlementHandler) UpdateRateProvider(w http.ResponseWriter, r *http.Request) {
	var req providerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.net.Providers.Get(req.ProviderID)
	if err != nil {
		respondDomainError(w, r, "resolve provider", err)
		return
	}
	if err := h.net.Engine.UpdateRateProvider(requestCaller(r), p); err != nil {
		respondDomainError(w, r, "update rate provider", err)
		return
	}
	h.Engine(w, r)
}

func (h *SettlementHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *SettlementHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *SettlementHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	op := h.net.Engine.Unpause
	if paused {
		op = h.net.Engine.Pause
	}
	if err := op(requestCaller(r)); err != nil {
		respondDomainError(w, r, "settlement pause", err)
		return
	}
	RespondJSON(w, http.StatusOK, pauseResponse{Component: "settlement", Paused: h.net.Engine.Paused()})
}

func (h *SettlementHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, true)
}

func (h *SettlementHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, false)
}

func (h *SettlementHandler) changeRole(w http.ResponseWriter, r *http.Request, grant bool) {
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, ok := parseRole(w, r, req.Role)
	if !ok {
		return
	}
	account := domain.NewAddress(req.Account)
	op := h.net.Engine.RevokeRole
	if grant {
		op = h.net.Engine.GrantRole
	}
	if err := op(requestCaller(r), role, account); err != nil {
		respondDomainError(w, r, "settlement role change", err)
		return
	}
	RespondJSON(w, http.StatusOK, roleResponse{
		Component: "settlement",
		Role:      string(role),
		Account:   account.String(),
		Granted:   h.net.Engine.HasRole(role, account),
	})
}
