package handler

import (
	"net/http"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/feed"
	"github.com/ayo6706/dual-currency-settlement/internal/rates"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"github.com/go-chi/chi/v5"
)

type RatesHandler struct {
	net *service.Network
}

func NewRatesHandler(net *service.Network) *RatesHandler {
	return &RatesHandler{net: net}
}

type rateResponse struct {
	Provider string `json:"provider"`
	Rate     int64  `json:"rate"`
	Display  string `json:"display"`
	Scale    int    `json:"scale"`
}

type providerResponse struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Active bool   `json:"active"`
	Feed   string `json:"feed,omitempty"`
}

type updateRateRequest struct {
	Rate *int64 `json:"rate" validate:"required"`
}

type updateFeedRequest struct {
	FeedID string `json:"feed_id" validate:"required"`
}

type roundResponse struct {
	Feed      string    `json:"feed"`
	Answer    string    `json:"answer"`
	Decimals  uint8     `json:"decimals"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetRate handles GET /v1/rate: the rate the engine would settle at now.
func (h *RatesHandler) GetRate(w http.ResponseWriter, r *http.Request) {
	rate, id, err := h.net.Rate(r.Context())
	if err != nil {
		respondDomainError(w, r, "get rate", err)
		return
	}
	RespondJSON(w, http.StatusOK, rateResponse{
		Provider: id,
		Rate:     int64(rate),
		Display:  rate.String(),
		Scale:    domain.RateDecimals,
	})
}

// ListProviders handles GET /v1/rates/providers.
func (h *RatesHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	active := h.net.Engine.Provider().ID()
	all := h.net.Providers.All()
	out := make([]providerResponse, 0, len(all))
	for _, p := range all {
		resp := providerResponse{ID: p.ID(), Kind: string(p.Kind()), Active: p.ID() == active}
		if o, ok := p.(*rates.OracleProvider); ok {
			resp.Feed = o.Feed().ID()
		}
		out = append(out, resp)
	}
	RespondJSON(w, http.StatusOK, out)
}

// UpdateRate handles POST /v1/rates/providers/{id}/rate.
func (h *RatesHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	p, err := h.net.Providers.Fixed(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, "resolve provider", err)
		return
	}
	var req updateRateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rate := domain.Rate(*req.Rate)
	if err := p.UpdateRate(requestCaller(r), rate); err != nil {
		respondDomainError(w, r, "update rate", err)
		return
	}
	RespondJSON(w, http.StatusOK, rateResponse{
		Provider: p.ID(),
		Rate:     int64(rate),
		Display:  rate.String(),
		Scale:    domain.RateDecimals,
	})
}

// UpdateFeed handles POST /v1/rates/providers/{id}/feed.
func (h *RatesHandler) UpdateFeed(w http.ResponseWriter, r *http.Request) {
	p, err := h.net.Providers.Oracle(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, "resolve provider", err)
		return
	}
	var req updateFeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	next, err := h.net.Feeds.Get(req.FeedID)
	if err != nil {
		respondDomainError(w, r, "resolve feed", err)
		return
	}
	if err := p.UpdateOracle(requestCaller(r), next); err != nil {
		respondDomainError(w, r, "update oracle", err)
		return
	}
	RespondJSON(w, http.StatusOK, providerResponse{
		ID:     p.ID(),
		Kind:   string(p.Kind()),
		Active: h.net.Engine.Provider().ID() == p.ID(),
		Feed:   next.ID(),
	})
}

func (h *RatesHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, true)
}

func (h *RatesHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, false)
}

func (h *RatesHandler) changeRole(w http.ResponseWriter, r *http.Request, grant bool) {
	p, err := h.net.Providers.Governed(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, "resolve provider", err)
		return
	}
	var req roleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	role, ok := parseRole(w, r, req.Role)
	if !ok {
		return
	}
	account := domain.NewAddress(req.Account)
	op := p.RevokeRole
	if grant {
		op = p.GrantRole
	}
	if err := op(requestCaller(r), role, account); err != nil {
		respondDomainError(w, r, "provider role change", err)
		return
	}
	RespondJSON(w, http.StatusOK, roleResponse{
		Component: "rates:" + p.ID(),
		Role:      string(role),
		Account:   account.String(),
		Granted:   p.HasRole(role, account),
	})
}

func newRoundResponse(id string, round feed.Round) roundResponse {
	answer := "0"
	if round.Answer != nil {
		answer = round.Answer.String()
	}
	return roundResponse{Feed: id, Answer: answer, Decimals: round.Decimals, UpdatedAt: round.UpdatedAt}
}
