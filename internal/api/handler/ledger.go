package handler

import (
	"net/http"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/ledger"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"github.com/go-chi/chi/v5"
)

// LedgerHandler serves the per-currency ledger operations under
// /v1/ledgers/{currency}.
type LedgerHandler struct {
	net *service.Network
}

func NewLedgerHandler(net *service.Network) *LedgerHandler {
	return &LedgerHandler{net: net}
}

type ledgerResponse struct {
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	Decimals             uint8  `json:"decimals"`
	Authority            string `json:"authority"`
	TotalSupply          string `json:"total_supply"`
	TotalSupplyFormatted string `json:"total_supply_formatted"`
	Paused               bool   `json:"paused"`
}

type balanceResponse struct {
	Currency  string `json:"currency"`
	Account   string `json:"account"`
	Balance   string `json:"balance"`
	Formatted string `json:"formatted"`
}

type allowanceResponse struct {
	Currency  string `json:"currency"`
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type transferRequest struct {
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type approveRequest struct {
	Spender string `json:"spender" validate:"required"`
	Amount  string `json:"amount" validate:"required,numeric"`
}

type transferFromRequest struct {
	From   string `json:"from" validate:"required"`
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type mintRequest struct {
	To     string `json:"to" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

type burnRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type burnFromRequest struct {
	From   string `json:"from" validate:"required"`
	Amount string `json:"amount" validate:"required,numeric"`
}

// operationResponse echoes a committed value movement with the resulting
// balance of the affected holder.
type operationResponse struct {
	Currency  string `json:"currency"`
	Operation string `json:"operation"`
	Account   string `json:"account"`
	Amount    string `json:"amount"`
	Balance   string `json:"balance"`
}

func (h *LedgerHandler) ledger(w http.ResponseWriter, r *http.Request) (*ledger.Ledger, bool) {
	l, err := h.net.Ledger(chi.URLParam(r, "currency"))
	if err != nil {
		respondDomainError(w, r, "resolve ledger", err)
		return nil, false
	}
	return l, true
}

// Get handles GET /v1/ledgers/{currency}.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	supply := l.TotalSupply()
	RespondJSON(w, http.StatusOK, ledgerResponse{
		Code:                 l.Code(),
		Name:                 l.Name(),
		Decimals:             l.Decimals(),
		Authority:            l.Authority().String(),
		TotalSupply:          supply.String(),
		TotalSupplyFormatted: l.Format(supply),
		Paused:               l.Paused(),
	})
}

// Balance handles GET /v1/ledgers/{currency}/balances/{account}.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	account := domain.NewAddress(chi.URLParam(r, "account"))
	bal := l.BalanceOf(account)
	RespondJSON(w, http.StatusOK, balanceResponse{
		Currency:  l.Code(),
		Account:   account.String(),
		Balance:   bal.String(),
		Formatted: l.Format(bal),
	})
}

// Allowance handles GET /v1/ledgers/{currency}/allowances/{owner}/{spender}.
func (h *LedgerHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	owner := domain.NewAddress(chi.URLParam(r, "owner"))
	spender := domain.NewAddress(chi.URLParam(r, "spender"))
	RespondJSON(w, http.StatusOK, allowanceResponse{
		Currency:  l.Code(),
		Owner:     owner.String(),
		Spender:   spender.String(),
		Allowance: l.Allowance(owner, spender).String(),
	})
}

func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	h.move(w, r, "transfer", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		return caller, req.Amount, l.Transfer(caller, domain.NewAddress(req.To), amount)
	})
}

func (h *LedgerHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	h.move(w, r, "approve", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		return caller, req.Amount, l.Approve(caller, domain.NewAddress(req.Spender), amount)
	})
}

func (h *LedgerHandler) TransferFrom(w http.ResponseWriter, r *http.Request) {
	var req transferFromRequest
	h.move(w, r, "transfer_from", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		from := domain.NewAddress(req.From)
		return from, req.Amount, l.TransferFrom(caller, from, domain.NewAddress(req.To), amount)
	})
}

func (h *LedgerHandler) Mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	h.move(w, r, "mint", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		to := domain.NewAddress(req.To)
		return to, req.Amount, l.Mint(caller, to, amount)
	})
}

func (h *LedgerHandler) Burn(w http.ResponseWriter, r *http.Request) {
	var req burnRequest
	h.move(w, r, "burn", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		return caller, req.Amount, l.Burn(caller, amount)
	})
}

func (h *LedgerHandler) BurnFrom(w http.ResponseWriter, r *http.Request) {
	var req burnFromRequest
	h.move(w, r, "burn_from", &req, func(l *ledger.Ledger, caller domain.Address) (domain.Address, string, error) {
		amount, err := domain.ParseAmount(req.Amount)
		if err != nil {
			return "", "", err
		}
		from := domain.NewAddress(req.From)
		return from, req.Amount, l.BurnFrom(caller, from, amount)
	})
}

// move decodes req, runs op against the addressed ledger as the caller and
// answers with the balance of the account op reports as affected.
func (h *LedgerHandler) move(w http.ResponseWriter, r *http.Request, name string, req any, op func(*ledger.Ledger, domain.Address) (domain.Address, string, error)) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	if !decodeJSON(w, r, req) {
		return
	}
	account, amount, err := op(l, requestCaller(r))
	if err != nil {
		respondDomainError(w, r, "ledger "+name, err)
		return
	}
	RespondJSON(w, http.StatusOK, operationResponse{
		Currency:  l.Code(),
		Operation: name,
		Account:   account.String(),
		Amount:    amount,
		Balance:   l.BalanceOf(account).String(),
	})
}

func (h *LedgerHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *LedgerHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *LedgerHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	op := l.Unpause
	if paused {
		op = l.Pause
	}
	if err := op(requestCaller(r)); err != nil {
		respondDomainError(w, r, "ledger pause", err)
		return
	}
	RespondJSON(w, http.StatusOK, pauseResponse{Component: "ledger:" + l.Code(), Paused: l.Paused()})
}

func (h *LedgerHandler) GrantRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, true)
}

func (h *LedgerHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, false)
}

func (h *LedgerHandler) changeRole(w http.ResponseWriter, r *http.Request, grant bool) {
	l, ok := h.ledger(w, r)
	if !ok {
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
	op := l.RevokeRole
	if grant {
		op = l.GrantRole
	}
	if err := op(requestCaller(r), role, account); err != nil {
		respondDomainError(w, r, "ledger role change", err)
		return
	}
	RespondJSON(w, http.StatusOK, roleResponse{
		Component: "ledger:" + l.Code(),
		Role:      string(role),
		Account:   account.String(),
		Granted:   l.HasRole(role, account),
	})
}
