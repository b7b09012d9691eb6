package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

const (
	contentType     = "application/problem+json"
	requestIDHeader = "X-Request-ID"
)
const baseTypeURL = "https://errors.settlement.local/"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	RequestID string `json:"request_id"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

type mapping struct {
	err    error
	status int
	slug   string
}

// mappings is ordered; the first sentinel matched by errors.Is wins.
var mappings = []mapping{
	{domain.ErrUnauthorized, http.StatusForbidden, "auth/unauthorized-role"},
	{domain.ErrSystemPaused, http.StatusConflict, "system/paused"},
	{domain.ErrAlreadyInState, http.StatusConflict, "state/unchanged"},
	{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity, "ledger/insufficient-balance"},
	{domain.ErrInsufficientAllowance, http.StatusUnprocessableEntity, "ledger/insufficient-allowance"},
	{domain.ErrInvalidAmount, http.StatusUnprocessableEntity, "request/invalid-amount"},
	{domain.ErrInvalidAccount, http.StatusBadRequest, "request/invalid-account"},
	{domain.ErrInvalidRole, http.StatusBadRequest, "request/invalid-role"},
	{domain.ErrInvalidRate, http.StatusUnprocessableEntity, "rates/invalid-rate"},
	{domain.ErrFeeTooHigh, http.StatusUnprocessableEntity, "settlement/fee-too-high"},
	{domain.ErrInvalidConfiguration, http.StatusBadRequest, "request/invalid-configuration"},
	{domain.ErrUnknownCurrency, http.StatusNotFound, "ledger/unknown-currency"},
	{domain.ErrUnknownProvider, http.StatusNotFound, "rates/unknown-provider"},
	{domain.ErrUnknownFeed, http.StatusNotFound, "feeds/unknown-feed"},
	{domain.ErrSettlementNotFound, http.StatusNotFound, "settlement/not-found"},
	{domain.ErrInvalidSignature, http.StatusUnauthorized, "feeds/invalid-signature"},
	{domain.ErrStaleRound, http.StatusConflict, "feeds/stale-round"},
	{domain.ErrFeedUnavailable, http.StatusServiceUnavailable, "rates/feed-unavailable"},
}

// Status reports the HTTP status and problem type for a domain error.
func Status(err error) (int, string) {
	for _, m := range mappings {
		if errors.Is(err, m.err) {
			return m.status, Type(m.slug)
		}
	}
	return http.StatusInternalServerError, Type("internal-server-error")
}

// FromError writes the problem response matching err. Unmapped errors
// are reported as 500 without leaking their text.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	status, problemType := Status(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "unexpected server error"
	}
	Write(w, r, status, problemType, http.StatusText(status), detail)
}

// Write sends RFC 7807-compliant errors.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	if title == "" {
		title = http.StatusText(status)
	}
	if problemType == "" {
		problemType = "about:blank"
	}
	instance := ""
	requestID := w.Header().Get(requestIDHeader)
	if r != nil {
		instance = r.URL.Path
		if requestID == "" {
			requestID = r.Header.Get(requestIDHeader)
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Details{
		Type:      problemType,
		Title:     title,
		Status:    status,
		Detail:    detail,
		Instance:  instance,
		RequestID: requestID,
	})
}
