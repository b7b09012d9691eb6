package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ayo6706/dual-currency-settlement/internal/api/middleware"
	"github.com/ayo6706/dual-currency-settlement/internal/api/problem"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("encode response failed", zap.Error(err))
	}
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// respondDomainError maps a domain error to its problem response and logs
// anything that is not a client mistake.
func respondDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, _ := problem.Status(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error(op+" failed",
			zap.Error(err),
			zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
	}
	problem.FromError(w, r, err)
}

// decodeJSON reads a size-limited body into dst and runs struct validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/validation-failed", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// requestCaller returns the authenticated caller. The auth middleware guarantees
// it is set on protected routes.
func requestCaller(r *http.Request) domain.Address {
	return middleware.CallerFromContext(r.Context())
}

func parseAmount(w http.ResponseWriter, r *http.Request, raw string) (*big.Int, bool) {
	v, err := domain.ParseAmount(raw)
	if err != nil {
		respondDomainError(w, r, "parse amount", err)
		return nil, false
	}
	return v, true
}

func parseRole(w http.ResponseWriter, r *http.Request, raw string) (domain.Role, bool) {
	role, err := domain.ParseRole(raw)
	if err != nil {
		respondDomainError(w, r, "parse role", err)
		return "", false
	}
	return role, true
}

// roleRequest is shared by every roles/grant and roles/revoke endpoint.
type roleRequest struct {
	Role    string `json:"role" validate:"required"`
	Account string `json:"account" validate:"required"`
}

type roleResponse struct {
	Component string `json:"component"`
	Role      string `json:"role"`
	Account   string `json:"account"`
	Granted   bool   `json:"granted"`
}

type pauseResponse struct {
	Component string `json:"component"`
	Paused    bool   `json:"paused"`
}
