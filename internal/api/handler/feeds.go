package handler

import (
	"io"
	"net/http"

	"github.com/ayo6706/dual-currency-settlement/internal/feed"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// FeedHandler accepts signed rounds for push feeds. Authentication is the HMAC
// signature over the raw body, not a bearer token.
type FeedHandler struct {
	feeds *feed.Registry
}

func NewFeedHandler(feeds *feed.Registry) *FeedHandler {
	return &FeedHandler{feeds: feeds}
}

// PushRound handles POST /v1/feeds/{id}/rounds.
func (h *FeedHandler) PushRound(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	pf, err := h.feeds.Push(id)
	if err != nil {
		respondDomainError(w, r, "resolve feed", err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		zap.L().Error("read feed round body failed", zap.Error(err))
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Failed to read request body")
		return
	}

	round, err := pf.Push(body, r.Header.Get("X-Feed-Signature"))
	if err != nil {
		zap.L().Warn("feed round rejected", zap.String("feed", id), zap.Error(err))
		respondDomainError(w, r, "push round", err)
		return
	}
	RespondJSON(w, http.StatusAccepted, newRoundResponse(id, round))
}

// Latest handles GET /v1/feeds/{id}.
func (h *FeedHandler) Latest(w http.ResponseWriter, r *http.Request) {
	f, err := h.feeds.Get(chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, "resolve feed", err)
		return
	}
	round, err := f.LatestRound(r.Context())
	if err != nil {
		respondDomainError(w, r, "read feed", err)
		return
	}
	RespondJSON(w, http.StatusOK, newRoundResponse(f.ID(), round))
}
