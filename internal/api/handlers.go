package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/database"
	"github.com/NitinNanjeGowda00/dynamic-web-scraper/internal/identity"
)

type Handlers struct {
	db      *database.DB
	rotator *identity.Rotator
	logger  *slog.Logger
}

func NewHandlers(db *database.DB, rotator *identity.Rotator, logger *slog.Logger) *Handlers {
	return &Handlers{
		db:      db,
		rotator: rotator,
		logger:  logger,
	}
}

// GetQuotes returns stored quotes, newest first. Accepts a limit query
// parameter (default 100).
func (h *Handlers) GetQuotes(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	quotes, err := h.db.GetAllQuotes(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list quotes", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list quotes")
		return
	}

	h.respondJSON(w, http.StatusOK, quotes)
}

// GetRandomQuote returns a single random quote.
func (h *Handlers) GetRandomQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.db.GetRandomQuote(r.Context())
	if err != nil {
		h.respondError(w, http.StatusNotFound, "no quotes stored")
		return
	}

	h.respondJSON(w, http.StatusOK, quote)
}

// SearchQuotes returns quotes whose text matches the q query parameter.
func (h *Handlers) SearchQuotes(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("q")
	if keyword == "" {
		h.respondError(w, http.StatusBadRequest, "q is required")
		return
	}

	quotes, err := h.db.SearchQuotes(r.Context(), keyword)
	if err != nil {
		h.logger.Error("failed to search quotes", "error", err, "q", keyword)
		h.respondError(w, http.StatusInternalServerError, "failed to search quotes")
		return
	}

	h.respondJSON(w, http.StatusOK, quotes)
}

// GetQuotesByAuthor returns quotes for the author in the URL path.
func (h *Handlers) GetQuotesByAuthor(w http.ResponseWriter, r *http.Request) {
	author := chi.URLParam(r, "name")
	if author == "" {
		h.respondError(w, http.StatusBadRequest, "author name is required")
		return
	}

	quotes, err := h.db.GetQuotesByAuthor(r.Context(), author)
	if err != nil {
		h.logger.Error("failed to get quotes by author", "error", err, "author", author)
		h.respondError(w, http.StatusInternalServerError, "failed to get quotes")
		return
	}

	h.respondJSON(w, http.StatusOK, quotes)
}

// GetQuotesByTag returns quotes carrying the tag in the URL path.
func (h *Handlers) GetQuotesByTag(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "name")
	if tag == "" {
		h.respondError(w, http.StatusBadRequest, "tag name is required")
		return
	}

	quotes, err := h.db.GetQuotesByTag(r.Context(), tag)
	if err != nil {
		h.logger.Error("failed to get quotes by tag", "error", err, "tag", tag)
		h.respondError(w, http.StatusInternalServerError, "failed to get quotes")
		return
	}

	h.respondJSON(w, http.StatusOK, quotes)
}

// GetStats returns aggregate scraping statistics.
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStatistics(r.Context())
	if err != nil {
		h.logger.Error("failed to get stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	h.respondJSON(w, http.StatusOK, stats)
}

// ListSessions returns recent scrape sessions.
func (h *Handlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := h.db.ListSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list sessions", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	h.respondJSON(w, http.StatusOK, sessions)
}

// GetSession returns a single scrape session by ID.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid session ID")
		return
	}

	session, err := h.db.GetSession(r.Context(), id)
	if err != nil {
		h.respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.respondJSON(w, http.StatusOK, session)
}

// ProxyStatsResponse reports per-proxy health counters.
type ProxyStatsResponse struct {
	FailedCount int               `json:"failed_count"`
	Proxies     map[string][2]int `json:"proxies"`
}

// GetProxyStats returns the rotator's proxy health counters.
func (h *Handlers) GetProxyStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, ProxyStatsResponse{
		FailedCount: h.rotator.FailedCount(),
		Proxies:     h.rotator.ProxyStats(),
	})
}

// ResetProxies clears the rotator's failed proxy set. Failed proxies are
// never retried automatically, so this is the only way back in.
func (h *Handlers) ResetProxies(w http.ResponseWriter, r *http.Request) {
	before := h.rotator.FailedCount()
	h.rotator.ResetFailed()
	h.logger.Info("failed proxies reset", "count", before)

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"reset":   before,
		"message": "failed proxies cleared",
	})
}

// Helper methods
func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
