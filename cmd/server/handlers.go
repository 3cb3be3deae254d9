package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agrisage/agrisage"
)

type handler struct {
	engine agrisage.Engine
}

func newHandler(e agrisage.Engine) *handler {
	return &handler{engine: e}
}

// POST /ask
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var q agrisage.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	answer, err := h.engine.Ask(ctx, q)
	if err != nil {
		if errors.Is(err, agrisage.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		slog.Error("ask error", "question", q.Text, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// POST /fallback
// Direct access to the rules engine, bypassing retrieval and generation.
func (h *handler) handleFallback(w http.ResponseWriter, r *http.Request) {
	var q agrisage.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	answer, err := h.engine.Fallback(r.Context(), q)
	if err != nil {
		if errors.Is(err, agrisage.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal server error")
		slog.Error("fallback error", "question", q.Text, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.Store().CountRecords(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  "store unavailable",
		})
		slog.Error("health check store error", "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"indexed_records": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
