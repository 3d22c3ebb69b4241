package gamification

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/khaled-muhammad/thoughty/internal/middleware"
)

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// ListBadges returns every badge with an earned flag for the caller.
// ?earned=true narrows the list to earned badges only.
func (h *Handler) ListBadges(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	badges, err := h.svc.Badges(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list badges failed", "error", err)
		http.Error(w, "list badges failed", http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("earned") == "true" {
		filtered := badges[:0]
		for _, b := range badges {
			if b.Earned {
				filtered = append(filtered, b)
			}
		}
		badges = filtered
	}
	writeJSON(w, badges)
}

// Leaderboard returns the ten highest token balances.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Leaderboard(r.Context())
	if err != nil {
		h.log.Error("leaderboard failed", "error", err)
		http.Error(w, "leaderboard failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []LeaderboardEntry{}
	}
	writeJSON(w, entries)
}

// ListTransactions returns the caller's token ledger, newest first.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	list, err := h.svc.Transactions(r.Context(), user.ID)
	if err != nil {
		h.log.Error("list transactions failed", "error", err)
		http.Error(w, "list transactions failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
