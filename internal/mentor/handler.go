package mentor

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/khaled-muhammad/thoughty/internal/middleware"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

// EnqueueAnalyzePodFunc enqueues pod analysis outside any transaction.
// Provided by main as a closure over river.Client.Insert.
type EnqueueAnalyzePodFunc func(ctx context.Context, args AnalyzePodJobArgs) error

type Handler struct {
	repo    *Repository
	enqueue EnqueueAnalyzePodFunc
	log     *slog.Logger
}

func NewHandler(repo *Repository, enqueue EnqueueAnalyzePodFunc, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{repo: repo, enqueue: enqueue, log: log}
}

type profileResponse struct {
	DominantTags []string          `json:"dominant_tags"`
	Insights     []*models.Insight `json:"insights"`
}

// Profile returns the caller's dominant tags and their ten newest insights.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	tags, err := h.repo.DominantTags(r.Context(), user.ID, 5)
	if err != nil {
		h.log.Error("dominant tags failed", "error", err)
		http.Error(w, "profile failed", http.StatusInternalServerError)
		return
	}
	insights, err := h.repo.ListRecentInsights(r.Context(), user.ID, 10)
	if err != nil {
		h.log.Error("list insights failed", "error", err)
		http.Error(w, "profile failed", http.StatusInternalServerError)
		return
	}
	if insights == nil {
		insights = []*models.Insight{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(profileResponse{DominantTags: tags, Insights: insights})
}

// GenerateInsights enqueues analysis of the caller's five newest pods.
func (h *Handler) GenerateInsights(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	podIDs, err := h.repo.ListRecentPodIDs(r.Context(), user.ID, 5)
	if err != nil {
		h.log.Error("list recent pods failed", "error", err)
		http.Error(w, "insight generation failed", http.StatusInternalServerError)
		return
	}
	for _, podID := range podIDs {
		if err := h.enqueue(r.Context(), AnalyzePodJobArgs{PodID: podID, UserID: user.ID}); err != nil {
			h.log.Error("enqueue analyze_pod failed", "pod_id", podID, "error", err)
			http.Error(w, "insight generation failed", http.StatusInternalServerError)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": "insight generation started"})
}

// Suggestions returns a static reading list.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string][]map[string]string{
		"books": {
			{"title": "Thinking, Fast and Slow", "link": "https://example.com"},
			{"title": "Atomic Habits", "link": "https://example.com"},
		},
	})
}
