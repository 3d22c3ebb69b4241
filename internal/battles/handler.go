package battles

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	battle, err := h.svc.Create(r.Context(), user.ID, in)
	if err != nil {
		h.writeError(w, "create battle", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(battle)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context())
	if err != nil {
		h.writeError(w, "list battles", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid battle id", http.StatusBadRequest)
		return
	}
	battle, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, "get battle", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(battle)
}

type voteRequest struct {
	ChoicePodID uuid.UUID `json:"choice_pod_id"`
}

// Vote casts the caller's one vote in a battle. The closure evaluator runs in
// the same transaction as the insert.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid battle id", http.StatusBadRequest)
		return
	}
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ChoicePodID == uuid.Nil {
		http.Error(w, "missing choice_pod_id", http.StatusBadRequest)
		return
	}
	result, err := h.svc.CastVote(r.Context(), id, user.ID, req.ChoicePodID)
	if err != nil {
		h.writeError(w, "cast vote", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(result)
}

func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid battle id", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Results(r.Context(), id)
	if err != nil {
		h.writeError(w, "battle results", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// AIVerdict returns the combined vote-plus-model judgment. Degraded AI paths
// still produce a 200 with the fallback verdict.
func (h *Handler) AIVerdict(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid battle id", http.StatusBadRequest)
		return
	}
	verdict, err := h.svc.AIVerdict(r.Context(), id)
	if err != nil {
		h.writeError(w, "ai verdict", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(verdict)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBattleNotFound), errors.Is(err, ErrPodNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrSamePod), errors.Is(err, ErrInvalidThreshold),
		errors.Is(err, ErrInvalidChoice), errors.Is(err, ErrNoVotes):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrDuplicateVote), errors.Is(err, ErrBattleClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}
