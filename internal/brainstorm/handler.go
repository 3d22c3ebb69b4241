package brainstorm

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/khaled-muhammad/thoughty/internal/middleware"
	"github.com/khaled-muhammad/thoughty/internal/pods"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) ListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.svc.ListPrompts(r.Context())
	if err != nil {
		h.writeError(w, "list prompts", err)
		return
	}
	writeJSON(w, http.StatusOK, prompts)
}

func (h *Handler) Spin(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	prompt, err := h.svc.Spin(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, "roulette spin", err)
		return
	}
	writeJSON(w, http.StatusOK, prompt)
}

type generateRequest struct {
	PromptID int64  `json:"prompt_id"`
	Count    int    `json:"count"`
	Text     string `json:"text"`
}

// CreateVariations generates AI variations for a prompt, or stores a
// user-written one when text is supplied.
func (h *Handler) CreateVariations(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var in generateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if in.Text != "" {
		v, err := h.svc.SubmitVariation(r.Context(), user.ID, in.PromptID, in.Text)
		if err != nil {
			h.writeError(w, "submit variation", err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
		return
	}
	variations, err := h.svc.GenerateVariations(r.Context(), user.ID, in.PromptID, in.Count)
	if err != nil {
		h.writeError(w, "generate variations", err)
		return
	}
	writeJSON(w, http.StatusCreated, variations)
}

func (h *Handler) ListVariations(w http.ResponseWriter, r *http.Request) {
	variations, err := h.svc.ListVariations(r.Context())
	if err != nil {
		h.writeError(w, "list variations", err)
		return
	}
	writeJSON(w, http.StatusOK, variations)
}

func (h *Handler) CreatePod(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromCtx(r.Context())
	if user == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid variation id", http.StatusBadRequest)
		return
	}
	pod, err := h.svc.CreatePodFromVariation(r.Context(), user.ID, id)
	if err != nil {
		h.writeError(w, "create pod from variation", err)
		return
	}
	writeJSON(w, http.StatusCreated, pod)
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	var vErr *pods.ValidationError
	switch {
	case errors.Is(err, ErrPromptNotFound):
		http.Error(w, "prompt not found", http.StatusNotFound)
	case errors.Is(err, ErrVariationNotFound):
		http.Error(w, "variation not found", http.StatusNotFound)
	case errors.Is(err, ErrNoPrompts):
		http.Error(w, "no prompts available", http.StatusNotFound)
	case errors.Is(err, ErrEmptyText):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &vErr):
		http.Error(w, vErr.Error(), http.StatusBadRequest)
	default:
		h.log.Error(op+" failed", "error", err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
