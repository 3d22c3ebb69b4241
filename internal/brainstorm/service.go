package brainstorm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/khaled-muhammad/thoughty/internal/ai"
	"github.com/khaled-muhammad/thoughty/internal/models"
	"github.com/khaled-muhammad/thoughty/internal/pods"
)

var (
	ErrPromptNotFound    = errors.New("prompt not found")
	ErrVariationNotFound = errors.New("variation not found")
	ErrNoPrompts         = errors.New("no prompts available")
	ErrEmptyText         = errors.New("variation text is required")
)

const variationsSchemaJSON = `{
	"type": "object",
	"required": ["variations"],
	"properties": {
		"variations": {"type": "array", "items": {"type": "string"}}
	}
}`

var variationsSchema = jsonschema.MustCompileString("variations.json", variationsSchemaJSON)

// Completer is the slice of the AI client the generator uses.
type Completer interface {
	Ready() bool
	CompleteJSON(ctx context.Context, p ai.CompletionParams) (json.RawMessage, error)
}

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	ListPrompts(ctx context.Context) ([]*models.Prompt, error)
	GetPrompt(ctx context.Context, id int64) (*models.Prompt, error)
	RandomPrompt(ctx context.Context) (*models.Prompt, error)
	RecordSpin(ctx context.Context, userID uuid.UUID, promptID int64) error
	CreateVariation(ctx context.Context, promptID int64, userID *uuid.UUID, text string, createdByAI bool) (*models.Variation, error)
	GetVariation(ctx context.Context, id uuid.UUID) (*models.Variation, error)
	ListVariations(ctx context.Context) ([]*models.Variation, error)
	GetPromptText(ctx context.Context, id int64) (string, error)
}

type Service struct {
	repo   Store
	client Completer
	pods   pods.Service
	log    *slog.Logger
}

func NewService(repo Store, client Completer, podSvc pods.Service, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, client: client, pods: podSvc, log: log}
}

// Spin picks a random prompt and records the spin.
func (s *Service) Spin(ctx context.Context, userID uuid.UUID) (*models.Prompt, error) {
	prompt, err := s.repo.RandomPrompt(ctx)
	if err != nil {
		return nil, err
	}
	if prompt == nil {
		return nil, ErrNoPrompts
	}
	if err := s.repo.RecordSpin(ctx, userID, prompt.ID); err != nil {
		return nil, err
	}
	return prompt, nil
}

// GenerateVariations asks the model for count variations of a prompt and
// persists whatever comes back. AI failure degrades to an empty set - the
// caller still gets a well-formed response, never an error.
func (s *Service) GenerateVariations(ctx context.Context, userID uuid.UUID, promptID int64, count int) ([]*models.Variation, error) {
	prompt, err := s.repo.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if prompt == nil {
		return nil, ErrPromptNotFound
	}
	if count <= 0 || count > 10 {
		count = 3
	}

	texts := s.variationTexts(ctx, prompt, count)
	out := make([]*models.Variation, 0, len(texts))
	for _, text := range texts {
		v, err := s.repo.CreateVariation(ctx, promptID, &userID, text, true)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Service) variationTexts(ctx context.Context, prompt *models.Prompt, count int) []string {
	if !s.client.Ready() {
		s.log.Warn("variation generation unavailable: no api key")
		return nil
	}
	raw, err := s.client.CompleteJSON(ctx, ai.CompletionParams{
		System: variationSystemPrompt(prompt.Type) +
			` Respond only with JSON using this format: {"variations":["variation 1 content goes here as text", "variation 2 content goes here as text", "etc ..."]}`,
		User:        fmt.Sprintf("Original prompt: %s\n\nGenerate %d creative variations.", prompt.Text, count),
		MaxTokens:   500,
		Temperature: 0.8,
	})
	if err != nil {
		s.log.Error("variation generation failed", "prompt_id", prompt.ID, "error", err)
		return nil
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		s.log.Error("variation response rejected", "prompt_id", prompt.ID, "error", err)
		return nil
	}
	if err := variationsSchema.Validate(generic); err != nil {
		s.log.Error("variation response rejected", "prompt_id", prompt.ID, "error", err)
		return nil
	}
	var parsed struct {
		Variations []string `json:"variations"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil
	}
	if len(parsed.Variations) > count {
		parsed.Variations = parsed.Variations[:count]
	}
	return parsed.Variations
}

// SubmitVariation records a variation written by the user themselves.
func (s *Service) SubmitVariation(ctx context.Context, userID uuid.UUID, promptID int64, text string) (*models.Variation, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	prompt, err := s.repo.GetPrompt(ctx, promptID)
	if err != nil {
		return nil, err
	}
	if prompt == nil {
		return nil, ErrPromptNotFound
	}
	return s.repo.CreateVariation(ctx, promptID, &userID, text, false)
}

func (s *Service) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	return s.repo.ListPrompts(ctx)
}

func (s *Service) ListVariations(ctx context.Context) ([]*models.Variation, error) {
	return s.repo.ListVariations(ctx)
}

// CreatePodFromVariation seeds a private pod from a saved variation so the
// idea can move through the usual stages.
func (s *Service) CreatePodFromVariation(ctx context.Context, userID uuid.UUID, variationID uuid.UUID) (*models.Pod, error) {
	variation, err := s.repo.GetVariation(ctx, variationID)
	if err != nil {
		return nil, err
	}
	if variation == nil {
		return nil, ErrVariationNotFound
	}
	promptText, err := s.repo.GetPromptText(ctx, variation.PromptID)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("From variation: %s", promptText)
	if len(title) > models.PodTitleMaxLen {
		title = title[:models.PodTitleMaxLen]
	}
	content := variation.Text
	if len(content) > models.PodContentMaxLen {
		content = content[:models.PodContentMaxLen]
	}
	isPublic := false
	return s.pods.Create(ctx, userID, pods.CreateInput{
		Title:    title,
		Content:  content,
		Stage:    models.StageIdea,
		IsPublic: &isPublic,
	})
}

func variationSystemPrompt(promptType string) string {
	const base = "You are helping youth develop critical thinking skills. "
	switch promptType {
	case models.PromptIdea:
		return base + "Generate variations that encourage analytical thinking and different perspectives on the concept."
	case models.PromptQuestion:
		return base + "Create deep questions that make people examine assumptions and think from first principles."
	case models.PromptProblem:
		return base + "Reframe the problem statement to reveal different aspects and potential solution approaches."
	case models.PromptTitle:
		return "You are a title generation expert. Create alternative titles that capture the essence of the original but with different wording and style."
	case models.PromptQuote:
		return "You are a quote variation generator. Create alternative quotes that express similar wisdom or insights as the original quote but with different wording."
	default:
		return "Generate creative variations of the given prompt. Each variation should be unique but related to the original prompt."
	}
}
