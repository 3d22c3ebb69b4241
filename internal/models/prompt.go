package models

import (
	"time"

	"github.com/google/uuid"
)

// Brainstorm prompt type enums.
const (
	PromptIdea        = "idea"
	PromptTitle       = "title"
	PromptQuote       = "quote"
	PromptQuestion    = "question"
	PromptProblem     = "problem"
	PromptChallenge   = "challenge"
	PromptPerspective = "perspective"
)

type Prompt struct {
	ID         int64  `json:"id"`
	Text       string `json:"text"`
	Type       string `json:"type"`
	Difficulty string `json:"difficulty"`
}

type RouletteSpin struct {
	ID       int64     `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	PromptID int64     `json:"prompt_id"`
	SpunAt   time.Time `json:"spun_at"`
}

type Variation struct {
	ID          uuid.UUID  `json:"id"`
	PromptID    int64      `json:"prompt_id"`
	UserID      *uuid.UUID `json:"user_id,omitempty"`
	Text        string     `json:"text"`
	CreatedByAI bool       `json:"created_by_ai"`
	CreatedAt   time.Time  `json:"created_at"`
}
