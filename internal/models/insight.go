package models

import (
	"time"

	"github.com/google/uuid"
)

// Insight type enums.
const (
	InsightReflection = "reflection"
	InsightGrowthTip  = "growth_tip"
	InsightPrompt     = "prompt"
	InsightBook       = "book"
)

type Insight struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	PodID     uuid.UUID `json:"pod_id"`
	Text      string    `json:"text"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
