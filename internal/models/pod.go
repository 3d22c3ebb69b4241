package models

import (
	"time"

	"github.com/google/uuid"
)

// Pod stage enums. Pods always move through these via explicit stage edits;
// every stage change archives the previous (stage, content) pair.
const (
	StageIdea   = "idea"
	StageDraft  = "draft"
	StageReview = "review"
	StageFinal  = "final"
)

// ValidStage reports whether s is one of the four pod stages.
func ValidStage(s string) bool {
	switch s {
	case StageIdea, StageDraft, StageReview, StageFinal:
		return true
	}
	return false
}

const (
	PodTitleMaxLen   = 150
	PodContentMaxLen = 500
)

type Pod struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Stage     string    `json:"stage"`
	Version   int       `json:"version"`
	IsPublic  bool      `json:"is_public"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PodStageHistory is one archived snapshot, written when a pod leaves a stage.
// (PodID, Version) is unique; version labels are the pod's plain integer
// version counter at the time of the transition.
type PodStageHistory struct {
	ID        uuid.UUID `json:"-"`
	PodID     uuid.UUID `json:"pod_id"`
	Version   int       `json:"version"`
	Stage     string    `json:"stage"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
