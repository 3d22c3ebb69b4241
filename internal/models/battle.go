package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultVoteThreshold = 3

type Battle struct {
	ID            uuid.UUID  `json:"id"`
	PodAID        uuid.UUID  `json:"pod_a_id"`
	PodBID        uuid.UUID  `json:"pod_b_id"`
	CreatedBy     uuid.UUID  `json:"created_by"`
	VoteThreshold int        `json:"vote_threshold"`
	ClosesAt      *time.Time `json:"closes_at,omitempty"`
	WinnerPodID   *uuid.UUID `json:"winner_pod_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Closed reports whether the battle has a final winner assigned. A winner is
// write-once: once set, the closure evaluator must never run again.
func (b *Battle) Closed() bool { return b.WinnerPodID != nil }

type Vote struct {
	ID          uuid.UUID `json:"id"`
	BattleID    uuid.UUID `json:"battle_id"`
	VoterID     uuid.UUID `json:"voter_id"`
	ChoicePodID uuid.UUID `json:"choice_pod_id"`
	VotedAt     time.Time `json:"voted_at"`
}
