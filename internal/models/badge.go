package models

import (
	"time"

	"github.com/google/uuid"
)

// Badge condition kinds. Conditions are a closed enum evaluated by a switch,
// never stored executable code.
const (
	BadgeCondPodsCreated  = "pods_created"
	BadgeCondBattlesWon   = "battles_won"
	BadgeCondVotesCast    = "votes_cast"
	BadgeCondTokenBalance = "token_balance"
)

type Badge struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ConditionKind string `json:"-"`
	Threshold     int    `json:"-"`
}

type AchievementLog struct {
	ID       int64     `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	BadgeID  int64     `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}
