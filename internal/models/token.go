package models

import (
	"time"

	"github.com/google/uuid"
)

// Token credit reasons written to the transaction ledger.
const (
	TokenReasonPodCreation = "pod creation"
	TokenReasonBattleWin   = "battle win"
)

// TokenTransaction is one append-only ledger entry. The derived running total
// per user lives in token_balances and is updated in the same transaction as
// each entry.
type TokenTransaction struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int       `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

type TokenBalance struct {
	UserID  uuid.UUID `json:"user_id"`
	Balance int       `json:"balance"`
}
