package gamification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/khaled-muhammad/thoughty/internal/models"
)

// Token amounts credited by the application. The battle reward is the
// configurable one; 50 is the default used when no override is configured.
const (
	TokensPodCreation      = 10
	DefaultBattleWinTokens = 50
)

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests provide an in-memory fake.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, reason string) error
	GetBalance(ctx context.Context, userID uuid.UUID) (int, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.TokenTransaction, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	ListBadges(ctx context.Context) ([]*models.Badge, error)
	EarnedBadgeIDs(ctx context.Context, userID uuid.UUID) (map[int64]bool, error)
	RecordAchievement(ctx context.Context, userID uuid.UUID, badgeID int64) error
	CountPodsCreated(ctx context.Context, userID uuid.UUID) (int, error)
	CountBattlesWon(ctx context.Context, userID uuid.UUID) (int, error)
	CountVotesCast(ctx context.Context, userID uuid.UUID) (int, error)
}

type Service interface {
	// CreditTx appends a ledger entry inside the caller's transaction.
	CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, reason string) error
	// Credit runs CreditTx in its own transaction.
	Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) error
	// EvaluateBadges awards every badge whose condition the user now meets.
	EvaluateBadges(ctx context.Context, userID uuid.UUID) error

	Balance(ctx context.Context, userID uuid.UUID) (int, error)
	Transactions(ctx context.Context, userID uuid.UUID) ([]*models.TokenTransaction, error)
	Leaderboard(ctx context.Context) ([]LeaderboardEntry, error)
	Badges(ctx context.Context, userID uuid.UUID) ([]BadgeStatus, error)
}

// BadgeStatus is a badge plus whether the given user has earned it.
type BadgeStatus struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Earned      bool   `json:"earned"`
}

type service struct {
	store Store
}

func NewService(store Store) *service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, reason string) error {
	return s.store.CreditTx(ctx, tx, userID, amount, reason)
}

func (s *service) Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) error {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := s.store.CreditTx(ctx, tx, userID, amount, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// EvaluateBadges checks every not-yet-earned badge against its condition.
// Conditions are a closed enum; an unknown kind is an error rather than a
// silently skipped row.
func (s *service) EvaluateBadges(ctx context.Context, userID uuid.UUID) error {
	badges, err := s.store.ListBadges(ctx)
	if err != nil {
		return err
	}
	earned, err := s.store.EarnedBadgeIDs(ctx, userID)
	if err != nil {
		return err
	}
	for _, b := range badges {
		if earned[b.ID] {
			continue
		}
		met, err := s.conditionMet(ctx, userID, b)
		if err != nil {
			return err
		}
		if !met {
			continue
		}
		if err := s.store.RecordAchievement(ctx, userID, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) conditionMet(ctx context.Context, userID uuid.UUID, b *models.Badge) (bool, error) {
	var n int
	var err error
	switch b.ConditionKind {
	case models.BadgeCondPodsCreated:
		n, err = s.store.CountPodsCreated(ctx, userID)
	case models.BadgeCondBattlesWon:
		n, err = s.store.CountBattlesWon(ctx, userID)
	case models.BadgeCondVotesCast:
		n, err = s.store.CountVotesCast(ctx, userID)
	case models.BadgeCondTokenBalance:
		n, err = s.store.GetBalance(ctx, userID)
	default:
		return false, fmt.Errorf("unknown badge condition kind %q", b.ConditionKind)
	}
	if err != nil {
		return false, err
	}
	return n >= b.Threshold, nil
}

func (s *service) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.store.GetBalance(ctx, userID)
}

func (s *service) Transactions(ctx context.Context, userID uuid.UUID) ([]*models.TokenTransaction, error) {
	return s.store.ListTransactions(ctx, userID)
}

func (s *service) Leaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	return s.store.Leaderboard(ctx, 10)
}

func (s *service) Badges(ctx context.Context, userID uuid.UUID) ([]BadgeStatus, error) {
	badges, err := s.store.ListBadges(ctx)
	if err != nil {
		return nil, err
	}
	earned, err := s.store.EarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]BadgeStatus, 0, len(badges))
	for _, b := range badges {
		out = append(out, BadgeStatus{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Earned:      earned[b.ID],
		})
	}
	return out, nil
}
