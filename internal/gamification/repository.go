package gamification

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/khaled-muhammad/thoughty/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// CreditTx appends a ledger entry and updates the user's running balance
// inside the caller's transaction. The two writes always land together.
func (r *Repository) CreditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int, reason string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO token_transactions (user_id, amount, reason)
		VALUES ($1, $2, $3)
	`, userID, amount, reason); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO token_balances (user_id, balance)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET balance = token_balances.balance + EXCLUDED.balance
	`, userID, amount)
	return err
}

func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT balance FROM token_balances WHERE user_id = $1), 0)
	`, userID).Scan(&balance)
	return balance, err
}

func (r *Repository) ListTransactions(ctx context.Context, userID uuid.UUID) ([]*models.TokenTransaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, amount, reason, created_at
		FROM token_transactions WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.TokenTransaction
	for rows.Next() {
		var t models.TokenTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// LeaderboardEntry pairs a username with its token balance.
type LeaderboardEntry struct {
	Username string `json:"username"`
	Balance  int    `json:"balance"`
}

func (r *Repository) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.username, b.balance
		FROM token_balances b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.balance DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Balance); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func (r *Repository) ListBadges(ctx context.Context) ([]*models.Badge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, condition_kind, threshold FROM badges ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Badge
	for rows.Next() {
		var b models.Badge
		if err := rows.Scan(&b.ID, &b.Name, &b.Description, &b.ConditionKind, &b.Threshold); err != nil {
			return nil, err
		}
		list = append(list, &b)
	}
	return list, rows.Err()
}

// EarnedBadgeIDs returns the set of badge ids the user has already earned.
func (r *Repository) EarnedBadgeIDs(ctx context.Context, userID uuid.UUID) (map[int64]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT badge_id FROM achievement_log WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	earned := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		earned[id] = true
	}
	return earned, rows.Err()
}

func (r *Repository) RecordAchievement(ctx context.Context, userID uuid.UUID, badgeID int64) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO achievement_log (user_id, badge_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, userID, badgeID)
	return err
}

// Badge-condition counters.

func (r *Repository) CountPodsCreated(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM pods WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (r *Repository) CountBattlesWon(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM battles b
		JOIN pods p ON p.id = b.winner_pod_id
		WHERE p.user_id = $1
	`, userID).Scan(&n)
	return n, err
}

func (r *Repository) CountVotesCast(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM votes WHERE voter_id = $1`, userID).Scan(&n)
	return n, err
}
