package brainstorm

import (
	"context"
	"errors"

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

func (r *Repository) ListPrompts(ctx context.Context) ([]*models.Prompt, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, text, type, difficulty FROM prompts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.Text, &p.Type, &p.Difficulty); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *Repository) GetPrompt(ctx context.Context, id int64) (*models.Prompt, error) {
	var p models.Prompt
	err := r.pool.QueryRow(ctx, `SELECT id, text, type, difficulty FROM prompts WHERE id = $1`, id).
		Scan(&p.ID, &p.Text, &p.Type, &p.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RandomPrompt returns one random prompt, or nil when none exist.
func (r *Repository) RandomPrompt(ctx context.Context) (*models.Prompt, error) {
	var p models.Prompt
	err := r.pool.QueryRow(ctx, `SELECT id, text, type, difficulty FROM prompts ORDER BY RANDOM() LIMIT 1`).
		Scan(&p.ID, &p.Text, &p.Type, &p.Difficulty)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) RecordSpin(ctx context.Context, userID uuid.UUID, promptID int64) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO roulette_spins (user_id, prompt_id) VALUES ($1, $2)`, userID, promptID)
	return err
}

func (r *Repository) CreateVariation(ctx context.Context, promptID int64, userID *uuid.UUID, text string, createdByAI bool) (*models.Variation, error) {
	var v models.Variation
	err := r.pool.QueryRow(ctx, `
		INSERT INTO variations (prompt_id, user_id, text, created_by_ai)
		VALUES ($1, $2, $3, $4)
		RETURNING id, prompt_id, user_id, text, created_by_ai, created_at
	`, promptID, userID, text, createdByAI).Scan(&v.ID, &v.PromptID, &v.UserID, &v.Text, &v.CreatedByAI, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) GetVariation(ctx context.Context, id uuid.UUID) (*models.Variation, error) {
	var v models.Variation
	err := r.pool.QueryRow(ctx, `
		SELECT id, prompt_id, user_id, text, created_by_ai, created_at
		FROM variations WHERE id = $1
	`, id).Scan(&v.ID, &v.PromptID, &v.UserID, &v.Text, &v.CreatedByAI, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *Repository) ListVariations(ctx context.Context) ([]*models.Variation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, prompt_id, user_id, text, created_by_ai, created_at
		FROM variations ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Variation
	for rows.Next() {
		var v models.Variation
		if err := rows.Scan(&v.ID, &v.PromptID, &v.UserID, &v.Text, &v.CreatedByAI, &v.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &v)
	}
	return list, rows.Err()
}

// GetPromptText is used when building a pod title from a variation.
func (r *Repository) GetPromptText(ctx context.Context, id int64) (string, error) {
	var text string
	err := r.pool.QueryRow(ctx, `SELECT text FROM prompts WHERE id = $1`, id).Scan(&text)
	return text, err
}
