package pods

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

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, title, content, stage string, isPublic bool) (*models.Pod, error) {
	var p models.Pod
	row := tx.QueryRow(ctx, `
		INSERT INTO pods (user_id, title, content, stage, is_public)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, title, content, stage, version, is_public, created_at, updated_at
	`, userID, title, content, stage, isPublic)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage, &p.Version, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns the pod with its tags, or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Pod, error) {
	var p models.Pod
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, content, stage, version, is_public, created_at, updated_at
		FROM pods WHERE id = $1
	`, id)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage, &p.Version, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	tags, err := r.tagsForPod(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Tags = tags
	return &p, nil
}

// GetForUpdateTx locks the pod row for the duration of the transaction so a
// stage transition archives exactly one snapshot per version.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Pod, error) {
	var p models.Pod
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, title, content, stage, version, is_public, created_at, updated_at
		FROM pods WHERE id = $1
		FOR UPDATE
	`, id)
	if err := row.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage, &p.Version, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Pod) error {
	_, err := tx.Exec(ctx, `
		UPDATE pods
		SET title = $1, content = $2, stage = $3, version = $4, is_public = $5, updated_at = NOW()
		WHERE id = $6
	`, p.Title, p.Content, p.Stage, p.Version, p.IsPublic, p.ID)
	return err
}

// List returns public pods plus, when viewerID is non-nil, the viewer's own
// private ones, newest first.
func (r *Repository) List(ctx context.Context, viewerID *uuid.UUID) ([]*models.Pod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, title, content, stage, version, is_public, created_at, updated_at
		FROM pods
		WHERE is_public OR user_id = $1
		ORDER BY updated_at DESC
	`, viewerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Pod
	for rows.Next() {
		var p models.Pod
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage, &p.Version, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range list {
		tags, err := r.tagsForPod(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p.Tags = tags
	}
	return list, nil
}

func (r *Repository) InsertHistoryTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID, version int, stage, content string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pod_stage_history (pod_id, version, stage, content)
		VALUES ($1, $2, $3, $4)
	`, podID, version, stage, content)
	return err
}

func (r *Repository) ListHistory(ctx context.Context, podID uuid.UUID) ([]*models.PodStageHistory, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, pod_id, version, stage, content, created_at
		FROM pod_stage_history WHERE pod_id = $1 ORDER BY version
	`, podID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PodStageHistory
	for rows.Next() {
		var h models.PodStageHistory
		if err := rows.Scan(&h.ID, &h.PodID, &h.Version, &h.Stage, &h.Content, &h.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

// GetTagByIDTx resolves a tag reference by id; nil when absent.
func (r *Repository) GetTagByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*models.Tag, error) {
	var t models.Tag
	err := tx.QueryRow(ctx, `SELECT id, name FROM tags WHERE id = $1`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetOrCreateTagTx resolves a tag reference by name, creating it on first use.
func (r *Repository) GetOrCreateTagTx(ctx context.Context, tx pgx.Tx, name string) (*models.Tag, error) {
	var t models.Tag
	err := tx.QueryRow(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name
	`, name).Scan(&t.ID, &t.Name)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) ClearPodTagsTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM pod_tags WHERE pod_id = $1`, podID)
	return err
}

func (r *Repository) AttachTagTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID, tagID int64) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO pod_tags (pod_id, tag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, podID, tagID)
	return err
}

func (r *Repository) tagsForPod(ctx context.Context, podID uuid.UUID) ([]models.Tag, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.name
		FROM tags t
		JOIN pod_tags pt ON pt.tag_id = t.id
		WHERE pt.pod_id = $1
		ORDER BY t.name
	`, podID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
