package mentor

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

// PodSnapshot is the slice of a pod the insight worker needs.
type PodSnapshot struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Title   string
	Content string
	Stage   string
}

func (r *Repository) GetPodSnapshot(ctx context.Context, podID uuid.UUID) (*PodSnapshot, error) {
	var p PodSnapshot
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, content, stage FROM pods WHERE id = $1
	`, podID).Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) CreateInsight(ctx context.Context, userID, podID uuid.UUID, text, insightType string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO insights (user_id, pod_id, text, type)
		VALUES ($1, $2, $3, $4)
	`, userID, podID, text, insightType)
	return err
}

func (r *Repository) ListRecentInsights(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Insight, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, pod_id, text, type, created_at
		FROM insights WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Insight
	for rows.Next() {
		var i models.Insight
		if err := rows.Scan(&i.ID, &i.UserID, &i.PodID, &i.Text, &i.Type, &i.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &i)
	}
	return list, rows.Err()
}

// ListRecentPodIDs returns the user's newest pods for on-demand analysis.
func (r *Repository) ListRecentPodIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM pods WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DominantTags returns the user's most used tag names, most frequent first.
func (r *Repository) DominantTags(ctx context.Context, userID uuid.UUID, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.name
		FROM tags t
		JOIN pod_tags pt ON pt.tag_id = t.id
		JOIN pods p ON p.id = pt.pod_id
		WHERE p.user_id = $1
		GROUP BY t.name
		ORDER BY COUNT(*) DESC, t.name
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}
