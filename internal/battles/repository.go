package battles

import (
	"context"
	"errors"
	"time"

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

const battleColumns = `id, pod_a_id, pod_b_id, created_by, vote_threshold, closes_at, winner_pod_id, created_at, updated_at`

func scanBattle(row pgx.Row) (*models.Battle, error) {
	var b models.Battle
	err := row.Scan(&b.ID, &b.PodAID, &b.PodBID, &b.CreatedBy, &b.VoteThreshold, &b.ClosesAt, &b.WinnerPodID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repository) Create(ctx context.Context, podAID, podBID, createdBy uuid.UUID, voteThreshold int, closesAt *time.Time) (*models.Battle, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO battles (pod_a_id, pod_b_id, created_by, vote_threshold, closes_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+battleColumns+`
	`, podAID, podBID, createdBy, voteThreshold, closesAt)
	return scanBattle(row)
}

// GetByID returns the battle or nil when it does not exist.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Battle, error) {
	b, err := scanBattle(r.pool.QueryRow(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// GetForUpdateTx locks the battle row. Vote insertion and closure evaluation
// run under this lock so concurrent votes racing across the threshold cannot
// both close the battle.
func (r *Repository) GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Battle, error) {
	b, err := scanBattle(tx.QueryRow(ctx, `SELECT `+battleColumns+` FROM battles WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (r *Repository) List(ctx context.Context) ([]*models.Battle, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+battleColumns+` FROM battles ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

func (r *Repository) InsertVoteTx(ctx context.Context, tx pgx.Tx, battleID, voterID, choicePodID uuid.UUID) (*models.Vote, error) {
	var v models.Vote
	err := tx.QueryRow(ctx, `
		INSERT INTO votes (battle_id, voter_id, choice_pod_id)
		VALUES ($1, $2, $3)
		RETURNING id, battle_id, voter_id, choice_pod_id, voted_at
	`, battleID, voterID, choicePodID).Scan(&v.ID, &v.BattleID, &v.VoterID, &v.ChoicePodID, &v.VotedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// PodTally is one pod's vote count plus the instant it reached that count.
type PodTally struct {
	PodID    uuid.UUID `json:"pod_id"`
	Count    int       `json:"count"`
	LastVote time.Time `json:"-"`
}

// TallyTx groups votes by chosen pod inside the transaction, ordered by the
// deterministic winner rule: highest count first, then the pod whose final
// vote landed earliest, then pod id.
func (r *Repository) TallyTx(ctx context.Context, tx pgx.Tx, battleID uuid.UUID) ([]PodTally, error) {
	rows, err := tx.Query(ctx, tallySQL, battleID)
	if err != nil {
		return nil, err
	}
	return scanTallies(rows)
}

// Tally is TallyTx outside a transaction, for read endpoints.
func (r *Repository) Tally(ctx context.Context, battleID uuid.UUID) ([]PodTally, error) {
	rows, err := r.pool.Query(ctx, tallySQL, battleID)
	if err != nil {
		return nil, err
	}
	return scanTallies(rows)
}

const tallySQL = `
	SELECT choice_pod_id, COUNT(*), MAX(voted_at)
	FROM votes WHERE battle_id = $1
	GROUP BY choice_pod_id
	ORDER BY COUNT(*) DESC, MAX(voted_at) ASC, choice_pod_id ASC
`

func scanTallies(rows pgx.Rows) ([]PodTally, error) {
	defer rows.Close()
	var tallies []PodTally
	for rows.Next() {
		var t PodTally
		if err := rows.Scan(&t.PodID, &t.Count, &t.LastVote); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}

// SetWinnerTx assigns the winner only if none is set yet. Returns whether
// this call performed the assignment.
func (r *Repository) SetWinnerTx(ctx context.Context, tx pgx.Tx, battleID, winnerPodID uuid.UUID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE battles SET winner_pod_id = $1, updated_at = NOW()
		WHERE id = $2 AND winner_pod_id IS NULL
	`, winnerPodID, battleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetWinnerIfUnset is the non-transactional variant used by the verdict path.
// The guard makes regressing an already-set winner impossible.
func (r *Repository) SetWinnerIfUnset(ctx context.Context, battleID, winnerPodID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE battles SET winner_pod_id = $1, updated_at = NOW()
		WHERE id = $2 AND winner_pod_id IS NULL
	`, winnerPodID, battleID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PodBrief is the view of a pod the battle and verdict logic needs.
type PodBrief struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Title   string
	Content string
	Stage   string
	Tags    []string
}

// GetPodBrief returns the pod with its tag names, or nil when absent.
func (r *Repository) GetPodBrief(ctx context.Context, podID uuid.UUID) (*PodBrief, error) {
	var p PodBrief
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, title, content, stage FROM pods WHERE id = $1
	`, podID).Scan(&p.ID, &p.UserID, &p.Title, &p.Content, &p.Stage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT t.name FROM tags t
		JOIN pod_tags pt ON pt.tag_id = t.id
		WHERE pt.pod_id = $1 ORDER BY t.name
	`, podID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		p.Tags = append(p.Tags, name)
	}
	return &p, rows.Err()
}

// GetPodOwnerTx resolves the owner of a pod inside the closure transaction.
func (r *Repository) GetPodOwnerTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID) (uuid.UUID, error) {
	var owner uuid.UUID
	err := tx.QueryRow(ctx, `SELECT user_id FROM pods WHERE id = $1`, podID).Scan(&owner)
	return owner, err
}
