package battles

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khaled-muhammad/thoughty/internal/gamification"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

var (
	ErrBattleNotFound   = errors.New("battle not found")
	ErrPodNotFound      = errors.New("pod not found")
	ErrSamePod          = errors.New("a battle must be between two distinct pods")
	ErrInvalidThreshold = errors.New("vote threshold must be positive")
	ErrInvalidChoice    = errors.New("chosen pod is not part of this battle")
	ErrDuplicateVote    = errors.New("already voted in this battle")
	ErrBattleClosed     = errors.New("voting has ended for this battle")
	ErrNoVotes          = errors.New("battle has no votes yet")
)

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, podAID, podBID, createdBy uuid.UUID, voteThreshold int, closesAt *time.Time) (*models.Battle, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Battle, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Battle, error)
	List(ctx context.Context) ([]*models.Battle, error)
	InsertVoteTx(ctx context.Context, tx pgx.Tx, battleID, voterID, choicePodID uuid.UUID) (*models.Vote, error)
	TallyTx(ctx context.Context, tx pgx.Tx, battleID uuid.UUID) ([]PodTally, error)
	Tally(ctx context.Context, battleID uuid.UUID) ([]PodTally, error)
	SetWinnerTx(ctx context.Context, tx pgx.Tx, battleID, winnerPodID uuid.UUID) (bool, error)
	SetWinnerIfUnset(ctx context.Context, battleID, winnerPodID uuid.UUID) (bool, error)
	GetPodBrief(ctx context.Context, podID uuid.UUID) (*PodBrief, error)
	GetPodOwnerTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID) (uuid.UUID, error)
}

type CreateInput struct {
	PodAID        uuid.UUID  `json:"pod_a_id"`
	PodBID        uuid.UUID  `json:"pod_b_id"`
	VoteThreshold int        `json:"vote_threshold"`
	ClosesAt      *time.Time `json:"closes_at"`
}

// VoteResult reports the vote plus whatever the closure evaluator decided in
// the same transaction.
type VoteResult struct {
	Vote        *models.Vote `json:"vote"`
	Closed      bool         `json:"closed"`
	WinnerPodID *uuid.UUID   `json:"winner_pod_id,omitempty"`
}

// Results is the tally view of a battle.
type Results struct {
	BattleID    uuid.UUID      `json:"battle_id"`
	Counts      map[string]int `json:"counts"`
	TotalVotes  int            `json:"total_votes"`
	WinnerPodID *uuid.UUID     `json:"winner_pod_id,omitempty"`
}

type Service interface {
	Create(ctx context.Context, createdBy uuid.UUID, in CreateInput) (*models.Battle, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Battle, error)
	List(ctx context.Context) ([]*models.Battle, error)
	CastVote(ctx context.Context, battleID, voterID, choicePodID uuid.UUID) (*VoteResult, error)
	Results(ctx context.Context, battleID uuid.UUID) (*Results, error)
	AIVerdict(ctx context.Context, battleID uuid.UUID) (*Verdict, error)
}

type service struct {
	store        Store
	tokens       gamification.Service
	judge        *Judge
	rewardTokens int
	now          func() time.Time
	log          *slog.Logger
}

// NewService wires the battle store, token ledger, and AI judge together.
// rewardTokens is the amount credited to the winning pod's owner on closure.
func NewService(store Store, tokens gamification.Service, judge *Judge, rewardTokens int, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	if rewardTokens <= 0 {
		rewardTokens = gamification.DefaultBattleWinTokens
	}
	return &service{
		store:        store,
		tokens:       tokens,
		judge:        judge,
		rewardTokens: rewardTokens,
		now:          time.Now,
		log:          log,
	}
}

var _ Service = (*service)(nil)

func (s *service) Create(ctx context.Context, createdBy uuid.UUID, in CreateInput) (*models.Battle, error) {
	if in.PodAID == in.PodBID {
		return nil, ErrSamePod
	}
	if in.VoteThreshold == 0 {
		in.VoteThreshold = models.DefaultVoteThreshold
	}
	if in.VoteThreshold < 0 {
		return nil, ErrInvalidThreshold
	}
	for _, podID := range []uuid.UUID{in.PodAID, in.PodBID} {
		pod, err := s.store.GetPodBrief(ctx, podID)
		if err != nil {
			return nil, err
		}
		if pod == nil {
			return nil, ErrPodNotFound
		}
	}
	return s.store.Create(ctx, in.PodAID, in.PodBID, createdBy, in.VoteThreshold, in.ClosesAt)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Battle, error) {
	battle, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	return battle, nil
}

func (s *service) List(ctx context.Context) ([]*models.Battle, error) {
	return s.store.List(ctx)
}

// CastVote inserts the vote and runs the closure evaluator as one atomic unit
// of work. The battle row is locked first, so two votes racing across the
// threshold serialize: exactly one of them closes the battle and credits the
// reward.
func (s *service) CastVote(ctx context.Context, battleID, voterID, choicePodID uuid.UUID) (*VoteResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	battle, err := s.store.GetForUpdateTx(ctx, tx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	if battle.Closed() {
		return nil, ErrBattleClosed
	}
	if deadlinePassed(battle, s.now()) {
		// The vote arrived too late. Resolve the expired battle with the
		// votes it already has, then reject the vote.
		if _, _, err := s.evaluateClosureTx(ctx, tx, battle, true); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, ErrBattleClosed
	}
	if choicePodID != battle.PodAID && choicePodID != battle.PodBID {
		return nil, ErrInvalidChoice
	}

	vote, err := s.store.InsertVoteTx(ctx, tx, battleID, voterID, choicePodID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateVote
		}
		return nil, err
	}

	closed, winnerOwner, err := s.evaluateClosureTx(ctx, tx, battle, false)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	if err := s.tokens.EvaluateBadges(ctx, voterID); err != nil {
		s.log.Error("badge evaluation failed", "user_id", voterID, "error", err)
	}
	if closed && winnerOwner != uuid.Nil {
		if err := s.tokens.EvaluateBadges(ctx, winnerOwner); err != nil {
			s.log.Error("badge evaluation failed", "user_id", winnerOwner, "error", err)
		}
	}

	return &VoteResult{Vote: vote, Closed: closed, WinnerPodID: battle.WinnerPodID}, nil
}

// evaluateClosureTx is the closure evaluator. Preconditions: the battle row
// is locked by tx and has no winner. forceDeadline short-circuits the
// deadline check when the caller already established it passed.
//
// Winner rule: strictly highest vote count; on equal counts the pod that
// reached that count first (earliest final vote) wins, then lowest pod id.
// Zero votes leaves the winner null and credits nothing.
func (s *service) evaluateClosureTx(ctx context.Context, tx pgx.Tx, battle *models.Battle, forceDeadline bool) (closed bool, winnerOwner uuid.UUID, err error) {
	tallies, err := s.store.TallyTx(ctx, tx, battle.ID)
	if err != nil {
		return false, uuid.Nil, err
	}
	total := 0
	for _, t := range tallies {
		total += t.Count
	}
	if total < battle.VoteThreshold && !forceDeadline && !deadlinePassed(battle, s.now()) {
		return false, uuid.Nil, nil
	}
	if len(tallies) == 0 {
		return true, uuid.Nil, nil
	}

	winnerPodID := tallies[0].PodID
	set, err := s.store.SetWinnerTx(ctx, tx, battle.ID, winnerPodID)
	if err != nil {
		return false, uuid.Nil, err
	}
	if !set {
		// Another closure won the race; nothing more to do.
		return true, uuid.Nil, nil
	}
	battle.WinnerPodID = &winnerPodID

	owner, err := s.store.GetPodOwnerTx(ctx, tx, winnerPodID)
	if err != nil {
		return false, uuid.Nil, err
	}
	if err := s.tokens.CreditTx(ctx, tx, owner, s.rewardTokens, models.TokenReasonBattleWin); err != nil {
		return false, uuid.Nil, err
	}
	return true, owner, nil
}

func (s *service) Results(ctx context.Context, battleID uuid.UUID) (*Results, error) {
	battle, err := s.store.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	tallies, err := s.store.Tally(ctx, battleID)
	if err != nil {
		return nil, err
	}
	res := &Results{
		BattleID:    battle.ID,
		Counts:      map[string]int{},
		WinnerPodID: battle.WinnerPodID,
	}
	for _, t := range tallies {
		res.Counts[t.PodID.String()] = t.Count
		res.TotalVotes += t.Count
	}
	return res, nil
}

// AIVerdict produces the combined vote-plus-model judgment. The model call
// happens with no transaction open; the resulting winner is persisted behind
// a WHERE winner IS NULL guard so an already-closed battle is never changed.
func (s *service) AIVerdict(ctx context.Context, battleID uuid.UUID) (*Verdict, error) {
	battle, err := s.store.GetByID(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if battle == nil {
		return nil, ErrBattleNotFound
	}
	podA, err := s.store.GetPodBrief(ctx, battle.PodAID)
	if err != nil {
		return nil, err
	}
	podB, err := s.store.GetPodBrief(ctx, battle.PodBID)
	if err != nil {
		return nil, err
	}
	if podA == nil || podB == nil {
		return nil, ErrPodNotFound
	}
	tallies, err := s.store.Tally(ctx, battleID)
	if err != nil {
		return nil, err
	}
	aVotes, bVotes := 0, 0
	for _, t := range tallies {
		switch t.PodID {
		case battle.PodAID:
			aVotes = t.Count
		case battle.PodBID:
			bVotes = t.Count
		}
	}
	if aVotes+bVotes == 0 {
		return nil, ErrNoVotes
	}

	verdict := s.judge.GenerateVerdict(ctx, battle, podA, podB, aVotes, bVotes)

	if verdict.WinnerPodID != nil {
		if _, err := s.store.SetWinnerIfUnset(ctx, battleID, *verdict.WinnerPodID); err != nil {
			s.log.Error("persist verdict winner failed", "battle_id", battleID, "error", err)
		}
	}
	return verdict, nil
}

func deadlinePassed(b *models.Battle, now time.Time) bool {
	return b.ClosesAt != nil && !now.Before(*b.ClosesAt)
}
