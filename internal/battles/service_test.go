package battles

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khaled-muhammad/thoughty/internal/ai"
	"github.com/khaled-muhammad/thoughty/internal/gamification"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory fakes. noopTx satisfies pgx.Tx so the service's transaction
// plumbing runs without a database.
// ---------------------------------------------------------------------------

type noopTx struct{}

func (noopTx) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }
func (noopTx) Commit(context.Context) error          { return nil }
func (noopTx) Rollback(context.Context) error        { return nil }
func (noopTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (noopTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (noopTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (noopTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (noopTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (noopTx) Query(context.Context, string, ...any) (pgx.Rows, error) { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) pgx.Row        { return nil }
func (noopTx) Conn() *pgx.Conn                                         { return nil }

type fakeStore struct {
	mu      sync.Mutex
	battles map[uuid.UUID]*models.Battle
	votes   map[uuid.UUID][]*models.Vote
	pods    map[uuid.UUID]*PodBrief
	clock   time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		battles: make(map[uuid.UUID]*models.Battle),
		votes:   make(map[uuid.UUID][]*models.Vote),
		pods:    make(map[uuid.UUID]*PodBrief),
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) addPod(owner uuid.UUID, title string) uuid.UUID {
	id := uuid.New()
	f.pods[id] = &PodBrief{ID: id, UserID: owner, Title: title, Content: "content", Stage: models.StageDraft}
	return id
}

func (f *fakeStore) addBattle(podA, podB uuid.UUID, threshold int, closesAt *time.Time) *models.Battle {
	b := &models.Battle{
		ID:            uuid.New(),
		PodAID:        podA,
		PodBID:        podB,
		CreatedBy:     uuid.New(),
		VoteThreshold: threshold,
		ClosesAt:      closesAt,
		CreatedAt:     f.clock,
	}
	f.battles[b.ID] = b
	return b
}

// seedVote records a vote directly, bypassing the service.
func (f *fakeStore) seedVote(battleID, voterID, choice uuid.UUID, at time.Time) {
	f.votes[battleID] = append(f.votes[battleID], &models.Vote{
		ID: uuid.New(), BattleID: battleID, VoterID: voterID, ChoicePodID: choice, VotedAt: at,
	})
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (f *fakeStore) Create(_ context.Context, podAID, podBID, createdBy uuid.UUID, voteThreshold int, closesAt *time.Time) (*models.Battle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := &models.Battle{
		ID: uuid.New(), PodAID: podAID, PodBID: podBID, CreatedBy: createdBy,
		VoteThreshold: voteThreshold, ClosesAt: closesAt, CreatedAt: f.clock,
	}
	f.battles[b.ID] = b
	return b, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Battle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.battles[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) GetForUpdateTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Battle, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeStore) List(context.Context) ([]*models.Battle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Battle, 0, len(f.battles))
	for _, b := range f.battles {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) InsertVoteTx(_ context.Context, _ pgx.Tx, battleID, voterID, choicePodID uuid.UUID) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.votes[battleID] {
		if v.VoterID == voterID {
			return nil, &pgconn.PgError{Code: "23505", ConstraintName: "votes_battle_id_voter_id_key"}
		}
	}
	f.clock = f.clock.Add(time.Second)
	v := &models.Vote{
		ID: uuid.New(), BattleID: battleID, VoterID: voterID, ChoicePodID: choicePodID, VotedAt: f.clock,
	}
	f.votes[battleID] = append(f.votes[battleID], v)
	return v, nil
}

func (f *fakeStore) TallyTx(ctx context.Context, _ pgx.Tx, battleID uuid.UUID) ([]PodTally, error) {
	return f.Tally(ctx, battleID)
}

func (f *fakeStore) Tally(_ context.Context, battleID uuid.UUID) ([]PodTally, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	byPod := make(map[uuid.UUID]*PodTally)
	for _, v := range f.votes[battleID] {
		t, ok := byPod[v.ChoicePodID]
		if !ok {
			t = &PodTally{PodID: v.ChoicePodID}
			byPod[v.ChoicePodID] = t
		}
		t.Count++
		if v.VotedAt.After(t.LastVote) {
			t.LastVote = v.VotedAt
		}
	}
	out := make([]PodTally, 0, len(byPod))
	for _, t := range byPod {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if !out[i].LastVote.Equal(out[j].LastVote) {
			return out[i].LastVote.Before(out[j].LastVote)
		}
		return strings.Compare(out[i].PodID.String(), out[j].PodID.String()) < 0
	})
	return out, nil
}

func (f *fakeStore) SetWinnerTx(_ context.Context, _ pgx.Tx, battleID, winnerPodID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.battles[battleID]
	if !ok || b.WinnerPodID != nil {
		return false, nil
	}
	b.WinnerPodID = &winnerPodID
	return true, nil
}

func (f *fakeStore) SetWinnerIfUnset(ctx context.Context, battleID, winnerPodID uuid.UUID) (bool, error) {
	return f.SetWinnerTx(ctx, nil, battleID, winnerPodID)
}

func (f *fakeStore) GetPodBrief(_ context.Context, podID uuid.UUID) (*PodBrief, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pods[podID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetPodOwnerTx(_ context.Context, _ pgx.Tx, podID uuid.UUID) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pods[podID]
	if !ok {
		return uuid.Nil, pgx.ErrNoRows
	}
	return p.UserID, nil
}

// fakeTokens records credits and badge evaluations.
type fakeTokens struct {
	mu      sync.Mutex
	credits []creditCall
	evals   []uuid.UUID
}

type creditCall struct {
	userID uuid.UUID
	amount int
	reason string
}

func (f *fakeTokens) CreditTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, amount int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, creditCall{userID, amount, reason})
	return nil
}

func (f *fakeTokens) Credit(ctx context.Context, userID uuid.UUID, amount int, reason string) error {
	return f.CreditTx(ctx, nil, userID, amount, reason)
}

func (f *fakeTokens) EvaluateBadges(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals = append(f.evals, userID)
	return nil
}

func (f *fakeTokens) Balance(context.Context, uuid.UUID) (int, error) { return 0, nil }
func (f *fakeTokens) Transactions(context.Context, uuid.UUID) ([]*models.TokenTransaction, error) {
	return nil, nil
}
func (f *fakeTokens) Leaderboard(context.Context) ([]gamification.LeaderboardEntry, error) {
	return nil, nil
}
func (f *fakeTokens) Badges(context.Context, uuid.UUID) ([]gamification.BadgeStatus, error) {
	return nil, nil
}

func (f *fakeTokens) creditsFor(userID uuid.UUID) []creditCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []creditCall
	for _, c := range f.credits {
		if c.userID == userID {
			out = append(out, c)
		}
	}
	return out
}

// offlineCompleter reports no API key configured.
type offlineCompleter struct{}

func (offlineCompleter) Ready() bool { return false }
func (offlineCompleter) CompleteJSON(context.Context, ai.CompletionParams) (json.RawMessage, error) {
	return nil, ai.ErrNoAPIKey
}

func newTestService(store *fakeStore, tokens *fakeTokens) *service {
	return NewService(store, tokens, NewJudge(offlineCompleter{}, nil), 50, nil)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_SamePodRejected(t *testing.T) {
	store := newFakeStore()
	pod := store.addPod(uuid.New(), "only pod")
	svc := newTestService(store, &fakeTokens{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{PodAID: pod, PodBID: pod})
	if !errors.Is(err, ErrSamePod) {
		t.Fatalf("expected ErrSamePod, got %v", err)
	}
}

func TestCreate_DefaultThreshold(t *testing.T) {
	store := newFakeStore()
	owner := uuid.New()
	podA := store.addPod(owner, "a")
	podB := store.addPod(owner, "b")
	svc := newTestService(store, &fakeTokens{})

	b, err := svc.Create(context.Background(), uuid.New(), CreateInput{PodAID: podA, PodBID: podB})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.VoteThreshold != models.DefaultVoteThreshold {
		t.Errorf("threshold: got %d, want %d", b.VoteThreshold, models.DefaultVoteThreshold)
	}
}

func TestCreate_MissingPod(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	svc := newTestService(store, &fakeTokens{})

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{PodAID: podA, PodBID: uuid.New()})
	if !errors.Is(err, ErrPodNotFound) {
		t.Fatalf("expected ErrPodNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// CastVote and the closure evaluator
// ---------------------------------------------------------------------------

func TestCastVote_ThresholdClosesAndRewards(t *testing.T) {
	store := newFakeStore()
	ownerA := uuid.New()
	ownerB := uuid.New()
	podA := store.addPod(ownerA, "pod a")
	podB := store.addPod(ownerB, "pod b")
	battle := store.addBattle(podA, podB, 3, nil)

	tokens := &fakeTokens{}
	svc := newTestService(store, tokens)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := svc.CastVote(ctx, battle.ID, uuid.New(), podA)
		if err != nil {
			t.Fatalf("vote %d: %v", i+1, err)
		}
		if res.Closed {
			t.Fatalf("vote %d closed the battle below threshold", i+1)
		}
	}
	if len(tokens.credits) != 0 {
		t.Fatalf("credits before closure: got %d, want 0", len(tokens.credits))
	}

	res, err := svc.CastVote(ctx, battle.ID, uuid.New(), podB)
	if err != nil {
		t.Fatalf("threshold vote: %v", err)
	}
	if !res.Closed {
		t.Fatal("third vote should close the battle")
	}
	if res.WinnerPodID == nil || *res.WinnerPodID != podA {
		t.Fatalf("winner: got %v, want pod A %s", res.WinnerPodID, podA)
	}

	wins := tokens.creditsFor(ownerA)
	if len(wins) != 1 {
		t.Fatalf("winner credits: got %d, want 1", len(wins))
	}
	if wins[0].amount != 50 || wins[0].reason != models.TokenReasonBattleWin {
		t.Errorf("credit: got %+v, want 50 tokens for %q", wins[0], models.TokenReasonBattleWin)
	}
	if len(tokens.creditsFor(ownerB)) != 0 {
		t.Error("losing pod's owner should not be credited")
	}
}

func TestCastVote_ClosedBattleRejectsWithoutDoubleCredit(t *testing.T) {
	store := newFakeStore()
	ownerA := uuid.New()
	podA := store.addPod(ownerA, "pod a")
	podB := store.addPod(uuid.New(), "pod b")
	battle := store.addBattle(podA, podB, 1, nil)

	tokens := &fakeTokens{}
	svc := newTestService(store, tokens)
	ctx := context.Background()

	if _, err := svc.CastVote(ctx, battle.ID, uuid.New(), podA); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := svc.CastVote(ctx, battle.ID, uuid.New(), podB); !errors.Is(err, ErrBattleClosed) {
		t.Fatalf("expected ErrBattleClosed, got %v", err)
	}
	if got := len(tokens.creditsFor(ownerA)); got != 1 {
		t.Errorf("winner credits: got %d, want exactly 1", got)
	}
}

func TestCastVote_DuplicateVoter(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	podB := store.addPod(uuid.New(), "b")
	battle := store.addBattle(podA, podB, 5, nil)
	svc := newTestService(store, &fakeTokens{})

	voter := uuid.New()
	ctx := context.Background()
	if _, err := svc.CastVote(ctx, battle.ID, voter, podA); err != nil {
		t.Fatalf("first vote: %v", err)
	}
	if _, err := svc.CastVote(ctx, battle.ID, voter, podB); !errors.Is(err, ErrDuplicateVote) {
		t.Fatalf("expected ErrDuplicateVote, got %v", err)
	}
}

func TestCastVote_InvalidChoice(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	podB := store.addPod(uuid.New(), "b")
	battle := store.addBattle(podA, podB, 3, nil)
	svc := newTestService(store, &fakeTokens{})

	_, err := svc.CastVote(context.Background(), battle.ID, uuid.New(), uuid.New())
	if !errors.Is(err, ErrInvalidChoice) {
		t.Fatalf("expected ErrInvalidChoice, got %v", err)
	}
}

func TestCastVote_UnknownBattle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeTokens{})

	_, err := svc.CastVote(context.Background(), uuid.New(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("expected ErrBattleNotFound, got %v", err)
	}
}

func TestCastVote_DeadlineResolvesThenRejects(t *testing.T) {
	store := newFakeStore()
	ownerA := uuid.New()
	podA := store.addPod(ownerA, "pod a")
	podB := store.addPod(uuid.New(), "pod b")

	closesAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	battle := store.addBattle(podA, podB, 10, &closesAt)
	store.seedVote(battle.ID, uuid.New(), podA, closesAt.Add(-2*time.Minute))
	store.seedVote(battle.ID, uuid.New(), podA, closesAt.Add(-time.Minute))

	tokens := &fakeTokens{}
	svc := newTestService(store, tokens)
	svc.now = func() time.Time { return closesAt.Add(time.Hour) }

	_, err := svc.CastVote(context.Background(), battle.ID, uuid.New(), podB)
	if !errors.Is(err, ErrBattleClosed) {
		t.Fatalf("expected ErrBattleClosed, got %v", err)
	}

	got, _ := store.GetByID(context.Background(), battle.ID)
	if got.WinnerPodID == nil || *got.WinnerPodID != podA {
		t.Fatalf("expired battle should resolve to pod A, got %v", got.WinnerPodID)
	}
	if len(tokens.creditsFor(ownerA)) != 1 {
		t.Error("expired battle resolution should credit the winner once")
	}
	if votes := store.votes[battle.ID]; len(votes) != 2 {
		t.Errorf("late vote must not be recorded, have %d votes", len(votes))
	}
}

func TestCastVote_DeadlineWithZeroVotes(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	podB := store.addPod(uuid.New(), "b")
	closesAt := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	battle := store.addBattle(podA, podB, 3, &closesAt)

	tokens := &fakeTokens{}
	svc := newTestService(store, tokens)
	svc.now = func() time.Time { return closesAt.Add(time.Minute) }

	_, err := svc.CastVote(context.Background(), battle.ID, uuid.New(), podA)
	if !errors.Is(err, ErrBattleClosed) {
		t.Fatalf("expected ErrBattleClosed, got %v", err)
	}
	if len(tokens.credits) != 0 {
		t.Errorf("zero-vote closure credited %d times, want 0", len(tokens.credits))
	}
}

func TestTieBreak_EarliestFinalVoteWins(t *testing.T) {
	store := newFakeStore()
	ownerA := uuid.New()
	ownerB := uuid.New()
	podA := store.addPod(ownerA, "pod a")
	podB := store.addPod(ownerB, "pod b")
	battle := store.addBattle(podA, podB, 4, nil)

	tokens := &fakeTokens{}
	svc := newTestService(store, tokens)
	ctx := context.Background()

	// A, B, B, A. Counts end 2-2; B's final vote lands before A's, so B
	// reached its total first and takes the tie-break.
	order := []uuid.UUID{podA, podB, podB, podA}
	var last *VoteResult
	for i, choice := range order {
		res, err := svc.CastVote(ctx, battle.ID, uuid.New(), choice)
		if err != nil {
			t.Fatalf("vote %d: %v", i+1, err)
		}
		last = res
	}
	if !last.Closed {
		t.Fatal("fourth vote should close the battle")
	}
	if last.WinnerPodID == nil || *last.WinnerPodID != podB {
		t.Fatalf("tie-break winner: got %v, want pod B %s", last.WinnerPodID, podB)
	}
	if len(tokens.creditsFor(ownerB)) != 1 {
		t.Error("tie-break winner's owner should be credited once")
	}
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

func TestResults(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	podB := store.addPod(uuid.New(), "b")
	battle := store.addBattle(podA, podB, 5, nil)
	svc := newTestService(store, &fakeTokens{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.CastVote(ctx, battle.ID, uuid.New(), podA); err != nil {
			t.Fatalf("vote: %v", err)
		}
	}
	if _, err := svc.CastVote(ctx, battle.ID, uuid.New(), podB); err != nil {
		t.Fatalf("vote: %v", err)
	}

	res, err := svc.Results(ctx, battle.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if res.TotalVotes != 4 {
		t.Errorf("total votes: got %d, want 4", res.TotalVotes)
	}
	if res.Counts[podA.String()] != 3 || res.Counts[podB.String()] != 1 {
		t.Errorf("counts: got %v", res.Counts)
	}
}

func TestResults_UnknownBattle(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeTokens{})
	if _, err := svc.Results(context.Background(), uuid.New()); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("expected ErrBattleNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// AIVerdict
// ---------------------------------------------------------------------------

func TestAIVerdict_NoVotes(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "a")
	podB := store.addPod(uuid.New(), "b")
	battle := store.addBattle(podA, podB, 3, nil)
	svc := newTestService(store, &fakeTokens{})

	_, err := svc.AIVerdict(context.Background(), battle.ID)
	if !errors.Is(err, ErrNoVotes) {
		t.Fatalf("expected ErrNoVotes, got %v", err)
	}
}

func TestAIVerdict_FallbackPersistsWinner(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "pod a")
	podB := store.addPod(uuid.New(), "pod b")
	battle := store.addBattle(podA, podB, 10, nil)
	store.seedVote(battle.ID, uuid.New(), podA, store.clock)
	store.seedVote(battle.ID, uuid.New(), podA, store.clock.Add(time.Second))
	store.seedVote(battle.ID, uuid.New(), podB, store.clock.Add(2*time.Second))

	svc := newTestService(store, &fakeTokens{})
	verdict, err := svc.AIVerdict(context.Background(), battle.ID)
	if err != nil {
		t.Fatalf("AIVerdict: %v", err)
	}
	if verdict.WinnerPodID == nil || *verdict.WinnerPodID != podA {
		t.Fatalf("verdict winner: got %v, want pod A", verdict.WinnerPodID)
	}
	if verdict.AIConfidence != "n/a" {
		t.Errorf("offline verdict confidence: got %q, want n/a", verdict.AIConfidence)
	}

	got, _ := store.GetByID(context.Background(), battle.ID)
	if got.WinnerPodID == nil || *got.WinnerPodID != podA {
		t.Error("verdict winner should be persisted on the open battle")
	}
}

func TestAIVerdict_DoesNotOverrideClosedBattle(t *testing.T) {
	store := newFakeStore()
	podA := store.addPod(uuid.New(), "pod a")
	podB := store.addPod(uuid.New(), "pod b")
	battle := store.addBattle(podA, podB, 10, nil)
	battle.WinnerPodID = &podB
	store.seedVote(battle.ID, uuid.New(), podA, store.clock)

	svc := newTestService(store, &fakeTokens{})
	if _, err := svc.AIVerdict(context.Background(), battle.ID); err != nil {
		t.Fatalf("AIVerdict: %v", err)
	}
	got, _ := store.GetByID(context.Background(), battle.ID)
	if got.WinnerPodID == nil || *got.WinnerPodID != podB {
		t.Error("existing winner must not change")
	}
}
