package pods

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/khaled-muhammad/thoughty/internal/gamification"
	"github.com/khaled-muhammad/thoughty/internal/mentor"
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
	mu        sync.Mutex
	pods      map[uuid.UUID]*models.Pod
	history   map[uuid.UUID][]*models.PodStageHistory
	tags      map[int64]*models.Tag
	podTags   map[uuid.UUID][]int64
	nextTagID int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		pods:      make(map[uuid.UUID]*models.Pod),
		history:   make(map[uuid.UUID][]*models.PodStageHistory),
		tags:      make(map[int64]*models.Tag),
		podTags:   make(map[uuid.UUID][]int64),
		nextTagID: 1,
	}
}

func (f *fakeStore) Begin(context.Context) (pgx.Tx, error) { return noopTx{}, nil }

func (f *fakeStore) CreateTx(_ context.Context, _ pgx.Tx, userID uuid.UUID, title, content, stage string, isPublic bool) (*models.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &models.Pod{
		ID: uuid.New(), UserID: userID, Title: title, Content: content,
		Stage: stage, Version: 1, IsPublic: isPublic, Tags: []models.Tag{},
	}
	f.pods[p.ID] = p
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pods[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) GetForUpdateTx(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Pod, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeStore) UpdateTx(_ context.Context, _ pgx.Tx, p *models.Pod) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.pods[p.ID] = &cp
	return nil
}

func (f *fakeStore) List(_ context.Context, viewerID *uuid.UUID) ([]*models.Pod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Pod
	for _, p := range f.pods {
		if p.IsPublic || (viewerID != nil && p.UserID == *viewerID) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertHistoryTx(_ context.Context, _ pgx.Tx, podID uuid.UUID, version int, stage, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.history[podID] {
		if h.Version == version {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	f.history[podID] = append(f.history[podID], &models.PodStageHistory{
		ID: uuid.New(), PodID: podID, Version: version, Stage: stage, Content: content,
	})
	return nil
}

func (f *fakeStore) ListHistory(_ context.Context, podID uuid.UUID) ([]*models.PodStageHistory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.PodStageHistory, len(f.history[podID]))
	copy(out, f.history[podID])
	return out, nil
}

func (f *fakeStore) GetTagByIDTx(_ context.Context, _ pgx.Tx, id int64) (*models.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tags[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) GetOrCreateTagTx(_ context.Context, _ pgx.Tx, name string) (*models.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tags {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	t := &models.Tag{ID: f.nextTagID, Name: name}
	f.nextTagID++
	f.tags[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeStore) ClearPodTagsTx(_ context.Context, _ pgx.Tx, podID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.podTags[podID] = nil
	return nil
}

func (f *fakeStore) AttachTagTx(_ context.Context, _ pgx.Tx, podID uuid.UUID, tagID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.podTags[podID] = append(f.podTags[podID], tagID)
	return nil
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

// enqueueRecorder captures background analysis enqueues.
type enqueueRecorder struct {
	mu   sync.Mutex
	args []mentor.AnalyzePodJobArgs
}

func (e *enqueueRecorder) insert(_ context.Context, _ pgx.Tx, args mentor.AnalyzePodJobArgs) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.args = append(e.args, args)
	return nil
}

func newTestService(store *fakeStore) (*service, *fakeTokens, *enqueueRecorder) {
	tokens := &fakeTokens{}
	rec := &enqueueRecorder{}
	return NewService(store, tokens, rec.insert, nil), tokens, rec
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestCreate_CreditsAndEnqueues(t *testing.T) {
	store := newFakeStore()
	svc, tokens, rec := newTestService(store)
	userID := uuid.New()

	pod, err := svc.Create(context.Background(), userID, CreateInput{
		Title:   "On deliberate practice",
		Content: "Short feedback loops beat raw hours.",
		Tags:    []TagRef{{Name: strPtr("learning")}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if pod.Stage != models.StageIdea {
		t.Errorf("default stage: got %q, want %q", pod.Stage, models.StageIdea)
	}
	if pod.Version != 1 {
		t.Errorf("initial version: got %d, want 1", pod.Version)
	}
	if !pod.IsPublic {
		t.Error("pods default to public")
	}
	if len(pod.Tags) != 1 || pod.Tags[0].Name != "learning" {
		t.Errorf("tags: got %v", pod.Tags)
	}

	if len(tokens.credits) != 1 {
		t.Fatalf("credits: got %d, want 1", len(tokens.credits))
	}
	c := tokens.credits[0]
	if c.userID != userID || c.amount != gamification.TokensPodCreation || c.reason != models.TokenReasonPodCreation {
		t.Errorf("creation credit: got %+v", c)
	}
	if len(tokens.evals) != 1 || tokens.evals[0] != userID {
		t.Errorf("badge evaluation: got %v", tokens.evals)
	}
	if len(rec.args) != 1 || rec.args[0].PodID != pod.ID || rec.args[0].UserID != userID {
		t.Errorf("analysis enqueue: got %+v", rec.args)
	}
}

func TestCreate_Validation(t *testing.T) {
	store := newFakeStore()
	svc, tokens, _ := newTestService(store)
	userID := uuid.New()
	ctx := context.Background()

	long := make([]byte, models.PodContentMaxLen+1)
	for i := range long {
		long[i] = 'x'
	}

	cases := []struct {
		name string
		in   CreateInput
	}{
		{"empty title", CreateInput{Content: "c"}},
		{"empty content", CreateInput{Title: "t"}},
		{"oversized content", CreateInput{Title: "t", Content: string(long)}},
		{"bad stage", CreateInput{Title: "t", Content: "c", Stage: "published"}},
		{"tag ref with both variants", CreateInput{
			Title: "t", Content: "c",
			Tags: []TagRef{{ID: int64Ptr(1), Name: strPtr("x")}},
		}},
		{"empty tag ref", CreateInput{Title: "t", Content: "c", Tags: []TagRef{{}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, userID, tc.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(tokens.credits) != 0 {
		t.Errorf("rejected creates must not credit tokens, got %d", len(tokens.credits))
	}
}

func int64Ptr(n int64) *int64 { return &n }

func TestCreate_UnknownTagID(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{
		Title: "t", Content: "c",
		Tags: []TagRef{{ID: int64Ptr(404)}},
	})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError for unknown tag id, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Update, versions, and history
// ---------------------------------------------------------------------------

func createPod(t *testing.T, svc Service, userID uuid.UUID, public bool) *models.Pod {
	t.Helper()
	pod, err := svc.Create(context.Background(), userID, CreateInput{
		Title: "seed", Content: "first draft", IsPublic: &public,
	})
	if err != nil {
		t.Fatalf("seed pod: %v", err)
	}
	return pod
}

func TestUpdate_StageChangeArchivesAndBumpsVersion(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	pod := createPod(t, svc, owner.ID, true)
	ctx := context.Background()

	updated, err := svc.Update(ctx, owner, pod.ID, UpdateInput{
		Stage:   strPtr(models.StageDraft),
		Content: strPtr("second draft"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 2 {
		t.Errorf("version after stage change: got %d, want 2", updated.Version)
	}
	if updated.Stage != models.StageDraft {
		t.Errorf("stage: got %q", updated.Stage)
	}

	history, err := svc.History(ctx, owner, pod.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history entries: got %d, want 1", len(history))
	}
	// The archive holds the pre-change pair under the pre-change version.
	h := history[0]
	if h.Version != 1 || h.Stage != models.StageIdea || h.Content != "first draft" {
		t.Errorf("archived snapshot: %+v", h)
	}
}

func TestUpdate_StageReplaySequence(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	pod := createPod(t, svc, owner.ID, true)
	ctx := context.Background()

	steps := []struct {
		stage   string
		content string
	}{
		{models.StageDraft, "drafted"},
		{models.StageReview, "reviewed"},
		{models.StageFinal, "final text"},
	}
	for _, st := range steps {
		if _, err := svc.Update(ctx, owner, pod.ID, UpdateInput{
			Stage: strPtr(st.stage), Content: strPtr(st.content),
		}); err != nil {
			t.Fatalf("update to %s: %v", st.stage, err)
		}
	}

	current, err := svc.Get(ctx, owner, pod.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Version != 4 || current.Stage != models.StageFinal {
		t.Errorf("final pod: version %d stage %q", current.Version, current.Stage)
	}

	history, err := svc.History(ctx, owner, pod.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	want := []struct {
		version int
		stage   string
		content string
	}{
		{1, models.StageIdea, "first draft"},
		{2, models.StageDraft, "drafted"},
		{3, models.StageReview, "reviewed"},
	}
	if len(history) != len(want) {
		t.Fatalf("history entries: got %d, want %d", len(history), len(want))
	}
	for i, w := range want {
		h := history[i]
		if h.Version != w.version || h.Stage != w.stage || h.Content != w.content {
			t.Errorf("history[%d]: got {%d %q %q}, want {%d %q %q}",
				i, h.Version, h.Stage, h.Content, w.version, w.stage, w.content)
		}
	}
}

func TestUpdate_NonStageEditKeepsVersion(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	pod := createPod(t, svc, owner.ID, true)
	ctx := context.Background()

	updated, err := svc.Update(ctx, owner, pod.ID, UpdateInput{
		Title:   strPtr("retitled"),
		Content: strPtr("edited in place"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("version after content edit: got %d, want 1", updated.Version)
	}
	history, _ := svc.History(ctx, owner, pod.ID)
	if len(history) != 0 {
		t.Errorf("content edit must not write history, got %d entries", len(history))
	}
}

func TestUpdate_SameStageNoArchive(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	pod := createPod(t, svc, owner.ID, true)

	updated, err := svc.Update(context.Background(), owner, pod.ID, UpdateInput{
		Stage: strPtr(models.StageIdea),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("setting the current stage again bumped version to %d", updated.Version)
	}
}

func TestUpdate_Ownership(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	stranger := &models.User{ID: uuid.New()}

	public := createPod(t, svc, owner.ID, true)
	private := createPod(t, svc, owner.ID, false)
	ctx := context.Background()

	// A public pod reveals its existence, so the stranger gets forbidden.
	if _, err := svc.Update(ctx, stranger, public.ID, UpdateInput{Title: strPtr("x")}); !errors.Is(err, ErrForbidden) {
		t.Errorf("public pod: expected ErrForbidden, got %v", err)
	}
	// A private pod looks like it does not exist.
	if _, err := svc.Update(ctx, stranger, private.ID, UpdateInput{Title: strPtr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("private pod: expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_ReplaceTags(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	ctx := context.Background()

	pod, err := svc.Create(ctx, owner.ID, CreateInput{
		Title: "t", Content: "c",
		Tags: []TagRef{{Name: strPtr("old")}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	newTags := []TagRef{{Name: strPtr("fresh")}}
	updated, err := svc.Update(ctx, owner, pod.ID, UpdateInput{Tags: &newTags})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].Name != "fresh" {
		t.Errorf("tags after replace: %v", updated.Tags)
	}
	if got := store.podTags[pod.ID]; len(got) != 1 {
		t.Errorf("stored tag links: %v", got)
	}
}

// ---------------------------------------------------------------------------
// Visibility
// ---------------------------------------------------------------------------

func TestGet_Visibility(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	stranger := &models.User{ID: uuid.New()}
	private := createPod(t, svc, owner.ID, false)
	ctx := context.Background()

	if _, err := svc.Get(ctx, owner, private.ID); err != nil {
		t.Errorf("owner should see own private pod: %v", err)
	}
	if _, err := svc.Get(ctx, stranger, private.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("stranger: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, nil, private.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("anonymous: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.History(ctx, stranger, private.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("history of private pod: expected ErrNotFound, got %v", err)
	}
}

func TestList_FiltersPrivatePods(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)
	owner := &models.User{ID: uuid.New()}
	createPod(t, svc, owner.ID, true)
	createPod(t, svc, owner.ID, false)
	ctx := context.Background()

	all, err := svc.List(ctx, owner)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("owner list: got %d pods, want 2", len(all))
	}

	anon, err := svc.List(ctx, nil)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(anon) != 1 {
		t.Errorf("anonymous list: got %d pods, want 1", len(anon))
	}
}
