package pods

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/khaled-muhammad/thoughty/internal/gamification"
	"github.com/khaled-muhammad/thoughty/internal/mentor"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

var (
	ErrNotFound  = errors.New("pod not found")
	ErrForbidden = errors.New("not the pod owner")
)

// ValidationError marks client-caused failures (bad stage, oversized content,
// malformed tag refs). Handlers map it to 400.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

func validationErrf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// TagRef is the tagged variant for tag input: exactly one of ID or Name is
// set. {"id": 7} attaches an existing tag; {"name": "focus"} get-or-creates.
type TagRef struct {
	ID   *int64  `json:"id,omitempty"`
	Name *string `json:"name,omitempty"`
}

type CreateInput struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Stage    string   `json:"stage"`
	IsPublic *bool    `json:"is_public"`
	Tags     []TagRef `json:"tags"`
}

// UpdateInput carries partial edits; nil fields are left untouched.
type UpdateInput struct {
	Title    *string   `json:"title"`
	Content  *string   `json:"content"`
	Stage    *string   `json:"stage"`
	IsPublic *bool     `json:"is_public"`
	Tags     *[]TagRef `json:"tags"`
}

// Store is the persistence surface the service needs; *Repository satisfies it.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, title, content, stage string, isPublic bool) (*models.Pod, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Pod, error)
	GetForUpdateTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Pod, error)
	UpdateTx(ctx context.Context, tx pgx.Tx, p *models.Pod) error
	List(ctx context.Context, viewerID *uuid.UUID) ([]*models.Pod, error)
	InsertHistoryTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID, version int, stage, content string) error
	ListHistory(ctx context.Context, podID uuid.UUID) ([]*models.PodStageHistory, error)
	GetTagByIDTx(ctx context.Context, tx pgx.Tx, id int64) (*models.Tag, error)
	GetOrCreateTagTx(ctx context.Context, tx pgx.Tx, name string) (*models.Tag, error)
	ClearPodTagsTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID) error
	AttachTagTx(ctx context.Context, tx pgx.Tx, podID uuid.UUID, tagID int64) error
}

// InsertAnalyzePodTxFunc enqueues pod analysis within the given transaction.
// Provided by main as a closure over river.Client.InsertTx.
type InsertAnalyzePodTxFunc func(ctx context.Context, tx pgx.Tx, args mentor.AnalyzePodJobArgs) error

type Service interface {
	Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Pod, error)
	Get(ctx context.Context, viewer *models.User, id uuid.UUID) (*models.Pod, error)
	List(ctx context.Context, viewer *models.User) ([]*models.Pod, error)
	Update(ctx context.Context, actor *models.User, id uuid.UUID, in UpdateInput) (*models.Pod, error)
	History(ctx context.Context, viewer *models.User, id uuid.UUID) ([]*models.PodStageHistory, error)
}

type service struct {
	store            Store
	tokens           gamification.Service
	insertAnalyzePod InsertAnalyzePodTxFunc
	log              *slog.Logger
}

func NewService(store Store, tokens gamification.Service, insertAnalyzePod InsertAnalyzePodTxFunc, log *slog.Logger) *service {
	if log == nil {
		log = slog.Default()
	}
	return &service{store: store, tokens: tokens, insertAnalyzePod: insertAnalyzePod, log: log}
}

var _ Service = (*service)(nil)

// Create inserts the pod, attaches tags, credits the creation reward, and
// enqueues background analysis - all in one transaction. Badge evaluation
// runs after commit so condition counters see the new pod.
func (s *service) Create(ctx context.Context, userID uuid.UUID, in CreateInput) (*models.Pod, error) {
	if in.Stage == "" {
		in.Stage = models.StageIdea
	}
	if err := validatePodFields(in.Title, in.Content, in.Stage); err != nil {
		return nil, err
	}
	isPublic := true
	if in.IsPublic != nil {
		isPublic = *in.IsPublic
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	pod, err := s.store.CreateTx(ctx, tx, userID, in.Title, in.Content, in.Stage, isPublic)
	if err != nil {
		return nil, err
	}
	tags, err := s.resolveAndAttachTags(ctx, tx, pod.ID, in.Tags)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.CreditTx(ctx, tx, userID, gamification.TokensPodCreation, models.TokenReasonPodCreation); err != nil {
		return nil, err
	}
	if err := s.insertAnalyzePod(ctx, tx, mentor.AnalyzePodJobArgs{PodID: pod.ID, UserID: userID}); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	pod.Tags = tags

	if err := s.tokens.EvaluateBadges(ctx, userID); err != nil {
		s.log.Error("badge evaluation failed", "user_id", userID, "error", err)
	}
	return pod, nil
}

func (s *service) Get(ctx context.Context, viewer *models.User, id uuid.UUID) (*models.Pod, error) {
	pod, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pod == nil || !visibleTo(pod, viewer) {
		return nil, ErrNotFound
	}
	return pod, nil
}

func (s *service) List(ctx context.Context, viewer *models.User) ([]*models.Pod, error) {
	var viewerID *uuid.UUID
	if viewer != nil {
		viewerID = &viewer.ID
	}
	return s.store.List(ctx, viewerID)
}

// Update applies partial edits. A stage change archives the pre-change
// (stage, content) snapshot under the current version and bumps the version
// by exactly one; any other edit leaves version and history untouched.
func (s *service) Update(ctx context.Context, actor *models.User, id uuid.UUID, in UpdateInput) (*models.Pod, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	pod, err := s.store.GetForUpdateTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if pod == nil {
		return nil, ErrNotFound
	}
	if pod.UserID != actor.ID {
		if !pod.IsPublic {
			return nil, ErrNotFound
		}
		return nil, ErrForbidden
	}

	if in.Stage != nil && *in.Stage != pod.Stage {
		if !models.ValidStage(*in.Stage) {
			return nil, validationErrf("invalid stage %q", *in.Stage)
		}
		if err := s.store.InsertHistoryTx(ctx, tx, pod.ID, pod.Version, pod.Stage, pod.Content); err != nil {
			return nil, err
		}
		pod.Version++
		pod.Stage = *in.Stage
	}
	if in.Title != nil {
		pod.Title = *in.Title
	}
	if in.Content != nil {
		pod.Content = *in.Content
	}
	if in.IsPublic != nil {
		pod.IsPublic = *in.IsPublic
	}
	if err := validatePodFields(pod.Title, pod.Content, pod.Stage); err != nil {
		return nil, err
	}
	if err := s.store.UpdateTx(ctx, tx, pod); err != nil {
		return nil, err
	}

	if in.Tags != nil {
		if err := s.store.ClearPodTagsTx(ctx, tx, pod.ID); err != nil {
			return nil, err
		}
		tags, err := s.resolveAndAttachTags(ctx, tx, pod.ID, *in.Tags)
		if err != nil {
			return nil, err
		}
		pod.Tags = tags
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return pod, nil
}

func (s *service) History(ctx context.Context, viewer *models.User, id uuid.UUID) ([]*models.PodStageHistory, error) {
	pod, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if pod == nil || !visibleTo(pod, viewer) {
		return nil, ErrNotFound
	}
	return s.store.ListHistory(ctx, id)
}

// resolveAndAttachTags resolves each tag ref by explicit case analysis on
// which variant is set; a ref with both or neither is rejected.
func (s *service) resolveAndAttachTags(ctx context.Context, tx pgx.Tx, podID uuid.UUID, refs []TagRef) ([]models.Tag, error) {
	tags := []models.Tag{}
	for _, ref := range refs {
		var tag *models.Tag
		var err error
		switch {
		case ref.ID != nil && ref.Name != nil:
			return nil, validationErrf("tag ref must set id or name, not both")
		case ref.ID != nil:
			tag, err = s.store.GetTagByIDTx(ctx, tx, *ref.ID)
			if err != nil {
				return nil, err
			}
			if tag == nil {
				return nil, validationErrf("tag %d not found", *ref.ID)
			}
		case ref.Name != nil && *ref.Name != "":
			tag, err = s.store.GetOrCreateTagTx(ctx, tx, *ref.Name)
			if err != nil {
				return nil, err
			}
		default:
			return nil, validationErrf("tag ref must set id or name")
		}
		if err := s.store.AttachTagTx(ctx, tx, podID, tag.ID); err != nil {
			return nil, err
		}
		tags = append(tags, *tag)
	}
	return tags, nil
}

func visibleTo(pod *models.Pod, viewer *models.User) bool {
	if pod.IsPublic {
		return true
	}
	return viewer != nil && viewer.ID == pod.UserID
}

func validatePodFields(title, content, stage string) error {
	if title == "" || len(title) > models.PodTitleMaxLen {
		return validationErrf("title must be 1-%d characters", models.PodTitleMaxLen)
	}
	if content == "" || len(content) > models.PodContentMaxLen {
		return validationErrf("content must be 1-%d characters", models.PodContentMaxLen)
	}
	if !models.ValidStage(stage) {
		return validationErrf("invalid stage %q", stage)
	}
	return nil
}
