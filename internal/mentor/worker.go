package mentor

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/khaled-muhammad/thoughty/internal/models"
)

type AnalyzePodJobArgs struct {
	PodID  uuid.UUID `json:"pod_id"`
	UserID uuid.UUID `json:"user_id"`
}

func (AnalyzePodJobArgs) Kind() string { return "analyze_pod" }

// InsightStore is the contract the worker needs; *Repository satisfies it.
type InsightStore interface {
	GetPodSnapshot(ctx context.Context, podID uuid.UUID) (*PodSnapshot, error)
	CreateInsight(ctx context.Context, userID, podID uuid.UUID, text, insightType string) error
}

// AnalyzePodWorker derives one mentor insight from a pod's content. The pod
// may have been deleted between enqueue and run; that is a clean no-op, not
// a retryable failure.
type AnalyzePodWorker struct {
	river.WorkerDefaults[AnalyzePodJobArgs]
	store InsightStore
}

func NewAnalyzePodWorker(store InsightStore) *AnalyzePodWorker {
	return &AnalyzePodWorker{store: store}
}

func (w *AnalyzePodWorker) Work(ctx context.Context, job *river.Job[AnalyzePodJobArgs]) error {
	args := job.Args
	pod, err := w.store.GetPodSnapshot(ctx, args.PodID)
	if err != nil {
		return fmt.Errorf("load pod %s: %w", args.PodID, err)
	}
	if pod == nil {
		return nil
	}
	text, insightType := DeriveInsight(pod.Content)
	if err := w.store.CreateInsight(ctx, pod.UserID, pod.ID, text, insightType); err != nil {
		return fmt.Errorf("store insight for pod %s: %w", args.PodID, err)
	}
	return nil
}

// DeriveInsight maps pod content to a mentor insight. Purely deterministic:
// the same content always yields the same insight.
func DeriveInsight(content string) (text, insightType string) {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "habit") || strings.Contains(lower, "goal") || strings.Contains(lower, "plan"):
		return "Break this intention into the smallest step you could take today.", models.InsightGrowthTip
	case strings.Contains(lower, "book") || strings.Contains(lower, "read"):
		return "Pick one source that challenges this idea and note where it disagrees with you.", models.InsightBook
	case strings.Contains(lower, "?"):
		return "You are already asking questions - which assumption behind them have you not tested?", models.InsightPrompt
	default:
		return "What triggered this line of thinking?", models.InsightReflection
	}
}
