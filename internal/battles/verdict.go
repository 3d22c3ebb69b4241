package battles

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/khaled-muhammad/thoughty/internal/ai"
	"github.com/khaled-muhammad/thoughty/internal/models"
)

// Verdict is the client-facing judgment of a battle.
type Verdict struct {
	WinnerPodID  *uuid.UUID `json:"winner_pod"`
	WinnerTitle  string     `json:"winner_title"`
	Reasoning    []string   `json:"reasoning"`
	Analysis     string     `json:"analysis"`
	KeyFactors   []string   `json:"key_factors"`
	VoteSummary  string     `json:"vote_summary"`
	AIConfidence string     `json:"ai_confidence"`
}

// modelVerdict is the fixed schema the completion service must return.
type modelVerdict struct {
	Analysis          string   `json:"analysis"`
	Reasoning         []string `json:"reasoning"`
	KeyFactors        []string `json:"key_factors"`
	RecommendedWinner string   `json:"recommended_winner"`
	Confidence        string   `json:"confidence"`
	PodAStrengths     []string `json:"pod_a_strengths"`
	PodBStrengths     []string `json:"pod_b_strengths"`
	LearningInsights  []string `json:"learning_insights"`
}

const verdictSchemaJSON = `{
	"type": "object",
	"required": ["analysis", "reasoning", "recommended_winner", "confidence"],
	"properties": {
		"analysis": {"type": "string"},
		"reasoning": {"type": "array", "items": {"type": "string"}},
		"key_factors": {"type": "array", "items": {"type": "string"}},
		"recommended_winner": {"enum": ["A", "B", "TIE"]},
		"confidence": {"enum": ["high", "medium", "low"]},
		"pod_a_strengths": {"type": "array", "items": {"type": "string"}},
		"pod_b_strengths": {"type": "array", "items": {"type": "string"}},
		"learning_insights": {"type": "array", "items": {"type": "string"}}
	}
}`

var verdictSchema = jsonschema.MustCompileString("verdict.json", verdictSchemaJSON)

const judgeSystemPrompt = `You are an expert AI judge analyzing battles between thought pods (ideas, concepts, or arguments). Your role is to provide fair, insightful analysis that considers both the content quality and community voting patterns.

Analysis Criteria:
1. Content Quality: Clarity, depth, originality, and practical value
2. Argument Strength: Logic, evidence, and persuasiveness
3. Relevance: How well the content addresses the topic
4. Innovation: Novel approaches or perspectives
5. Community Response: Voting patterns and engagement

Your verdict should:
- Be objective and balanced
- Consider both content merit AND community voting
- Provide educational insights
- Acknowledge strengths in both pods
- Explain the reasoning clearly

Respond ONLY with JSON in this exact format:
{
    "analysis": "Overall battle analysis in 2-3 sentences",
    "reasoning": [
        "Specific reason 1 for the outcome",
        "Specific reason 2 for the outcome",
        "Specific reason 3 for the outcome"
    ],
    "key_factors": [
        "Important factor 1",
        "Important factor 2"
    ],
    "recommended_winner": "A or B or TIE",
    "confidence": "high, medium, or low",
    "pod_a_strengths": ["strength 1", "strength 2"],
    "pod_b_strengths": ["strength 1", "strength 2"],
    "learning_insights": ["insight 1", "insight 2"]
}`

// Completer is the slice of the AI client the judge uses.
type Completer interface {
	Ready() bool
	CompleteJSON(ctx context.Context, p ai.CompletionParams) (json.RawMessage, error)
}

// Judge combines community votes with a model's qualitative assessment.
// Every failure mode funnels into the deterministic fallback verdict; a
// verdict request never errors.
type Judge struct {
	client Completer
	log    *slog.Logger
}

func NewJudge(client Completer, log *slog.Logger) *Judge {
	if log == nil {
		log = slog.Default()
	}
	return &Judge{client: client, log: log}
}

func (j *Judge) GenerateVerdict(ctx context.Context, battle *models.Battle, podA, podB *PodBrief, aVotes, bVotes int) *Verdict {
	if !j.client.Ready() {
		j.log.Warn("ai verdict unavailable: no api key", "battle_id", battle.ID)
		return FallbackVerdict(podA, podB, aVotes, bVotes)
	}

	raw, err := j.client.CompleteJSON(ctx, ai.CompletionParams{
		System:      judgeSystemPrompt,
		User:        battleContext(battle, podA, podB, aVotes, bVotes),
		MaxTokens:   800,
		Temperature: 0.7,
	})
	if err != nil {
		j.log.Error("ai verdict generation failed", "battle_id", battle.ID, "error", err)
		return FallbackVerdict(podA, podB, aVotes, bVotes)
	}

	mv, err := parseModelVerdict(raw)
	if err != nil {
		j.log.Error("ai verdict response rejected", "battle_id", battle.ID, "error", err)
		return FallbackVerdict(podA, podB, aVotes, bVotes)
	}

	winner := reconcileWinner(podA, podB, mv, aVotes, bVotes)
	verdict := &Verdict{
		Reasoning:    mv.Reasoning,
		Analysis:     mv.Analysis,
		KeyFactors:   mv.KeyFactors,
		VoteSummary:  voteSummary(aVotes, bVotes),
		AIConfidence: mv.Confidence,
		WinnerTitle:  "Tie",
	}
	if winner != nil {
		verdict.WinnerPodID = &winner.ID
		verdict.WinnerTitle = winner.Title
	}
	return verdict
}

// parseModelVerdict validates the raw payload against the verdict schema
// before decoding. Anything off-schema takes the fallback path.
func parseModelVerdict(raw json.RawMessage) (*modelVerdict, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	if err := verdictSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("verdict schema: %w", err)
	}
	var mv modelVerdict
	if err := json.Unmarshal(raw, &mv); err != nil {
		return nil, err
	}
	return &mv, nil
}

// reconcileWinner merges votes and the model's recommendation:
//  1. a strict vote leader the model agrees with (or is neutral on) wins;
//  2. otherwise a high-confidence model pick wins regardless of votes;
//  3. otherwise, on tied votes, a non-TIE model pick wins, else nobody;
//  4. otherwise the vote leader wins, else nobody.
func reconcileWinner(podA, podB *PodBrief, mv *modelVerdict, aVotes, bVotes int) *PodBrief {
	rec := mv.RecommendedWinner
	switch {
	case aVotes > bVotes && (rec == "A" || rec == "TIE"):
		return podA
	case bVotes > aVotes && (rec == "B" || rec == "TIE"):
		return podB
	case rec == "A" && mv.Confidence == "high":
		return podA
	case rec == "B" && mv.Confidence == "high":
		return podB
	case aVotes == bVotes:
		switch rec {
		case "A":
			return podA
		case "B":
			return podB
		}
		return nil
	case aVotes > bVotes:
		return podA
	case bVotes > aVotes:
		return podB
	}
	return nil
}

// FallbackVerdict is the terminal error boundary: winner by raw vote
// comparison, null on a tie, no model input. It never fails.
func FallbackVerdict(podA, podB *PodBrief, aVotes, bVotes int) *Verdict {
	var winner *PodBrief
	switch {
	case aVotes > bVotes:
		winner = podA
	case bVotes > aVotes:
		winner = podB
	}
	verdict := &Verdict{
		Reasoning: []string{
			fmt.Sprintf("Pod A received %d votes", aVotes),
			fmt.Sprintf("Pod B received %d votes", bVotes),
			"Winner determined by community voting (AI analysis unavailable)",
		},
		Analysis:     "Basic vote-based analysis",
		KeyFactors:   []string{"Community voting patterns"},
		VoteSummary:  voteSummary(aVotes, bVotes),
		AIConfidence: "n/a",
		WinnerTitle:  "Tie",
	}
	if winner != nil {
		verdict.WinnerPodID = &winner.ID
		verdict.WinnerTitle = winner.Title
	}
	return verdict
}

func battleContext(battle *models.Battle, podA, podB *PodBrief, aVotes, bVotes int) string {
	diff := aVotes - bVotes
	if diff < 0 {
		diff = -diff
	}
	return fmt.Sprintf(`BATTLE ANALYSIS REQUEST

Battle Overview:
- Battle ID: %s
- Created: %s
- Vote Threshold: %d

Pod A: %q
Content: %s
Stage: %s
Tags: %s
Votes Received: %d

Pod B: %q
Content: %s
Stage: %s
Tags: %s
Votes Received: %d

Voting Results:
- Total Votes: %d
- Pod A Votes: %d
- Pod B Votes: %d
- Vote Difference: %d

Please analyze this battle and provide your verdict.`,
		battle.ID, battle.CreatedAt.Format("2006-01-02 15:04:05"), battle.VoteThreshold,
		podA.Title, podA.Content, podA.Stage, tagList(podA.Tags), aVotes,
		podB.Title, podB.Content, podB.Stage, tagList(podB.Tags), bVotes,
		aVotes+bVotes, aVotes, bVotes, diff)
}

func tagList(tags []string) string {
	if len(tags) == 0 {
		return "None"
	}
	return strings.Join(tags, ", ")
}

func voteSummary(aVotes, bVotes int) string {
	return fmt.Sprintf("Pod A: %d votes, Pod B: %d votes", aVotes, bVotes)
}
