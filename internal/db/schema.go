package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// CreateSchema creates all application tables and seed rows. Safe to call on
// every startup - uses IF NOT EXISTS / ON CONFLICT DO NOTHING throughout.
// River's own tables are managed separately by rivermigrate.
func CreateSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := pool.Exec(ctx, seed); err != nil {
		return fmt.Errorf("seed schema: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email TEXT NOT NULL UNIQUE,
    username TEXT NOT NULL,
    bio TEXT NOT NULL DEFAULT '',
    is_guest BOOLEAN NOT NULL DEFAULT FALSE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pods (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title VARCHAR(150) NOT NULL,
    content VARCHAR(500) NOT NULL,
    stage TEXT NOT NULL DEFAULT 'idea' CHECK (stage IN ('idea', 'draft', 'review', 'final')),
    version INTEGER NOT NULL DEFAULT 1,
    is_public BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pods_user_id ON pods(user_id);

CREATE TABLE IF NOT EXISTS pod_stage_history (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pod_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    version INTEGER NOT NULL,
    stage TEXT NOT NULL,
    content VARCHAR(500) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (pod_id, version)
);

CREATE TABLE IF NOT EXISTS tags (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(100) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS pod_tags (
    pod_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    tag_id BIGINT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
    PRIMARY KEY (pod_id, tag_id)
);

CREATE TABLE IF NOT EXISTS battles (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    pod_a_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    pod_b_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    created_by UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    vote_threshold INTEGER NOT NULL DEFAULT 3 CHECK (vote_threshold > 0),
    closes_at TIMESTAMPTZ,
    winner_pod_id UUID REFERENCES pods(id) ON DELETE SET NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CHECK (pod_a_id <> pod_b_id)
);

CREATE TABLE IF NOT EXISTS votes (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    battle_id UUID NOT NULL REFERENCES battles(id) ON DELETE CASCADE,
    voter_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    choice_pod_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    voted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (battle_id, voter_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_battle_id ON votes(battle_id);

CREATE TABLE IF NOT EXISTS token_transactions (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    amount INTEGER NOT NULL,
    reason TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_token_transactions_user_id ON token_transactions(user_id);

CREATE TABLE IF NOT EXISTS token_balances (
    user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
    balance INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS badges (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL,
    condition_kind TEXT NOT NULL CHECK (condition_kind IN ('pods_created', 'battles_won', 'votes_cast', 'token_balance')),
    threshold INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS achievement_log (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    badge_id BIGINT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
    earned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, badge_id)
);

CREATE TABLE IF NOT EXISTS insights (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    pod_id UUID NOT NULL REFERENCES pods(id) ON DELETE CASCADE,
    text TEXT NOT NULL,
    type TEXT NOT NULL CHECK (type IN ('reflection', 'growth_tip', 'prompt', 'book')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_insights_user_id ON insights(user_id);

CREATE TABLE IF NOT EXISTS prompts (
    id BIGSERIAL PRIMARY KEY,
    text VARCHAR(500) NOT NULL,
    type TEXT NOT NULL,
    difficulty TEXT NOT NULL DEFAULT 'intermediate'
);

CREATE TABLE IF NOT EXISTS roulette_spins (
    id BIGSERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    prompt_id BIGINT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    spun_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS variations (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    prompt_id BIGINT NOT NULL REFERENCES prompts(id) ON DELETE CASCADE,
    user_id UUID REFERENCES users(id) ON DELETE SET NULL,
    text TEXT NOT NULL,
    created_by_ai BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const seed = `
INSERT INTO badges (name, description, condition_kind, threshold) VALUES
    ('First Thought', 'Created your first pod', 'pods_created', 1),
    ('Prolific Thinker', 'Created ten pods', 'pods_created', 10),
    ('Arena Champion', 'Won your first battle', 'battles_won', 1),
    ('Crowd Voice', 'Cast twenty-five votes', 'votes_cast', 25),
    ('Token Collector', 'Hold a balance of 500 tokens', 'token_balance', 500)
ON CONFLICT (name) DO NOTHING;

INSERT INTO prompts (text, type, difficulty)
SELECT v.text, v.type, v.difficulty FROM (VALUES
    ('What belief did you change your mind about recently, and why?', 'question', 'beginner'),
    ('Reframe a daily annoyance as a design problem.', 'problem', 'intermediate'),
    ('Argue the strongest version of a position you disagree with.', 'challenge', 'advanced'),
    ('Describe a familiar idea from the point of view of someone seeing it for the first time.', 'perspective', 'intermediate')
) AS v(text, type, difficulty)
WHERE NOT EXISTS (SELECT 1 FROM prompts);
`
