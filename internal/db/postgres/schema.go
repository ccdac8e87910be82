package postgres

// Schema — SQL-миграции приложения, встроенные в код для упрощения деплоя.
// Номера версий не переиспользуются: новая схема — новая миграция в конце списка.
var Schema = []Migration{
	{Version: 1, SQL: migration001Members},
	{Version: 2, SQL: migration002Points},
	{Version: 3, SQL: migration003Recommendations},
	{Version: 4, SQL: migration004Penalties},
	{Version: 5, SQL: migration005Admin},
	{Version: 6, SQL: migration006Moderation},
}

var migration001Members = `
CREATE TABLE IF NOT EXISTS members (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT UNIQUE NOT NULL,
    username VARCHAR(255),
    first_name VARCHAR(255) NOT NULL,
    last_name VARCHAR(255),
    is_admin BOOLEAN NOT NULL DEFAULT FALSE,
    is_scorer BOOLEAN NOT NULL DEFAULT FALSE,
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    joined_at TIMESTAMPTZ DEFAULT NOW(),
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_members_username ON members(LOWER(username));
`

var migration002Points = `
CREATE TABLE IF NOT EXISTS point_accounts (
    user_id BIGINT PRIMARY KEY,
    balance BIGINT NOT NULL DEFAULT 0,
    level INTEGER NOT NULL DEFAULT 0,
    last_interaction DATE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_point_accounts_balance ON point_accounts(balance DESC);

CREATE TABLE IF NOT EXISTS point_entries (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES point_accounts(user_id),
    delta BIGINT NOT NULL CHECK (delta <> 0),
    kind VARCHAR(32) NOT NULL,
    reason TEXT NOT NULL DEFAULT '',
    ref VARCHAR(255) UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_point_entries_user ON point_entries(user_id, created_at DESC);
`

var migration003Recommendations = `
CREATE TABLE IF NOT EXISTS recommendations (
    id BIGSERIAL PRIMARY KEY,
    submitter_id BIGINT NOT NULL,
    display_name VARCHAR(255) NOT NULL,
    link TEXT NOT NULL,
    coins BIGINT NOT NULL CHECK (coins > 0),
    outcome VARCHAR(16) NOT NULL DEFAULT 'pending',
    decided_at TIMESTAMPTZ,
    deciding_voter_id BIGINT,
    settled_at TIMESTAMPTZ,
    chat_id BIGINT,
    message_id INTEGER,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (submitter_id, link)
);
CREATE INDEX IF NOT EXISTS idx_recommendations_unsettled
    ON recommendations(decided_at) WHERE outcome <> 'pending' AND settled_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(created_at DESC);

CREATE TABLE IF NOT EXISTS recommendation_votes (
    recommendation_id BIGINT NOT NULL REFERENCES recommendations(id),
    voter_id BIGINT NOT NULL,
    approve BOOLEAN NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (recommendation_id, voter_id)
);
`

var migration004Penalties = `
CREATE TABLE IF NOT EXISTS penalties (
    user_id BIGINT PRIMARY KEY,
    strikes INTEGER NOT NULL DEFAULT 0,
    blocked_until TIMESTAMPTZ,
    block_reason TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS penalty_strikes (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    source VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, source)
);
`

var migration005Admin = `
CREATE TABLE IF NOT EXISTS admin_sessions (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    session_token VARCHAR(255) UNIQUE,
    authenticated_at TIMESTAMPTZ DEFAULT NOW(),
    expires_at TIMESTAMPTZ,
    last_activity TIMESTAMPTZ DEFAULT NOW(),
    is_active BOOLEAN DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS idx_admin_sessions_user_id ON admin_sessions(user_id);

CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
`

var migration006Moderation = `
ALTER TABLE members ADD COLUMN IF NOT EXISTS ban_reason TEXT;

CREATE TABLE IF NOT EXISTS forbidden_words (
    id BIGSERIAL PRIMARY KEY,
    word VARCHAR(255) UNIQUE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
