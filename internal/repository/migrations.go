package repository

// The links table owns short code uniqueness; link_owners holds the per-owner
// live link counter that is bumped in the same transaction as every insert and
// delete, so the quota check and the mutation can not be split.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS links (
    id              BIGSERIAL PRIMARY KEY,
    owner_id        TEXT        NOT NULL,
    destination_url TEXT        NOT NULL,
    short_code      VARCHAR(32) NOT NULL UNIQUE,
    access_count    BIGINT      NOT NULL DEFAULT 0 CHECK (access_count >= 0),
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at      TIMESTAMPTZ NOT NULL,
    CHECK (expires_at > created_at)
);

CREATE INDEX IF NOT EXISTS idx_links_owner_created ON links (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS link_owners (
    owner_id   TEXT    PRIMARY KEY,
    link_count INTEGER NOT NULL DEFAULT 0 CHECK (link_count >= 0)
);
`

// Timestamps are unix microseconds so ordering and comparisons stay integer
// operations and match Postgres precision.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS links (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    owner_id        TEXT    NOT NULL,
    destination_url TEXT    NOT NULL,
    short_code      TEXT    NOT NULL UNIQUE,
    access_count    INTEGER NOT NULL DEFAULT 0 CHECK (access_count >= 0),
    created_at      INTEGER NOT NULL,
    expires_at      INTEGER NOT NULL,
    CHECK (expires_at > created_at)
);

CREATE INDEX IF NOT EXISTS idx_links_owner_created ON links (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS link_owners (
    owner_id   TEXT    PRIMARY KEY,
    link_count INTEGER NOT NULL DEFAULT 0 CHECK (link_count >= 0)
);
`
