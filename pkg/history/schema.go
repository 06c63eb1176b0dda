package history

// SchemaDDL creates the transition log. created_at is Unix milliseconds (UTC)
// so range queries compare integers.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    kind TEXT NOT NULL,
    phase TEXT NOT NULL,
    next_phase TEXT NOT NULL,
    announcement TEXT,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_created_at ON events(created_at);
CREATE INDEX IF NOT EXISTS idx_events_kind_phase ON events(kind, phase, created_at);
`
