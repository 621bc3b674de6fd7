package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				thread_id   TEXT PRIMARY KEY,
				caller_id   TEXT NOT NULL,
				stack       TEXT NOT NULL DEFAULT '[]',
				created_at  TEXT NOT NULL,
				updated_at  TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_caller ON sessions (caller_id);
			CREATE INDEX idx_sessions_updated ON sessions (updated_at);

			CREATE TABLE messages (
				thread_id    TEXT NOT NULL REFERENCES sessions(thread_id) ON DELETE CASCADE,
				seq          INTEGER NOT NULL,
				role         TEXT NOT NULL,
				content      TEXT NOT NULL,
				tool_calls   TEXT,
				tool_call_id TEXT NOT NULL DEFAULT '',
				name         TEXT NOT NULL DEFAULT '',
				agent        TEXT NOT NULL DEFAULT '',
				timestamp    TEXT NOT NULL,
				PRIMARY KEY (thread_id, seq)
			);
		`,
	},
	{
		Version: 2,
		Name:    "create vector memories",
		SQL: `
			CREATE TABLE memories (
				id          TEXT PRIMARY KEY,
				owner       TEXT NOT NULL,
				text        TEXT NOT NULL,
				embedding   TEXT NOT NULL,
				created_at  TEXT NOT NULL
			);

			CREATE INDEX idx_memories_owner ON memories (owner, created_at);
		`,
	},
}
