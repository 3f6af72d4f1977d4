package store

import "github.com/fentz26/cadence/internal/migrate"

// Migrations returns the schema history in ascending version order.
func Migrations() []migrate.Migration {
	return []migrate.Migration{
		{Version: 1, Name: "core", SQL: schemaCore},
		{Version: 2, Name: "session_memory", SQL: schemaMemory},
		{Version: 3, Name: "audit_log", SQL: schemaAudit},
	}
}

const schemaCore = `
CREATE TABLE sessions (
	id TEXT PRIMARY KEY,
	task_id TEXT NOT NULL,
	sprint_count INTEGER NOT NULL DEFAULT 0,
	confidence_level REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'active',
	started_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	completed_at INTEGER,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE sprints (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sprint_number INTEGER NOT NULL,
	objective TEXT NOT NULL DEFAULT '',
	confidence REAL NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'planning',
	started_at INTEGER NOT NULL,
	completed_at INTEGER,
	result TEXT,
	UNIQUE (session_id, sprint_number)
);

CREATE TABLE artifacts (
	id TEXT PRIMARY KEY,
	sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	path TEXT NOT NULL,
	content TEXT,
	checksum TEXT,
	created_at INTEGER NOT NULL
);

CREATE TABLE checkpoints (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	sprint_id TEXT NOT NULL REFERENCES sprints(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT,
	state TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE INDEX idx_sessions_status_updated ON sessions(status, updated_at);
CREATE INDEX idx_sprints_session ON sprints(session_id, sprint_number);
CREATE INDEX idx_artifacts_sprint ON artifacts(sprint_id, created_at);
CREATE INDEX idx_checkpoints_session ON checkpoints(session_id, created_at);
CREATE INDEX idx_checkpoints_sprint ON checkpoints(sprint_id);
`

const schemaMemory = `
CREATE TABLE session_memory (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, key)
);
`

const schemaAudit = `
CREATE TABLE audit_log (
	id TEXT PRIMARY KEY,
	action TEXT NOT NULL,
	inputs_hash TEXT NOT NULL,
	outcome TEXT NOT NULL,
	session_id TEXT,
	details TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX idx_audit_log_session ON audit_log(session_id, created_at);
CREATE INDEX idx_audit_log_created ON audit_log(created_at);
`
