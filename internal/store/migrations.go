package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS boards (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS board_columns (
	id       TEXT PRIMARY KEY,
	board_id TEXT NOT NULL REFERENCES boards(id) ON DELETE CASCADE,
	title    TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_board_columns_board_id ON board_columns(board_id);

CREATE TABLE IF NOT EXISTS cards (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	id                 TEXT NOT NULL UNIQUE,
	board_id           TEXT NOT NULL,
	column_id          TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	description_blocks TEXT NOT NULL DEFAULT '[]',
	labels             TEXT NOT NULL DEFAULT '[]',
	source_message_id  TEXT NOT NULL DEFAULT '',
	source_email_date  TEXT NOT NULL DEFAULT '',
	responsible_id     TEXT NOT NULL DEFAULT '',
	created_at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cards_board_id ON cards(board_id);

CREATE TABLE IF NOT EXISTS card_comments (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	card_id    TEXT NOT NULL REFERENCES cards(id) ON DELETE CASCADE,
	author     TEXT NOT NULL DEFAULT '',
	text       TEXT NOT NULL DEFAULT '',
	is_email   INTEGER NOT NULL DEFAULT 0 CHECK(is_email IN (0, 1)),
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_card_comments_card_id ON card_comments(card_id);

CREATE TABLE IF NOT EXISTS automation_ledger (
	key         TEXT PRIMARY KEY,
	recorded_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS activity (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	id        TEXT NOT NULL UNIQUE,
	type      TEXT NOT NULL,
	text      TEXT NOT NULL,
	user      TEXT NOT NULL,
	timestamp DATETIME NOT NULL
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE TABLE IF NOT EXISTS mail_ids (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	set_name   TEXT NOT NULL CHECK(set_name IN ('processed', 'deleted', 'spam')),
	id         TEXT NOT NULL,
	subject    TEXT NOT NULL DEFAULT '',
	actor      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	UNIQUE(set_name, id)
);

CREATE INDEX IF NOT EXISTS idx_mail_ids_created ON mail_ids(set_name, created_at);

CREATE TABLE IF NOT EXISTS attachment_jobs (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	identity    TEXT NOT NULL,
	folder      TEXT NOT NULL,
	external_id TEXT NOT NULL,
	filenames   TEXT NOT NULL DEFAULT '[]',
	created_at  DATETIME NOT NULL,
	UNIQUE(identity, folder, external_id)
);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
}
