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
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id               TEXT PRIMARY KEY,
				key_str          TEXT NOT NULL,
				a_type           TEXT NOT NULL,
				a_id             TEXT NOT NULL,
				b_type           TEXT NOT NULL,
				b_id             TEXT NOT NULL,
				last_message_at  TEXT,
				created_at       TEXT NOT NULL,
				updated_at       TEXT NOT NULL
			);

			CREATE UNIQUE INDEX idx_conversations_key ON conversations (key_str);
			CREATE INDEX idx_conversations_a ON conversations (a_type, a_id, updated_at);
			CREATE INDEX idx_conversations_b ON conversations (b_type, b_id, updated_at);

			CREATE TABLE messages (
				seq              INTEGER PRIMARY KEY AUTOINCREMENT,
				id               TEXT NOT NULL UNIQUE,
				conversation_id  TEXT NOT NULL REFERENCES conversations(id),
				sender_type      TEXT NOT NULL,
				sender_id        TEXT NOT NULL,
				receiver_type    TEXT NOT NULL,
				receiver_id      TEXT NOT NULL,
				content          TEXT NOT NULL DEFAULT '',
				created_at       TEXT NOT NULL
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, created_at, seq);
			CREATE INDEX idx_messages_sender ON messages (conversation_id, sender_type, sender_id);

			CREATE TABLE message_attachments (
				message_id   TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				position     INTEGER NOT NULL,
				filename     TEXT NOT NULL,
				mime_type    TEXT NOT NULL DEFAULT '',
				size         INTEGER NOT NULL DEFAULT 0,
				upload_date  TEXT NOT NULL,
				data         BLOB,
				PRIMARY KEY (message_id, position)
			);

			CREATE TABLE read_receipts (
				message_id       TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
				conversation_id  TEXT NOT NULL,
				reader_type      TEXT NOT NULL,
				reader_id        TEXT NOT NULL,
				read_at          TEXT NOT NULL,
				PRIMARY KEY (message_id, reader_type, reader_id)
			);

			CREATE INDEX idx_receipts_reader ON read_receipts (conversation_id, reader_type, reader_id);
		`,
	},
	{
		Version: 2,
		Name:    "create participant profiles",
		SQL: `
			CREATE TABLE profiles (
				participant_type  TEXT NOT NULL,
				participant_id    TEXT NOT NULL,
				full_name         TEXT NOT NULL DEFAULT '',
				email             TEXT NOT NULL DEFAULT '',
				company_name      TEXT NOT NULL DEFAULT '',
				updated_at        TEXT NOT NULL,
				PRIMARY KEY (participant_type, participant_id)
			);
		`,
	},
}
