package storage

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS case_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		last_seen_location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		tracking_code TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS case_records_status ON case_records (status)`,
	`CREATE TABLE IF NOT EXISTS match_facts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES case_records(id) ON DELETE CASCADE,
		candidate_id INTEGER REFERENCES case_records(id) ON DELETE CASCADE,
		score REAL NOT NULL,
		method TEXT NOT NULL,
		evidence TEXT NOT NULL DEFAULT 'null',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS match_facts_dedup ON match_facts (source_id, COALESCE(candidate_id, 0), method)`,
	`CREATE INDEX IF NOT EXISTS match_facts_candidate ON match_facts (candidate_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		level TEXT NOT NULL,
		payload TEXT,
		read INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS record_embeddings (
		record_id INTEGER NOT NULL REFERENCES case_records(id) ON DELETE CASCADE,
		photo_key TEXT NOT NULL,
		embedding TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (record_id, photo_key)
	)`,
}
