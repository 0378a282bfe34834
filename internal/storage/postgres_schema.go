package storage

var postgresSchema = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS case_records (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		age TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		last_seen_location TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		photo_key TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		tracking_code TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS case_records_status ON case_records (status)`,
	`CREATE TABLE IF NOT EXISTS match_facts (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		source_id BIGINT NOT NULL REFERENCES case_records(id) ON DELETE CASCADE,
		candidate_id BIGINT REFERENCES case_records(id) ON DELETE CASCADE,
		score DOUBLE PRECISION NOT NULL,
		method TEXT NOT NULL,
		evidence JSONB,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS match_facts_dedup ON match_facts (source_id, COALESCE(candidate_id, 0), method)`,
	`CREATE INDEX IF NOT EXISTS match_facts_candidate ON match_facts (candidate_id)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		level TEXT NOT NULL,
		payload JSONB,
		read BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS record_embeddings (
		record_id BIGINT NOT NULL REFERENCES case_records(id) ON DELETE CASCADE,
		photo_key TEXT NOT NULL,
		embedding vector NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (record_id, photo_key)
	)`,
}
