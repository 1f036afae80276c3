package database

// Migration represents a single versioned schema change.
type Migration struct {
	Version int
	SQL     string
}

// migrations is the ordered list of all database migrations. Each one runs
// inside its own transaction and is recorded in schema_version on success.
var migrations = []Migration{
	{
		Version: 1,
		SQL: `
			-- One table per record kind, since contacts and companies carry
			-- different identity fields; both share the same shape described
			-- in the external interface.
			CREATE TABLE contacts (
				external_id TEXT PRIMARY KEY,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				email TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				company TEXT NOT NULL DEFAULT '',
				domain TEXT NOT NULL DEFAULT '',
				city TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL DEFAULT '',
				industry TEXT NOT NULL DEFAULT '',
				job_title TEXT NOT NULL DEFAULT '',
				properties TEXT,
				source_created_at DATETIME,
				source_updated_at DATETIME,
				retry_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE UNIQUE INDEX idx_contacts_external_id ON contacts(external_id);
			CREATE INDEX idx_contacts_email ON contacts(email);
			CREATE INDEX idx_contacts_phone ON contacts(phone);
			CREATE INDEX idx_contacts_domain ON contacts(domain);

			CREATE TABLE companies (
				external_id TEXT PRIMARY KEY,
				name TEXT NOT NULL DEFAULT '',
				domain TEXT NOT NULL DEFAULT '',
				phone TEXT NOT NULL DEFAULT '',
				city TEXT NOT NULL DEFAULT '',
				state TEXT NOT NULL DEFAULT '',
				industry TEXT NOT NULL DEFAULT '',
				properties TEXT,
				source_created_at DATETIME,
				source_updated_at DATETIME,
				retry_count INTEGER NOT NULL DEFAULT 0,
				last_error TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE UNIQUE INDEX idx_companies_external_id ON companies(external_id);
			CREATE INDEX idx_companies_domain ON companies(domain);
			CREATE INDEX idx_companies_phone ON companies(phone);
		`,
	},
	{
		Version: 2,
		SQL: `
			CREATE TABLE duplicate_groups (
				group_id TEXT PRIMARY KEY,
				kind TEXT NOT NULL CHECK (kind IN ('contact', 'company')),
				confidence TEXT NOT NULL CHECK (confidence IN ('high', 'medium', 'low')),
				golden_external_id TEXT,
				status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'reviewed', 'merged', 'dismissed')),
				merge_strategy TEXT,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				merged_at DATETIME
			);

			CREATE INDEX idx_duplicate_groups_kind_status ON duplicate_groups(kind, status);

			CREATE TABLE potential_matches (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				group_id TEXT NOT NULL REFERENCES duplicate_groups(group_id) ON DELETE CASCADE,
				record_external_id TEXT NOT NULL,
				match_score REAL NOT NULL,
				matched_fields TEXT NOT NULL DEFAULT '{"fields":[],"scores":[]}',
				is_primary INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_potential_matches_group ON potential_matches(group_id);
			CREATE INDEX idx_potential_matches_record ON potential_matches(record_external_id);

			CREATE TABLE merge_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				group_id TEXT NOT NULL,
				primary_external_id TEXT NOT NULL,
				absorbed_external_ids TEXT NOT NULL,
				kind TEXT NOT NULL,
				merge_strategy TEXT,
				metadata TEXT,
				merged_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);

			CREATE INDEX idx_merge_history_group ON merge_history(group_id);
		`,
	},
	{
		Version: 3,
		SQL: `
			-- Bookkeeping for import runs; not read by the matching pipeline
			-- itself, consumed only to time-range filter if asked.
			CREATE TABLE import_batches (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL CHECK (kind IN ('contact', 'company')),
				status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'failed')),
				total_count INTEGER NOT NULL DEFAULT 0,
				success_count INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				metadata TEXT,
				started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				finished_at DATETIME
			);

			CREATE INDEX idx_import_batches_kind ON import_batches(kind, started_at);
		`,
	},
}
