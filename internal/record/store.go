package record

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/rs/zerolog"
)

// Store is the embedded relational store for contact/company records:
// schema is owned by database.Migrate, this type owns indexed lookups and
// atomic writes.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new record store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("record-store")}
}

func tableFor(kind Kind) string {
	if kind == KindCompany {
		return "companies"
	}
	return "contacts"
}

// Upsert inserts or replaces a record keyed by external_id.
func (s *Store) Upsert(r Record) error {
	switch r.Kind {
	case KindContact:
		return s.upsertContact(r.Contact)
	case KindCompany:
		return s.upsertCompany(r.Company)
	default:
		return coreerr.New(coreerr.InvariantViolation, "unknown record kind")
	}
}

func (s *Store) upsertContact(c *Contact) error {
	if c.ExternalID == "" {
		return coreerr.New(coreerr.InvariantViolation, "contact external_id must not be empty")
	}
	props, err := marshalProperties(c.Properties)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "marshal contact properties", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO contacts (
			external_id, first_name, last_name, email, phone, company, domain,
			city, state, industry, job_title, properties,
			source_created_at, source_updated_at, retry_count, last_error, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(external_id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			company = excluded.company,
			domain = excluded.domain,
			city = excluded.city,
			state = excluded.state,
			industry = excluded.industry,
			job_title = excluded.job_title,
			properties = excluded.properties,
			source_created_at = excluded.source_created_at,
			source_updated_at = excluded.source_updated_at,
			updated_at = CURRENT_TIMESTAMP
	`, c.ExternalID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Domain,
		c.City, c.State, c.Industry, c.JobTitle, props,
		nullTime(c.SourceCreatedAt), nullTime(c.SourceUpdatedAt), c.RetryCount, nullString(c.LastError))
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "upsert contact", err)
	}
	return nil
}

func (s *Store) upsertCompany(c *Company) error {
	if c.ExternalID == "" {
		return coreerr.New(coreerr.InvariantViolation, "company external_id must not be empty")
	}
	props, err := marshalProperties(c.Properties)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "marshal company properties", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO companies (
			external_id, name, domain, phone, city, state, industry, properties,
			source_created_at, source_updated_at, retry_count, last_error, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(external_id) DO UPDATE SET
			name = excluded.name,
			domain = excluded.domain,
			phone = excluded.phone,
			city = excluded.city,
			state = excluded.state,
			industry = excluded.industry,
			properties = excluded.properties,
			source_created_at = excluded.source_created_at,
			source_updated_at = excluded.source_updated_at,
			updated_at = CURRENT_TIMESTAMP
	`, c.ExternalID, c.Name, c.Domain, c.Phone, c.City, c.State, c.Industry, props,
		nullTime(c.SourceCreatedAt), nullTime(c.SourceUpdatedAt), c.RetryCount, nullString(c.LastError))
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "upsert company", err)
	}
	return nil
}

// UpsertBatch upserts many records within a single transaction.
func (s *Store) UpsertBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "begin upsert batch", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := s.upsertInTx(tx, r); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return coreerr.Wrap(coreerr.Io, "commit upsert batch", err)
	}
	return nil
}

func (s *Store) upsertInTx(tx *sql.Tx, r Record) error {
	switch r.Kind {
	case KindContact:
		c := r.Contact
		props, err := marshalProperties(c.Properties)
		if err != nil {
			return coreerr.Wrap(coreerr.Io, "marshal contact properties", err)
		}
		_, err = tx.Exec(`
			INSERT INTO contacts (
				external_id, first_name, last_name, email, phone, company, domain,
				city, state, industry, job_title, properties,
				source_created_at, source_updated_at, retry_count, last_error, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(external_id) DO UPDATE SET
				first_name = excluded.first_name, last_name = excluded.last_name,
				email = excluded.email, phone = excluded.phone, company = excluded.company,
				domain = excluded.domain, city = excluded.city, state = excluded.state,
				industry = excluded.industry, job_title = excluded.job_title,
				properties = excluded.properties,
				source_created_at = excluded.source_created_at,
				source_updated_at = excluded.source_updated_at,
				updated_at = CURRENT_TIMESTAMP
		`, c.ExternalID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Domain,
			c.City, c.State, c.Industry, c.JobTitle, props,
			nullTime(c.SourceCreatedAt), nullTime(c.SourceUpdatedAt), c.RetryCount, nullString(c.LastError))
		if err != nil {
			return coreerr.Wrap(coreerr.Io, "upsert contact in batch", err)
		}
	case KindCompany:
		c := r.Company
		props, err := marshalProperties(c.Properties)
		if err != nil {
			return coreerr.Wrap(coreerr.Io, "marshal company properties", err)
		}
		_, err = tx.Exec(`
			INSERT INTO companies (
				external_id, name, domain, phone, city, state, industry, properties,
				source_created_at, source_updated_at, retry_count, last_error, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(external_id) DO UPDATE SET
				name = excluded.name, domain = excluded.domain, phone = excluded.phone,
				city = excluded.city, state = excluded.state, industry = excluded.industry,
				properties = excluded.properties,
				source_created_at = excluded.source_created_at,
				source_updated_at = excluded.source_updated_at,
				updated_at = CURRENT_TIMESTAMP
		`, c.ExternalID, c.Name, c.Domain, c.Phone, c.City, c.State, c.Industry, props,
			nullTime(c.SourceCreatedAt), nullTime(c.SourceUpdatedAt), c.RetryCount, nullString(c.LastError))
		if err != nil {
			return coreerr.Wrap(coreerr.Io, "upsert company in batch", err)
		}
	default:
		return coreerr.New(coreerr.InvariantViolation, "unknown record kind")
	}
	return nil
}

// Get looks up a single record by external id. Returns a NotFound CoreError
// if absent.
func (s *Store) Get(kind Kind, externalID string) (Record, error) {
	switch kind {
	case KindContact:
		row := s.db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE external_id = ?`, externalID)
		c, err := scanContact(row)
		if err == sql.ErrNoRows {
			return Record{}, coreerr.New(coreerr.NotFound, fmt.Sprintf("contact %s not found", externalID))
		}
		if err != nil {
			return Record{}, coreerr.Wrap(coreerr.Io, "get contact", err)
		}
		return Record{Kind: KindContact, Contact: c}, nil
	case KindCompany:
		row := s.db.QueryRow(`SELECT `+companyColumns+` FROM companies WHERE external_id = ?`, externalID)
		c, err := scanCompany(row)
		if err == sql.ErrNoRows {
			return Record{}, coreerr.New(coreerr.NotFound, fmt.Sprintf("company %s not found", externalID))
		}
		if err != nil {
			return Record{}, coreerr.Wrap(coreerr.Io, "get company", err)
		}
		return Record{Kind: KindCompany, Company: c}, nil
	}
	return Record{}, coreerr.New(coreerr.InvariantViolation, "unknown record kind")
}

// GetMany performs a bulk lookup, returning only the records found. Absent
// ids are silently skipped (callers needing strict presence should check
// len(result) against len(externalIDs)).
func (s *Store) GetMany(kind Kind, externalIDs []string) ([]Record, error) {
	if len(externalIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(externalIDs))
	args := make([]any, len(externalIDs))
	for i, id := range externalIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	table := tableFor(kind)
	cols := contactColumns
	if kind == KindCompany {
		cols = companyColumns
	}

	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM %s WHERE external_id IN (%s)`, cols, table, in), args...)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "bulk lookup", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		if kind == KindContact {
			c, err := scanContact(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan contact row", err)
			}
			out = append(out, Record{Kind: KindContact, Contact: c})
		} else {
			c, err := scanCompany(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan company row", err)
			}
			out = append(out, Record{Kind: KindCompany, Company: c})
		}
	}
	return out, rows.Err()
}

// Count returns the total number of records of the given kind.
func (s *Store) Count(kind Kind) (int, error) {
	var n int
	err := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tableFor(kind))).Scan(&n)
	if err != nil {
		return 0, coreerr.Wrap(coreerr.Io, "count records", err)
	}
	return n, nil
}

// List returns records of a kind sorted by updated_at descending (nulls
// last), honoring limit/offset for pagination.
func (s *Store) List(kind Kind, limit, offset int) ([]Record, error) {
	table := tableFor(kind)
	cols := contactColumns
	if kind == KindCompany {
		cols = companyColumns
	}

	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY updated_at IS NULL, updated_at DESC LIMIT ? OFFSET ?`, cols, table)
	rows, err := s.db.Query(query, limit, offset)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "list records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		if kind == KindContact {
			c, err := scanContact(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan contact row", err)
			}
			out = append(out, Record{Kind: KindContact, Contact: c})
		} else {
			c, err := scanCompany(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan company row", err)
			}
			out = append(out, Record{Kind: KindCompany, Company: c})
		}
	}
	return out, rows.Err()
}

// All returns every record of a kind; used by ExactMatcher and BlockingIndex
// which need the whole working set in memory for a single analysis run.
func (s *Store) All(kind Kind) ([]Record, error) {
	table := tableFor(kind)
	cols := contactColumns
	if kind == KindCompany {
		cols = companyColumns
	}
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s FROM %s`, cols, table))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "load all records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		if kind == KindContact {
			c, err := scanContact(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan contact row", err)
			}
			out = append(out, Record{Kind: KindContact, Contact: c})
		} else {
			c, err := scanCompany(rows)
			if err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "scan company row", err)
			}
			out = append(out, Record{Kind: KindCompany, Company: c})
		}
	}
	return out, rows.Err()
}

// Delete removes a single record by external id. Used by MergeExecutor to
// drop absorbed records after a successful merge.
func (s *Store) Delete(kind Kind, externalID string) error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE external_id = ?`, tableFor(kind)), externalID)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "delete record", err)
	}
	return nil
}

// DeleteInTx removes a record as part of a caller-managed transaction
// (MergeExecutor commits the status flip and deletions atomically).
func (s *Store) DeleteInTx(tx *sql.Tx, kind Kind, externalID string) error {
	_, err := tx.Exec(fmt.Sprintf(`DELETE FROM %s WHERE external_id = ?`, tableFor(kind)), externalID)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "delete record in tx", err)
	}
	return nil
}

// Begin exposes the underlying DB's transaction starter so callers that
// need cross-package transactional writes (GroupStore, MergeExecutor) can
// compose with this store inside the same transaction.
func (s *Store) Begin() (*sql.Tx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "begin transaction", err)
	}
	return tx, nil
}

const contactColumns = `external_id, first_name, last_name, email, phone, company, domain,
	city, state, industry, job_title, properties,
	source_created_at, source_updated_at, retry_count, last_error, created_at, updated_at`

const companyColumns = `external_id, name, domain, phone, city, state, industry, properties,
	source_created_at, source_updated_at, retry_count, last_error, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var c Contact
	var props, lastError sql.NullString
	var sourceCreated, sourceUpdated sql.NullTime

	err := row.Scan(&c.ExternalID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.Domain,
		&c.City, &c.State, &c.Industry, &c.JobTitle, &props,
		&sourceCreated, &sourceUpdated, &c.RetryCount, &lastError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.LastError = lastError.String
	if sourceCreated.Valid {
		t := sourceCreated.Time
		c.SourceCreatedAt = &t
	}
	if sourceUpdated.Valid {
		t := sourceUpdated.Time
		c.SourceUpdatedAt = &t
	}
	c.Properties, err = unmarshalProperties(props.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCompany(row scanner) (*Company, error) {
	var c Company
	var props, lastError sql.NullString
	var sourceCreated, sourceUpdated sql.NullTime

	err := row.Scan(&c.ExternalID, &c.Name, &c.Domain, &c.Phone, &c.City, &c.State, &c.Industry, &props,
		&sourceCreated, &sourceUpdated, &c.RetryCount, &lastError, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}

	c.LastError = lastError.String
	if sourceCreated.Valid {
		t := sourceCreated.Time
		c.SourceCreatedAt = &t
	}
	if sourceUpdated.Valid {
		t := sourceUpdated.Time
		c.SourceUpdatedAt = &t
	}
	c.Properties, err = unmarshalProperties(props.String)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func marshalProperties(props map[string]string) (sql.NullString, error) {
	if len(props) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalProperties(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
