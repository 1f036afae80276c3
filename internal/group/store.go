package group

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// Store persists duplicate groups, their potential matches, and merge
// history, and enforces the group status state machine at the API level.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new group store.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, log: logging.WithComponent("group-store")}
}

// CreateGroup persists one consolidated group atomically: one
// duplicate_groups row plus one potential_matches row per member, in a
// single transaction. Exactly one member must have IsPrimary
// set; it becomes golden_external_id.
func (s *Store) CreateGroup(kind record.Kind, confidence string, members []MemberMatch) (string, error) {
	if len(members) < 2 {
		return "", coreerr.New(coreerr.InvariantViolation, "a group requires at least two members")
	}

	var golden string
	primaryCount := 0
	for _, m := range members {
		if m.IsPrimary {
			primaryCount++
			golden = m.ExternalID
		}
	}
	if primaryCount != 1 {
		return "", coreerr.New(coreerr.InvariantViolation, fmt.Sprintf("exactly one member must be primary, got %d", primaryCount))
	}

	groupID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", coreerr.Wrap(coreerr.Io, "begin create group", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO duplicate_groups (group_id, kind, confidence, golden_external_id, status)
		VALUES (?, ?, ?, ?, ?)
	`, groupID, string(kind), confidence, golden, string(StatusPending))
	if err != nil {
		return "", coreerr.Wrap(coreerr.Io, "insert duplicate_group", err)
	}

	for _, m := range members {
		mf, err := m.MatchedFields.Serialize()
		if err != nil {
			return "", coreerr.Wrap(coreerr.Io, "serialize matched_fields", err)
		}
		isPrimary := 0
		if m.IsPrimary {
			isPrimary = 1
		}
		_, err = tx.Exec(`
			INSERT INTO potential_matches (group_id, record_external_id, match_score, matched_fields, is_primary)
			VALUES (?, ?, ?, ?, ?)
		`, groupID, m.ExternalID, m.MatchScore, mf, isPrimary)
		if err != nil {
			return "", coreerr.Wrap(coreerr.Io, "insert potential_match", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", coreerr.Wrap(coreerr.Io, "commit create group", err)
	}

	s.log.Debug().Str("groupID", groupID).Str("kind", string(kind)).Int("members", len(members)).Msg("created duplicate group")
	return groupID, nil
}

// ClearPending deletes all pending groups for kind; potential_matches rows
// cascade-delete with them.
func (s *Store) ClearPending(kind record.Kind) error {
	_, err := s.db.Exec(`DELETE FROM duplicate_groups WHERE kind = ? AND status = ?`, string(kind), string(StatusPending))
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "clear pending groups", err)
	}
	return nil
}

// Get loads a group and its potential matches. Returns NotFound if absent.
func (s *Store) Get(groupID string) (*DuplicateGroup, []PotentialMatch, error) {
	row := s.db.QueryRow(`
		SELECT group_id, kind, confidence, golden_external_id, status, merge_strategy, created_at, merged_at
		FROM duplicate_groups WHERE group_id = ?
	`, groupID)

	g, err := scanGroup(row)
	if err == sql.ErrNoRows {
		return nil, nil, coreerr.New(coreerr.NotFound, fmt.Sprintf("group %s not found", groupID))
	}
	if err != nil {
		return nil, nil, coreerr.Wrap(coreerr.Io, "get group", err)
	}

	matches, err := s.matchesForGroup(groupID)
	if err != nil {
		return nil, nil, err
	}
	return g, matches, nil
}

func (s *Store) matchesForGroup(groupID string) ([]PotentialMatch, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, record_external_id, match_score, matched_fields, is_primary
		FROM potential_matches WHERE group_id = ?
	`, groupID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "list potential matches", err)
	}
	defer rows.Close()

	var out []PotentialMatch
	for rows.Next() {
		var m PotentialMatch
		var mfRaw string
		var isPrimary int
		if err := rows.Scan(&m.ID, &m.GroupID, &m.RecordExternalID, &m.MatchScore, &mfRaw, &isPrimary); err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "scan potential match", err)
		}
		mf, err := ParseMatchedFields(mfRaw)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "parse matched_fields", err)
		}
		m.MatchedFields = mf
		m.IsPrimary = isPrimary != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// List returns groups of a kind, optionally filtered by status.
func (s *Store) List(kind record.Kind, status string) ([]DuplicateGroup, error) {
	query := `SELECT group_id, kind, confidence, golden_external_id, status, merge_strategy, created_at, merged_at
		FROM duplicate_groups WHERE kind = ?`
	args := []any{string(kind)}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "list groups", err)
	}
	defer rows.Close()

	var out []DuplicateGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "scan group", err)
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

// StatusCounts returns the number of groups per status for a kind.
func (s *Store) StatusCounts(kind record.Kind) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM duplicate_groups WHERE kind = ? GROUP BY status`, string(kind))
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "count groups by status", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "scan status count", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// allowedTransitions encodes the group status state machine:
// pending -review-> reviewed -merge_ok-> merged; pending|reviewed -dismiss-> dismissed;
// pending -merge_ok-> merged. merged and dismissed are terminal.
var allowedTransitions = map[Status]map[Status]bool{
	StatusPending:  {StatusReviewed: true, StatusDismissed: true, StatusMerged: true},
	StatusReviewed: {StatusMerged: true, StatusDismissed: true},
}

// UpdateStatus transitions a group's status, optionally recording a golden
// selection override (update_group_status in the CLI/RPC surface). Setting
// status to "merged" through this path is rejected — only MergeExecutor may
// write merged, via SetMergedInTx within its own transaction.
func (s *Store) UpdateStatus(groupID string, newStatus Status, golden string) error {
	if newStatus == StatusMerged {
		return coreerr.New(coreerr.InvariantViolation, "status=merged may only be set by the merge executor")
	}

	g, _, err := s.Get(groupID)
	if err != nil {
		return err
	}

	if !allowedTransitions[g.Status][newStatus] {
		return coreerr.New(coreerr.Conflict, fmt.Sprintf("cannot transition group %s from %s to %s", groupID, g.Status, newStatus))
	}

	if golden != "" {
		_, err = s.db.Exec(`UPDATE duplicate_groups SET status = ?, golden_external_id = ? WHERE group_id = ?`, string(newStatus), golden, groupID)
	} else {
		_, err = s.db.Exec(`UPDATE duplicate_groups SET status = ? WHERE group_id = ?`, string(newStatus), groupID)
	}
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "update group status", err)
	}
	return nil
}

// PrimaryOfOtherPending reports whether externalID is the primary
// (is_primary = 1) of a pending group of the same kind other than
// excludeGroupID. MergeExecutor checks this before committing so a record
// never survives as the golden of one group while still slated as the
// primary of another live group.
func (s *Store) PrimaryOfOtherPending(kind record.Kind, externalID, excludeGroupID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*)
		FROM potential_matches pm
		JOIN duplicate_groups dg ON dg.group_id = pm.group_id
		WHERE pm.record_external_id = ? AND pm.is_primary = 1
		  AND dg.kind = ? AND dg.status = ? AND dg.group_id != ?
	`, externalID, string(kind), string(StatusPending), excludeGroupID).Scan(&n)
	if err != nil {
		return false, coreerr.Wrap(coreerr.Io, "check primary of other pending groups", err)
	}
	return n > 0, nil
}

// SetMergedInTx flips a group to merged, sets golden_external_id, and
// appends a MergeHistory row, all within a transaction the caller
// (MergeExecutor) controls and commits alongside its own record deletions.
func (s *Store) SetMergedInTx(tx *sql.Tx, g *DuplicateGroup, primary string, absorbed []string, strategy string, metadata map[string]any) error {
	if g.Status == StatusMerged || g.Status == StatusDismissed {
		return coreerr.New(coreerr.Conflict, fmt.Sprintf("group %s is already in terminal state %s", g.GroupID, g.Status))
	}

	_, err := tx.Exec(`
		UPDATE duplicate_groups SET status = ?, golden_external_id = ?, merge_strategy = ?, merged_at = CURRENT_TIMESTAMP
		WHERE group_id = ?
	`, string(StatusMerged), primary, strategy, g.GroupID)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "mark group merged", err)
	}

	absorbedJSON, err := json.Marshal(absorbed)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "marshal absorbed ids", err)
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "marshal merge metadata", err)
	}

	_, err = tx.Exec(`
		INSERT INTO merge_history (group_id, primary_external_id, absorbed_external_ids, kind, merge_strategy, metadata, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`, g.GroupID, primary, string(absorbedJSON), string(g.Kind), strategy, string(metaJSON))
	if err != nil {
		return coreerr.Wrap(coreerr.Io, "insert merge history", err)
	}

	return nil
}

// MergeHistoryFor returns merge history rows for a group, newest first.
func (s *Store) MergeHistoryFor(groupID string) ([]MergeHistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, group_id, primary_external_id, absorbed_external_ids, kind, merge_strategy, metadata, merged_at
		FROM merge_history WHERE group_id = ? ORDER BY merged_at DESC
	`, groupID)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.Io, "list merge history", err)
	}
	defer rows.Close()

	var out []MergeHistoryEntry
	for rows.Next() {
		var e MergeHistoryEntry
		var absorbedRaw, kindRaw, strategy, metadata sql.NullString
		if err := rows.Scan(&e.ID, &e.GroupID, &e.PrimaryExternalID, &absorbedRaw, &kindRaw, &strategy, &metadata, &e.MergedAt); err != nil {
			return nil, coreerr.Wrap(coreerr.Io, "scan merge history", err)
		}
		e.Kind = record.Kind(kindRaw.String)
		e.MergeStrategy = strategy.String
		e.Metadata = metadata.String
		if absorbedRaw.Valid {
			var ids []string
			if err := json.Unmarshal([]byte(absorbedRaw.String), &ids); err != nil {
				return nil, coreerr.Wrap(coreerr.Io, "parse absorbed ids", err)
			}
			e.AbsorbedExternalIDs = ids
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsRecordMerged reports whether externalID appears as an exactly-matched
// absorbed id in any merge_history row of groupID. Compares decoded ids exactly —
// never a substring match against the serialized list.
func (s *Store) IsRecordMerged(groupID, externalID string) (bool, error) {
	history, err := s.MergeHistoryFor(groupID)
	if err != nil {
		return false, err
	}
	for _, h := range history {
		for _, id := range h.AbsorbedExternalIDs {
			if id == externalID {
				return true, nil
			}
		}
	}
	return false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*DuplicateGroup, error) {
	var g DuplicateGroup
	var kindRaw, statusRaw string
	var golden, strategy sql.NullString
	var mergedAt sql.NullTime

	err := row.Scan(&g.GroupID, &kindRaw, &g.Confidence, &golden, &statusRaw, &strategy, &g.CreatedAt, &mergedAt)
	if err != nil {
		return nil, err
	}

	g.Kind = record.Kind(kindRaw)
	g.Status = Status(statusRaw)
	g.GoldenExternalID = golden.String
	g.MergeStrategy = strategy.String
	if mergedAt.Valid {
		t := mergedAt.Time
		g.MergedAt = &t
	}
	return &g, nil
}
