// Package backup writes and prunes the merge-preview backup files
// MergeExecutor produces before mutating a group.
package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/coreerr"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// Metadata carries the confidence/score/matched-field context for the file.
type Metadata struct {
	Confidence    string   `json:"confidence"`
	MatchScore    float64  `json:"matchScore"`
	MatchedFields []string `json:"matchedFields"`
}

// file is the serialized backup document.
type file struct {
	Timestamp       string           `json:"timestamp"`
	GroupID         string           `json:"groupId"`
	ObjectType      string           `json:"objectType"`
	PrimaryRecordID string           `json:"primaryRecordId"`
	Records         []map[string]any `json:"records"`
	Metadata        Metadata         `json:"metadata"`
}

// Writer writes and prunes backup files under a configured directory.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a backup writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, log: logging.WithComponent("backup-writer")}
}

// Write serializes group to a JSON file and returns its path. now is passed
// in by the caller and fixes both the document timestamp and the file name,
// so tests can supply a constant time.
func (w *Writer) Write(now time.Time, groupID string, kind record.Kind, primaryID string, members []record.Record, meta Metadata) (string, error) {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return "", coreerr.Wrap(coreerr.Io, "create backup directory", err)
	}

	doc := file{
		Timestamp:       now.UTC().Format(time.RFC3339),
		GroupID:         groupID,
		ObjectType:      string(kind),
		PrimaryRecordID: primaryID,
		Metadata:        meta,
	}
	for _, m := range members {
		rec := recordToMap(m)
		if rec != nil {
			doc.Records = append(doc.Records, rec)
		}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", coreerr.Wrap(coreerr.Io, "marshal backup document", err)
	}

	name := fileName(kind, groupID, now)
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, b, 0600); err != nil {
		return "", coreerr.Wrap(coreerr.Io, "write backup file", err)
	}

	w.log.Info().Str("path", path).Str("groupID", groupID).Msg("wrote merge backup")
	return path, nil
}

// fileName builds merge_backup_<kind>_<group_id>_<ts>.json with the
// timestamp's ':' and '.' replaced by '-'.
func fileName(kind record.Kind, groupID string, now time.Time) string {
	ts := now.UTC().Format(time.RFC3339Nano)
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return fmt.Sprintf("merge_backup_%s_%s_%s.json", kind, groupID, ts)
}

func recordToMap(r record.Record) map[string]any {
	switch r.Kind {
	case record.KindContact:
		c := r.Contact
		if c == nil {
			return nil
		}
		return map[string]any{
			"externalId": c.ExternalID,
			"firstName":  c.FirstName,
			"lastName":   c.LastName,
			"email":      c.Email,
			"phone":      c.Phone,
			"company":    c.Company,
			"domain":     c.Domain,
			"city":       c.City,
			"state":      c.State,
			"industry":   c.Industry,
			"jobTitle":   c.JobTitle,
			"properties": c.Properties,
		}
	case record.KindCompany:
		c := r.Company
		if c == nil {
			return nil
		}
		return map[string]any{
			"externalId": c.ExternalID,
			"name":       c.Name,
			"domain":     c.Domain,
			"phone":      c.Phone,
			"city":       c.City,
			"state":      c.State,
			"industry":   c.Industry,
			"properties": c.Properties,
		}
	}
	return nil
}

// Prune removes backup files older than retentionDays, relative to now.
// retentionDays <= 0 disables pruning.
func (w *Writer) Prune(now time.Time, retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, coreerr.Wrap(coreerr.Io, "read backup directory", err)
	}

	cutoff := now.Add(-time.Duration(retentionDays) * 24 * time.Hour)
	var candidates []os.DirEntry
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "merge_backup_") {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name() < candidates[j].Name() })

	removed := 0
	for _, e := range candidates {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(w.dir, e.Name())
			if err := os.Remove(path); err != nil {
				return removed, coreerr.Wrap(coreerr.Io, "remove expired backup", err)
			}
			removed++
		}
	}

	w.log.Debug().Int("removed", removed).Int("retentionDays", retentionDays).Msg("pruned expired backups")
	return removed, nil
}
