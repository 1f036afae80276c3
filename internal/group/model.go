// Package group implements the GroupStore component: persisting
// duplicate_group + potential_match + merge_history rows and their status
// transitions.
package group

import (
	"encoding/json"
	"time"

	"github.com/kestrelcrm/dedupd/internal/record"
)

// Status values for duplicate_groups.status, forming a small state machine.
// Only StatusMerged and StatusDismissed are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusReviewed  Status = "reviewed"
	StatusMerged    Status = "merged"
	StatusDismissed Status = "dismissed"
)

// FieldScoreEntry is one field's contribution, part of the structured
// matched_fields descriptor.
type FieldScoreEntry struct {
	Field string `json:"field"`
	Score int    `json:"score"`
}

// MatchedFields is the structured descriptor serialized into
// potential_matches.matched_fields. Legacy data may be a bare array of
// field names; ParseMatchedFields accepts both.
type MatchedFields struct {
	Fields []string          `json:"fields"`
	Scores []FieldScoreEntry `json:"scores"`
}

// Serialize renders the structured object form.
func (m MatchedFields) Serialize() (string, error) {
	if m.Fields == nil {
		m.Fields = []string{}
	}
	if m.Scores == nil {
		m.Scores = []FieldScoreEntry{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseMatchedFields decodes either the current object form
// ({"fields":[...],"scores":[...]}) or the legacy bare-array form
// ([...]) into an equivalent MatchedFields value.
func ParseMatchedFields(s string) (MatchedFields, error) {
	if s == "" {
		return MatchedFields{}, nil
	}

	var obj MatchedFields
	if err := json.Unmarshal([]byte(s), &obj); err == nil && (len(obj.Fields) > 0 || len(obj.Scores) > 0 || s == "{}") {
		return obj, nil
	}

	var legacy []string
	if err := json.Unmarshal([]byte(s), &legacy); err == nil {
		return MatchedFields{Fields: legacy}, nil
	}

	return MatchedFields{}, nil
}

// PotentialMatch is one edge from a group to a member record.
type PotentialMatch struct {
	ID               int64
	GroupID          string
	RecordExternalID string
	MatchScore       float64 // persisted unit is always [0, 1], never the in-memory [0, 100] scale
	MatchedFields    MatchedFields
	IsPrimary        bool
}

// DuplicateGroup is a confirmed candidate cluster of >= 2 records.
type DuplicateGroup struct {
	GroupID          string
	Kind             record.Kind
	Confidence       string
	GoldenExternalID string
	Status           Status
	MergeStrategy    string
	CreatedAt        time.Time
	MergedAt         *time.Time
}

// MergeHistoryEntry is an immutable audit record of a completed merge.
type MergeHistoryEntry struct {
	ID                  int64
	GroupID             string
	PrimaryExternalID   string
	AbsorbedExternalIDs []string
	Kind                record.Kind
	MergeStrategy       string
	Metadata            string
	MergedAt            time.Time
}

// MemberMatch is the input shape for creating a group: one member record's
// score and matched fields, already resolved to the golden selection by the
// caller (DedupEngine).
type MemberMatch struct {
	ExternalID    string
	MatchScore    float64 // [0, 1]
	MatchedFields MatchedFields
	IsPrimary     bool
}
