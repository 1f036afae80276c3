// Package golden implements the GoldenSelector component: picking a
// duplicate group's survivor record, and mapping a match to a
// confidence tier.
package golden

import (
	"sort"

	"github.com/kestrelcrm/dedupd/internal/record"
)

// Confidence mirrors the duplicate_groups.confidence column values.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Select returns the external id of the golden record within members: the
// oldest non-null created_at, tie-broken by lowest lexicographic external
// id; if every created_at is null, selection is by external id alone.
func Select(members []record.Record) string {
	if len(members) == 0 {
		return ""
	}

	sorted := append([]record.Record(nil), members...)
	sort.Slice(sorted, func(i, j int) bool {
		ai, aj := sorted[i].SourceCreatedAt(), sorted[j].SourceCreatedAt()
		switch {
		case ai != nil && aj != nil:
			if !ai.Equal(*aj) {
				return ai.Before(*aj)
			}
		case ai != nil && aj == nil:
			return true
		case ai == nil && aj != nil:
			return false
		}
		return sorted[i].ExternalID() < sorted[j].ExternalID()
	})

	return sorted[0].ExternalID()
}

// ConfidenceForExactMatch is the confidence tier for ExactMatcher groups:
// always high (score is definitionally 1.0).
func ConfidenceForExactMatch() Confidence {
	return ConfidenceHigh
}

// ConfidenceForScore maps a fuzzy match's composite score (0..100) to a
// confidence tier: >= 95 high, >= 85 medium, else low.
func ConfidenceForScore(score int) Confidence {
	switch {
	case score >= 95:
		return ConfidenceHigh
	case score >= 85:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// CompletenessScore is an alternative, non-authoritative scorer for the
// UI's "recommended" hint only: it rewards presence of key business
// fields and the size of the properties blob. It must never be
// used to decide persisted golden_external_id — only Select is authoritative.
func CompletenessScore(r record.Record) int {
	score := 0
	switch r.Kind {
	case record.KindContact:
		for _, f := range []string{"email", "phone", "first_name", "last_name", "company", "job_title"} {
			if r.Field(f) != "" {
				score += 10
			}
		}
	case record.KindCompany:
		for _, f := range []string{"name", "domain", "phone", "city", "state", "industry"} {
			if r.Field(f) != "" {
				score += 10
			}
		}
	}
	score += len(r.Properties())
	return score
}

// RecommendByCompleteness returns the external id with the highest
// CompletenessScore, for UI display purposes only.
func RecommendByCompleteness(members []record.Record) string {
	if len(members) == 0 {
		return ""
	}
	best := members[0]
	bestScore := CompletenessScore(best)
	for _, r := range members[1:] {
		if s := CompletenessScore(r); s > bestScore {
			best, bestScore = r, s
		}
	}
	return best.ExternalID()
}
