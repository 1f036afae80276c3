// Package scoring implements the PairScorer component: a weighted,
// per-field string similarity composite score with a per-field
// breakdown, backed by github.com/texttheater/golang-levenshtein/levenshtein.
package scoring

import (
	"sort"

	"github.com/texttheater/golang-levenshtein/levenshtein"

	"github.com/kestrelcrm/dedupd/internal/normalize"
	"github.com/kestrelcrm/dedupd/internal/record"
)

// matchedThreshold is the per-field raw sub-score above which a field is
// reported as "matched" in the breakdown.
const matchedThreshold = 70

// FieldScore is one field's contribution to a pair's composite score.
type FieldScore struct {
	Field string
	Score int // 0..100
}

// Result is a pair's composite score and per-field breakdown.
type Result struct {
	Composite     int // 0..100
	FieldScores   []FieldScore
	MatchedFields []string
}

// RawStringScore returns a 0..100 similarity ratio derived from Levenshtein
// edit distance. Equal strings (including two empty strings) score 100.
func RawStringScore(a, b string) int {
	if a == b {
		return 100
	}
	ar, br := []rune(a), []rune(b)
	maxLen := len(ar)
	if len(br) > maxLen {
		maxLen = len(br)
	}
	if maxLen == 0 {
		return 100
	}
	distance := levenshtein.DistanceForStrings(ar, br, levenshtein.DefaultOptions)
	score := 100 - (distance*100)/maxLen
	if score < 0 {
		score = 0
	}
	return score
}

// Score computes the composite weighted similarity between two records of
// the same kind. Pairs of different kinds are not meaningful and return a
// zero Result.
func Score(a, b record.Record) Result {
	if a.Kind != b.Kind {
		return Result{}
	}

	weights := record.FieldWeights(a.Kind)
	fields := make([]string, 0, len(weights))
	for f := range weights {
		fields = append(fields, f)
	}
	sort.Strings(fields) // deterministic iteration for the breakdown order

	var weightedSum, weightTotal float64
	var fieldScores []FieldScore
	var matched []string

	for _, field := range fields {
		va := normalizedField(a, field)
		vb := normalizedField(b, field)
		if va == "" || vb == "" {
			continue // field omitted from the sum if either side is empty
		}

		raw := RawStringScore(va, vb)
		weight := weights[field]
		weightedSum += float64(raw) * weight
		weightTotal += weight

		fieldScores = append(fieldScores, FieldScore{Field: field, Score: raw})
		if raw > matchedThreshold {
			matched = append(matched, field)
		}
	}

	composite := 0
	if weightTotal > 0 {
		composite = int(weightedSum/weightTotal + 0.5) // round to nearest integer
	}

	return Result{Composite: composite, FieldScores: fieldScores, MatchedFields: matched}
}

// normalizedField returns the comparison-ready value for a named field,
// running it through the same normalizer the rest of the core uses so
// scoring is consistent with exact matching and blocking.
func normalizedField(r record.Record, field string) string {
	raw := r.Field(field)
	switch field {
	case "email":
		return normalize.Email(raw)
	case "domain":
		return normalize.Domain(raw)
	case "phone":
		p := normalize.NormalizePhone(raw)
		return p.Full
	default:
		return normalize.String(raw)
	}
}
