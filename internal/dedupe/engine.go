// Package dedupe implements the DedupEngine component: orchestrating
// ExactMatcher and the BlockingIndex/PairScorer/GroupMerger fuzzy
// pipeline, persisting results via the group store, and reporting
// progress. The periodic-trigger Scheduler adapts a background
// goroutine/ticker/cancel pattern for scheduled re-analysis.
package dedupe

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/kestrelcrm/dedupd/internal/blocking"
	"github.com/kestrelcrm/dedupd/internal/consolidate"
	"github.com/kestrelcrm/dedupd/internal/exactmatch"
	"github.com/kestrelcrm/dedupd/internal/golden"
	"github.com/kestrelcrm/dedupd/internal/group"
	"github.com/kestrelcrm/dedupd/internal/logging"
	"github.com/kestrelcrm/dedupd/internal/record"
	"github.com/kestrelcrm/dedupd/internal/scoring"
)

// yieldEvery bounds how many blocking buckets are scored between progress
// callbacks: at least once per 10 buckets.
const yieldEvery = 10

// ProgressStage names a phase reported to a ProgressSink.
type ProgressStage string

const (
	StageExactMatch ProgressStage = "exact_match"
	StageFuzzyMatch ProgressStage = "fuzzy_match"
)

// ProgressSink receives (stage, current, total) updates. Implementations
// must tolerate being called from the analysis goroutine itself.
type ProgressSink func(stage ProgressStage, current, total int)

// Request configures one Run.
type Request struct {
	Kind          record.Kind
	RunExact      bool
	RunFuzzy      bool
	MinScore      int // 0..100, fuzzy composite threshold
	ClearExisting bool
	UnkeyedCap    int // bounds the "unkeyed" blocking bucket; 0 disables the cap
	Progress      ProgressSink
}

// ConfidenceBreakdown counts groups created in this run by confidence tier.
type ConfidenceBreakdown struct {
	High   int
	Medium int
	Low    int
}

// Summary reports the outcome of one Run.
type Summary struct {
	Kind              record.Kind
	RecordsConsidered int
	ExactGroups       int
	FuzzyGroups       int
	TotalGroups       int
	Confidence        ConfidenceBreakdown
	// StatusCounts is the post-run count of this kind's groups per status,
	// including groups untouched by this run (reviewed/merged/dismissed).
	StatusCounts map[string]int
	Elapsed      time.Duration
	Cancelled    bool
}

// Engine orchestrates the dedup pipeline against a record store and group
// store.
type Engine struct {
	records *record.Store
	groups  *group.Store
	log     zerolog.Logger
}

// New creates a dedup engine over the given stores.
func New(records *record.Store, groups *group.Store) *Engine {
	return &Engine{records: records, groups: groups, log: logging.WithComponent("dedupe-engine")}
}

// Run executes one analysis pass per req, persisting groups as it goes and
// reporting progress through req.Progress. ctx cancellation is honored
// between fuzzy-matching buckets: the engine finishes the current bucket,
// then returns a partial summary with Cancelled set.
func (e *Engine) Run(ctx context.Context, req Request) (Summary, error) {
	start := time.Now()
	summary := Summary{Kind: req.Kind}

	if req.ClearExisting {
		if err := e.groups.ClearPending(req.Kind); err != nil {
			return summary, err
		}
	}

	records, err := e.records.All(req.Kind)
	if err != nil {
		return summary, err
	}
	summary.RecordsConsidered = len(records)

	var pairs []consolidate.ScoredPair

	if req.RunExact {
		pairs = append(pairs, exactPairs(records, req.Kind)...)
	}
	e.reportProgress(req.Progress, StageExactMatch, 1, 1)

	cancelled := false
	if req.RunFuzzy {
		fuzzy, c, err := e.scoreFuzzyPairs(ctx, records, req)
		if err != nil {
			return summary, err
		}
		pairs = append(pairs, fuzzy...)
		cancelled = c
	}
	summary.Cancelled = cancelled

	byID := make(map[string]record.Record, len(records))
	for _, r := range records {
		byID[r.ExternalID()] = r
	}

	groups := consolidate.Consolidate(req.Kind, pairs)
	for _, g := range groups {
		created, err := e.persistGroup(req.Kind, g, byID, &summary.Confidence)
		if err != nil {
			return summary, err
		}
		if created {
			if g.AllExact {
				summary.ExactGroups++
			} else {
				summary.FuzzyGroups++
			}
		}
	}

	summary.TotalGroups = summary.ExactGroups + summary.FuzzyGroups
	summary.StatusCounts, err = e.groups.StatusCounts(req.Kind)
	if err != nil {
		return summary, err
	}
	summary.Elapsed = time.Since(start)
	e.log.Info().
		Str("kind", string(req.Kind)).
		Int("exactGroups", summary.ExactGroups).
		Int("fuzzyGroups", summary.FuzzyGroups).
		Dur("elapsed", summary.Elapsed).
		Bool("cancelled", summary.Cancelled).
		Msg("dedup run complete")

	return summary, nil
}

// exactPairs materializes every ExactMatcher identity-key group as a
// complete set of score-100 pairwise edges among its members, so the
// unified union-find pass in consolidate.Consolidate can merge exact and
// fuzzy membership in one run.
func exactPairs(records []record.Record, kind record.Kind) []consolidate.ScoredPair {
	var pairs []consolidate.ScoredPair
	for _, g := range exactmatch.FindGroups(records, kind) {
		for i := 0; i < len(g.Members); i++ {
			for j := i + 1; j < len(g.Members); j++ {
				pairs = append(pairs, consolidate.ScoredPair{
					A:             g.Members[i].ExternalID(),
					B:             g.Members[j].ExternalID(),
					Score:         100,
					MatchedFields: []string{string(g.KeyField)},
					FieldScores:   map[string]int{string(g.KeyField): 100},
					Exact:         true,
				})
			}
		}
	}
	return pairs
}

// persistGroup writes one consolidated group via the group store, selecting
// the golden record and confidence tier. created is false only when g has
// fewer than two known members (defensive; Consolidate never returns those).
func (e *Engine) persistGroup(kind record.Kind, g consolidate.Group, byID map[string]record.Record, breakdown *ConfidenceBreakdown) (bool, error) {
	memberRecords := make([]record.Record, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		if r, ok := byID[id]; ok {
			memberRecords = append(memberRecords, r)
		}
	}
	if len(memberRecords) < 2 {
		return false, nil
	}
	goldenID := golden.Select(memberRecords)

	var confidence golden.Confidence
	var persistedScore float64
	if g.AllExact {
		confidence = golden.ConfidenceForExactMatch()
		persistedScore = 1.0
	} else {
		confidence = golden.ConfidenceForScore(g.MatchScore)
		persistedScore = float64(g.MatchScore) / 100.0 // convert [0,100] to persisted [0,1]
	}

	matchedFields := group.MatchedFields{Fields: g.MatchedFields}
	scoredFields := make([]string, 0, len(g.FieldScores))
	for f := range g.FieldScores {
		scoredFields = append(scoredFields, f)
	}
	sort.Strings(scoredFields)
	for _, f := range scoredFields {
		matchedFields.Scores = append(matchedFields.Scores, group.FieldScoreEntry{Field: f, Score: g.FieldScores[f]})
	}

	members := make([]group.MemberMatch, 0, len(g.MemberIDs))
	for _, id := range g.MemberIDs {
		members = append(members, group.MemberMatch{
			ExternalID:    id,
			MatchScore:    persistedScore,
			MatchedFields: matchedFields,
			IsPrimary:     id == goldenID,
		})
	}

	if _, err := e.groups.CreateGroup(kind, string(confidence), members); err != nil {
		return false, err
	}

	switch confidence {
	case golden.ConfidenceHigh:
		breakdown.High++
	case golden.ConfidenceMedium:
		breakdown.Medium++
	default:
		breakdown.Low++
	}
	return true, nil
}

// scoreFuzzyPairs runs BlockingIndex + PairScorer over every bucket,
// yielding progress periodically and honoring cooperative cancellation
// between buckets.
func (e *Engine) scoreFuzzyPairs(ctx context.Context, records []record.Record, req Request) ([]consolidate.ScoredPair, bool, error) {
	buckets := blocking.Build(records)

	bucketTags := make([]string, 0, len(buckets))
	for tag := range buckets {
		bucketTags = append(bucketTags, tag)
	}
	sort.Strings(bucketTags) // deterministic scoring order, independent of map iteration

	var scored []consolidate.ScoredPair
	seen := map[[2]string]bool{}
	totalBuckets := len(bucketTags)
	done := 0
	cancelled := false

	for _, tag := range bucketTags {
		done++

		for _, pair := range blocking.CandidatePairs(blocking.Buckets{tag: buckets[tag]}, req.UnkeyedCap) {
			key := pairKey(pair.A.ExternalID(), pair.B.ExternalID())
			if seen[key] {
				continue
			}
			seen[key] = true

			result := scoring.Score(pair.A, pair.B)
			if result.Composite < req.MinScore {
				continue
			}
			fieldScores := make(map[string]int, len(result.FieldScores))
			for _, fs := range result.FieldScores {
				fieldScores[fs.Field] = fs.Score
			}
			scored = append(scored, consolidate.ScoredPair{
				A:             pair.A.ExternalID(),
				B:             pair.B.ExternalID(),
				Score:         result.Composite,
				MatchedFields: result.MatchedFields,
				FieldScores:   fieldScores,
			})
		}

		if done%yieldEvery == 0 || done == totalBuckets {
			e.reportProgress(req.Progress, StageFuzzyMatch, done, totalBuckets)
		}

		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}
	}

	return scored, cancelled, nil
}

func (e *Engine) reportProgress(sink ProgressSink, stage ProgressStage, current, total int) {
	if sink == nil {
		return
	}
	sink(stage, current, total)
}

func pairKey(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}
