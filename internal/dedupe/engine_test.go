package dedupe_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/dedupe"
	"github.com/kestrelcrm/dedupd/internal/group"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func newEngineFixture(t *testing.T) (*dedupe.Engine, *record.Store, *group.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	records := record.NewStore(db)
	groups := group.NewStore(db)
	return dedupe.New(records, groups), records, groups
}

func TestRun_ExactEmailMatch(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "jon@acme.com"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "JON@ACME.COM"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "C", Email: "someone@else.com"}}))

	summary, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExactGroups)
	assert.Equal(t, 1, summary.Confidence.High)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "high", list[0].Confidence)
}

func TestRun_PhoneNormalizationMatch(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Phone: "415-555-0100"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Phone: "(415) 555-0100"}}))

	summary, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExactGroups)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestRun_FuzzyNameWithinBlocking(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "A", FirstName: "Jon", LastName: "Smith", Company: "Acme", Email: "jon@acme.com",
	}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "B", FirstName: "John", LastName: "Smith", Company: "Acme", Email: "jon2@acme.com",
	}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "C", FirstName: "Jane", LastName: "Doe", Company: "Globex", Email: "jane@globex.com",
	}}))

	summary, err := engine.Run(context.Background(), dedupe.Request{
		Kind: record.KindContact, RunFuzzy: true, MinScore: 80,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FuzzyGroups)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, matches, err := groups.Get(list[0].GroupID)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestRun_ClearExistingRemovesPendingGroups(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "a@x.com"}}))

	_, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true})
	require.NoError(t, err)

	summary, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true, ClearExisting: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ExactGroups)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	assert.Len(t, list, 1, "clearing existing pending groups must prevent duplicate group creation on rerun")
}

func TestRun_ProgressReportedForBothStages(t *testing.T) {
	engine, records, _ := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}))

	var stages []dedupe.ProgressStage
	_, err := engine.Run(context.Background(), dedupe.Request{
		Kind: record.KindContact, RunExact: true, RunFuzzy: true, MinScore: 80,
		Progress: func(stage dedupe.ProgressStage, current, total int) {
			stages = append(stages, stage)
		},
	})
	require.NoError(t, err)
	assert.Contains(t, stages, dedupe.StageExactMatch)
	assert.Contains(t, stages, dedupe.StageFuzzyMatch)
}

func TestRun_CancellationStopsFuzzyMatchingEarly(t *testing.T) {
	engine, records, _ := newEngineFixture(t)
	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
			ExternalID: id, LastName: id + "smith",
		}}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := engine.Run(ctx, dedupe.Request{Kind: record.KindContact, RunFuzzy: true, MinScore: 80})
	require.NoError(t, err)
	assert.True(t, summary.Cancelled)
}

func TestRun_PersistedMatchedFieldsCarryPerFieldScores(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "A", FirstName: "Jon", LastName: "Smith", Company: "Acme", Email: "jon@acme.com",
	}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{
		ExternalID: "B", FirstName: "John", LastName: "Smith", Company: "Acme", Email: "jon2@acme.com",
	}}))

	_, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunFuzzy: true, MinScore: 80})
	require.NoError(t, err)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	require.Len(t, list, 1)
	_, matches, err := groups.Get(list[0].GroupID)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	mf := matches[0].MatchedFields
	assert.Contains(t, mf.Fields, "last_name")
	require.NotEmpty(t, mf.Scores)
	byField := map[string]int{}
	for _, s := range mf.Scores {
		byField[s.Field] = s.Score
	}
	assert.Equal(t, 100, byField["last_name"])
}

func TestRun_SummaryIncludesStatusCounts(t *testing.T) {
	engine, records, _ := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "a@x.com"}}))

	summary, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StatusCounts["pending"])
}

func TestRun_NoMatchesProducesNoGroups(t *testing.T) {
	engine, records, groups := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "b@y.com"}}))

	summary, err := engine.Run(context.Background(), dedupe.Request{Kind: record.KindContact, RunExact: true, RunFuzzy: true, MinScore: 80})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalGroups)

	list, err := groups.List(record.KindContact, "")
	require.NoError(t, err)
	assert.Empty(t, list)
}
