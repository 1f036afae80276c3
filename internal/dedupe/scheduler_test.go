package dedupe_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/dedupe"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func TestScheduler_TriggerAnalysisRunsAndReportsCompletion(t *testing.T) {
	engine, records, _ := newEngineFixture(t)
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}}))
	require.NoError(t, records.Upsert(record.Record{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "a@x.com"}}))

	s := dedupe.NewScheduler(engine, time.Hour, func(kind record.Kind) dedupe.Request {
		return dedupe.Request{Kind: kind, RunExact: true, ClearExisting: true}
	})

	var mu sync.Mutex
	var got []dedupe.Summary
	done := make(chan struct{})
	s.SetRunCompletedCallback(func(kind record.Kind, summary dedupe.Summary, err error) {
		assert.NoError(t, err)
		mu.Lock()
		got = append(got, summary)
		mu.Unlock()
		close(done)
	})

	s.Start(context.Background())
	defer s.Stop()

	s.TriggerAnalysis(record.KindContact)

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduled analysis did not complete")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ExactGroups)
}

func TestScheduler_StopWaitsForLoopExit(t *testing.T) {
	engine, _, _ := newEngineFixture(t)
	s := dedupe.NewScheduler(engine, time.Hour, func(kind record.Kind) dedupe.Request {
		return dedupe.Request{Kind: kind, RunExact: true}
	})

	s.Start(context.Background())
	s.Stop()

	// Stopping twice is a no-op, and a stopped scheduler can be restarted.
	s.Stop()
	s.Start(context.Background())
	s.Stop()
}
