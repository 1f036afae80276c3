package consolidate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/consolidate"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func TestConsolidate_TransitiveChain(t *testing.T) {
	pairs := []consolidate.ScoredPair{
		{A: "A", B: "B", Score: 88, MatchedFields: []string{"email"}},
		{B: "B", A: "C", Score: 85, MatchedFields: []string{"phone"}},
		{A: "D", B: "E", Score: 90, MatchedFields: []string{"domain"}},
	}

	groups := consolidate.Consolidate(record.KindContact, pairs)
	require.Len(t, groups, 2)

	var abc, de *consolidate.Group
	for i := range groups {
		if len(groups[i].MemberIDs) == 3 {
			abc = &groups[i]
		} else {
			de = &groups[i]
		}
	}
	require.NotNil(t, abc)
	require.NotNil(t, de)

	assert.ElementsMatch(t, []string{"A", "B", "C"}, abc.MemberIDs)
	assert.ElementsMatch(t, []string{"D", "E"}, de.MemberIDs)
	assert.Equal(t, 90, de.MatchScore) // mean of a single contributing pair is that pair's score
}

func TestConsolidate_MeanScoreRounding(t *testing.T) {
	pairs := []consolidate.ScoredPair{
		{A: "A", B: "B", Score: 88},
		{A: "B", B: "C", Score: 85},
	}
	groups := consolidate.Consolidate(record.KindContact, pairs)
	require.Len(t, groups, 1)
	// mean of 88 and 85 is 86.5, rounds to 87 (round-half-up via integer division trick)
	assert.Equal(t, 87, groups[0].MatchScore)
}

func TestConsolidate_MatchedFieldsUnion(t *testing.T) {
	pairs := []consolidate.ScoredPair{
		{A: "A", B: "B", Score: 90, MatchedFields: []string{"email", "last_name"}},
		{A: "B", B: "C", Score: 90, MatchedFields: []string{"phone"}},
	}
	groups := consolidate.Consolidate(record.KindContact, pairs)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"email", "last_name", "phone"}, groups[0].MatchedFields)
}

func TestConsolidate_FieldScoresKeepMaxPerField(t *testing.T) {
	pairs := []consolidate.ScoredPair{
		{A: "A", B: "B", Score: 90, MatchedFields: []string{"email"}, FieldScores: map[string]int{"email": 95, "last_name": 60}},
		{A: "B", B: "C", Score: 85, MatchedFields: []string{"email"}, FieldScores: map[string]int{"email": 88, "phone": 72}},
	}
	groups := consolidate.Consolidate(record.KindContact, pairs)
	require.Len(t, groups, 1)
	assert.Equal(t, map[string]int{"email": 95, "last_name": 60, "phone": 72}, groups[0].FieldScores)
}

func TestConsolidate_ExactAndFuzzyEdgesShareOneGroup(t *testing.T) {
	pairs := []consolidate.ScoredPair{
		{A: "A", B: "B", Score: 100, MatchedFields: []string{"email"}, Exact: true},
		{A: "B", B: "C", Score: 85, MatchedFields: []string{"last_name"}},
	}
	groups := consolidate.Consolidate(record.KindContact, pairs)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, groups[0].MemberIDs)
	assert.False(t, groups[0].AllExact, "a fuzzy contribution clears the all-exact flag")
}

func TestConsolidate_SingletonsDiscarded(t *testing.T) {
	groups := consolidate.Consolidate(record.KindContact, nil)
	assert.Empty(t, groups)
}
