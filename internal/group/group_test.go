package group_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/database"
	"github.com/kestrelcrm/dedupd/internal/group"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMatchedFields_RoundTripObjectForm(t *testing.T) {
	mf := group.MatchedFields{
		Fields: []string{"email", "last_name"},
		Scores: []group.FieldScoreEntry{{Field: "email", Score: 100}, {Field: "last_name", Score: 90}},
	}
	s, err := mf.Serialize()
	require.NoError(t, err)

	parsed, err := group.ParseMatchedFields(s)
	require.NoError(t, err)
	assert.Equal(t, mf, parsed)
}

func TestParseMatchedFields_LegacyArrayForm(t *testing.T) {
	parsed, err := group.ParseMatchedFields(`["email","phone"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"email", "phone"}, parsed.Fields)
	assert.Empty(t, parsed.Scores)
}

func TestParseMatchedFields_Empty(t *testing.T) {
	parsed, err := group.ParseMatchedFields("")
	require.NoError(t, err)
	assert.Equal(t, group.MatchedFields{}, parsed)
}

func TestCreateGroup_RequiresAtLeastTwoMembers(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	_, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
	})
	require.Error(t, err)
}

func TestCreateGroup_RequiresExactlyOnePrimary(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	_, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B", IsPrimary: true},
	})
	require.Error(t, err)

	_, err = store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A"},
		{ExternalID: "B"},
	})
	require.Error(t, err)
}

func TestCreateGroup_PersistsMembersAndGolden(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "medium", []group.MemberMatch{
		{ExternalID: "A", MatchScore: 0.9, IsPrimary: true, MatchedFields: group.MatchedFields{Fields: []string{"email"}}},
		{ExternalID: "B", MatchScore: 0.9, MatchedFields: group.MatchedFields{Fields: []string{"email"}}},
	})
	require.NoError(t, err)

	g, matches, err := store.Get(groupID)
	require.NoError(t, err)
	assert.Equal(t, "A", g.GoldenExternalID)
	assert.Equal(t, group.StatusPending, g.Status)
	assert.Len(t, matches, 2)
}

func TestUpdateStatus_RejectsDirectMergedWrite(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)

	err = store.UpdateStatus(groupID, group.StatusMerged, "")
	require.Error(t, err)
}

func TestUpdateStatus_AllowedTransitions(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(groupID, group.StatusReviewed, ""))
	g, _, err := store.Get(groupID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusReviewed, g.Status)

	require.NoError(t, store.UpdateStatus(groupID, group.StatusDismissed, ""))
	g, _, err = store.Get(groupID)
	require.NoError(t, err)
	assert.Equal(t, group.StatusDismissed, g.Status)
}

func TestUpdateStatus_RejectsTransitionFromTerminalState(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(groupID, group.StatusDismissed, ""))

	err = store.UpdateStatus(groupID, group.StatusReviewed, "")
	require.Error(t, err)
}

func TestUpdateStatus_CanOverrideGolden(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)

	require.NoError(t, store.UpdateStatus(groupID, group.StatusReviewed, "B"))
	g, _, err := store.Get(groupID)
	require.NoError(t, err)
	assert.Equal(t, "B", g.GoldenExternalID)
}

func TestIsRecordMerged_ExactMatchNotSubstring(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "99"},
	})
	require.NoError(t, err)

	g, _, err := store.Get(groupID)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, store.SetMergedInTx(tx, g, "A", []string{"99"}, "merge_crm_record", nil))
	require.NoError(t, tx.Commit())

	merged, err := store.IsRecordMerged(groupID, "99")
	require.NoError(t, err)
	assert.True(t, merged)

	// "9" is a substring of the absorbed id "99" but must not match.
	notMerged, err := store.IsRecordMerged(groupID, "9")
	require.NoError(t, err)
	assert.False(t, notMerged)
}

func TestPrimaryOfOtherPending(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	g1, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)

	// A alone: no other pending group claims it as primary.
	other, err := store.PrimaryOfOtherPending(record.KindContact, "A", g1)
	require.NoError(t, err)
	assert.False(t, other)

	g2, err := store.CreateGroup(record.KindContact, "medium", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "C"},
	})
	require.NoError(t, err)

	other, err = store.PrimaryOfOtherPending(record.KindContact, "A", g1)
	require.NoError(t, err)
	assert.True(t, other)

	// Dismissing the second group releases the claim.
	require.NoError(t, store.UpdateStatus(g2, group.StatusDismissed, ""))
	other, err = store.PrimaryOfOtherPending(record.KindContact, "A", g1)
	require.NoError(t, err)
	assert.False(t, other)

	// A non-primary membership elsewhere never counts.
	other, err = store.PrimaryOfOtherPending(record.KindContact, "B", g2)
	require.NoError(t, err)
	assert.False(t, other)
}

func TestSetMergedInTx_RejectsAlreadyTerminalGroup(t *testing.T) {
	db := newTestDB(t)
	store := group.NewStore(db)

	groupID, err := store.CreateGroup(record.KindContact, "high", []group.MemberMatch{
		{ExternalID: "A", IsPrimary: true},
		{ExternalID: "B"},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(groupID, group.StatusDismissed, ""))

	g, _, err := store.Get(groupID)
	require.NoError(t, err)

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = store.SetMergedInTx(tx, g, "A", []string{"B"}, "merge_crm_record", nil)
	require.Error(t, err)
}
