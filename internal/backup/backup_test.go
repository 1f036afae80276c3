package backup_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelcrm/dedupd/internal/backup"
	"github.com/kestrelcrm/dedupd/internal/record"
)

func TestWrite_FileNameFormat(t *testing.T) {
	dir := t.TempDir()
	w := backup.NewWriter(dir)

	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	path, err := w.Write(now, "group-1", record.KindContact, "A", nil, backup.Metadata{})
	require.NoError(t, err)

	name := filepath.Base(path)
	assert.True(t, strings.HasPrefix(name, "merge_backup_contact_group-1_"))
	assert.False(t, strings.Contains(name, ":"))
	assert.True(t, strings.HasSuffix(name, ".json"))
}

func TestWrite_DocumentLayout(t *testing.T) {
	dir := t.TempDir()
	w := backup.NewWriter(dir)

	members := []record.Record{
		{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "A", Email: "a@x.com"}},
		{Kind: record.KindContact, Contact: &record.Contact{ExternalID: "B", Email: "b@x.com"}},
	}
	meta := backup.Metadata{Confidence: "high", MatchScore: 0.95, MatchedFields: []string{"email"}}

	now := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	path, err := w.Write(now, "group-1", record.KindContact, "A", members, meta)
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "group-1", doc["groupId"])
	assert.Equal(t, "contact", doc["objectType"])
	assert.Equal(t, "A", doc["primaryRecordId"])
	assert.Contains(t, doc, "timestamp")
	assert.Contains(t, doc, "metadata")

	records, ok := doc["records"].([]any)
	require.True(t, ok)
	assert.Len(t, records, 2)
}

func TestPrune_RemovesOnlyExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	w := backup.NewWriter(dir)

	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	oldPath, err := w.Write(now, "old-group", record.KindContact, "A", nil, backup.Metadata{})
	require.NoError(t, err)
	newPath, err := w.Write(now, "new-group", record.KindContact, "A", nil, backup.Metadata{})
	require.NoError(t, err)

	oldTime := now.Add(-40 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, oldTime, oldTime))
	require.NoError(t, os.Chtimes(newPath, now, now))

	removed, err := w.Prune(now, 30)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(newPath)
	assert.NoError(t, err)
}

func TestPrune_DisabledWhenRetentionNonPositive(t *testing.T) {
	dir := t.TempDir()
	w := backup.NewWriter(dir)
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	path, err := w.Write(now, "g", record.KindContact, "A", nil, backup.Metadata{})
	require.NoError(t, err)
	old := now.Add(-365 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	removed, err := w.Prune(now, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestPrune_MissingDirectoryIsNotAnError(t *testing.T) {
	w := backup.NewWriter(filepath.Join(t.TempDir(), "does-not-exist"))
	removed, err := w.Prune(time.Now().UTC(), 30)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
