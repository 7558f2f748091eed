package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopTags(t *testing.T) {
	store := newTestStore(t)
	reading := "Reading"
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/1", AutoTags: StringList{"go", "concurrency"}, SuggestedFolder: &reading}))
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/2", AutoTags: StringList{"go", "testing"}}))
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/3", AutoTags: StringList{"go"}}))
	require.NoError(t, store.WithOwner("bob").Create(&Bookmark{URL: "https://a.com/4", AutoTags: StringList{"rust"}}))

	tags, err := store.TopTags("", 0)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{
		{Tag: "go", Count: 3},
		{Tag: "concurrency", Count: 1},
		{Tag: "testing", Count: 1},
	}, tags)

	tags, err = store.TopTags("", 1)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "go", Count: 3}}, tags)

	tags, err = store.TopTags("Reading", 10)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "concurrency", Count: 1}, {Tag: "go", Count: 1}}, tags)
}

func TestCompletedWindows(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	day := 24 * time.Hour

	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/new", Status: StatusCompleted, CreatedAt: now.Add(-day)}))
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/new-pending", CreatedAt: now.Add(-day)}))
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/old", Status: StatusCompleted, CreatedAt: now.Add(-60 * day)}))
	require.NoError(t, store.Create(&Bookmark{URL: "https://a.com/older", Status: StatusCompleted, CreatedAt: now.Add(-90 * day)}))

	recent, err := store.CompletedSince(now.Add(-14*day), 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "https://a.com/new", recent[0].URL)

	old, err := store.CompletedBefore(now.Add(-30*day), 10)
	require.NoError(t, err)
	require.Len(t, old, 2)
	assert.Equal(t, "https://a.com/old", old[0].URL)
	assert.Equal(t, "https://a.com/older", old[1].URL)
}

func TestSearchHistoryDedupes(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.RecordSearch("go channels", "hybrid", 3))
	require.NoError(t, store.RecordSearch("rust", "keyword", 1))
	require.NoError(t, store.RecordSearch("go channels", "keyword", 5))
	require.NoError(t, store.RecordSearch("   ", "keyword", 0))
	require.NoError(t, store.WithOwner("bob").RecordSearch("secret", "keyword", 0))

	history, err := store.SearchHistory(0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "go channels", history[0].Query)
	assert.Equal(t, 5, history[0].ResultsCount)
	assert.Equal(t, "keyword", history[0].Mode)
	assert.Equal(t, "rust", history[1].Query)

	history, err = store.SearchHistory(1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestRenameFolder(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateFolder("Reading")
	require.NoError(t, err)
	_, err = store.CreateFolder("Archive")
	require.NoError(t, err)

	reading := "Reading"
	b := &Bookmark{URL: "https://a.com/1", SuggestedFolder: &reading}
	require.NoError(t, store.Create(b))

	require.NoError(t, store.RenameFolder("Reading", " Later "))
	names, err := store.FolderNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"Archive", "Later"}, names)

	got, err := store.Get(b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SuggestedFolder)
	assert.Equal(t, "Later", *got.SuggestedFolder)

	assert.ErrorIs(t, store.RenameFolder("Later", "Archive"), ErrConflict)
	assert.ErrorIs(t, store.RenameFolder("Missing", "Other"), ErrNotFound)
	assert.Error(t, store.RenameFolder("Later", "  "))
}
