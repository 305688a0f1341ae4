package store_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amaqueme/analytics/database"
	"amaqueme/analytics/models"
	"amaqueme/analytics/store"
)

// These tests run against a live ClickHouse. Point CLICKHOUSE_HOST /
// CLICKHOUSE_NATIVE_PORT / CLICKHOUSE_DB_NAME at a disposable instance and
// set CLICKHOUSE_TEST=1.
func setupStore(t *testing.T) *store.AnalyticsStore {
	t.Helper()
	if os.Getenv("CLICKHOUSE_TEST") == "" {
		t.Skip("CLICKHOUSE_TEST not set, skipping ClickHouse integration tests")
	}

	client, err := database.NewClickHouseDB()
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	require.NoError(t, client.InitSchema(ctx))

	return store.NewAnalyticsStore(client)
}

func testEvent(slug, sessionID, ip string) models.PageView {
	return models.PageView{
		Timestamp:   time.Now().UTC(),
		SessionID:   sessionID,
		UserIP:      ip,
		UserAgent:   "integration-test",
		Path:        "/" + slug,
		Slug:        slug,
		ContentType: models.ContentTypePost,
		PostID:      "1",
		PostTitle:   "Integration Test Post",
		DeviceType:  models.DeviceDesktop,
		Browser:     "Chrome",
		OS:          "Linux",
	}
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	s := setupStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// A second bootstrap must not error, duplicate rows, or change shapes.
	require.NoError(t, s.DB.InitSchema(ctx))

	slug := fmt.Sprintf("idem-%d", time.Now().UnixNano())
	require.NoError(t, s.InsertPageViews(ctx, []models.PageView{testEvent(slug, "s1", "10.0.0.1")}))
	require.NoError(t, s.DB.InitSchema(ctx))

	stats, err := s.GetPostStats(ctx, slug, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].Views)
}

func TestRollupIsOrderInsensitive(t *testing.T) {
	s := setupStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	slug := fmt.Sprintf("rollup-%d", time.Now().UnixNano())
	const writers = 4
	const perWriter = 5

	// Concurrent inserts in arbitrary interleavings must still roll up to
	// exactly writers*perWriter views for the slug.
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			events := make([]models.PageView, 0, perWriter)
			for i := 0; i < perWriter; i++ {
				session := fmt.Sprintf("sess-%d-%d", w, i)
				ip := fmt.Sprintf("10.0.%d.%d", w, i)
				events = append(events, testEvent(slug, session, ip))
			}
			assert.NoError(t, s.InsertPageViews(ctx, events))
		}(w)
	}
	wg.Wait()

	stats, err := s.GetPostStats(ctx, slug, 1)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(writers*perWriter), stats[0].Views)
	assert.Equal(t, uint64(writers*perWriter), stats[0].UniqueVisitors)
}

func TestMostViewedRoundTrip(t *testing.T) {
	s := setupStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slug := fmt.Sprintf("roundtrip-%d", time.Now().UnixNano())
	require.NoError(t, s.InsertPageViews(ctx, []models.PageView{testEvent(slug, "s1", "10.0.0.1")}))

	posts, err := s.GetMostViewedPosts(ctx, 10000, 30)
	require.NoError(t, err)

	var found *models.MostViewedPost
	for i := range posts {
		if posts[i].Slug == slug {
			found = &posts[i]
			break
		}
	}
	require.NotNil(t, found, "inserted slug missing from most-viewed report")
	assert.Equal(t, uint64(1), found.Views)
	assert.Equal(t, uint64(1), found.UniqueVisitors)
	assert.Equal(t, "1", found.PostID)
	assert.Equal(t, "Integration Test Post", found.PostTitle)
}

func TestCategoryEventsAreExcludedFromPostRollup(t *testing.T) {
	s := setupStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	slug := fmt.Sprintf("cat-%d", time.Now().UnixNano())
	event := testEvent(slug, "s1", "10.0.0.1")
	event.ContentType = models.ContentTypeCategory
	event.CategorySlug = slug
	event.CategoryName = "Integration Category"
	require.NoError(t, s.InsertPageViews(ctx, []models.PageView{event}))

	// The materialized view only aggregates post-type rows.
	stats, err := s.GetPostStats(ctx, slug, 1)
	require.NoError(t, err)
	assert.Empty(t, stats)

	// But the raw-table category report sees it.
	catStats, err := s.GetCategoryStats(ctx, slug, 1)
	require.NoError(t, err)
	require.Len(t, catStats, 1)
	assert.Equal(t, uint64(1), catStats[0].Views)
}
