// api/store/analytics_store.go
package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"

	"amaqueme/analytics/database"
	"amaqueme/analytics/models"
)

type AnalyticsStore struct {
	DB *database.ClickHouseClient
}

func NewAnalyticsStore(chClient *database.ClickHouseClient) *AnalyticsStore {
	return &AnalyticsStore{
		DB: chClient,
	}
}

func (s *AnalyticsStore) table(name string) string {
	return s.DB.Database() + "." + name
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func (s *AnalyticsStore) queryRows(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return conn.Query(ctx, query, args...)
}

// InsertPageViews appends a batch of raw events. The date column is derived
// server-side from timestamp; the materialized view picks the rows up on
// commit, so no client-side aggregation happens here.
func (s *AnalyticsStore) InsertPageViews(ctx context.Context, events []models.PageView) error {
	if len(events) == 0 {
		return nil
	}

	conn, err := s.DB.Conn(ctx)
	if err != nil {
		return err
	}

	batch, err := conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			event_id, timestamp, session_id, user_ip, user_agent, path, slug,
			content_type, post_id, post_title, category_slug, category_name,
			referrer, device_type, browser, os, page_load_time, is_bot
		)
	`, s.table("page_views")))
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		if event.EventID == "" {
			event.EventID = uuid.New().String()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}
		err := batch.Append(
			event.EventID,
			event.Timestamp,
			event.SessionID,
			event.UserIP,
			event.UserAgent,
			event.Path,
			event.Slug,
			event.ContentType,
			event.PostID,
			event.PostTitle,
			event.CategorySlug,
			event.CategoryName,
			event.Referrer,
			event.DeviceType,
			event.Browser,
			event.OS,
			event.PageLoadMs,
			boolToUInt8(event.IsBot),
		)
		if err != nil {
			log.Printf("Error appending page view to batch (path: %s): %v", event.Path, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// GetMostViewedPosts ranks post slugs by rolled-up views over the trailing
// window. Reads the aggregate table only; countMerge/uniqMerge collapse the
// partial states the materialized view wrote.
func (s *AnalyticsStore) GetMostViewedPosts(ctx context.Context, limit, days int) ([]models.MostViewedPost, error) {
	query := fmt.Sprintf(`
		SELECT
			slug,
			any(post_id) AS post_id,
			any(post_title) AS post_title,
			countMerge(views) AS total_views,
			uniqMerge(unique_visitors) AS total_unique_visitors
		FROM %s
		WHERE date >= today() - ?
		GROUP BY slug
		ORDER BY total_views DESC
		LIMIT ?
	`, s.table("post_stats"))

	rows, err := s.queryRows(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query most viewed posts: %w", err)
	}
	defer rows.Close()

	var results []models.MostViewedPost
	for rows.Next() {
		var r models.MostViewedPost
		if err := rows.Scan(&r.Slug, &r.PostID, &r.PostTitle, &r.Views, &r.UniqueVisitors); err != nil {
			log.Printf("Error scanning row for most viewed posts: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during most viewed posts query: %w", err)
	}
	return results, nil
}

// GetPostStats returns the per-day series for one slug, newest day first.
func (s *AnalyticsStore) GetPostStats(ctx context.Context, slug string, days int) ([]models.DailyPostStat, error) {
	query := fmt.Sprintf(`
		SELECT
			date,
			countMerge(views) AS views,
			uniqMerge(unique_visitors) AS unique_visitors
		FROM %s
		WHERE slug = ? AND date >= today() - ?
		GROUP BY date
		ORDER BY date DESC
	`, s.table("post_stats"))

	rows, err := s.queryRows(ctx, query, slug, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query post stats: %w", err)
	}
	defer rows.Close()

	var results []models.DailyPostStat
	for rows.Next() {
		var r models.DailyPostStat
		if err := rows.Scan(&r.Date, &r.Views, &r.UniqueVisitors); err != nil {
			log.Printf("Error scanning row for post stats: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during post stats query: %w", err)
	}
	return results, nil
}

// GetCategoryStats returns the per-day series for one category. Categories
// are not rolled up, so this scans the raw table within the date range.
func (s *AnalyticsStore) GetCategoryStats(ctx context.Context, categorySlug string, days int) ([]models.DailyPostStat, error) {
	query := fmt.Sprintf(`
		SELECT
			date,
			count() AS views,
			uniq(session_id) AS unique_visitors
		FROM %s
		WHERE category_slug = ?
			AND date >= today() - ?
			AND NOT startsWith(path, '/api/')
			AND NOT startsWith(path, '/_')
		GROUP BY date
		ORDER BY date DESC
	`, s.table("page_views"))

	rows, err := s.queryRows(ctx, query, categorySlug, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query category stats: %w", err)
	}
	defer rows.Close()

	var results []models.DailyPostStat
	for rows.Next() {
		var r models.DailyPostStat
		if err := rows.Scan(&r.Date, &r.Views, &r.UniqueVisitors); err != nil {
			log.Printf("Error scanning row for category stats: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during category stats query: %w", err)
	}
	return results, nil
}

// GetTopCategories ranks categories by raw view count over the window.
func (s *AnalyticsStore) GetTopCategories(ctx context.Context, limit, days int) ([]models.CategoryRank, error) {
	query := fmt.Sprintf(`
		SELECT
			category_slug,
			any(category_name) AS category_name,
			count() AS views,
			uniq(session_id) AS unique_visitors
		FROM %s
		WHERE date >= today() - ?
			AND category_slug != ''
			AND NOT startsWith(path, '/api/')
			AND NOT startsWith(path, '/_')
		GROUP BY category_slug
		ORDER BY views DESC
		LIMIT ?
	`, s.table("page_views"))

	rows, err := s.queryRows(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top categories: %w", err)
	}
	defer rows.Close()

	var results []models.CategoryRank
	for rows.Next() {
		var r models.CategoryRank
		if err := rows.Scan(&r.CategorySlug, &r.CategoryName, &r.Views, &r.UniqueVisitors); err != nil {
			log.Printf("Error scanning row for top categories: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during top categories query: %w", err)
	}
	return results, nil
}

// GetDailyStats returns per-day totals split by content type and device type.
func (s *AnalyticsStore) GetDailyStats(ctx context.Context, days int) ([]models.DailySiteStat, error) {
	query := fmt.Sprintf(`
		SELECT
			date,
			count() AS total_views,
			uniq(session_id) AS unique_visitors,
			countIf(content_type = 'post') AS post_views,
			countIf(content_type = 'category') AS category_views,
			countIf(device_type = 'mobile') AS mobile_views,
			countIf(device_type = 'desktop') AS desktop_views
		FROM %s
		WHERE date >= today() - ?
			AND NOT startsWith(path, '/api/')
			AND NOT startsWith(path, '/_')
		GROUP BY date
		ORDER BY date DESC
	`, s.table("page_views"))

	rows, err := s.queryRows(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily stats: %w", err)
	}
	defer rows.Close()

	var results []models.DailySiteStat
	for rows.Next() {
		var r models.DailySiteStat
		if err := rows.Scan(&r.Date, &r.TotalViews, &r.UniqueVisitors, &r.PostViews,
			&r.CategoryViews, &r.MobileViews, &r.DesktopViews); err != nil {
			log.Printf("Error scanning row for daily stats: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during daily stats query: %w", err)
	}
	return results, nil
}

// GetTrafficSources breaks views down by referrer, ignoring direct traffic.
func (s *AnalyticsStore) GetTrafficSources(ctx context.Context, days, limit int) ([]models.TrafficSource, error) {
	query := fmt.Sprintf(`
		SELECT
			referrer,
			count() AS views,
			uniq(session_id) AS unique_visitors
		FROM %s
		WHERE date >= today() - ?
			AND referrer != ''
			AND NOT startsWith(path, '/api/')
			AND NOT startsWith(path, '/_')
		GROUP BY referrer
		ORDER BY views DESC
		LIMIT ?
	`, s.table("page_views"))

	rows, err := s.queryRows(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query traffic sources: %w", err)
	}
	defer rows.Close()

	var results []models.TrafficSource
	for rows.Next() {
		var r models.TrafficSource
		if err := rows.Scan(&r.Referrer, &r.Views, &r.UniqueVisitors); err != nil {
			log.Printf("Error scanning row for traffic sources: %v", err)
			continue
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during traffic sources query: %w", err)
	}
	return results, nil
}
