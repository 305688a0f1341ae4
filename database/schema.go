package database

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// InitSchema bootstraps the analytics schema: the database, the raw
// page_views table, the post_stats aggregate table and the materialized view
// that keeps them in sync. Every statement is idempotent except the view,
// which is dropped and recreated so its definition can be updated safely.
func (c *ClickHouseClient) InitSchema(ctx context.Context) error {
	if err := c.createDatabase(ctx); err != nil {
		return err
	}

	conn, err := c.Conn(ctx)
	if err != nil {
		return err
	}

	db := c.database

	// Raw events: append-only, partitioned by month, ordered for date-range
	// and per-slug scans, expired a year after the event date.
	createPageViews := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.page_views (
			event_id String,
			timestamp DateTime DEFAULT now(),
			date Date DEFAULT toDate(timestamp),
			session_id String,
			user_ip String,
			user_agent String,
			path String,
			slug String,
			content_type Enum8('post' = 1, 'category' = 2, 'page' = 3, 'home' = 4, 'other' = 5),
			post_id String,
			post_title String,
			category_slug String,
			category_name String,
			referrer String,
			device_type Enum8('desktop' = 1, 'mobile' = 2, 'tablet' = 3, 'unknown' = 4),
			browser String,
			os String,
			page_load_time UInt32 DEFAULT 0,
			is_bot UInt8 DEFAULT 0
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(date)
		ORDER BY (date, timestamp, slug)
		TTL date + INTERVAL 365 DAY
	`, db)
	if err := conn.Exec(ctx, createPageViews); err != nil {
		return fmt.Errorf("failed to create page_views table: %w", err)
	}

	// Drop any prior version of the view before recreating it, so schema
	// changes to the aggregation roll out with a restart.
	if err := conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s.post_stats_mv`, db)); err != nil {
		return fmt.Errorf("failed to drop old materialized view: %w", err)
	}

	// Per-day post rollups. AggregatingMergeTree merges partial rows for the
	// same (date, slug) by merging count/uniq states, never by overwriting,
	// so inserts commute regardless of batch boundaries. Same TTL as the raw
	// rows: derived data must not outlive its source.
	createPostStats := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.post_stats (
			date Date,
			slug String,
			post_id String,
			post_title String,
			views AggregateFunction(count),
			unique_visitors AggregateFunction(uniq, String),
			unique_ips AggregateFunction(uniq, String)
		) ENGINE = AggregatingMergeTree()
		PARTITION BY toYYYYMM(date)
		ORDER BY (date, slug)
		TTL date + INTERVAL 365 DAY
	`, db)
	if err := conn.Exec(ctx, createPostStats); err != nil {
		return fmt.Errorf("failed to create post_stats table: %w", err)
	}

	createView := fmt.Sprintf(`
		CREATE MATERIALIZED VIEW IF NOT EXISTS %s.post_stats_mv
		TO %s.post_stats
		AS SELECT
			date,
			slug,
			post_id,
			post_title,
			countState() AS views,
			uniqState(session_id) AS unique_visitors,
			uniqState(user_ip) AS unique_ips
		FROM %s.page_views
		WHERE content_type = 'post'
		GROUP BY date, slug, post_id, post_title
	`, db, db, db)
	if err := conn.Exec(ctx, createView); err != nil {
		return fmt.Errorf("failed to create materialized view: %w", err)
	}

	log.Println("ClickHouse schema initialized successfully.")
	return nil
}

// createDatabase uses a short-lived connection without a database selected,
// since the configured database may not exist yet.
func (c *ClickHouseClient) createDatabase(ctx context.Context) error {
	opts := *c.opts
	opts.Auth.Database = "default"

	conn, err := clickhouse.Open(&opts)
	if err != nil {
		return fmt.Errorf("failed to connect for schema bootstrap: %w", err)
	}
	defer conn.Close()

	if err := conn.Exec(ctx, fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, c.database)); err != nil {
		return fmt.Errorf("failed to create database %s: %w", c.database, err)
	}
	return nil
}
