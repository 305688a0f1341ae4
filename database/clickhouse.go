package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseClient owns the analytics store connection. The handle is dialed
// lazily on first use under a mutex, so concurrent first callers race safely:
// the first successful dial wins and everyone reuses that conn, while a
// failed dial is retried by the next caller. Ownership sits with main, which
// constructs exactly one of these and closes it on exit.
type ClickHouseClient struct {
	opts     *clickhouse.Options
	database string

	mu   sync.Mutex
	conn clickhouse.Conn
}

type clickhouseConfig struct {
	host     string
	port     int
	database string
	username string
	password string
}

func loadClickHouseConfig() (clickhouseConfig, error) {
	cfg := clickhouseConfig{
		host:     os.Getenv("CLICKHOUSE_HOST"),
		database: os.Getenv("CLICKHOUSE_DB_NAME"),
		username: os.Getenv("CLICKHOUSE_USERNAME"),
		password: os.Getenv("CLICKHOUSE_PASSWORD"),
	}
	if cfg.host == "" {
		cfg.host = "localhost"
	}
	if cfg.database == "" {
		cfg.database = "amaqueme_analytics"
	}
	if cfg.username == "" {
		cfg.username = "default"
	}

	portStr := os.Getenv("CLICKHOUSE_NATIVE_PORT")
	if portStr == "" {
		portStr = "9000"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return cfg, fmt.Errorf("invalid CLICKHOUSE_NATIVE_PORT: %w", err)
	}
	cfg.port = port
	return cfg, nil
}

func clickhouseOptions(cfg clickhouseConfig, database string) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.host, cfg.port)},
		Auth: clickhouse.Auth{
			Database: database,
			Username: cfg.username,
			Password: cfg.password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "amaqueme-analytics", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: time.Second * 5,
	}
}

// NewClickHouseDB builds the client from the environment. No connection is
// made here; the dial happens on the first Conn call.
func NewClickHouseDB() (*ClickHouseClient, error) {
	cfg, err := loadClickHouseConfig()
	if err != nil {
		return nil, err
	}
	return &ClickHouseClient{
		opts:     clickhouseOptions(cfg, cfg.database),
		database: cfg.database,
	}, nil
}

// Database returns the configured database name.
func (c *ClickHouseClient) Database() string {
	return c.database
}

// Conn returns the shared connection, dialing it on first use. The first
// caller to dial successfully wins; concurrent callers block and reuse the
// same handle. A failed dial is returned as an error and retried by the next
// caller, so a store outage at startup does not wedge the pipeline for the
// life of the process.
func (c *ClickHouseClient) Conn(ctx context.Context) (clickhouse.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return c.conn, nil
	}

	conn, err := clickhouse.Open(c.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	log.Println("Successfully connected to ClickHouse database via Native TCP!")
	c.conn = conn
	return c.conn, nil
}

func (c *ClickHouseClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		log.Println("ClickHouse connection closed.")
	}
}
