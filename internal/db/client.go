// Package db persists completed research turns and their citations to
// Postgres. Persistence is fire-and-forget from the workflow's point of view;
// a write failure is logged and never fails a turn.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Client manages the database connection pool.
type Client struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewClient opens a connection pool against databaseURL.
func NewClient(databaseURL string, logger *zap.Logger) (*Client, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database client initialized")
	return &Client{db: db, logger: logger}, nil
}

// NewClientWithDB wraps an existing connection. Used by tests with sqlmock.
func NewClientWithDB(raw *sql.DB, logger *zap.Logger) *Client {
	return &Client{db: sqlx.NewDb(raw, "postgres"), logger: logger}
}

// Ping checks database connectivity. Used by health checks.
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.db.Close()
}
