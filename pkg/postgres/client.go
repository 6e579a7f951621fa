// Package postgres keeps the indexing status of every consumed document.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multistep-search/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	shard_id   INTEGER NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT,
	indexed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status);
`

type Client struct {
	DB *sql.DB
}

// New opens the pool and pings once so a bad DSN fails at startup.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres %s/%s: %w", cfg.Host, cfg.Database, err)
	}
	return &Client{DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// EnsureSchema creates the status table if it does not exist yet.
func (c *Client) EnsureSchema(ctx context.Context) error {
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating documents table: %w", err)
		}
		return nil
	})
}

// RecordStatus upserts the indexing outcome of a document. cause may be
// empty.
func (c *Client) RecordStatus(ctx context.Context, docID string, shardID int, status, cause string) error {
	_, err := c.DB.ExecContext(ctx,
		`INSERT INTO documents (id, shard_id, status, error, indexed_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET shard_id = EXCLUDED.shard_id, status = EXCLUDED.status,
		     error = EXCLUDED.error, indexed_at = NOW()`,
		docID, shardID, status, cause,
	)
	if err != nil {
		return fmt.Errorf("recording status of %s: %w", docID, err)
	}
	return nil
}

// DocumentStatus is one row of the status table.
type DocumentStatus struct {
	ID        string    `json:"document_id"`
	ShardID   int       `json:"shard_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status returns the last recorded outcome for docID, or an error wrapping
// ErrDocumentNotFound.
func (c *Client) Status(ctx context.Context, docID string) (*DocumentStatus, error) {
	st := DocumentStatus{ID: docID}
	var cause sql.NullString
	err := c.DB.QueryRowContext(ctx,
		`SELECT shard_id, status, error, indexed_at FROM documents WHERE id = $1`, docID,
	).Scan(&st.ShardID, &st.Status, &cause, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status of %s: %w", docID, apperrors.ErrDocumentNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading status of %s: %w", docID, err)
	}
	st.Error = cause.String
	return &st, nil
}

// StatusCounts returns how many documents are in each status.
func (c *Client) StatusCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting statuses: %w", err)
	}
	defer rows.Close()
	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// InTx runs fn in a transaction, rolling back when fn fails.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		return errors.Join(err, tx.Rollback())
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
