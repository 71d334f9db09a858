package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// PostgresStore keeps metadata documents in a single jsonb table. Used when
// collections are curated through a database rather than seeded at startup.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS token_metadata (
	collection TEXT NOT NULL,
	token_id   TEXT NOT NULL,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, token_id)
)`

// NewPostgresStore connects to Postgres and ensures the metadata table exists
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure metadata table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Get retrieves the document for a token in a collection
func (s *PostgresStore) Get(ctx context.Context, collection, tokenID string) (json.RawMessage, error) {
	var doc json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM token_metadata WHERE collection = $1 AND token_id = $2`,
		collection, tokenID,
	).Scan(&doc)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, tokenID)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	return doc, nil
}

// Put stores or replaces a document
func (s *PostgresStore) Put(ctx context.Context, collection, tokenID string, doc json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO token_metadata (collection, token_id, document, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, token_id)
		 DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		collection, tokenID, doc,
	)
	if err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

// List returns the token IDs present in a collection, sorted
func (s *PostgresStore) List(ctx context.Context, collection string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token_id FROM token_metadata WHERE collection = $1 ORDER BY token_id`,
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres scan failed: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the connection pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}

var _ Store = (*PostgresStore)(nil)
