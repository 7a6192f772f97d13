package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lendingScope/internal/store"
)

const defaultBatchSize = 1000

// schema creates the entity and progress tables. Entities are stored as jsonb
// keyed by (kind, id).
const schema = `
CREATE TABLE IF NOT EXISTS lending_entities (
	kind       text        NOT NULL,
	id         text        NOT NULL,
	data       jsonb       NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, id)
);
CREATE TABLE IF NOT EXISTS indexer_state (
	name                 text        PRIMARY KEY,
	last_processed_block bigint      NOT NULL,
	updated_at           timestamptz NOT NULL DEFAULT now()
);
`

const upsertEntity = `
	INSERT INTO lending_entities (kind, id, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (kind, id)
	DO UPDATE SET data = EXCLUDED.data, updated_at = now()
`

const insertImmutableEntity = `
	INSERT INTO lending_entities (kind, id, data, updated_at)
	VALUES ($1, $2, $3, now())
	ON CONFLICT (kind, id) DO NOTHING
`

// Store provides Postgres persistence for ledger entities.
type Store struct {
	pool      *pgxpool.Pool
	batchSize int
}

func NewStore(ctx context.Context, dsn string, batchSize int) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{pool: pool, batchSize: batchSize}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertEntities writes entity rows in batches. Flow and liquidation rows are
// never overwritten once stored.
func (s *Store) UpsertEntities(ctx context.Context, rows []store.Row) error {
	for start := 0; start < len(rows); start += s.batchSize {
		end := start + s.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.upsertChunk(ctx, rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertChunk(ctx context.Context, rows []store.Row) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		query := upsertEntity
		if store.IsAppendOnly(row.Kind) {
			query = insertImmutableEntity
		}
		batch.Queue(query, row.Kind, row.ID, row.Data)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, row := range rows {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert %s %s: %w", row.Kind, row.ID, err)
		}
	}
	return nil
}

// LoadEntities returns every stored entity row for hydrating the ledger store.
func (s *Store) LoadEntities(ctx context.Context) ([]store.Row, error) {
	rows, err := s.pool.Query(ctx, `SELECT kind, id, data FROM lending_entities ORDER BY kind, id`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var row store.Row
		if err := rows.Scan(&row.Kind, &row.ID, &row.Data); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
