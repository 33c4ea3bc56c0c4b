package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_metadata (
	session_id       TEXT PRIMARY KEY,
	chunk_count      INT NOT NULL,
	total_size_bytes BIGINT NOT NULL,
	last_accessed_at TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS session_chunks (
	session_id   TEXT NOT NULL,
	chunk_index  INT NOT NULL,
	payload      BYTEA NOT NULL,
	total_chunks INT NOT NULL,
	PRIMARY KEY (session_id, chunk_index)
);`

// PostgresStore is the production Store backed by a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects, verifies the connection, and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, &TransientError{Op: "parse dsn", Err: err}
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, &TransientError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &TransientError{Op: "ping", Err: err}
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, &TransientError{Op: "ensure schema", Err: err}
	}
	return &PostgresStore{pool: pool}, nil
}

// GetMetadata returns the metadata record for a session.
func (s *PostgresStore) GetMetadata(ctx context.Context, sessionID string) (*SessionMetadata, error) {
	meta := &SessionMetadata{SessionID: sessionID}
	err := s.pool.QueryRow(ctx,
		`SELECT chunk_count, total_size_bytes, last_accessed_at, updated_at
		 FROM session_metadata WHERE session_id = $1`, sessionID).
		Scan(&meta.ChunkCount, &meta.TotalSizeBytes, &meta.LastAccessedAt, &meta.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "get metadata", Err: err}
	}
	return meta, nil
}

// PutMetadata creates or overwrites a metadata record.
func (s *PostgresStore) PutMetadata(ctx context.Context, meta *SessionMetadata) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_metadata (session_id, chunk_count, total_size_bytes, last_accessed_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO UPDATE SET
			chunk_count = EXCLUDED.chunk_count,
			total_size_bytes = EXCLUDED.total_size_bytes,
			last_accessed_at = EXCLUDED.last_accessed_at,
			updated_at = EXCLUDED.updated_at`,
		meta.SessionID, meta.ChunkCount, meta.TotalSizeBytes, meta.LastAccessedAt, meta.UpdatedAt)
	if err != nil {
		return &TransientError{Op: "put metadata", Err: err}
	}
	return nil
}

// DeleteMetadata removes a metadata record.
func (s *PostgresStore) DeleteMetadata(ctx context.Context, sessionID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM session_metadata WHERE session_id = $1`, sessionID); err != nil {
		return &TransientError{Op: "delete metadata", Err: err}
	}
	return nil
}

// ListMetadata returns all metadata records ordered by session ID.
func (s *PostgresStore) ListMetadata(ctx context.Context) ([]*SessionMetadata, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT session_id, chunk_count, total_size_bytes, last_accessed_at, updated_at
		 FROM session_metadata ORDER BY session_id`)
	if err != nil {
		return nil, &TransientError{Op: "list metadata", Err: err}
	}
	defer rows.Close()

	var out []*SessionMetadata
	for rows.Next() {
		meta := &SessionMetadata{}
		if err := rows.Scan(&meta.SessionID, &meta.ChunkCount, &meta.TotalSizeBytes,
			&meta.LastAccessedAt, &meta.UpdatedAt); err != nil {
			return nil, &TransientError{Op: "scan metadata", Err: err}
		}
		out = append(out, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: "list metadata", Err: err}
	}
	return out, nil
}

// GetChunk returns one chunk record.
func (s *PostgresStore) GetChunk(ctx context.Context, sessionID string, index int) (*ChunkRecord, error) {
	chunk := &ChunkRecord{SessionID: sessionID, ChunkIndex: index}
	err := s.pool.QueryRow(ctx,
		`SELECT payload, total_chunks FROM session_chunks
		 WHERE session_id = $1 AND chunk_index = $2`, sessionID, index).
		Scan(&chunk.Payload, &chunk.TotalChunks)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &TransientError{Op: "get chunk", Err: err}
	}
	return chunk, nil
}

// PutChunk creates or overwrites one chunk record.
func (s *PostgresStore) PutChunk(ctx context.Context, chunk *ChunkRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_chunks (session_id, chunk_index, payload, total_chunks)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, chunk_index) DO UPDATE SET
			payload = EXCLUDED.payload,
			total_chunks = EXCLUDED.total_chunks`,
		chunk.SessionID, chunk.ChunkIndex, chunk.Payload, chunk.TotalChunks)
	if err != nil {
		return &TransientError{Op: "put chunk", Err: err}
	}
	return nil
}

// DeleteChunks removes every chunk record for a session.
func (s *PostgresStore) DeleteChunks(ctx context.Context, sessionID string) error {
	return s.DeleteChunksFrom(ctx, sessionID, 0)
}

// DeleteChunksFrom removes chunk records with index >= from.
func (s *PostgresStore) DeleteChunksFrom(ctx context.Context, sessionID string, from int) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM session_chunks WHERE session_id = $1 AND chunk_index >= $2`,
		sessionID, from); err != nil {
		return &TransientError{Op: "delete chunks", Err: err}
	}
	return nil
}

// ListChunkSessions returns distinct session IDs present in the chunk
// table.
func (s *PostgresStore) ListChunkSessions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT session_id FROM session_chunks ORDER BY session_id`)
	if err != nil {
		return nil, &TransientError{Op: "list chunk sessions", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sessionID string
		if err := rows.Scan(&sessionID); err != nil {
			return nil, &TransientError{Op: "scan chunk session", Err: err}
		}
		out = append(out, sessionID)
	}
	if err := rows.Err(); err != nil {
		return nil, &TransientError{Op: "list chunk sessions", Err: err}
	}
	return out, nil
}

// TotalSize returns the aggregate chunk payload size in bytes.
func (s *PostgresStore) TotalSize(ctx context.Context) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(LENGTH(payload)), 0) FROM session_chunks`).Scan(&total)
	if err != nil {
		return 0, &TransientError{Op: "total size", Err: err}
	}
	return total, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
