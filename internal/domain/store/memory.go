package store

import (
	"context"
	"sort"
	"sync"
)

type chunkKey struct {
	sessionID string
	index     int
}

// MemoryStore is an in-memory Store used in tests and single-node
// development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	metadata map[string]SessionMetadata
	chunks   map[chunkKey][]byte
	totals   map[chunkKey]int // TotalChunks as written
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		metadata: make(map[string]SessionMetadata),
		chunks:   make(map[chunkKey][]byte),
		totals:   make(map[chunkKey]int),
	}
}

// GetMetadata returns the metadata record for a session.
func (s *MemoryStore) GetMetadata(ctx context.Context, sessionID string) (*SessionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.metadata[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &meta, nil
}

// PutMetadata creates or overwrites a metadata record.
func (s *MemoryStore) PutMetadata(ctx context.Context, meta *SessionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metadata[meta.SessionID] = *meta
	return nil
}

// DeleteMetadata removes a metadata record. Deleting a missing record
// is not an error.
func (s *MemoryStore) DeleteMetadata(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.metadata, sessionID)
	return nil
}

// ListMetadata returns all metadata records ordered by session ID.
func (s *MemoryStore) ListMetadata(ctx context.Context) ([]*SessionMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*SessionMetadata, 0, len(s.metadata))
	for _, meta := range s.metadata {
		m := meta
		out = append(out, &m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out, nil
}

// GetChunk returns one chunk record.
func (s *MemoryStore) GetChunk(ctx context.Context, sessionID string, index int) (*ChunkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := chunkKey{sessionID, index}
	payload, ok := s.chunks[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return &ChunkRecord{
		SessionID:   sessionID,
		ChunkIndex:  index,
		Payload:     out,
		TotalChunks: s.totals[key],
	}, nil
}

// PutChunk creates or overwrites one chunk record.
func (s *MemoryStore) PutChunk(ctx context.Context, chunk *ChunkRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := make([]byte, len(chunk.Payload))
	copy(payload, chunk.Payload)
	key := chunkKey{chunk.SessionID, chunk.ChunkIndex}
	s.chunks[key] = payload
	s.totals[key] = chunk.TotalChunks
	return nil
}

// DeleteChunks removes every chunk record for a session.
func (s *MemoryStore) DeleteChunks(ctx context.Context, sessionID string) error {
	return s.DeleteChunksFrom(ctx, sessionID, 0)
}

// DeleteChunksFrom removes chunk records with index >= from.
func (s *MemoryStore) DeleteChunksFrom(ctx context.Context, sessionID string, from int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.chunks {
		if key.sessionID == sessionID && key.index >= from {
			delete(s.chunks, key)
			delete(s.totals, key)
		}
	}
	return nil
}

// ListChunkSessions returns distinct session IDs present in the chunk
// table.
func (s *MemoryStore) ListChunkSessions(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.chunks {
		seen[key.sessionID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for sessionID := range seen {
		out = append(out, sessionID)
	}
	sort.Strings(out)
	return out, nil
}

// TotalSize returns the aggregate chunk payload size.
func (s *MemoryStore) TotalSize(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, payload := range s.chunks {
		total += int64(len(payload))
	}
	return total, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() {}
