package session

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/domain/store"
	"github.com/rolvdeihai/whatsapp-bot-dashboard-sub000/internal/infrastructure/monitoring"
)

// Chunker moves blobs in and out of the remote store in ordered parts.
// Blobs at or below the single-object threshold travel as one chunk;
// larger blobs are split into fixed-size parts. Every part transfer is
// a discrete store call under its own timeout.
type Chunker struct {
	remote    store.Store
	chunkSize int64
	threshold int64
	opTimeout time.Duration
	metrics   *monitoring.Metrics
}

// NewChunker creates a chunker over the given store handle.
func NewChunker(remote store.Store, chunkSize, threshold int64, opTimeout time.Duration) *Chunker {
	return &Chunker{
		remote:    remote,
		chunkSize: chunkSize,
		threshold: threshold,
		opTimeout: opTimeout,
	}
}

// WithMetrics attaches a metrics collector.
func (c *Chunker) WithMetrics(m *monitoring.Metrics) *Chunker {
	c.metrics = m
	return c
}

// Split divides a blob into ordered parts. A blob at or below the
// threshold stays a single part regardless of chunk size.
func (c *Chunker) Split(blob []byte) [][]byte {
	if int64(len(blob)) <= c.threshold {
		return [][]byte{blob}
	}

	count := int((int64(len(blob)) + c.chunkSize - 1) / c.chunkSize)
	parts := make([][]byte, 0, count)
	for start := int64(0); start < int64(len(blob)); start += c.chunkSize {
		end := start + c.chunkSize
		if end > int64(len(blob)) {
			end = int64(len(blob))
		}
		parts = append(parts, blob[start:end])
	}
	return parts
}

// Upload writes the full chunk set for a blob and returns the chunk
// count. Parts are uploaded in order; the first failure aborts.
func (c *Chunker) Upload(ctx context.Context, sessionID string, blob []byte) (int, error) {
	parts := c.Split(blob)
	total := len(parts)

	for index, part := range parts {
		if err := c.putPart(ctx, &store.ChunkRecord{
			SessionID:   sessionID,
			ChunkIndex:  index,
			Payload:     part,
			TotalChunks: total,
		}); err != nil {
			return 0, fmt.Errorf("upload chunk %d/%d: %w", index, total, err)
		}
	}
	return total, nil
}

// Download retrieves chunkCount parts and reassembles the blob.
// Reassembly is fail-closed: a missing or short part fails the whole
// download rather than producing a truncated blob.
func (c *Chunker) Download(ctx context.Context, sessionID string, chunkCount int, wantSize int64) ([]byte, error) {
	if chunkCount <= 0 {
		return nil, fmt.Errorf("invalid chunk count %d for session %s", chunkCount, sessionID)
	}

	parts := make([]*store.ChunkRecord, 0, chunkCount)
	for index := 0; index < chunkCount; index++ {
		chunk, err := c.getPart(ctx, sessionID, index)
		if err != nil {
			return nil, fmt.Errorf("download chunk %d/%d: %w", index, chunkCount, err)
		}
		parts = append(parts, chunk)
	}

	return Join(parts, chunkCount, wantSize)
}

// Join concatenates chunk records into one blob. Parts are sorted by
// index first, independent of the order the store returned them. The
// set must be exactly the indexes 0..total-1 and the combined size
// must match wantSize when wantSize >= 0.
func Join(parts []*store.ChunkRecord, total int, wantSize int64) ([]byte, error) {
	if len(parts) != total {
		return nil, fmt.Errorf("incomplete chunk set: have %d of %d", len(parts), total)
	}

	sorted := make([]*store.ChunkRecord, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkIndex < sorted[j].ChunkIndex })

	var size int64
	for want, chunk := range sorted {
		if chunk.ChunkIndex != want {
			return nil, fmt.Errorf("chunk index gap: expected %d, got %d", want, chunk.ChunkIndex)
		}
		size += int64(len(chunk.Payload))
	}
	if wantSize >= 0 && size != wantSize {
		return nil, fmt.Errorf("reassembled size %d does not match recorded size %d", size, wantSize)
	}

	blob := make([]byte, 0, size)
	for _, chunk := range sorted {
		blob = append(blob, chunk.Payload...)
	}
	return blob, nil
}

func (c *Chunker) putPart(ctx context.Context, chunk *store.ChunkRecord) error {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	err := c.remote.PutChunk(opCtx, chunk)
	c.recordOp("upload", err)
	return err
}

func (c *Chunker) getPart(ctx context.Context, sessionID string, index int) (*store.ChunkRecord, error) {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()
	chunk, err := c.remote.GetChunk(opCtx, sessionID, index)
	c.recordOp("download", err)
	return chunk, err
}

func (c *Chunker) recordOp(op string, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ChunkOps.WithLabelValues(op, outcome).Inc()
}
