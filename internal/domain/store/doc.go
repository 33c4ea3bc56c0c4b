// Package store defines the remote session store contract and its
// backends.
//
// The logical schema is two tables:
//   - session_metadata: one record per session (chunk count, size,
//     access timestamps)
//   - session_chunks: the ordered chunk set keyed (session_id, chunk_index)
//
// Any backend satisfying Store is compliant; the Postgres backend is
// the production one, the in-memory backend backs tests. The invariant
// both must keep: a session's chunk set is only meaningful together
// with its metadata record, and readers treat the metadata chunk count
// as the source of truth.
package store
