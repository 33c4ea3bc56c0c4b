// Package session persists and restores the opaque browser session
// blob that keeps the bot paired across restarts.
//
// Components:
//   - Chunker: splits a blob into ordered parts sized for the remote
//     store and reassembles them fail-closed
//   - Manager: the durable sessionId -> blob map (save/extract/delete)
//   - Archiver: packs the auth-state subset of the working profile
//     directory into a tar.gz blob and verifies restored structure
//
// Save Path:
//  1. Archiver.Pack the working directory (auth state only)
//  2. Manager.Save uploads the chunk set, then swaps the metadata
//     record, then prunes stale tail chunks
//
// Restore Path:
//  1. Manager.Extract downloads every recorded chunk (any missing part
//     fails the whole restore)
//  2. Archiver.Unpack clears the target, extracts, verifies structure
package session
