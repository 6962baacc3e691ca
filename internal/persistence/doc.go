// Package persistence stores registry snapshots durably.
//
// A Snapshot carries the exported groups and cues blobs. Store
// implementations keep only the latest snapshot:
//
//   - SQLiteStore writes both blobs in one transaction (default backend)
//   - RedisStore writes both keys in one MULTI/EXEC pipeline
//
// Saver sits between the controller and a Store. Requests never block the
// caller; bursts of requests collapse into a single write of the newest
// snapshot.
package persistence
