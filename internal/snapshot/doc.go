// Package snapshot implements the store reader over a SQLite snapshot.
//
// A snapshot is what an external LevelDB/IndexedDB decoder leaves behind: one
// row per logical database, object store, record, local-storage entry and
// session-storage version, already decoded to JSON text. This package only
// reads it (extraction opens the file read-only) and, for the import command
// and tests, writes it from an in-memory store.
//
// # Ordering
//
// Row ids preserve the decoder's reported order. Every query orders by
// position and id ascending, so an unmodified snapshot always yields the same
// sequence.
//
// # Record resolution
//
//   - value NULL (or JSON null), no blob: missing value
//   - blob_ref set: value is read from the blob directory
//   - origin_file NULL or empty: missing provenance
//   - decode_error set, unreadable blob, blob_ref without a blob directory or
//     invalid JSON: undecodable, keeping whatever text was recovered
//
// # Database Configuration
//
// Writable snapshots use the same pragmas as every other SQLite file in this
// module: WAL, synchronous=NORMAL, busy_timeout=5000, foreign_keys=ON.
package snapshot
