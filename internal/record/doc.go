// Package record defines the canonical output types of an extraction run.
//
// This package contains type definitions and small pure helpers only. All other
// internal packages import record; record imports nothing internal.
//
// Key constraints:
//   - Every ExtractedRecord carries a non-empty OriginFile and a non-nil Value
//   - State and Seq are reserved and always serialized as null
//   - Keys are rendered byte-for-byte through ISO-8859-1, never re-encoded
//   - All JSON tags use snake_case
package record
