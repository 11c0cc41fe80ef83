// Package extract turns store-reader output into normalized forensic records.
//
// IndexedDB walks databases, then collections, then records, strictly in the
// order the reader reports them, so an unmodified store always yields the same
// output. Each record is normalized into exactly one record.Outcome:
//
//   - Accepted: appended to the output
//   - Skipped (no value): counted and logged, excluded
//   - Dropped (no provenance): excluded silently, not counted
//   - Failed (undecodable, normalizer error or panic): counted, diagnostic
//     kept, excluded
//
// A failing record never stops traversal. Failures of the reader itself
// (opening a database or collection, iterating a collection) are not isolated:
// they end the run and are returned together with the partial Result.
//
// LocalStorage and SessionStorage are the simpler extractors for the flat and
// host-keyed stores. They carry no provenance and have weaker guarantees.
//
// Nothing in this package keeps state between calls.
package extract
