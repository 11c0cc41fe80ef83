// Package reader defines the store-reader collaborator consumed by extraction.
//
// A Store exposes logical databases, each database exposes named collections
// ("object stores"), and each collection yields a lazy sequence of raw records.
// Decoding of the physical storage format happens behind these interfaces; the
// extraction pipeline never mutates a Store.
//
// Raw records are resolved once, at the reader boundary, into the RawRecord sum
// type: Complete or Incomplete with an explicit Reason. Errors yielded by a
// record sequence are collection-level and fatal; per-record decode failures are
// reported as Incomplete{Reason: Undecodable}.
//
// Ordering: databases, collections and records are always reported in a stable
// order so that two reads of an unmodified source are identical.
package reader
