package reader

import "github.com/roach88/idbforensics/internal/record"

// Reason says why a raw record is incomplete.
type Reason int

const (
	// MissingValue: the record has no value (absent or null).
	MissingValue Reason = iota + 1
	// MissingOrigin: the record has no provenance.
	MissingOrigin
	// Undecodable: the reader located the record but could not decode it.
	Undecodable
)

func (r Reason) String() string {
	switch r {
	case MissingValue:
		return "missing value"
	case MissingOrigin:
		return "missing origin file"
	case Undecodable:
		return "undecodable"
	default:
		return "unknown"
	}
}

// RawRecord is a record as yielded by a collection.
// Only Complete and Incomplete implement it.
type RawRecord interface {
	RecordKey() record.Key
	rawRecord() // Sealed
}

// Complete is a record with a key, a value and provenance.
type Complete struct {
	Key        record.Key
	Value      any
	OriginFile string
}

// Incomplete is a record missing something. Whatever was recovered is kept.
type Incomplete struct {
	Key        record.Key
	Value      any
	OriginFile string
	Reason     Reason
	Err        error // set when Reason is Undecodable
}

func (c Complete) RecordKey() record.Key   { return c.Key }
func (i Incomplete) RecordKey() record.Key { return i.Key }
func (Complete) rawRecord()                {}
func (Incomplete) rawRecord()              {}

// Resolve classifies the pieces a reader recovered for one record.
// decodeErr takes precedence, then a missing value, then missing provenance.
func Resolve(key record.Key, value any, originFile string, decodeErr error) RawRecord {
	switch {
	case decodeErr != nil:
		return Incomplete{Key: key, Value: value, OriginFile: originFile, Reason: Undecodable, Err: decodeErr}
	case value == nil:
		return Incomplete{Key: key, OriginFile: originFile, Reason: MissingValue}
	case originFile == "":
		return Incomplete{Key: key, Value: value, Reason: MissingOrigin}
	default:
		return Complete{Key: key, Value: value, OriginFile: originFile}
	}
}
