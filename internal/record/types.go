package record

// NotAvailable is the provenance placeholder used on diagnostics whose origin is unknown.
const NotAvailable = "N/A"

// MaxFragmentRunes bounds FailedRecord.ValueFragment.
const MaxFragmentRunes = 500

// ExtractedRecord is the canonical output unit of an IndexedDB extraction.
type ExtractedRecord struct {
	Key        Key    `json:"key"`
	Value      any    `json:"value"`
	OriginFile string `json:"origin_file"`
	Store      string `json:"store"`

	// Reserved for a later reconciliation stage. Always nil here.
	State *string `json:"state"`
	Seq   *int64  `json:"seq"`
}

// FailedRecord describes a record that was located but could not be normalized.
// It never appears in the primary output.
type FailedRecord struct {
	Key           Key    `json:"key"`
	OriginFile    string `json:"origin_file"`
	Store         string `json:"store"`
	Error         string `json:"error"`
	ValueFragment string `json:"value_fragment"`
}

// SessionEntry is one (host, version) pair flattened out of a host-keyed store.
type SessionEntry struct {
	Key             string `json:"key"`
	Value           string `json:"value"`
	GUID            string `json:"guid"`
	LevelDBSequence int64  `json:"leveldb_sequence_number"`
	Seq             int64  `json:"seq"`
}
