package record

// Outcome is the result of normalizing one raw record.
// Only Accepted, Skipped, Dropped and Failed implement it.
type Outcome interface {
	outcome() // Sealed
}

// Accepted carries a record that goes to the primary output.
type Accepted struct {
	Record ExtractedRecord
}

// Skipped marks a record without a value. Skips are tallied and logged.
type Skipped struct {
	Reason string
}

// Dropped marks a record without provenance. Drops are neither tallied nor logged.
type Dropped struct {
	Reason string
}

// Failed carries the diagnostic of a record that could not be normalized.
type Failed struct {
	Diagnostic FailedRecord
}

func (Accepted) outcome() {}
func (Skipped) outcome()  {}
func (Dropped) outcome()  {}
func (Failed) outcome()   {}
