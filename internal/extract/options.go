package extract

import (
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbforensics/internal/record"
)

// DefaultAllowlist names the object stores known to hold chat messages,
// contacts and session state.
var DefaultAllowlist = []string{"replychains", "conversations", "people", "buddylist"}

// Normalizer adjusts or rejects an accepted record. A returned error or a
// panic turns the record into a failure.
type Normalizer func(rec *record.ExtractedRecord) error

// Options configure one IndexedDB call.
type Options struct {
	// Allowlist is the set of known collection names.
	Allowlist []string
	// Filter opens only allowlisted collections. When false every collection
	// is opened and unknown ones are reported once each.
	Filter bool
	// RawDump sends every attempted record to the trail's raw sink.
	RawDump bool
	// Normalizers run in order on every complete record.
	Normalizers []Normalizer
}

// RequireFields rejects records of the listed stores whose value is not an
// object carrying every named field. Stores not in fields pass through.
func RequireFields(fields map[string][]string) Normalizer {
	return func(rec *record.ExtractedRecord) error {
		want := fields[rec.Store]
		if len(want) == 0 {
			return nil
		}
		obj, ok := rec.Value.(map[string]any)
		if !ok {
			return errors.Newf("value is %T, not an object", rec.Value)
		}
		var missing []string
		for _, name := range want {
			if _, ok := obj[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return errors.Newf("missing required field(s): %s", strings.Join(missing, ", "))
		}
		return nil
	}
}

// DefaultOptions restricts extraction to DefaultAllowlist.
func DefaultOptions() Options {
	return Options{
		Allowlist: slices.Clone(DefaultAllowlist),
		Filter:    true,
	}
}

func (o Options) allowSet() map[string]bool {
	set := make(map[string]bool, len(o.Allowlist))
	for _, name := range o.Allowlist {
		set[name] = true
	}
	return set
}
