// Package output writes extraction results to durable JSON artifacts.
//
// Artifacts are pretty-printed (four-space indent), UTF-8, with non-ASCII and
// HTML characters preserved. Writes go to a temporary file in the destination
// directory and are renamed into place, so a failed write never truncates an
// existing artifact and never touches the caller's in-memory data.
package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/roach88/idbforensics/internal/record"
)

// ErrWrite marks every failure reported by this package.
var ErrWrite = errors.New("output write failed")

// Outcome reports what a write produced.
type Outcome struct {
	Path   string
	Count  int
	Bytes  int
	Digest string // SHA-256 over the written bytes, domain-separated
	Err    error
}

// OK reports whether the artifact was written.
func (o Outcome) OK() bool { return o.Err == nil }

// Write serializes records to dest. It never panics and never modifies
// records; failures are reported in the Outcome.
func Write(records []record.ExtractedRecord, dest string) Outcome {
	items := make([]any, len(records))
	for i, rec := range records {
		rec.Value = record.JSONSafe(rec.Value)
		items[i] = rec
	}
	out := writeJSON(items, dest)
	out.Count = len(records)
	return out
}

// WriteValues serializes a list of auxiliary-store entries to dest.
func WriteValues[T any](items []T, dest string) Outcome {
	if items == nil {
		items = []T{}
	}
	out := writeJSON(items, dest)
	out.Count = len(items)
	return out
}

// WriteJSON serializes any value to dest with the same format and guarantees.
func WriteJSON(v any, dest string) error {
	return writeJSON(v, dest).Err
}

// Marshal renders v in the artifact format. If v cannot be encoded as is,
// it is encoded again with unencodable leaves stringified.
func Marshal(v any) ([]byte, error) {
	data, err := encode(v)
	if err == nil {
		return data, nil
	}
	return encode(record.JSONSafe(v))
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(v any, dest string) Outcome {
	out := Outcome{Path: dest}

	data, err := Marshal(v)
	if err != nil {
		out.Err = errors.Mark(errors.Wrap(err, "encode output"), ErrWrite)
		return out
	}

	if err := atomicWrite(dest, data); err != nil {
		out.Err = errors.Mark(err, ErrWrite)
		return out
	}

	out.Bytes = len(data)
	out.Digest = record.Digest(record.DomainOutput, data)
	return out
}

// atomicWrite writes data to a temp file next to dest and renames it over dest.
func atomicWrite(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return errors.Wrapf(err, "chmod %s", tmpName)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return errors.Wrapf(err, "rename to %s", dest)
	}
	committed = true
	return nil
}
