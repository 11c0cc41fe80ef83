package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/idbforensics/internal/audit"
	"github.com/roach88/idbforensics/internal/reader"
)

// LocalStorage returns the JSON-parsed value of every flat-store record, in
// reader order. Unparseable values are left out without a diagnostic.
// Reader errors end the call and are returned with the values gathered so far.
func LocalStorage(ctx context.Context, store reader.LocalStore, trail *audit.Trail) ([]any, error) {
	if trail == nil {
		trail = audit.Nop()
	}
	values := []any{}
	seen := 0
	for rec, err := range store.LocalRecords(ctx) {
		if err != nil {
			err = errors.Wrap(err, "read local storage")
			trail.Fatal(err)
			return values, err
		}
		seen++
		if v, ok := parseLenient(rec.Value); ok {
			values = append(values, v)
		}
	}
	trail.Debug().Info("local storage processed", zap.Int("records", seen), zap.Int("parsed", len(values)))
	return values, nil
}

// parseLenient decodes the first JSON value of text. Trailing data is
// ignored, and raw control characters inside strings are escaped on a retry.
func parseLenient(text string) (any, bool) {
	if v, err := decodeFirst([]byte(text)); err == nil {
		return v, true
	}
	if v, err := decodeFirst(escapeControlChars([]byte(text))); err == nil {
		return v, true
	}
	return nil, false
}

func decodeFirst(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// escapeControlChars rewrites bytes below 0x20 found inside JSON strings as
// \u00XX escapes.
func escapeControlChars(data []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(data))
	inString, escaped := false, false
	for _, b := range data {
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString && b < 0x20:
			fmt.Fprintf(&out, `\u%04x`, b)
			continue
		}
		out.WriteByte(b)
	}
	return out.Bytes()
}
