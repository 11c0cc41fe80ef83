package record

import (
	"bytes"
	"encoding/json"

	"golang.org/x/text/encoding/charmap"
)

// Key is the opaque raw identifier of a record as returned by the store reader.
//
// Raw keys are arbitrary bytes. They are rendered through ISO-8859-1, which maps
// every byte to exactly one rune, so the rendering is lossless and reversible.
type Key []byte

// String renders the key through ISO-8859-1.
func (k Key) String() string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(k)
	if err != nil {
		// ISO-8859-1 decoding cannot fail; keep the raw bytes if it somehow does.
		return string(k)
	}
	return string(out)
}

// MarshalJSON emits the key as a JSON string instead of base64.
// HTML characters are not escaped.
func (k Key) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(k.String()); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON reverses MarshalJSON.
func (k *Key) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*k = KeyFromString(s)
	return nil
}

// KeyFromString builds a Key from its rendered form.
// Runes outside ISO-8859-1 are kept as UTF-8 bytes.
func KeyFromString(s string) Key {
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil {
		return Key(s)
	}
	return Key(raw)
}
