package record

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_StringIsByteForByte(t *testing.T) {
	k := Key{0x00, 0x41, 0xE9, 0xFF}

	s := k.String()
	assert.Equal(t, "\x00Aéÿ", s)
	assert.Equal(t, 4, len([]rune(s)), "every byte maps to exactly one rune")
}

func TestKey_MarshalJSONIsStringNotBase64(t *testing.T) {
	data, err := json.Marshal(Key("conv-1"))
	require.NoError(t, err)
	assert.Equal(t, `"conv-1"`, string(data))
}

func TestKey_JSONRoundTripPreservesBytes(t *testing.T) {
	orig := Key{0x01, 0x80, 0xC3, 0xA9, 0x7F}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var back Key
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, orig, back)
}

func TestKeyFromString(t *testing.T) {
	assert.Equal(t, Key{0xE9}, KeyFromString("é"))
	assert.Equal(t, Key("plain"), KeyFromString("plain"))

	// Outside Latin-1: kept as UTF-8
	assert.Equal(t, Key("€"), KeyFromString("€"))
}

func TestKey_MarshalJSONKeepsHTML(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(Key("<a&b>")))
	assert.Equal(t, "\"<a&b>\"\n", buf.String())
}

func TestKey_UnmarshalJSONOutsideLatin1(t *testing.T) {
	var k Key
	require.NoError(t, json.Unmarshal([]byte(`"€uro"`), &k))
	assert.Equal(t, Key("€uro"), k)
}
