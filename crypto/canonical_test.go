package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanonicalizeSortsKeys(t *testing.T) {
	out, err := Canonicalize([]byte(`{"b":1,"a":2,"c":{"z":1,"y":2}}`))
	require.NoError(t, err)
	require.Equal(t, `{"a":2,"b":1,"c":{"y":2,"z":1}}`, string(out))
}

func TestCanonicalizeIdempotent(t *testing.T) {
	once, err := Canonicalize([]byte(`{"y": 1, "x": [3, 2, 1], "z": "hi"}`))
	require.NoError(t, err)

	twice, err := Canonicalize(once)
	require.NoError(t, err)

	require.Equal(t, once, twice)
}

func TestCanonicalizeStripsWhitespace(t *testing.T) {
	out, err := Canonicalize([]byte("{\n  \"a\" : 1 ,\n  \"b\": [1, 2]\n}\n"))
	require.NoError(t, err)
	require.Equal(t, `{"a":1,"b":[1,2]}`, string(out))
}

func TestCanonicalizeRejectsInvalidJSON(t *testing.T) {
	_, err := Canonicalize([]byte(`{not json`))
	require.Error(t, err)
}

func TestCanonicalizeNoHTMLEscaping(t *testing.T) {
	out, err := Canonicalize([]byte(`{"line":"a < b && c > d"}`))
	require.NoError(t, err)
	require.Equal(t, `{"line":"a < b && c > d"}`, string(out))
}
