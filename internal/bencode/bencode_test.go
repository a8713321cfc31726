package bencode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeWellFormed(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Value
	}{
		{"string", "4:spam", Value{Kind: String, Str: []byte("spam")}},
		{"empty string", "0:", Value{Kind: String, Str: []byte{}}},
		{"positive int", "i3e", Value{Kind: Integer, Int: 3}},
		{"zero", "i0e", Value{Kind: Integer, Int: 0}},
		{"negative int", "i-3e", Value{Kind: Integer, Int: -3}},
		{"empty list", "le", Value{Kind: List, List: []Value{}}},
		{"list", "l4:spam4:eggse", Value{Kind: List, List: []Value{
			{Kind: String, Str: []byte("spam")},
			{Kind: String, Str: []byte("eggs")},
		}}},
		{"empty dict", "de", Value{Kind: Dict, Dict: []Pair{}}},
		{"dict", "d3:cow3:moo4:spam4:eggse", Value{Kind: Dict, Dict: []Pair{
			{Key: []byte("cow"), Value: Value{Kind: String, Str: []byte("moo")}},
			{Key: []byte("spam"), Value: Value{Kind: String, Str: []byte("eggs")}},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, n := Decode([]byte(tc.in))
			require.Equal(t, len(tc.in), n)
			assert.Equal(t, tc.want.Kind, v.Kind)

			switch tc.want.Kind {
			case String:
				assert.Equal(t, tc.want.Str, v.Str)
			case Integer:
				assert.Equal(t, tc.want.Int, v.Int)
			case List:
				require.Len(t, v.List, len(tc.want.List))
			case Dict:
				require.Len(t, v.Dict, len(tc.want.Dict))
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"i01e",   // leading zero
		"i-0e",   // negative zero
		"ie",     // no digits
		"i e",    // non-digit
		"5:abc",  // string shorter than declared
		"-1:abc", // negative length looks like a dict-less char, not a digit
		"l",      // unterminated list
		"d1:ai0e", // unterminated dict (closing 'e' belongs to the integer)
		"d1:1:ai0ee", // malformed value after a valid key
		"i123",   // integer missing 'e'
	}

	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			v, n := Decode([]byte(in))
			assert.Equal(t, 0, n)
			assert.Equal(t, Value{}, v)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []string{
		"4:spam",
		"i3e",
		"i-3e",
		"i0e",
		"le",
		"l4:spam4:eggse",
		"de",
		"d3:cow3:moo4:spam4:eggse",
		"d4:infod6:lengthi92063e4:name9:sample.txtee",
	}

	for _, in := range cases {
		t.Run(in, func(t *testing.T) {
			v, n := Decode([]byte(in))
			require.Equal(t, len(in), n)

			got := Marshal(v)
			assert.Equal(t, in, string(got))
		})
	}
}

func TestEncodedLenMatchesEncode(t *testing.T) {
	v := Value{Kind: Dict, Dict: []Pair{
		{Key: []byte("cow"), Value: Value{Kind: String, Str: []byte("moo")}},
		{Key: []byte("spam"), Value: Value{Kind: String, Str: []byte("eggs")}},
	}}

	need := EncodedLen(v)
	buf := make([]byte, need)
	n := Encode(v, buf)
	require.Equal(t, need, n)

	// A too-small destination must fail rather than write a partial encoding.
	short := make([]byte, need-1)
	assert.Equal(t, 0, Encode(v, short))
}

func TestLookupIsOrderPreservingAndLinear(t *testing.T) {
	v := Value{Kind: Dict, Dict: []Pair{
		{Key: []byte("b"), Value: Value{Kind: Integer, Int: 2}},
		{Key: []byte("a"), Value: Value{Kind: Integer, Int: 1}},
	}}

	got, ok := Lookup(v, "a")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Int)

	_, ok = Lookup(v, "missing")
	assert.False(t, ok)

	// order must survive a round trip — map keys are never re-sorted.
	encoded := string(Marshal(v))
	assert.Equal(t, "d1:bi2e1:ai1ee", encoded)
}
