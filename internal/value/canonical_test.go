package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    Value
		expected string
	}{
		{"undefined", nil, "null"},
		{"null", Null{}, "null"},
		{"string", String("hello"), `"hello"`},
		{"int", Int(-100), "-100"},
		{"float", Float(1.25), "1.25"},
		{"bool", Bool(false), "false"},
		{"empty seq", Seq{}, "[]"},
		{"empty map", Map{}, "{}"},
		{"nested", Map{"z": Seq{Int(1)}, "a": Map{"b": Null{}}}, `{"a":{"b":null},"z":[1]}`},
		{"no html escaping", String("<a&b>"), `"<a&b>"`},
		{"control chars", String("a\nb\x01"), `"a\nb\u0001"`},
		{"line separator kept", String("x\u2028y"), "\"x\u2028y\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair (0xD800...) which sorts before U+E000
	m := Map{
		"\uE000":     Int(1),
		"\U00010000": Int(2),
	}

	result, err := MarshalCanonical(m)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	result, err := MarshalCanonical(String("e\u0301"))
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(result))
}

func TestMarshalCanonicalRef(t *testing.T) {
	r, err := NewRef(newStub(KindView), nil, Path{"value"})
	require.NoError(t, err)

	result, err := MarshalCanonical(Seq{r})
	require.NoError(t, err)
	assert.Equal(t, `[{"$ref":"view:value"}]`, string(result))
}
