package connector

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vdb/internal/value"
)

type constAdapter struct{ v value.Value }

func (constAdapter) Kind() value.Kind { return value.KindModel }

func (constAdapter) GetPaths(_ any, p value.Path) ([]value.Path, error) {
	return []value.Path{p}, nil
}

func (c constAdapter) GetValue(any, value.Path) (value.Value, error) { return c.v, nil }

func (constAdapter) Set(any, value.Path, value.Value) error { return nil }

func TestTrim(t *testing.T) {
	tests := []struct {
		name string
		in   value.Value
		want value.Value
	}{
		{"string", value.String("  hi \n"), value.String("hi")},
		{"number", value.Int(3), value.String("3")},
		{"undefined", nil, value.String("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Trim{}.Process(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimDereferences(t *testing.T) {
	ref, err := value.NewRef(constAdapter{v: value.String(" name ")}, nil, value.Path{"a"})
	require.NoError(t, err)

	got, err := Trim{}.Process(ref)
	require.NoError(t, err)
	assert.Equal(t, value.String("name"), got)
}

func TestFuncAndAbort(t *testing.T) {
	var c Connector = Func(func(v value.Value) (value.Value, error) {
		if v == nil {
			return nil, fmt.Errorf("empty input: %w", ErrAbort)
		}
		return v, nil
	})

	_, err := c.Process(nil)
	assert.True(t, IsAbort(err))

	got, err := c.Process(value.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), got)
}
