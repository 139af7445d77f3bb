package openmath_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd/openmath"
)

func TestMarshalRoundTrip(t *testing.T) {
	want := openmath.Wrap(openmath.App1(
		openmath.Sym("scscp1", "procedure_completed"),
		openmath.IntObj(3),
	))
	data, err := openmath.Marshal(want)
	require.NoError(t, err)

	p := openmath.NewParser()
	p.Feed(data)
	got, err := p.Close()
	require.NoError(t, err)

	require.Equal(t, openmath.OBJ, got.Kind)
	call := got.Children[0]
	assert.True(t, call.Children[0].Is("scscp1", "procedure_completed"))
	assert.Equal(t, int64(3), call.Children[1].Int)
}

func TestMarshalSymbolAttributes(t *testing.T) {
	data, err := openmath.Marshal(openmath.Wrap(openmath.Sym("arith1", "plus")))
	require.NoError(t, err)
	assert.Contains(t, string(data), `cd="arith1"`)
	assert.Contains(t, string(data), `name="plus"`)
}

func TestMarshalString(t *testing.T) {
	data, err := openmath.Marshal(openmath.Wrap(openmath.StrObj("hello world")))
	require.NoError(t, err)

	p := openmath.NewParser()
	p.Feed(data)
	got, err := p.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello world", got.Children[0].Str)
}
