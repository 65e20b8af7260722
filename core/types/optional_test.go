package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptional_ZeroValueIsUnset(t *testing.T) {
	var o Optional[int]
	assert.False(t, o.IsSet())

	v, ok := o.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 7, o.OrElse(7))
	assert.Equal(t, "<unset>", o.String())
}

func TestOptional_SetToZeroIsDistinct(t *testing.T) {
	o := Some(false)
	assert.True(t, o.IsSet())

	v, ok := o.Get()
	assert.True(t, ok)
	assert.False(t, v)
	assert.NotEqual(t, None[bool](), o)
}

func TestOptional_Comparable(t *testing.T) {
	assert.Equal(t, Some("a"), Some("a"))
	assert.True(t, Some("a") == Some("a"))
	assert.False(t, Some("") == None[string]())
}

func TestOptional_MustGetPanicsWhenUnset(t *testing.T) {
	assert.Panics(t, func() { None[string]().MustGet() })
	assert.Equal(t, "x", Some("x").MustGet())
}

func TestOptional_JSON(t *testing.T) {
	type payload struct {
		A Optional[string] `json:"a"`
		B Optional[int]    `json:"b"`
	}

	data, err := json.Marshal(payload{A: Some("x")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":null}`, string(data))

	var decoded payload
	require.NoError(t, json.Unmarshal([]byte(`{"a":"y","b":0}`), &decoded))
	assert.Equal(t, Some("y"), decoded.A)
	assert.Equal(t, Some(0), decoded.B)

	require.NoError(t, json.Unmarshal([]byte(`{"b":null}`), &decoded))
	assert.False(t, decoded.B.IsSet())
}
