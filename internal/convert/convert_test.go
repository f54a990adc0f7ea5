package convert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	c, ok := Lookup("json", false)
	require.True(t, ok)

	written, err := c.Write(map[string]interface{}{"a": float64(1)})
	require.NoError(t, err)

	read, err := c.Read(written)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"a": float64(1)}, read)
}

func TestDecimalRoundTripsAsString(t *testing.T) {
	c, ok := Lookup("decimal", false)
	require.True(t, ok)

	written, err := c.Write("123.456")
	require.NoError(t, err)

	read, err := c.Read(written)
	require.NoError(t, err)
	assert.Equal(t, "123.456", read)
}

func TestBlobWriteAcceptsStringOrBytes(t *testing.T) {
	c, ok := Lookup("blob", false)
	require.True(t, ok)

	got, err := c.Write("hello")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)

	got, err = c.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), got)
}

func TestSetWriteEmptyOrAbsentIsNull(t *testing.T) {
	c, ok := Lookup("string", true)
	require.True(t, ok)

	got, err := c.Write(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = c.Write([]interface{}{})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSetWriteLiftsElementConversion(t *testing.T) {
	c, ok := Lookup("decimal", true)
	require.True(t, ok)

	got, err := c.Write([]interface{}{"1.50", "2.00"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLookupUnknownType(t *testing.T) {
	_, ok := Lookup("nonsense", false)
	assert.False(t, ok)
}
