package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, `"simple"`, Quote("simple"))
	assert.Equal(t, `"a""b"`, Quote(`a"b`))
}

func TestValidPrefix(t *testing.T) {
	assert.Equal(t, "abc_123", ValidPrefix("abc_123.foo"))
	assert.Equal(t, "", ValidPrefix(".foo"))
	assert.Equal(t, "allword", ValidPrefix("allword"))
}

func TestMakeValidKeyPassthrough(t *testing.T) {
	assert.Equal(t, "already__valid", MakeValidKey("already_valid", 48))
}

func TestMakeValidKeyTruncatesAndHashes(t *testing.T) {
	long := strings.Repeat("a", 100)
	key := MakeValidKey(long, 26)
	require.Len(t, key, 26)
	assert.True(t, isValidKeyWord(key))
}

func TestMakeValidKeyDeterministic(t *testing.T) {
	name := "com.example.my-service!!"
	a := MakeValidKey(name, 26)
	b := MakeValidKey(name, 26)
	assert.Equal(t, a, b)
}

func TestMakeValidKeyDistinctForDistinctInputs(t *testing.T) {
	a := MakeValidKey("tenant-one.weird name", 26)
	b := MakeValidKey("tenant-two.weird name", 26)
	assert.NotEqual(t, a, b)
}

func TestKeyspaceNameShape(t *testing.T) {
	ks := KeyspaceName(ReverseDomain("example.com"), "users")
	assert.LessOrEqual(t, len(ks), 48)
	assert.Contains(t, ks, "_T_")
	assert.True(t, ks[0] >= 'a' && ks[0] <= 'z' || ks[0] >= 'A' && ks[0] <= 'Z')
}

func TestKeyspaceNameLongTableName(t *testing.T) {
	ks := KeyspaceName(ReverseDomain("example.com"), strings.Repeat("table", 20))
	assert.LessOrEqual(t, len(ks), 48)
}

func TestReverseDomain(t *testing.T) {
	assert.Equal(t, "com.example.www", ReverseDomain("www.example.com"))
}
