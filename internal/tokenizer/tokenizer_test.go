package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharApprox_Count(t *testing.T) {
	var tok CharApprox
	assert.Equal(t, 0, tok.Count(""))
	assert.Equal(t, 0, tok.Count("abc"))
	assert.Equal(t, 1, tok.Count("abcd"))
	assert.Equal(t, 2, tok.Count("abcdefgh"))
}

func TestCharApprox_Truncate(t *testing.T) {
	var tok CharApprox
	assert.Equal(t, "", tok.Truncate("hello world", 0))
	assert.Equal(t, "hello world", tok.Truncate("hello world", 100))
	assert.Equal(t, "hell", tok.Truncate("hello world", 1))
}

func TestCharApprox_TruncateDoesNotSplitRunes(t *testing.T) {
	var tok CharApprox
	s := "aééé" // a + 3 accented e's
	got := tok.Truncate(s, 1)
	assert.True(t, strings.ContainsRune(got, 'a'))
	for _, r := range got {
		assert.NotEqual(t, rune(0xFFFD), r, "truncation must not produce invalid runes")
	}
}

func TestLoad(t *testing.T) {
	tok, err := Load("")
	require.NoError(t, err)
	assert.IsType(t, CharApprox{}, tok)

	tok, err = Load("approx")
	require.NoError(t, err)
	assert.IsType(t, CharApprox{}, tok)

	_, err = Load("bpe")
	assert.Error(t, err)
}
