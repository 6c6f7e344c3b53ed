package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n\t\n", "... --- ..."} {
		_, err := New(raw)
		require.ErrorIs(t, err, ErrEmptyDocument, "input %q", raw)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Access Control", "access control"},
		{"ACCESS  CONTROL", "access control"},
		{"access-control", "access control"},
		{"Passwords must be changed every 90 days.", "passwords must be changed every 90 days"},
		{"line\none\n\nline two", "line one line two"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in), "input %q", tc.in)
	}
}

func TestContains(t *testing.T) {
	doc, err := New("We maintain strict Access-Control and conduct annual audits.")
	require.NoError(t, err)

	assert.True(t, doc.Contains("access control"), "punctuation folds to spaces")
	assert.True(t, doc.Contains("annual audits"))
	assert.False(t, doc.Contains("incident response plan"))
	assert.False(t, doc.Contains(""))
}

func TestSentences(t *testing.T) {
	doc, err := New("First sentence. Second one!\nThird?   ")
	require.NoError(t, err)
	assert.Equal(t, []string{"First sentence", "Second one", "Third"}, doc.Sentences())
}
