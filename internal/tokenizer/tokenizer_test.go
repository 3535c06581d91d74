package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize_SplitsOnWhitespace(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("hello world")
	require.Len(t, tokens, 2)
	assert.Equal(t, "hello", tokens[0])
	assert.Equal(t, "world", tokens[1])
}

func TestTokenize_Lowercases(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("Hello WORLD")
	assert.Equal(t, []string{"hello", "world"}, tokens)
}

func TestTokenize_DropsShortASCIITerms(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("a an is ok cats")
	assert.Equal(t, []string{"cats"}, tokens)
}

func TestTokenize_DropsPunctuation(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("foo.bar(baz, qux)")
	assert.Equal(t, []string{"foo", "bar", "baz", "qux"}, tokens)
}

func TestTokenize_PreservesCJKSingleCharTerms(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("机器学习 is great")
	// Each CJK ideograph is its own unit-length token; "is" is dropped
	// for falling under the ASCII minimum, "great" survives.
	assert.Equal(t, []string{"机", "器", "学", "习", "great"}, tokens)
}

func TestTokenize_MixedScriptBoundary(t *testing.T) {
	tok := New(nil)
	tokens := tok.Tokenize("hello世界")
	assert.Equal(t, []string{"hello", "世", "界"}, tokens)
}

func TestTokenize_StopWordFiltering(t *testing.T) {
	tok := New(DefaultProseStopWords)
	tokens := tok.Tokenize("the cat and the dog")
	assert.Equal(t, []string{"cat", "dog"}, tokens)
}

func TestTokenize_Empty(t *testing.T) {
	tok := New(nil)
	assert.Empty(t, tok.Tokenize(""))
	assert.Empty(t, tok.Tokenize("   "))
}

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect []string
	}{
		{"simple camel", "getUserById", []string{"get", "User", "By", "Id"}},
		{"acronym prefix", "HTTPHandler", []string{"HTTP", "Handler"}},
		{"acronym middle", "parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"empty", "", []string{}},
		{"single word", "word", []string{"word"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, SplitCamelCase(tt.input))
		})
	}
}
