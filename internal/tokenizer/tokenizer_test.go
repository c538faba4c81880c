package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

func TestForLanguage_Go_CollapsesIdentifiersAndKeepsKeywords(t *testing.T) {
	src := []byte("package main\n\nfunc add(a, b int) int {\n\treturn a + b // sum\n}\n")
	stream := ForLanguage("go", "main.go", src)
	require.NotEmpty(t, stream.Tokens)
	assert.Equal(t, "go", stream.Language)
	assert.Empty(t, stream.Warning)

	var sawIdent, sawKeyword bool
	for _, tok := range stream.Tokens {
		if tok.Kind == domain.TokenIdent {
			assert.Equal(t, domain.CanonIdent, tok.Lexeme)
			sawIdent = true
		}
		if tok.Kind == domain.TokenKeyword && tok.Lexeme == "func" {
			sawKeyword = true
		}
		assert.NotEqual(t, domain.TokenComment, tok.Kind)
	}
	assert.True(t, sawIdent)
	assert.True(t, sawKeyword)
}

func TestForLanguage_Go_RenameInvariance(t *testing.T) {
	srcA := []byte("package main\nfunc sum(x, y int) int { return x + y }\n")
	srcB := []byte("package main\nfunc total(first, second int) int { return first + second }\n")

	streamA := ForLanguage("go", "a.go", srcA)
	streamB := ForLanguage("go", "b.go", srcB)

	lexemesA := lexemes(streamA)
	lexemesB := lexemes(streamB)
	assert.Equal(t, lexemesA, lexemesB)
}

func lexemes(s domain.TokenStream) []string {
	out := make([]string, len(s.Tokens))
	for i, t := range s.Tokens {
		out[i] = t.Lexeme
	}
	return out
}

func TestForLanguage_UnsupportedLanguageUsesFallback(t *testing.T) {
	src := []byte("int main() { return 0; } // comment\n")
	stream := ForLanguage("c", "main.c", src)
	assert.Empty(t, stream.Warning)
	assert.NotEmpty(t, stream.Tokens)
}

func TestFallback_StringAndNumberCollapsing(t *testing.T) {
	src := []byte(`x = "hello" + 42`)
	stream := fallbackTokenize("x.txt", "unknown", src)

	var sawString, sawNumber bool
	for _, tok := range stream.Tokens {
		if tok.Lexeme == domain.CanonString {
			sawString = true
		}
		if tok.Lexeme == domain.CanonNumber {
			sawNumber = true
		}
	}
	assert.True(t, sawString)
	assert.True(t, sawNumber)
}

func TestFallback_DropsComments(t *testing.T) {
	src := []byte("value // trailing comment\nother")
	stream := fallbackTokenize("x.txt", "unknown", src)
	for _, tok := range stream.Tokens {
		assert.NotContains(t, tok.Literal, "trailing")
	}
}

func TestSupported_ListsGrammarLanguages(t *testing.T) {
	langs := Supported()
	assert.Contains(t, langs, "go")
	assert.Contains(t, langs, "python")
	assert.Contains(t, langs, "javascript")
}
