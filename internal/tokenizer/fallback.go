package tokenizer

import (
	"unicode"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// fallbackTokenize is the regex/whitespace tokenizer used for every
// language without a dedicated grammar. It applies the same
// identifier/number/string collapsing via simple character classes rather
// than a grammar, so unsupported languages still participate in
// fingerprinting.
func fallbackTokenize(path, lang string, src []byte) domain.TokenStream {
	var tokens []domain.Token
	runes := []rune(string(src))
	n := len(runes)
	// byteOffsets[i] is the byte offset of runes[i] in src.
	byteOffsets := make([]int, n+1)
	{
		off := 0
		for i, r := range runes {
			byteOffsets[i] = off
			off += utf8RuneLen(r)
		}
		byteOffsets[n] = off
	}

	i := 0
	for i < n {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '/' && i+1 < n && runes[i+1] == '/':
			start := i
			for i < n && runes[i] != '\n' {
				i++
			}
			_ = start // comments are dropped, not emitted

		case r == '/' && i+1 < n && runes[i+1] == '*':
			i += 2
			for i+1 < n && !(runes[i] == '*' && runes[i+1] == '/') {
				i++
			}
			i += 2
			if i > n {
				i = n
			}

		case r == '#':
			for i < n && runes[i] != '\n' {
				i++
			}

		case r == '"' || r == '\'' || r == '`':
			quote := r
			start := i
			i++
			for i < n && runes[i] != quote {
				if runes[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				i++
			}
			if i < n {
				i++
			}
			tokens = append(tokens, domain.Token{
				Kind:    domain.TokenStringLit,
				Lexeme:  domain.CanonString,
				Span:    domain.Span{Start: byteOffsets[start], End: byteOffsets[i]},
				Literal: string(runes[start:i]),
			})

		case unicode.IsDigit(r):
			start := i
			for i < n && (unicode.IsDigit(runes[i]) || runes[i] == '.' || runes[i] == '_' ||
				runes[i] == 'x' || runes[i] == 'X' || isHexDigit(runes[i])) {
				i++
			}
			tokens = append(tokens, domain.Token{
				Kind:    domain.TokenNumber,
				Lexeme:  domain.CanonNumber,
				Span:    domain.Span{Start: byteOffsets[start], End: byteOffsets[i]},
				Literal: string(runes[start:i]),
			})

		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < n && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			word := string(runes[start:i])
			kind := domain.TokenIdent
			lexeme := domain.CanonIdent
			if genericKeywords[word] {
				kind = domain.TokenKeyword
				lexeme = word
			}
			tokens = append(tokens, domain.Token{
				Kind:    kind,
				Lexeme:  lexeme,
				Span:    domain.Span{Start: byteOffsets[start], End: byteOffsets[i]},
				Literal: word,
			})

		default:
			start := i
			i++
			// Greedily absorb common multi-char operators.
			if i < n && isOperatorRune(r) && isOperatorRune(runes[i]) {
				i++
			}
			tokens = append(tokens, domain.Token{
				Kind:    classifyPunct(r),
				Lexeme:  string(runes[start:i]),
				Span:    domain.Span{Start: byteOffsets[start], End: byteOffsets[i]},
				Literal: string(runes[start:i]),
			})
		}
	}

	return domain.TokenStream{FilePath: path, Language: lang, Tokens: tokens}
}

func utf8RuneLen(r rune) int {
	switch {
	case r < 0x80:
		return 1
	case r < 0x800:
		return 2
	case r < 0x10000:
		return 3
	default:
		return 4
	}
}

func isHexDigit(r rune) bool {
	return (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isOperatorRune(r rune) bool {
	switch r {
	case '+', '-', '*', '/', '%', '=', '!', '<', '>', '&', '|', '^', ':':
		return true
	default:
		return false
	}
}

func classifyPunct(r rune) domain.TokenKind {
	switch r {
	case '(', ')', '[', ']', '{', '}', ',', ';', '.':
		return domain.TokenPunct
	default:
		return domain.TokenOp
	}
}

// genericKeywords is a deliberately broad, cross-language keyword set used
// only by the fallback tokenizer: it keeps obviously reserved words
// verbatim rather than collapsing them to IDENT, even without a grammar.
var genericKeywords = map[string]bool{
	"if": true, "else": true, "for": true, "while": true, "do": true,
	"return": true, "break": true, "continue": true, "switch": true,
	"case": true, "default": true, "function": true, "def": true,
	"class": true, "struct": true, "interface": true, "import": true,
	"package": true, "public": true, "private": true, "protected": true,
	"static": true, "void": true, "const": true, "var": true, "let": true,
	"try": true, "catch": true, "finally": true, "throw": true, "new": true,
	"true": true, "false": true, "null": true, "nil": true, "none": true,
}
