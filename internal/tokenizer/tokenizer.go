// Package tokenizer produces canonical TokenStreams from source files. Each
// language either has a grammar-backed implementation (tree-sitter) or
// falls back to a regex/whitespace tokenizer that still applies the same
// identifier/number/string canonicalization.
package tokenizer

import (
	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// Tokenizer turns raw source bytes into a canonical TokenStream. A
// tokenizer must never panic on malformed input; callers treat any
// returned error as a cue to fall back, recording a warning.
type Tokenizer interface {
	Tokenize(path string, src []byte) (domain.TokenStream, error)
}

// registry maps a language tag to its grammar-backed tokenizer. Languages
// absent here always use the fallback tokenizer.
var registry = map[string]Tokenizer{}

func register(lang string, t Tokenizer) { registry[lang] = t }

// Supported lists the languages with a dedicated grammar tokenizer.
func Supported() []string {
	out := make([]string, 0, len(registry))
	for lang := range registry {
		out = append(out, lang)
	}
	return out
}

// ForLanguage tokenizes src for the given language, using the grammar
// tokenizer if one is registered. Lex errors from the grammar tokenizer
// downgrade to the fallback tokenizer and set TokenStream.Warning; the
// fallback itself never errors.
func ForLanguage(lang, path string, src []byte) domain.TokenStream {
	if t, ok := registry[lang]; ok {
		stream, err := t.Tokenize(path, src)
		if err == nil {
			stream.Language = lang
			return stream
		}
		stream = fallbackTokenize(path, lang, src)
		stream.Warning = "grammar tokenizer failed: " + err.Error()
		return stream
	}
	return fallbackTokenize(path, lang, src)
}
