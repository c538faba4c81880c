package tokenizer

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

// grammarSpec tells the generic leaf-walker how to classify one language's
// tree-sitter node types into canonical token kinds.
type grammarSpec struct {
	language *sitter.Language
	// identNodes are named leaf node types collapsed to IDENT.
	identNodes map[string]bool
	// numberNodes are named leaf node types collapsed to NUM.
	numberNodes map[string]bool
	// atomicStringNodes are named nodes treated as one STR token without
	// descending into children (tree-sitter string grammars often split a
	// string into start/content/end/escape sub-nodes).
	atomicStringNodes map[string]bool
	// commentNodes are named nodes dropped entirely.
	commentNodes map[string]bool
	// keywordNodes are anonymous node types kept verbatim as keywords
	// rather than classified as generic operators/punctuation.
	keywordNodes map[string]bool
}

type treeSitterTokenizer struct {
	spec grammarSpec
}

func (t *treeSitterTokenizer) Tokenize(path string, src []byte) (domain.TokenStream, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(t.spec.language)

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return domain.TokenStream{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	root := tree.RootNode()
	if root == nil {
		return domain.TokenStream{}, fmt.Errorf("parsing %s: empty tree", path)
	}

	var tokens []domain.Token
	walk(root, src, t.spec, &tokens)

	return domain.TokenStream{FilePath: path, Language: "", Tokens: tokens}, nil
}

func walk(node *sitter.Node, src []byte, spec grammarSpec, out *[]domain.Token) {
	typ := node.Type()

	if node.IsNamed() && spec.atomicStringNodes[typ] {
		*out = append(*out, domain.Token{
			Kind:    domain.TokenStringLit,
			Lexeme:  domain.CanonString,
			Span:    domain.Span{Start: int(node.StartByte()), End: int(node.EndByte())},
			Literal: string(src[node.StartByte():node.EndByte()]),
		})
		return
	}
	if node.IsNamed() && spec.commentNodes[typ] {
		return
	}

	if node.ChildCount() == 0 {
		text := string(src[node.StartByte():node.EndByte()])
		span := domain.Span{Start: int(node.StartByte()), End: int(node.EndByte())}
		if text == "" {
			return
		}
		switch {
		case node.IsNamed() && spec.identNodes[typ]:
			*out = append(*out, domain.Token{Kind: domain.TokenIdent, Lexeme: domain.CanonIdent, Span: span, Literal: text})
		case node.IsNamed() && spec.numberNodes[typ]:
			*out = append(*out, domain.Token{Kind: domain.TokenNumber, Lexeme: domain.CanonNumber, Span: span, Literal: text})
		case node.IsNamed() && spec.commentNodes[typ]:
			// dropped
		case !node.IsNamed() && spec.keywordNodes[typ]:
			*out = append(*out, domain.Token{Kind: domain.TokenKeyword, Lexeme: text, Span: span, Literal: text})
		case !node.IsNamed():
			*out = append(*out, domain.Token{Kind: classifyPunct(rune(text[0])), Lexeme: text, Span: span, Literal: text})
		default:
			// Unclassified named leaf (e.g. a raw literal token type this
			// grammar table doesn't enumerate): keep it verbatim rather
			// than silently dropping source content.
			*out = append(*out, domain.Token{Kind: domain.TokenIdent, Lexeme: text, Span: span, Literal: text})
		}
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walk(node.Child(i), src, spec, out)
	}
}

func init() {
	register("go", &treeSitterTokenizer{spec: grammarSpec{
		language: golang.GetLanguage(),
		identNodes: map[string]bool{
			"identifier": true, "field_identifier": true, "type_identifier": true,
			"package_identifier": true, "label_name": true,
		},
		numberNodes: map[string]bool{
			"int_literal": true, "float_literal": true, "imaginary_literal": true,
		},
		atomicStringNodes: map[string]bool{
			"interpreted_string_literal": true, "raw_string_literal": true, "rune_literal": true,
		},
		commentNodes: map[string]bool{"comment": true},
		keywordNodes: map[string]bool{
			"func": true, "package": true, "import": true, "var": true, "const": true,
			"type": true, "struct": true, "interface": true, "map": true, "chan": true,
			"go": true, "defer": true, "if": true, "else": true, "for": true, "range": true,
			"switch": true, "case": true, "default": true, "select": true, "return": true,
			"break": true, "continue": true, "goto": true, "fallthrough": true,
		},
	}})

	register("python", &treeSitterTokenizer{spec: grammarSpec{
		language: python.GetLanguage(),
		identNodes: map[string]bool{
			"identifier": true,
		},
		numberNodes: map[string]bool{
			"integer": true, "float": true,
		},
		atomicStringNodes: map[string]bool{
			"string": true,
		},
		commentNodes: map[string]bool{"comment": true},
		keywordNodes: map[string]bool{
			"def": true, "class": true, "return": true, "if": true, "elif": true,
			"else": true, "for": true, "while": true, "break": true, "continue": true,
			"import": true, "from": true, "as": true, "with": true, "try": true,
			"except": true, "finally": true, "raise": true, "lambda": true, "yield": true,
			"global": true, "nonlocal": true, "pass": true, "del": true, "assert": true,
			"async": true, "await": true, "and": true, "or": true, "not": true, "in": true, "is": true,
		},
	}})

	register("javascript", &treeSitterTokenizer{spec: grammarSpec{
		language: javascript.GetLanguage(),
		identNodes: map[string]bool{
			"identifier": true, "property_identifier": true, "shorthand_property_identifier": true,
		},
		numberNodes: map[string]bool{
			"number": true,
		},
		atomicStringNodes: map[string]bool{
			"string": true, "template_string": true, "regex": true,
		},
		commentNodes: map[string]bool{"comment": true},
		keywordNodes: map[string]bool{
			"function": true, "class": true, "return": true, "if": true, "else": true,
			"for": true, "while": true, "do": true, "break": true, "continue": true,
			"import": true, "export": true, "from": true, "as": true, "try": true,
			"catch": true, "finally": true, "throw": true, "new": true, "delete": true,
			"typeof": true, "instanceof": true, "in": true, "of": true, "var": true,
			"let": true, "const": true, "async": true, "await": true, "yield": true,
			"switch": true, "case": true, "default": true, "extends": true, "super": true,
			"this": true, "static": true, "get": true, "set": true,
		},
	}})
}
