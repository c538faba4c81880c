// Package classifier assigns a language tag (or "unknown/binary") to each
// file in a MaterializedTree, by extension first and a lightweight content
// heuristic on ambiguity.
package classifier

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/Clarence1208/PAMP-submissions-service/internal/domain"
)

const (
	// UnknownBinary is the language tag for excluded binary/unclassifiable files.
	UnknownBinary = "unknown/binary"

	sniffWindow       = 4096
	binaryNullRatio   = 0.01
	defaultByteCap    = 1 << 20 // 1 MiB
)

// Options configures classification limits.
type Options struct {
	// PerFileByteCap excludes files larger than this many bytes.
	PerFileByteCap int64
}

// DefaultOptions returns the spec's default per-file byte cap.
func DefaultOptions() Options {
	return Options{PerFileByteCap: defaultByteCap}
}

// byExtension is the closed extension table. Extensions absent here fall
// through to ambiguous-extension content sniffing, then to a shebang check,
// then to UnknownBinary.
var byExtension = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".java":  "java",
	".c":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".rs":    "rust",
	".php":   "php",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".swift": "swift",
	".scala": "scala",
	".sh":    "shell",
	".bash":  "shell",
	".pl":    "perl",
	".lua":   "lua",
	".sql":   "sql",
	".md":    "markdown",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".html":  "html",
	".css":   "css",
}

// ambiguousExtensions need a content rule to disambiguate (".h" is C or
// C++, ".m" is Objective-C or MATLAB).
var ambiguousExtensions = map[string]bool{
	".h": true,
	".m": true,
}

// Classify inspects one file on disk (rooted at root, relative path entry.RelPath)
// and returns its language tag and inclusion status. It never returns an
// error: unreadable or oversized files are simply excluded.
func Classify(root string, entry domain.FileEntry, opts Options) domain.FileEntry {
	out := entry
	if opts.PerFileByteCap > 0 && entry.Size > opts.PerFileByteCap {
		out.Status = domain.FileExcludedTooLarge
		out.Language = UnknownBinary
		return out
	}

	ext := strings.ToLower(filepath.Ext(entry.RelPath))
	head, err := readHead(filepath.Join(root, entry.RelPath), sniffWindow)
	if err != nil {
		out.Status = domain.FileExcludedBinary
		out.Language = UnknownBinary
		return out
	}

	if isBinary(head) {
		out.Status = domain.FileExcludedBinary
		out.Language = UnknownBinary
		return out
	}

	if lang, ok := byExtension[ext]; ok && !ambiguousExtensions[ext] {
		out.Language = lang
		out.Status = domain.FileIncluded
		return out
	}

	if ambiguousExtensions[ext] {
		out.Language = disambiguate(ext, head)
		out.Status = domain.FileIncluded
		return out
	}

	if shebangLang, ok := languageFromShebang(head); ok {
		out.Language = shebangLang
		out.Status = domain.FileIncluded
		return out
	}

	out.Language = UnknownBinary
	out.Status = domain.FileExcludedBinary
	return out
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := f.Read(buf)
	if err != nil && read == 0 {
		return nil, err
	}
	return buf[:read], nil
}

func isBinary(head []byte) bool {
	if len(head) == 0 {
		return false
	}
	nulls := bytes.Count(head, []byte{0})
	return float64(nulls)/float64(len(head)) > binaryNullRatio
}

func languageFromShebang(head []byte) (string, bool) {
	if !bytes.HasPrefix(head, []byte("#!")) {
		return "", false
	}
	line := head
	if idx := bytes.IndexByte(head, '\n'); idx >= 0 {
		line = head[:idx]
	}
	s := string(line)
	switch {
	case strings.Contains(s, "python"):
		return "python", true
	case strings.Contains(s, "bash"), strings.Contains(s, "/sh"):
		return "shell", true
	case strings.Contains(s, "ruby"):
		return "ruby", true
	case strings.Contains(s, "perl"):
		return "perl", true
	case strings.Contains(s, "node"):
		return "javascript", true
	default:
		return "", false
	}
}

// disambiguate resolves an extension that maps to more than one language
// using a few distinctive keyword hints.
func disambiguate(ext string, head []byte) string {
	s := string(head)
	switch ext {
	case ".h":
		if strings.Contains(s, "class ") || strings.Contains(s, "namespace ") || strings.Contains(s, "template<") {
			return "cpp"
		}
		return "c"
	case ".m":
		if strings.Contains(s, "@interface") || strings.Contains(s, "@implementation") {
			return "objective-c"
		}
		return "matlab"
	default:
		return UnknownBinary
	}
}
