// Package highlight maps chat code-block language identifiers onto a
// fixed set of grammars and renders code to HTML. Both entry points
// degrade to a plain-text rendering instead of failing, so callers can
// feed them anything a user typed into a message.
package highlight

import (
	"sort"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// PlainText is the fallback grammar id. It is always resolvable.
const PlainText = "plaintext"

const defaultStyle = "monokai"

// grammars maps a canonical language id to the name chroma resolves it
// under. Built once, never mutated after init.
var grammars = map[string]string{
	"bash":       "bash",
	"c":          "c",
	"cpp":        "cpp",
	"csharp":     "csharp",
	"css":        "css",
	"dockerfile": "docker",
	"go":         "go",
	"graphql":    "graphql",
	"html":       "html",
	"java":       "java",
	"javascript": "javascript",
	"json":       "json",
	"kotlin":     "kotlin",
	"latex":      "latex",
	"markdown":   "markdown",
	"objectivec": "objective-c",
	"perl":       "perl",
	"php":        "php",
	PlainText:    "plaintext",
	"powershell": "powershell",
	"python":     "python",
	"ruby":       "ruby",
	"rust":       "rust",
	"sql":        "sql",
	"swift":      "swift",
	"typescript": "typescript",
	"yaml":       "yaml",
}

// aliases covers the short ids chat clients commonly tag fences with.
// Note "py" is not here: python is matched by full name only.
var aliases = map[string]string{
	"js":     "javascript",
	"ts":     "typescript",
	"sh":     "bash",
	"yml":    "yaml",
	"md":     "markdown",
	"cs":     "csharp",
	"c++":    "cpp",
	"rs":     "rust",
	"kt":     "kotlin",
	"rb":     "ruby",
	"docker": "dockerfile",
	"gql":    "graphql",
	"tex":    "latex",
	"objc":   "objectivec",
	"pl":     "perl",
	"text":   PlainText,
	"ps":     "powershell",
}

// detectCandidates is the subset of the registry Detect scores against,
// in tie-break order. Detection never considers grammars outside it.
var detectCandidates = []string{
	"go",
	"python",
	"javascript",
	"typescript",
	"java",
	"c",
	"cpp",
	"csharp",
	"ruby",
	"rust",
	"php",
	"bash",
	"sql",
	"html",
	"json",
	"yaml",
	"markdown",
}

// Resolve maps a language identifier or alias to its canonical registry
// id. Matching is case-insensitive and ignores surrounding whitespace.
func Resolve(lang string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(lang))
	if key == "" {
		return "", false
	}
	if _, ok := grammars[key]; ok {
		return key, true
	}
	if canonical, ok := aliases[key]; ok {
		return canonical, true
	}
	return "", false
}

// Detect guesses the language of a code snippet. It scores only the
// fixed candidate subset; when nothing scores above zero it returns
// PlainText. The result is always a valid Highlight input.
func Detect(code string) string {
	if strings.TrimSpace(code) == "" {
		return PlainText
	}

	best := PlainText
	var bestScore float32
	for _, id := range detectCandidates {
		lexer := lexers.Get(grammars[id])
		if lexer == nil {
			continue
		}
		analyser, ok := lexer.(chroma.Analyser)
		if !ok {
			continue
		}
		if score := analyser.AnalyseText(code); score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best
}

// Language reports the registry id Highlight renders code under: the
// resolved identifier, the detected language when none is given, or
// PlainText when the identifier is unknown.
func Language(code, language string) string {
	if strings.TrimSpace(language) == "" {
		return Detect(code)
	}
	if id, ok := Resolve(language); ok {
		return id
	}
	return PlainText
}

// Highlight renders code as HTML with inline styling spans. Unknown
// languages render as plain text and rendering failures fall back to
// the raw code, so the result is always usable in a transcript.
// Calling it twice with the same arguments yields the same markup.
func Highlight(code, language string) string {
	id := Language(code, language)

	var lexer chroma.Lexer
	if id != PlainText {
		lexer = lexers.Get(grammars[id])
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(defaultStyle)
	if style == nil {
		style = styles.Fallback
	}

	formatter := formatters.Get("html")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		iterator, err = lexers.Fallback.Tokenise(nil, code)
		if err != nil {
			return code
		}
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return buf.String()
}

// Supported returns the canonical registry ids in sorted order.
func Supported() []string {
	ids := make([]string, 0, len(grammars))
	for id := range grammars {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
