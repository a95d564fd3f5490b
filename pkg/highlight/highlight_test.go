package highlight_test

import (
	"sort"
	"testing"

	"github.com/parleychat/parley/pkg/highlight"
	"github.com/stretchr/testify/assert"
)

func TestResolveAliases(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"js", "javascript"},
		{"ts", "typescript"},
		{"sh", "bash"},
		{"yml", "yaml"},
		{"md", "markdown"},
		{"cs", "csharp"},
		{"c++", "cpp"},
		{"rs", "rust"},
		{"kt", "kotlin"},
		{"rb", "ruby"},
		{"docker", "dockerfile"},
		{"gql", "graphql"},
		{"tex", "latex"},
		{"objc", "objectivec"},
		{"pl", "perl"},
		{"text", "plaintext"},
		{"ps", "powershell"},
	}

	for _, tt := range tests {
		got, ok := highlight.Resolve(tt.alias)
		assert.True(t, ok, "alias %q should resolve", tt.alias)
		assert.Equal(t, tt.want, got)
	}
}

func TestResolveCanonicalAndCase(t *testing.T) {
	got, ok := highlight.Resolve("Go")
	assert.True(t, ok)
	assert.Equal(t, "go", got)

	got, ok = highlight.Resolve("  TypeScript  ")
	assert.True(t, ok)
	assert.Equal(t, "typescript", got)
}

func TestResolveUnknown(t *testing.T) {
	_, ok := highlight.Resolve("klingon")
	assert.False(t, ok)

	_, ok = highlight.Resolve("")
	assert.False(t, ok)
}

func TestPythonHasNoShortAlias(t *testing.T) {
	_, ok := highlight.Resolve("py")
	assert.False(t, ok)

	got, ok := highlight.Resolve("python")
	assert.True(t, ok)
	assert.Equal(t, "python", got)
}

func TestDetectGo(t *testing.T) {
	code := "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n"
	assert.Equal(t, "go", highlight.Detect(code))
}

func TestDetectFallsBackToPlainText(t *testing.T) {
	assert.Equal(t, highlight.PlainText, highlight.Detect("just some ordinary prose"))
	assert.Equal(t, highlight.PlainText, highlight.Detect(""))
	assert.Equal(t, highlight.PlainText, highlight.Detect("   \n\t"))
}

func TestDetectResultIsAlwaysHighlightable(t *testing.T) {
	snippets := []string{
		"package main\nfunc main() { fmt.Println() }",
		"SELECT * FROM users;",
		"random words without structure",
		"",
	}

	for _, code := range snippets {
		id := highlight.Detect(code)
		_, ok := highlight.Resolve(id)
		assert.True(t, ok, "Detect returned unregistered id %q", id)
	}
}

func TestHighlightKnownLanguage(t *testing.T) {
	code := "package main\n\nfunc main() {\n\tfmt.Println(\"hello\")\n}\n"
	out := highlight.Highlight(code, "go")
	assert.NotEmpty(t, out)
	assert.NotEqual(t, code, out)
	assert.Contains(t, out, "fmt")
}

func TestHighlightUnknownLanguageMatchesPlainText(t *testing.T) {
	code := "some snippet with <angle> brackets"
	assert.Equal(t,
		highlight.Highlight(code, "plaintext"),
		highlight.Highlight(code, "klingon"))
}

func TestHighlightEscapesMarkup(t *testing.T) {
	out := highlight.Highlight("<script>alert(1)</script>", "plaintext")
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
}

func TestHighlightDeterministic(t *testing.T) {
	code := "def greet():\n    return 1\n"
	first := highlight.Highlight(code, "python")
	second := highlight.Highlight(code, "python")
	assert.Equal(t, first, second)
}

func TestHighlightAliasAndCanonicalAgree(t *testing.T) {
	code := "const x = 1;"
	assert.Equal(t,
		highlight.Highlight(code, "javascript"),
		highlight.Highlight(code, "js"))
}

func TestLanguage(t *testing.T) {
	assert.Equal(t, "cpp", highlight.Language("int main() {}", "c++"))
	assert.Equal(t, highlight.PlainText, highlight.Language("hello", "klingon"))
	assert.Equal(t, "go", highlight.Language("package main\nfmt.Println()", ""))
}

func TestSupported(t *testing.T) {
	ids := highlight.Supported()
	assert.NotEmpty(t, ids)
	assert.True(t, sort.StringsAreSorted(ids))
	assert.Contains(t, ids, "go")
	assert.Contains(t, ids, highlight.PlainText)

	// aliases are lookup keys, not registry entries
	assert.NotContains(t, ids, "js")
	assert.NotContains(t, ids, "py")

	for _, id := range ids {
		got, ok := highlight.Resolve(id)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	}
}
