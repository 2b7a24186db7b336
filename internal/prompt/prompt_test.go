package prompt

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annotationLine(t *testing.T, built string) string {
	t.Helper()
	for _, line := range strings.Split(built, "\n") {
		if strings.HasPrefix(line, annotationMarker) {
			return strings.TrimPrefix(line, annotationMarker+" ")
		}
	}
	t.Fatalf("annotation line missing from prompt: %q", built)
	return ""
}

func TestBuildIncludesAllParts(t *testing.T) {
	out := Build("make the cat jump", "a cartoon about cats", "red arrow near the cat")

	assert.Contains(t, out, "context: a cartoon about cats")
	assert.Contains(t, out, "following input: make the cat jump")
	assert.Equal(t, "red arrow near the cat", annotationLine(t, out))
	assert.Contains(t, out, "YOU MUST REMOVE THEM IN THE final video")
}

func TestBuildIsDeterministic(t *testing.T) {
	assert.Equal(t, Build("a", "b", "c"), Build("a", "b", "c"))
}

func TestBuildTruncatesLongAnnotationsAtWordBoundary(t *testing.T) {
	words := make([]string, 0, 200)
	for len(strings.Join(words, " ")) < 1000 {
		words = append(words, "annotation")
	}
	desc := strings.Join(words, " ")[:1000]

	got := annotationLine(t, Build("p", "c", desc))
	require.True(t, strings.HasSuffix(got, "..."))

	body := strings.TrimSuffix(got, "...")
	assert.LessOrEqual(t, utf8.RuneCountInString(body), MaxAnnotationChars)
	for _, w := range strings.Fields(body) {
		assert.Equal(t, "annotation", w, "truncation split a word")
	}
}

func TestBuildLeavesShortAnnotationsAlone(t *testing.T) {
	desc := strings.Repeat("x", MaxAnnotationChars)
	assert.Equal(t, desc, annotationLine(t, Build("p", "c", desc)))
}

func TestTruncateWords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
		cut  bool
	}{
		{name: "fits", in: "one two", max: 10, want: "one two"},
		{name: "cuts before partial word", in: "one two three", max: 9, want: "one two", cut: true},
		{name: "cut lands on a space", in: "one two three", max: 7, want: "one two", cut: true},
		{name: "single long word", in: "abcdefghij", max: 4, want: "abcd", cut: true},
		{name: "multibyte", in: "héllo wörld again", max: 12, want: "héllo wörld", cut: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := truncateWords(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.cut, cut)
		})
	}
}

func TestSimplifyExtractsUserInput(t *testing.T) {
	built := Build("make the cat jump over the fence", "cartoon", "arrow pointing up")

	got := Simplify(built)
	assert.Equal(t, "Generate a creative video based on this scene. make the cat jump over the fence", got)
}

func TestSimplifyWithoutMarkerUsesPrefix(t *testing.T) {
	raw := strings.Repeat("a", 400)

	got := Simplify(raw)
	assert.Equal(t, simplifiedPrefix+strings.Repeat("a", fallbackCoreChars), got)
}

func TestSimplifyCapsLength(t *testing.T) {
	long := strings.Repeat("word ", 300)
	built := Build(long, "ctx", "annotations")

	got := Simplify(built)
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxSimplifiedChars)
	assert.True(t, strings.HasPrefix(got, simplifiedPrefix))
	assert.True(t, strings.HasSuffix(got, "word"))
}

func TestSimplifyEmptyInputDropsAnnotations(t *testing.T) {
	built := Build("", "cartoon", "arrow pointing up at the moon")

	got := Simplify(built)
	assert.Equal(t, strings.TrimSpace(simplifiedPrefix), got)
	assert.NotContains(t, got, annotationMarker)
	assert.NotContains(t, got, "arrow pointing up")
}

func TestSimplifyKeepsMultilineInput(t *testing.T) {
	built := Build("first the cat sits\nthen it jumps", "ctx", "arrow")

	got := Simplify(built)
	assert.Equal(t, simplifiedPrefix+"first the cat sits\nthen it jumps", got)
}
