// Package prompt composes the text sent to the analysis, cleanup and video
// models.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Instructions for the analysis and cleanup steps that precede generation.
const (
	AnnotationAnalysis = "Describe any animation annotations you see. Use this description to inform a video director. Be descriptive about location and purpose of the annotations."
	CleanStartFrame    = "Remove all text, captions, subtitles, annotations from this image. Generate a clean version of the image with no text. Keep everything else the exact same."
	CleanEndFrame      = "Remove all text, captions, subtitles, annotations from this image. Generate a clean version of the image with no text. Keep the art/image style the exact same."
)

const (
	MaxAnnotationChars = 600
	MaxSimplifiedChars = 500
	fallbackCoreChars  = 300

	inputMarker      = "following input:"
	annotationMarker = "Here are the animation annotations detected in the source image:"
	simplifiedPrefix = "Generate a creative video based on this scene. "
)

const template = `
context: %s
Generate a creative video based on the ` + inputMarker + ` %s
` + annotationMarker + ` %s
The image will have annotations describing how the scene should look. the annotations guide the movement and visual style, YOU MUST REMOVE THEM IN THE final video.
The video should be visually engaging and dynamic. stay true to the style of the source material. If request is difficult, perform a HARD cut.
`

// Build returns the full generation prompt. The annotation description is
// capped at MaxAnnotationChars on a word boundary and marked with an ellipsis
// when cut.
func Build(customPrompt, globalContext, annotationDescription string) string {
	summary, cut := truncateWords(annotationDescription, MaxAnnotationChars)
	if cut {
		summary += "..."
	}
	return fmt.Sprintf(template, globalContext, customPrompt, summary)
}

// The user's input shares the marker's line, so an empty prompt captures
// nothing rather than the annotation line below it.
var coreInput = regexp.MustCompile(`(?s)following input:[ \t]*(.*?)\s*(?:Here are the animation|The image will have|$)`)

// Simplify reduces a built prompt to the user's own instruction inside a
// shorter wrapper. It is used when the full prompt produced no media.
func Simplify(p string) string {
	var core string
	if m := coreInput.FindStringSubmatch(p); m != nil {
		core = strings.TrimSpace(m[1])
	} else {
		core = prefix(p, fallbackCoreChars)
	}
	if strings.HasPrefix(core, annotationMarker) {
		core = ""
	}
	simplified, _ := truncateWords(simplifiedPrefix+core, MaxSimplifiedChars)
	return strings.TrimSpace(simplified)
}

// truncateWords cuts s to at most max characters without splitting a word.
// A single word longer than max is cut hard.
func truncateWords(s string, max int) (string, bool) {
	runes := []rune(s)
	if len(runes) <= max {
		return s, false
	}
	if unicode.IsSpace(runes[max]) {
		return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace), true
	}
	head := string(runes[:max])
	if i := strings.LastIndexFunc(head, unicode.IsSpace); i > 0 {
		head = strings.TrimRightFunc(head[:i], unicode.IsSpace)
	}
	return head, true
}

func prefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
