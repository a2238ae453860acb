package summarize

import (
	"regexp"
	"strings"
)

var (
	codeFence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)```")
	answerTag = regexp.MustCompile(`<answer>([\s\S]*?)</answer>`)
)

// ExtractJSON returns the body of the first fenced code block in text, or the
// trimmed text when there is none.
func ExtractJSON(text string) string {
	if m := codeFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

// ExtractAnswer returns the content of the first <answer> block, falling back
// to ExtractJSON.
func ExtractAnswer(text string) string {
	if m := answerTag.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ExtractJSON(text)
}
