package bot

import (
	"html"
	"regexp"
	"strings"
)

// Telegram rejects messages longer than 4096 characters.
const maxMessageRunes = 4000

var (
	boldStars  = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)
	boldUnder  = regexp.MustCompile(`__([^_\n]+?)__`)
	italicStar = regexp.MustCompile(`\*([^\s*](?:[^*\n]*[^\s*])?)\*`)
	inlineCode = regexp.MustCompile("`([^`\n]+)`")
)

// renderMarkup escapes model output for Telegram HTML and turns the common
// Markdown emphasis into <b>, <i> and <code>.
func renderMarkup(text string) string {
	out := html.EscapeString(text)
	out = inlineCode.ReplaceAllString(out, "<code>$1</code>")
	out = boldStars.ReplaceAllString(out, "<b>$1</b>")
	out = boldUnder.ReplaceAllString(out, "<b>$1</b>")
	out = italicStar.ReplaceAllString(out, "<i>$1</i>")
	return out
}

// splitMessage cuts text into pieces of at most limit runes, preferring
// line breaks.
func splitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		cut := limit
		if i := lastNewline(runes[:limit]); i > limit/2 {
			cut = i + 1
		}
		chunks = append(chunks, strings.TrimRight(string(runes[:cut]), "\n"))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
