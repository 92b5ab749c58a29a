package usecase

import "strings"

const (
	derivedTitleMaxWords  = 8
	derivedTitleMaxChars  = 60
	chairmanTitleMaxWords = 10
)

// DeriveTitle builds a provisional conversation title from the first user
// message: markdown stripped, at most 8 words and 60 characters, with an
// ellipsis when truncated.
func DeriveTitle(content string) string {
	line := firstContentLine(content)
	if line == "" {
		return ""
	}

	words := strings.Fields(line)
	truncated := false
	if len(words) > derivedTitleMaxWords {
		words = words[:derivedTitleMaxWords]
		truncated = true
	}
	title := strings.Join(words, " ")
	if runes := []rune(title); len(runes) > derivedTitleMaxChars {
		title = strings.TrimSpace(string(runes[:derivedTitleMaxChars]))
		truncated = true
	}
	if truncated {
		title += "…"
	}
	return title
}

// ChairmanTitle extracts an upgraded title from the chairman answer's first
// line. Returns "" when the line is missing or too long to be a title.
func ChairmanTitle(response string) string {
	line := firstContentLine(response)
	if line == "" {
		return ""
	}
	words := strings.Fields(line)
	if len(words) > chairmanTitleMaxWords {
		return ""
	}
	title := strings.Join(words, " ")
	title = strings.TrimRight(title, ":.,;")
	return strings.TrimSpace(title)
}

// firstContentLine returns the first non-empty line with markdown stripped.
func firstContentLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if clean := stripMarkdown(line); clean != "" {
			return clean
		}
	}
	return ""
}

// stripMarkdown removes the inline markers that commonly decorate model
// output: heading hashes, blockquotes, list bullets, emphasis, backticks.
func stripMarkdown(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "#>")
	s = strings.TrimSpace(s)
	for _, bullet := range []string{"- ", "* ", "+ "} {
		s = strings.TrimPrefix(s, bullet)
	}
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.Trim(s, "*_")
	return strings.TrimSpace(s)
}
