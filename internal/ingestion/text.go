package ingestion

import (
	"regexp"
	"strings"
)

var (
	spaceRunRe   = regexp.MustCompile(`\s+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	numberedRe   = regexp.MustCompile(`^\d+[.)]\s`)
)

// invisibles are characters product pages carry that models read as noise.
var invisibles = strings.NewReplacer(
	"\u00a0", " ", // non-breaking space
	"\u200b", "", // zero-width space
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "", // byte order mark
)

// typographicBullets are rewritten as markdown dashes.
var typographicBullets = []string{"\u2022 ", "\u00b7 ", "\u25aa ", "\u2013 "}

// CleanText normalizes a product description for prompting: line endings,
// invisible characters, runs of spaces and blank lines. Headings, list items
// and their indentation are kept. Output is deterministic.
func CleanText(content string) string {
	if content == "" {
		return ""
	}

	content = strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(content)
	content = invisibles.Replace(content)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = cleanLine(line)
	}

	result := blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(result)
}

func cleanLine(line string) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "#") {
		return spaceRunRe.ReplaceAllString(trimmed, " ")
	}

	indent := strings.Repeat(" ", leadingWidth(line))
	if mark, ok := listMarker(trimmed); ok {
		body := spaceRunRe.ReplaceAllString(strings.TrimSpace(trimmed[len(mark):]), " ")
		return indent + normalizeMarker(mark) + body
	}
	return indent + spaceRunRe.ReplaceAllString(trimmed, " ")
}

// leadingWidth counts indentation, with a tab as two spaces.
func leadingWidth(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 2
		default:
			return n
		}
	}
	return n
}

// listMarker returns the list prefix of a line, including its trailing space.
func listMarker(trimmed string) (string, bool) {
	for _, mark := range append([]string{"- ", "* "}, typographicBullets...) {
		if strings.HasPrefix(trimmed, mark) {
			return mark, true
		}
	}
	if m := numberedRe.FindString(trimmed); m != "" {
		return m, true
	}
	return "", false
}

func normalizeMarker(mark string) string {
	for _, b := range typographicBullets {
		if mark == b {
			return "- "
		}
	}
	return strings.TrimRight(mark, " \t") + " "
}
