package chunker

import (
	"regexp"
	"strings"
)

// pageHeaderPattern matches "Page N / M" style headers and footers left
// behind by PDF extraction.
var pageHeaderPattern = regexp.MustCompile(`(?i)\s*Page\s+\d+\s*/\s*\d+\s*`)

// whitespaceRunPattern matches runs of two or more whitespace characters.
var whitespaceRunPattern = regexp.MustCompile(`\s{2,}`)

// Clean normalizes extracted document text before hashing and splitting.
//
// It strips "Page N / M" headers and footers, collapses whitespace runs
// into single spaces and drops empty lines. Clean is idempotent:
// Clean(Clean(x)) == Clean(x), which matters because the document hash is
// computed over the cleaned text.
func Clean(text string) string {
	text = pageHeaderPattern.ReplaceAllString(text, " ")
	text = whitespaceRunPattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
