package lore

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

// ChunkText splits text into paragraphs. Paragraphs longer than maxChars are
// split at sentence ends and the sentences packed greedily into chunks of
// roughly maxChars. A single sentence longer than maxChars stays whole.
func ChunkText(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	for _, p := range paragraphBreak.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= maxChars {
			chunks = append(chunks, p)
			continue
		}

		var (
			current    []string
			currentLen int
		)
		for _, s := range splitSentences(p) {
			n := utf8.RuneCountInString(s)
			if currentLen+n > maxChars && len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current = nil
				currentLen = 0
			}
			current = append(current, s)
			currentLen += n
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
	}
	return chunks
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace.
func splitSentences(p string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(p)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
		default:
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j == i+1 || j == len(runes) {
			continue
		}
		out = append(out, string(runes[start:i+1]))
		start = j
		i = j - 1
	}
	return append(out, string(runes[start:]))
}
