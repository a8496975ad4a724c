package tool

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// TruncateRunes keeps the first maxChars characters of s and appends a
// marker with the original length. It never splits a multi-byte character.
func TruncateRunes(s string, maxChars int) string {
	total := utf8.RuneCountInString(s)
	if maxChars < 0 || total <= maxChars {
		return s
	}
	return headRunes(s, maxChars) + fmt.Sprintf("... [truncated, %d chars total]", total)
}

// TruncateHeadTail keeps the first and last maxChars/2 characters of s and
// replaces the middle with a notice.
func TruncateHeadTail(s string, maxChars int) string {
	total := utf8.RuneCountInString(s)
	if maxChars < 0 || total <= maxChars {
		return s
	}
	half := maxChars / 2
	removed := total - 2*half
	return headRunes(s, half) +
		fmt.Sprintf("\n\n[output truncated: %d characters removed from the middle; re-run with narrower parameters to see them]\n\n", removed) +
		tailRunes(s, half)
}

// TruncateLines keeps the first and last maxLines/2 lines of s and replaces
// the rest with a count of the lines left out.
func TruncateLines(s string, maxLines int) string {
	if maxLines <= 0 || strings.Count(s, "\n") < maxLines {
		return s
	}
	keepHead := maxLines / 2
	keepTail := maxLines - keepHead
	total := strings.Count(s, "\n") + 1

	head := 0
	for i := 0; i < keepHead; i++ {
		head += strings.IndexByte(s[head:], '\n') + 1
	}
	tail := len(s)
	for i := 0; i < keepTail; i++ {
		tail = strings.LastIndexByte(s[:tail], '\n')
	}
	return s[:head] + fmt.Sprintf("[... %d lines omitted ...]", total-maxLines) + s[tail:]
}

func headRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	end := len(s)
	for i := 0; i < n && end > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:end])
		end -= size
	}
	return s[end:]
}
