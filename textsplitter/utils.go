package textsplitter

import (
	"regexp"
	"strings"
)

// splitKeepingSep splits on sep and prefixes every piece after the first with
// it, so concatenating the pieces gives back text. Empty pieces are dropped.
func splitKeepingSep(sep string) func(string) []string {
	return func(text string) []string {
		if text == "" {
			return nil
		}
		if sep == "" {
			return []string{text}
		}
		parts := strings.Split(text, sep)
		out := make([]string, 0, len(parts))
		for i, p := range parts {
			if i > 0 {
				p = sep + p
			}
			if p != "" {
				out = append(out, p)
			}
		}
		return out
	}
}

// splitMatches returns every match of re in order.
func splitMatches(re *regexp.Regexp) func(string) []string {
	return func(text string) []string {
		return re.FindAllString(text, -1)
	}
}

// splitRunes is the last resort when no separator fits the budget.
func splitRunes(text string) []string {
	return strings.Split(text, "")
}
