package match

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var finalAnswerPattern = regexp.MustCompile(`^Final Answer:[ \t]*(\S+)[ \t]*$`)

// ParseFinalAnswer extracts the index token from the last line of a reply.
// Trailing whitespace is ignored; anything else that does not match the
// "Final Answer: <token>" line is rejected.
func ParseFinalAnswer(text string) (string, error) {
	trimmed := strings.TrimRightFunc(text, unicode.IsSpace)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty reply", ErrIllegalResponse)
	}
	last := trimmed[strings.LastIndexByte(trimmed, '\n')+1:]
	m := finalAnswerPattern.FindStringSubmatch(last)
	if m == nil {
		return "", fmt.Errorf("%w: last line %q is not a final answer", ErrIllegalResponse, truncate(last, 80))
	}
	return m[1], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
