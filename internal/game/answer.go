package game

import "strings"

const cmdNext = "next"

// IsCorrect reports whether submitted matches correct, ignoring surrounding
// whitespace and case. An empty submission never matches.
func IsCorrect(submitted, correct string) bool {
	submitted = strings.TrimSpace(submitted)
	if submitted == "" {
		return false
	}
	return strings.EqualFold(submitted, strings.TrimSpace(correct))
}

// IsNext reports whether text is the "next" command.
func IsNext(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), cmdNext)
}
