package transcript

import "unicode/utf8"

// DefaultMaxChars bounds the transcript embedded in a chat context.
const DefaultMaxChars = 15000

const truncatedNotice = "\n\n[Transcript truncated for length]"

// Truncate cuts s to at most maxChars characters plus a notice. When the cut
// lands late enough in the text it backs up to the last sentence end.
func Truncate(s string, maxChars int) string {
	if maxChars < 0 {
		maxChars = 0
	}
	if len(s) <= maxChars || utf8.RuneCountInString(s) <= maxChars {
		return s
	}

	truncated := []rune(s)[:maxChars]
	lastPeriod := -1
	for i := len(truncated) - 1; i >= 0; i-- {
		if truncated[i] == '.' {
			lastPeriod = i
			break
		}
	}
	if float64(lastPeriod) > float64(maxChars)*0.8 {
		return string(truncated[:lastPeriod+1]) + truncatedNotice
	}
	return string(truncated) + "..." + truncatedNotice
}
