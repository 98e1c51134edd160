package helper

import (
	"regexp"
	"strings"
)

var (
	emojiRegex     = regexp.MustCompile(`[\x{1F300}-\x{1FAFF}\x{1F1E6}-\x{1F1FF}\x{2600}-\x{27BF}\x{FE0F}\x{200D}\x{2B50}\x{2B55}\x{231A}-\x{231B}\x{23E9}-\x{23FA}\x{3030}]`)
	blankLinesRe   = regexp.MustCompile(`\n{3,}`)
	trailingWSRe   = regexp.MustCompile(`[ \t]+\n`)
	horizontalWSRe = regexp.MustCompile(`[^\S\r\n]+`)
)

// StripEmoji removes pictographs, flags and their joiners.
func StripEmoji(s string) string {
	return emojiRegex.ReplaceAllString(s, "")
}

// CollapseBlankLines trims trailing spaces on each line and squeezes runs
// of three or more newlines down to one blank line.
func CollapseBlankLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = trailingWSRe.ReplaceAllString(s, "\n")
	return blankLinesRe.ReplaceAllString(s, "\n\n")
}

// CollapseSpaces turns every run of horizontal whitespace into one space.
func CollapseSpaces(s string) string {
	return horizontalWSRe.ReplaceAllString(s, " ")
}
