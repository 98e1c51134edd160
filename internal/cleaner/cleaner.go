package cleaner

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"helpcenter-rag/internal/helper"
	"helpcenter-rag/internal/models"
)

var (
	controlCharsRe = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
	invisibleRe    = regexp.MustCompile(`[\x{200B}\x{200C}\x{200D}\x{FEFF}]`)
	htmlTagRe      = regexp.MustCompile(`<[^>]+>`)

	markupIndicators = []*regexp.Regexp{
		regexp.MustCompile("(?s)```.*?```"),
		regexp.MustCompile("`[^`]+`"),
		regexp.MustCompile(`\*\*[^*]+\*\*`),
		regexp.MustCompile(`__[^_]+__`),
		regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]`),
		regexp.MustCompile(`\[[^\]]+\]\([^)]+\)`),
		regexp.MustCompile(`(?m)^[ \t]{0,3}[-*_]{3,}`),
	}

	codeBlockRe     = regexp.MustCompile("(?s)```.+?```")
	inlineCodeRe    = regexp.MustCompile("`([^`]+)`")
	headingMarkerRe = regexp.MustCompile(`(?m)^[ \t]{0,3}#{1,6}[ \t]*`)
	boldStarRe      = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	boldUnderRe     = regexp.MustCompile(`__([^_]+)__`)
	italicStarRe    = regexp.MustCompile(`\*([^*\n]+)\*`)
	italicUnderRe   = regexp.MustCompile(`(^|\W)_([^_\n]+)_(\W|$)`)
	linkRe          = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	ruleRe          = regexp.MustCompile(`(?m)^[ \t]{0,3}[-*_]{3,}[ \t]*$`)
	loneStarRe      = regexp.MustCompile(`(?m)^[ \t]*\*[ \t]*$`)
	bulletRe        = regexp.MustCompile(`(?m)^[ \t]*[*•][ \t]+`)

	enrichedRe = regexp.MustCompile(`(?s)^` + regexp.QuoteMeta(models.ContextPrefix) + `(.*?)` + regexp.QuoteMeta(models.ContextSeparator) + `(.*)$`)

	learningRuleRe = regexp.MustCompile(`^[ \t]*(?:[-_*][ \t]*){3,}$`)
	headingPrefix  = regexp.MustCompile(`^[ \t]{0,3}(?:#{1,6}[ \t]*)?`)
	boldPrefix     = regexp.MustCompile(`^[ \t]*(?:\*\*|__)[ \t]*`)
	boldSuffix     = regexp.MustCompile(`[ \t]*(?:\*\*|__)[ \t]*$`)

	learningPhrases = map[string]bool{
		"what youll learn":        true,
		"what you will learn":     true,
		"o que voce vai aprender": true,
		"o que voce ira aprender": true,
		"lo que vas a aprender":   true,
		"lo que aprenderas":       true,
	}
)

// Clean prepares chunk text for embedding. An enriched chunk keeps its
// preface as "[Context: preface] body". The result is stable under repeated
// application.
func Clean(text string) string {
	out := cleanOnce(text)
	// cleanBody never grows its input, so repeating it reaches a fixpoint.
	for {
		next := cleanBody(out)
		if next == out {
			return out
		}
		out = next
	}
}

func cleanOnce(text string) string {
	m := enrichedRe.FindStringSubmatch(text)
	if m == nil {
		return cleanBody(text)
	}

	preface := cleanBody(m[1])
	body := cleanBody(m[2])
	if body == "" {
		return ""
	}
	if preface == "" {
		return body
	}
	return "[" + strings.TrimSpace(models.ContextPrefix) + " " + preface + "] " + body
}

func cleanBody(text string) string {
	text = RemoveLearningHeadings(text)
	if LooksLikeMarkup(text) {
		return CleanMarkup(text)
	}
	return MinimalNormalize(text)
}

// LooksLikeMarkup reports whether text carries HTML tags or markdown structure.
func LooksLikeMarkup(text string) bool {
	if htmlTagRe.MatchString(text) {
		return true
	}
	for _, re := range markupIndicators {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// MinimalNormalize drops control characters and invisible tokens and
// normalizes whitespace, leaving everything else untouched.
func MinimalNormalize(text string) string {
	text = controlCharsRe.ReplaceAllString(text, "")
	text = invisibleRe.ReplaceAllString(text, "")
	text = helper.CollapseSpaces(text)
	text = helper.CollapseBlankLines(text)
	return strings.TrimSpace(text)
}

// CleanMarkup strips HTML and markdown structure while keeping its content.
func CleanMarkup(text string) string {
	text = helper.StripEmoji(text)
	text = controlCharsRe.ReplaceAllString(text, "")
	text = invisibleRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = stripMarkdown(text)
	text = RemoveLearningHeadings(text)
	text = helper.CollapseSpaces(text)
	text = helper.CollapseBlankLines(text)
	return strings.TrimSpace(text)
}

func stripMarkdown(text string) string {
	text = codeBlockRe.ReplaceAllString(text, " ")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = headingMarkerRe.ReplaceAllString(text, "")
	text = boldStarRe.ReplaceAllString(text, "$1")
	text = boldUnderRe.ReplaceAllString(text, "$1")
	text = italicStarRe.ReplaceAllString(text, "$1")
	text = italicUnderRe.ReplaceAllString(text, "$1$2$3")
	text = linkRe.ReplaceAllString(text, "$1")
	text = ruleRe.ReplaceAllString(text, " ")
	text = loneStarRe.ReplaceAllString(text, "")
	text = bulletRe.ReplaceAllString(text, "- ")
	return text
}

// RemoveLearningHeadings drops "What you'll learn" style headings together
// with the blank lines and rules around them.
func RemoveLearningHeadings(text string) string {
	lines := strings.Split(text, "\n")
	keep := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		if !learningPhrases[normalizeForCompare(lines[i])] {
			keep = append(keep, lines[i])
			continue
		}
		if n := len(keep); n > 0 && (strings.TrimSpace(keep[n-1]) == "" || learningRuleRe.MatchString(keep[n-1])) {
			keep = keep[:n-1]
		}
		for i+1 < len(lines) && (strings.TrimSpace(lines[i+1]) == "" || learningRuleRe.MatchString(lines[i+1])) {
			i++
		}
	}
	return strings.Join(keep, "\n")
}

func normalizeForCompare(line string) string {
	line = headingPrefix.ReplaceAllString(line, "")
	line = boldPrefix.ReplaceAllString(line, "")
	line = boldSuffix.ReplaceAllString(line, "")
	line = foldAccents(line)
	line = strings.ToLower(line)
	line = strings.NewReplacer("'", "", "’", "").Replace(line)
	line = strings.Join(strings.Fields(line), " ")
	return strings.Trim(line, " :.-?")
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
