package extract

import (
	"regexp"
	"strings"
)

type cleanupRule struct {
	re   *regexp.Regexp
	repl string
}

// OCR output noise seen on scanned signature sheets and award resolutions.
var cleanupRules = []cleanupRule{
	{regexp.MustCompile(`\r\n?`), "\n"},
	{regexp.MustCompile(`\f`), "\n"},
	{regexp.MustCompile(`[ \t\x{00A0}]+`), " "},
	{regexp.MustCompile(`[|‘’´]`), " "},
	{regexp.MustCompile(`(?m)^ +| +$`), ""},
	{regexp.MustCompile(`\n\n+`), "\n"},
}

func cleanText(text string) string {
	for _, rule := range cleanupRules {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return text
}

func lines(text string) []string {
	return strings.Split(cleanText(text), "\n")
}
