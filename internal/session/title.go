package session

import (
	"regexp"
	"strings"
)

// TitleGenerator derives a display title from the first user message. It is
// presentation logic; the orchestrator only depends on the interface.
type TitleGenerator interface {
	GenerateTitle(firstMessage string) string
}

const titleMaxLen = 50

// topicPatterns capture the subject of common English request shapes. First
// match wins.
var topicPatterns = []struct {
	re     *regexp.Regexp
	format string
}{
	{regexp.MustCompile(`(?i)^how\s+(?:do|can|to|should)\s+(?:i|you|we)?\s*(.+?)\??$`), "How to %s"},
	{regexp.MustCompile(`(?i)^what\s+(?:is|are)\s+(.+?)\??$`), "About %s"},
	{regexp.MustCompile(`(?i)^why\s+(?:is|are|do|does)\s+(.+?)\??$`), "Why %s"},
	{regexp.MustCompile(`(?i)^(?:please\s+)?(?:write|create|generate|build|make)\s+(?:me\s+)?(?:a|an|some)?\s*(.+)$`), "Creating %s"},
	{regexp.MustCompile(`(?i)^(?:please\s+)?(?:explain|describe|summarize)\s+(.+)$`), "Explaining %s"},
	{regexp.MustCompile(`(?i)^(?:help\s+me\s+(?:with\s+)?)(.+)$`), "Help with %s"},
	{regexp.MustCompile(`(?i)^(?:fix|debug|solve)\s+(.+)$`), "Fixing %s"},
}

// PatternTitleGenerator matches the first message against a table of topic
// patterns, falls back to the question text itself, then to truncation.
type PatternTitleGenerator struct{}

func NewPatternTitleGenerator() PatternTitleGenerator { return PatternTitleGenerator{} }

func (PatternTitleGenerator) GenerateTitle(firstMessage string) string {
	text := strings.TrimSpace(firstMessage)
	if text == "" {
		return "New conversation"
	}

	for _, p := range topicPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			topic := strings.TrimSpace(strings.TrimSuffix(m[1], "?"))
			if topic == "" {
				continue
			}
			title := strings.Replace(p.format, "%s", topic, 1)
			return truncateTitle(title)
		}
	}

	if strings.HasSuffix(text, "?") {
		return truncateTitle(strings.TrimSuffix(text, "?"))
	}

	return truncateTitle(text)
}

func truncateTitle(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= titleMaxLen {
		return capitalize(s)
	}

	cut := s[:titleMaxLen]
	// Break on a word boundary when one is close enough.
	if idx := strings.LastIndex(cut, " "); idx > titleMaxLen/2 {
		cut = cut[:idx]
	}
	return capitalize(cut) + "..."
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
