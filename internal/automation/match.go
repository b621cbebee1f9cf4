package automation

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/nhle/studiosync/internal/model"
)

// replyMarkerPattern matches reply and forward markers anywhere in a
// lower-cased subject.
var replyMarkerPattern = regexp.MustCompile(`re:|fwd:|fw:`)

// CleanSubject lower-cases a subject and removes reply/forward markers.
func CleanSubject(subject string) string {
	s := strings.ToLower(norm.NFC.String(subject))
	s = replyMarkerPattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// cleanTitle normalizes a card title for comparison.
func cleanTitle(title string) string {
	return strings.TrimSpace(strings.ToLower(norm.NFC.String(title)))
}

// MatchCard returns the first card, in store order, whose cleaned title is
// contained in the cleaned subject or contains it. Cards without a title
// never match. There is no scoring: a short generic title can match many
// subjects and the earliest card wins.
func MatchCard(cards []model.Card, subject string) (model.Card, bool) {
	cleaned := CleanSubject(subject)

	for _, card := range cards {
		title := cleanTitle(card.Title)
		if title == "" {
			continue
		}
		if strings.Contains(cleaned, title) || strings.Contains(title, cleaned) {
			return card, true
		}
	}

	return model.Card{}, false
}

// excerpt returns at most n runes of s, marking truncation with an
// ellipsis.
func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
