package automation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/nhle/studiosync/internal/model"
)

func TestCleanSubject(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"RE: Landing Page Redesign - feedback", "landing page redesign - feedback"},
		{"Fwd: FW: Pressupost", "pressupost"},
		{"  Re:Re: hola  ", "hola"},
		{"Proposta", "proposta"},
		{"Re:", ""},

		// Markers are removed anywhere, not only as a prefix.
		{"Score: 3", "sco 3"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, CleanSubject(tc.in))
		})
	}
}

func TestMatchCard(t *testing.T) {
	cards := []model.Card{
		{ID: "untitled", Title: "  "},
		{ID: "landing", Title: "Landing Page Redesign"},
		{ID: "brand", Title: "Brand manual for the new landing page redesign"},
	}

	card, ok := MatchCard(cards, "RE: Landing Page Redesign - feedback")
	require.True(t, ok)
	require.Equal(t, "landing", card.ID)

	// Subject contained in a title.
	card, ok = MatchCard(cards, "Fwd: brand manual")
	require.True(t, ok)
	require.Equal(t, "brand", card.ID)

	_, ok = MatchCard(cards, "Factura febrer")
	require.False(t, ok)

	_, ok = MatchCard(nil, "anything")
	require.False(t, ok)
}

func TestMatchCardNeverReturnsUntitled(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		titles := rapid.SliceOf(rapid.SampledFrom([]string{
			"", " ", "Logo", "Web", "Logo nou",
		})).Draw(rt, "titles")
		subject := rapid.String().Draw(rt, "subject")

		cards := make([]model.Card, len(titles))
		for i, title := range titles {
			cards[i] = model.Card{ID: title, Title: title}
		}

		card, ok := MatchCard(cards, subject)
		if ok {
			require.NotEmpty(rt, cleanTitle(card.Title))
		}
	})
}
