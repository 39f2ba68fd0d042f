package views

import (
	"context"
	"strings"
	"testing"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, view *service.BracketView) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, BracketPage(view).Render(context.Background(), &sb))
	return sb.String()
}

func participant(name string, seed int) bracket.Participant {
	return bracket.Participant{ID: uuid.New(), BotID: uuid.New(), BotName: name, Seed: &seed}
}

func TestBracketPageElimination(t *testing.T) {
	a, b := participant("<script>alert(1)</script>", 1), participant("paper-tiger", 2)
	rank1, rank2 := 1, 2
	a.FinalRank, b.FinalRank = &rank1, &rank2
	b.Eliminated = true

	winner := a.ID
	match := bracket.Match{
		ID:             uuid.New(),
		RoundNumber:    1,
		MatchOrder:     1,
		Participant1ID: a.ID,
		Participant2ID: b.ID,
		Status:         bracket.MatchCompleted,
		WinnerID:       &winner,
		Score1:         1,
	}
	tournament := bracket.Tournament{Name: "Spring Cup", GameType: "rps", Format: bracket.SingleElimination, Status: bracket.TournamentCompleted}

	page := render(t, service.ProjectBracket(tournament, []bracket.Participant{a, b}, []bracket.Match{match}))

	assert.Contains(t, page, "<title>Spring Cup</title>")
	assert.Contains(t, page, "Single elimination")
	assert.Contains(t, page, "Final")
	assert.Contains(t, page, `<div class="slot winner">`)
	assert.Contains(t, page, `<tr class="eliminated">`)
	assert.Contains(t, page, "&lt;script&gt;")
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, "Champion: <strong>&lt;script&gt;")
}

func TestBracketPageRoundRobin(t *testing.T) {
	a, b := participant("alpha", 1), participant("beta", 2)
	a.Wins, a.Score, a.GamesPlayed = 1, 3, 1
	b.Losses, b.GamesPlayed = 1, 1

	winner := a.ID
	matches := []bracket.Match{
		{Participant1ID: a.ID, Participant2ID: b.ID, Status: bracket.MatchCompleted, WinnerID: &winner},
	}
	tournament := bracket.Tournament{Name: "League", Format: bracket.RoundRobin, Status: bracket.TournamentInProgress}

	page := render(t, service.ProjectBracket(tournament, []bracket.Participant{a, b}, matches))

	assert.Contains(t, page, "Round robin")
	assert.Contains(t, page, "In progress")
	assert.Contains(t, page, "1 of 1 matches played")
	assert.Contains(t, page, "<th>alpha</th><td></td><td>W</td>")
	assert.Contains(t, page, "<th>beta</th><td>L</td><td></td>")
	assert.Less(t, strings.Index(page, "<td>alpha</td>"), strings.Index(page, "<td>beta</td>"))
}

func TestRoundTitle(t *testing.T) {
	assert.Equal(t, "Final", roundTitle(4, 4))
	assert.Equal(t, "Semifinals", roundTitle(3, 4))
	assert.Equal(t, "Quarterfinals", roundTitle(2, 4))
	assert.Equal(t, "Round 1", roundTitle(1, 4))
}

func TestBracketPageCancelledMatch(t *testing.T) {
	a, b := participant("lefty", 1), participant("righty", 2)
	reason := "engine <crashed>"
	match := bracket.Match{
		ID:             uuid.New(),
		RoundNumber:    1,
		Participant1ID: a.ID,
		Participant2ID: b.ID,
		Status:         bracket.MatchCancelled,
		Error:          &reason,
	}
	tournament := bracket.Tournament{Name: "Broken Cup", GameType: "rps", Format: bracket.SingleElimination, Status: bracket.TournamentInProgress}

	page := render(t, service.ProjectBracket(tournament, []bracket.Participant{a, b}, []bracket.Match{match}))

	assert.Contains(t, page, `<div class="match" id="match-`+match.ID.String()+`">`)
	assert.Contains(t, page, `<div class="match-status">Cancelled: engine &lt;crashed&gt;</div>`)
	assert.Contains(t, page, "<p>Single elimination · rps · In progress</p>")
	assert.NotContains(t, page, "Champion:")
}
