package views

import (
	"strconv"
	"strings"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/service"
	"github.com/google/uuid"
)

var statusLabels = map[string]string{
	string(bracket.TournamentRegistrationOpen): "Registration open",
	string(bracket.TournamentInProgress):       "In progress",
	string(bracket.TournamentCompleted):        "Completed",
	string(bracket.TournamentCancelled):        "Cancelled",
	string(bracket.MatchWaiting):               "Waiting",
}

func statusLabel[S ~string](status S) string {
	if label, ok := statusLabels[string(status)]; ok {
		return label
	}
	return strings.ReplaceAll(string(status), "_", " ")
}

func formatLabel(format bracket.TournamentFormat) string {
	if format == bracket.RoundRobin {
		return "Round robin"
	}
	return "Single elimination"
}

// roundTitle names elimination rounds relative to the final.
func roundTitle(number, total int) string {
	switch total - number {
	case 0:
		return "Final"
	case 1:
		return "Semifinals"
	case 2:
		return "Quarterfinals"
	}
	return "Round " + strconv.Itoa(number)
}

// slotClass styles one side of a match card.
func slotClass(m service.MatchView, participantID uuid.UUID) string {
	switch {
	case !m.Status.IsTerminal():
		return "slot pending"
	case m.WinnerID != nil && *m.WinnerID == participantID:
		return "slot winner"
	case m.WinnerID != nil:
		return "slot loser"
	case m.Status == bracket.MatchCompleted:
		return "slot draw"
	}
	return "slot"
}

func headToHeadCell(result string) string {
	switch result {
	case service.ResultWin:
		return "W"
	case service.ResultLoss:
		return "L"
	case service.ResultDraw:
		return "D"
	}
	return "-"
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// champion returns the rank 1 participant of a finished bracket.
func champion(participants []service.ParticipantView) (service.ParticipantView, bool) {
	for _, p := range participants {
		if p.FinalRank != nil && *p.FinalRank == 1 {
			return p, true
		}
	}
	return service.ParticipantView{}, false
}

func summaryLine(view *service.BracketView) string {
	return formatLabel(view.Format) + " · " + view.Tournament.GameType + " · " + statusLabel(view.Status)
}

func matchStatusLabel(m service.MatchView) string {
	if m.Error != nil {
		return statusLabel(m.Status) + ": " + *m.Error
	}
	return statusLabel(m.Status)
}

func progressLabel(s *service.Standings) string {
	return strconv.Itoa(s.TotalMatches) + " of " + strconv.Itoa(s.TotalMatches+s.MatchesRemaining) + " matches played"
}
