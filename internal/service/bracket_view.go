package service

import (
	"context"
	"sort"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/google/uuid"
)

// BracketView is the read-only projection of a tournament. Exactly one of
// Elimination and RoundRobin is set, depending on the format.
type BracketView struct {
	Tournament  bracket.Tournament       `json:"tournament"`
	Format      bracket.TournamentFormat `json:"format"`
	Status      bracket.TournamentStatus `json:"status"`
	Elimination *EliminationBracket      `json:"elimination,omitempty"`
	RoundRobin  *Standings               `json:"round_robin,omitempty"`
}

type EliminationBracket struct {
	Rounds       []RoundView       `json:"rounds"`
	Participants []ParticipantView `json:"participants"`
	TotalRounds  int               `json:"total_rounds"`
}

type RoundView struct {
	Number  int         `json:"number"`
	Matches []MatchView `json:"matches"`
}

type MatchView struct {
	ID           uuid.UUID           `json:"id"`
	Order        int                 `json:"order"`
	Status       bracket.MatchStatus `json:"status"`
	Participant1 PlayerRef           `json:"participant_1"`
	Participant2 PlayerRef           `json:"participant_2"`
	WinnerID     *uuid.UUID          `json:"winner_id,omitempty"`
	Score1       int                 `json:"score_1"`
	Score2       int                 `json:"score_2"`
	Error        *string             `json:"error,omitempty"`
}

type PlayerRef struct {
	ParticipantID uuid.UUID `json:"participant_id"`
	BotID         uuid.UUID `json:"bot_id"`
	BotName       string    `json:"bot_name"`
}

type ParticipantView struct {
	PlayerRef
	Seed       *int `json:"seed,omitempty"`
	Eliminated bool `json:"eliminated"`
	FinalRank  *int `json:"final_rank,omitempty"`
	Wins       int  `json:"wins"`
	Losses     int  `json:"losses"`
	Draws      int  `json:"draws"`
	Score      int  `json:"score"`
}

type Standings struct {
	Rows []StandingRow `json:"standings"`
	// HeadToHead[a][b] is a's result against b: win, loss or draw
	HeadToHead map[uuid.UUID]map[uuid.UUID]string `json:"head_to_head"`
	// TotalMatches counts completed matches only
	TotalMatches     int `json:"total_matches"`
	MatchesRemaining int `json:"matches_remaining"`
}

type StandingRow struct {
	Rank int `json:"rank"`
	PlayerRef
	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Draws       int `json:"draws"`
	Losses      int `json:"losses"`
	Score       int `json:"score"`
}

const (
	ResultWin  = "win"
	ResultLoss = "loss"
	ResultDraw = "draw"
)

// GetBracket projects the stored state of a tournament. It never writes, so
// repeated calls without match activity return identical views.
func (s *TournamentService) GetBracket(ctx context.Context, id uuid.UUID) (*BracketView, error) {
	tournament, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.store.GetParticipants(ctx, id.String())
	if err != nil {
		return nil, err
	}
	matches, err := s.store.GetMatches(ctx, id.String())
	if err != nil {
		return nil, err
	}

	return ProjectBracket(*tournament, participants, matches), nil
}

// ProjectBracket builds the format-specific view from raw records
func ProjectBracket(tournament bracket.Tournament, participants []bracket.Participant, matches []bracket.Match) *BracketView {
	view := &BracketView{
		Tournament: tournament,
		Format:     tournament.Format,
		Status:     tournament.Status,
	}

	if tournament.Format == bracket.RoundRobin {
		view.RoundRobin = projectStandings(participants, matches)
	} else {
		view.Elimination = projectElimination(participants, matches)
	}
	return view
}

func refOf(p bracket.Participant) PlayerRef {
	return PlayerRef{ParticipantID: p.ID, BotID: p.BotID, BotName: p.BotName}
}

func projectElimination(participants []bracket.Participant, matches []bracket.Match) *EliminationBracket {
	refs := make(map[uuid.UUID]PlayerRef, len(participants))
	for _, p := range participants {
		refs[p.ID] = refOf(p)
	}

	byRound := make(map[int][]bracket.Match)
	var roundNums []int
	for _, m := range matches {
		if _, exists := byRound[m.RoundNumber]; !exists {
			roundNums = append(roundNums, m.RoundNumber)
		}
		byRound[m.RoundNumber] = append(byRound[m.RoundNumber], m)
	}
	sort.Ints(roundNums)

	rounds := make([]RoundView, 0, len(roundNums))
	for _, r := range roundNums {
		sort.Slice(byRound[r], func(i, j int) bool {
			return byRound[r][i].MatchOrder < byRound[r][j].MatchOrder
		})

		round := RoundView{Number: r, Matches: make([]MatchView, 0, len(byRound[r]))}
		for _, m := range byRound[r] {
			round.Matches = append(round.Matches, MatchView{
				ID:           m.ID,
				Order:        m.MatchOrder,
				Status:       m.Status,
				Participant1: refs[m.Participant1ID],
				Participant2: refs[m.Participant2ID],
				WinnerID:     m.WinnerID,
				Score1:       m.Score1,
				Score2:       m.Score2,
				Error:        m.Error,
			})
		}
		rounds = append(rounds, round)
	}

	ordered := sortBySeed(participants)
	views := make([]ParticipantView, 0, len(ordered))
	for _, p := range ordered {
		views = append(views, ParticipantView{
			PlayerRef:  refOf(p),
			Seed:       p.Seed,
			Eliminated: p.Eliminated,
			FinalRank:  p.FinalRank,
			Wins:       p.Wins,
			Losses:     p.Losses,
			Draws:      p.Draws,
			Score:      p.Score,
		})
	}

	return &EliminationBracket{
		Rounds:       rounds,
		Participants: views,
		TotalRounds:  totalRounds(len(participants)),
	}
}

func projectStandings(participants []bracket.Participant, matches []bracket.Match) *Standings {
	ordered := sortBySeed(participants)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].Wins > ordered[j].Wins
	})

	rows := make([]StandingRow, 0, len(ordered))
	for i, p := range ordered {
		rows = append(rows, StandingRow{
			Rank:        i + 1,
			PlayerRef:   refOf(p),
			GamesPlayed: p.GamesPlayed,
			Wins:        p.Wins,
			Draws:       p.Draws,
			Losses:      p.Losses,
			Score:       p.Score,
		})
	}

	h2h := make(map[uuid.UUID]map[uuid.UUID]string)
	record := func(a, b uuid.UUID, result string) {
		if h2h[a] == nil {
			h2h[a] = make(map[uuid.UUID]string)
		}
		h2h[a][b] = result
	}

	var completed, remaining int
	for _, m := range matches {
		switch m.Status {
		case bracket.MatchWaiting:
			remaining++
		case bracket.MatchCompleted:
			completed++
			for _, id := range []uuid.UUID{m.Participant1ID, m.Participant2ID} {
				result := ResultLoss
				switch {
				case m.IsDraw():
					result = ResultDraw
				case m.IsWinner(id):
					result = ResultWin
				}
				record(id, m.Opponent(id), result)
			}
		}
	}

	return &Standings{
		Rows:             rows,
		HeadToHead:       h2h,
		TotalMatches:     completed,
		MatchesRemaining: remaining,
	}
}
