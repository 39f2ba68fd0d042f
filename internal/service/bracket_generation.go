package service

import (
	"math"
	"slices"
	"sort"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/utils"
	"github.com/google/uuid"
)

// Gets the nearest power of 2 while rounding up, so with input 5 it returns 8 and so on
func calcBracketSize(count int) int {
	if count <= 0 {
		return 0
	}

	// Log2 -> Ceil -> 2^^log2 to round up
	log2 := math.Ceil(math.Log2(float64(count)))
	return int(math.Pow(2, log2))
}

// totalRounds is the number of single elimination rounds for count
// participants, ceil(log2(count))
func totalRounds(count int) int {
	if count < 2 {
		return 0
	}
	return int(math.Log2(float64(calcBracketSize(count))))
}

func sortBySeed(participants []bracket.Participant) []bracket.Participant {
	sorted := slices.Clone(participants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].SeedOrZero() < sorted[j].SeedOrZero()
	})
	return sorted
}

// pairSingleElimination pairs seed-ordered participants 2i with 2i+1. With an
// odd count the last participant gets the bye.
func pairSingleElimination(active []bracket.Participant) ([][2]bracket.Participant, *bracket.Participant) {
	ordered := sortBySeed(active)

	pairs := make([][2]bracket.Participant, 0, len(ordered)/2)
	for i := 0; i+1 < len(ordered); i += 2 {
		pairs = append(pairs, [2]bracket.Participant{ordered[i], ordered[i+1]})
	}

	if len(ordered)%2 == 1 {
		bye := ordered[len(ordered)-1]
		return pairs, &bye
	}
	return pairs, nil
}

// roundRobinSchedule returns, per round, the index pairs to play. It uses the
// circle method: index 0 stays fixed while the rest rotate, and an odd count
// gets a phantom slot whose pairing is the round's bye.
func roundRobinSchedule(count int) [][][2]int {
	if count < 2 {
		return nil
	}

	slots := count
	if slots%2 == 1 {
		slots++
	}
	circle := make([]int, slots)
	for i := range circle {
		circle[i] = i
	}

	rounds := make([][][2]int, 0, slots-1)
	for r := 0; r < slots-1; r++ {
		pairs := make([][2]int, 0, slots/2)
		for i := 0; i < slots/2; i++ {
			a, b := circle[i], circle[slots-1-i]
			if a >= count || b >= count {
				continue
			}
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, [2]int{a, b})
		}
		rounds = append(rounds, pairs)

		last := circle[slots-1]
		copy(circle[2:], circle[1:slots-1])
		circle[1] = last
	}
	return rounds
}

func newMatch(tournamentID uuid.UUID, round, order int, p1, p2 uuid.UUID, now time.Time) bracket.Match {
	return bracket.Match{
		ID:             uuid.New(),
		TournamentID:   tournamentID,
		RoundNumber:    round,
		MatchOrder:     order,
		Status:         bracket.MatchWaiting,
		Participant1ID: p1,
		Participant2ID: p2,
		State:          []byte("{}"),
		CreatedAt:      now,
	}
}

// GenerateSingleElimRound builds the matches of one single elimination round
// from the non-eliminated participants. The returned participant, if any,
// receives a bye this round.
func GenerateSingleElimRound(tournamentID uuid.UUID, round int, active []bracket.Participant, now time.Time) ([]bracket.Match, *bracket.Participant) {
	pairs, bye := pairSingleElimination(active)

	matches := make([]bracket.Match, 0, len(pairs))
	for i, pair := range pairs {
		matches = append(matches, newMatch(tournamentID, round, i+1, pair[0].ID, pair[1].ID, now))
	}
	return matches, bye
}

// GenerateRoundRobin builds every match of a round robin tournament. Each
// unordered pair of participants plays exactly once and nobody plays twice
// in the same round.
func GenerateRoundRobin(tournamentID uuid.UUID, participants []bracket.Participant, now time.Time) []bracket.Match {
	ordered := sortBySeed(participants)

	var matches []bracket.Match
	for r, pairs := range roundRobinSchedule(len(ordered)) {
		for i, pair := range pairs {
			matches = append(matches, newMatch(tournamentID, r+1, i+1, ordered[pair[0]].ID, ordered[pair[1]].ID, now))
		}
	}
	return matches
}

// rankParticipants orders participants for final standings and assigns
// final_rank 1..N. Survivors of an elimination bracket come first, then
// score desc, wins desc, games played asc, seed asc.
func rankParticipants(participants []bracket.Participant) []bracket.Participant {
	ranked := slices.Clone(participants)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Eliminated != b.Eliminated {
			return !a.Eliminated
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Wins != b.Wins {
			return a.Wins > b.Wins
		}
		if a.GamesPlayed != b.GamesPlayed {
			return a.GamesPlayed < b.GamesPlayed
		}
		return a.SeedOrZero() < b.SeedOrZero()
	})

	for i := range ranked {
		ranked[i].FinalRank = utils.Ptr(i + 1)
	}
	return ranked
}

// byeDelta is credited to a participant advancing without a match
var byeDelta = bracket.StatsDelta{Wins: 1, GamesPlayed: 1}

// matchDeltas returns the stat increments for both participants of a
// completed match. In single elimination the loser is eliminated; a draw
// eliminates one of the two at random and credits the other with a win.
func matchDeltas(format bracket.TournamentFormat, m *bracket.Match, rng Rand) (bracket.StatsDelta, bracket.StatsDelta) {
	win := bracket.StatsDelta{Wins: 1, GamesPlayed: 1, Score: 3}
	loss := bracket.StatsDelta{Losses: 1, GamesPlayed: 1, Eliminate: format == bracket.SingleElimination}

	switch {
	case m.IsWinner(m.Participant1ID):
		return win, loss
	case m.IsWinner(m.Participant2ID):
		return loss, win
	case format == bracket.SingleElimination:
		tied := bracket.StatsDelta{Draws: 1, Losses: 1, GamesPlayed: 1, Eliminate: true}
		if rng.IntN(2) == 0 {
			return tied, win
		}
		return win, tied
	default:
		draw := bracket.StatsDelta{Draws: 1, GamesPlayed: 1, Score: 1}
		return draw, draw
	}
}

// cancelledDeltas handles a match that could not be played. Round robin
// credits nothing; single elimination eliminates one participant at random
// so the bracket keeps shrinking.
func cancelledDeltas(format bracket.TournamentFormat, rng Rand) (bracket.StatsDelta, bracket.StatsDelta) {
	if format != bracket.SingleElimination {
		return bracket.StatsDelta{}, bracket.StatsDelta{}
	}
	out := bracket.StatsDelta{Eliminate: true}
	if rng.IntN(2) == 0 {
		return out, bracket.StatsDelta{}
	}
	return bracket.StatsDelta{}, out
}
