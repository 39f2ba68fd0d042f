package game

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	GameTypeRPS               = "rps"
	GameTypeRockPaperScissors = "rock_paper_scissors"

	Rock     = "rock"
	Paper    = "paper"
	Scissors = "scissors"
)

// Symbols in integer encoding order: 0 rock, 1 paper, 2 scissors
var rpsChoices = []string{Rock, Paper, Scissors}

var beats = map[string]string{
	Rock:     Scissors,
	Paper:    Rock,
	Scissors: Paper,
}

// RoundResult records one resolved round. Winner is empty on a tie.
type RoundResult struct {
	Round  int               `json:"round"`
	Moves  map[string]string `json:"moves"`
	Winner string            `json:"winner,omitempty"`
}

// RPSState is the serialisable state of a rock/paper/scissors match.
type RPSState struct {
	Players     []string          `json:"players"`
	RoundNumber int               `json:"round_number"`
	TotalRounds int               `json:"total_rounds"`
	Pending     map[string]string `json:"pending"`
	Scores      map[string]int    `json:"scores"`
	Rounds      []RoundResult     `json:"rounds"`
}

// RPS is a best-of-N rock/paper/scissors engine. Both players move once per
// round; the round resolves when the second move arrives.
type RPS struct {
	state RPSState
}

// NewRPS builds an engine from the "total_rounds" setting (default 1).
func NewRPS(players []string, cfg Config) (Engine, error) {
	if len(players) != 2 {
		return nil, fmt.Errorf("rps requires exactly 2 players, got %d", len(players))
	}
	if players[0] == players[1] {
		return nil, fmt.Errorf("rps requires two distinct players")
	}
	totalRounds, err := cfg.Int("total_rounds", 1)
	if err != nil {
		return nil, err
	}
	if totalRounds < 1 {
		return nil, fmt.Errorf("total_rounds must be at least 1, got %d", totalRounds)
	}

	return &RPS{
		state: RPSState{
			Players:     []string{players[0], players[1]},
			RoundNumber: 1,
			TotalRounds: totalRounds,
			Pending:     make(map[string]string, 2),
			Scores:      map[string]int{players[0]: 0, players[1]: 0},
			Rounds:      []RoundResult{},
		},
	}, nil
}

// NormalizeChoice accepts a symbol in any case or its integer encoding.
func NormalizeChoice(action string) (string, bool) {
	a := strings.ToLower(strings.TrimSpace(action))
	if _, ok := beats[a]; ok {
		return a, true
	}
	if i, err := strconv.Atoi(a); err == nil && i >= 0 && i < len(rpsChoices) {
		return rpsChoices[i], true
	}
	return "", false
}

func (g *RPS) Players() []string {
	return []string{g.state.Players[0], g.state.Players[1]}
}

func (g *RPS) isPlayer(player string) bool {
	return player == g.state.Players[0] || player == g.state.Players[1]
}

func (g *RPS) ValidMoves(player string) []string {
	if !g.isPlayer(player) || g.IsTerminal() {
		return nil
	}
	if _, moved := g.state.Pending[player]; moved {
		return nil
	}
	return []string{Rock, Paper, Scissors}
}

func (g *RPS) IsValidMove(move Move) bool {
	return g.validate(move) == nil
}

func (g *RPS) validate(move Move) error {
	if !g.isPlayer(move.Player) {
		return fmt.Errorf("player %q is not in this game", move.Player)
	}
	if g.IsTerminal() {
		return fmt.Errorf("game is over")
	}
	if _, moved := g.state.Pending[move.Player]; moved {
		return fmt.Errorf("player %q already moved in round %d", move.Player, g.state.RoundNumber)
	}
	if _, ok := NormalizeChoice(move.Action); !ok {
		return fmt.Errorf("invalid action %q", move.Action)
	}
	return nil
}

func (g *RPS) ApplyMove(move Move) error {
	if err := g.validate(move); err != nil {
		return err
	}
	choice, _ := NormalizeChoice(move.Action)
	g.state.Pending[move.Player] = choice

	if len(g.state.Pending) == 2 {
		g.resolveRound()
	}
	return nil
}

func (g *RPS) resolveRound() {
	p1, p2 := g.state.Players[0], g.state.Players[1]
	c1, c2 := g.state.Pending[p1], g.state.Pending[p2]

	result := RoundResult{
		Round: g.state.RoundNumber,
		Moves: map[string]string{p1: c1, p2: c2},
	}
	switch {
	case c1 == c2:
		// tie, scores unchanged
	case beats[c1] == c2:
		g.state.Scores[p1]++
		result.Winner = p1
	default:
		g.state.Scores[p2]++
		result.Winner = p2
	}

	g.state.Rounds = append(g.state.Rounds, result)
	g.state.Pending = make(map[string]string, 2)
	g.state.RoundNumber++
}

func (g *RPS) IsTerminal() bool {
	return g.state.RoundNumber > g.state.TotalRounds
}

func (g *RPS) Winner() (string, bool) {
	if !g.IsTerminal() {
		return "", false
	}
	p1, p2 := g.state.Players[0], g.state.Players[1]
	switch s1, s2 := g.state.Scores[p1], g.state.Scores[p2]; {
	case s1 > s2:
		return p1, true
	case s2 > s1:
		return p2, true
	default:
		return "", false
	}
}

func (g *RPS) Score(player string) int {
	return g.state.Scores[player]
}

func (g *RPS) State() any {
	s := g.state
	s.Players = g.Players()
	s.Pending = copyMap(g.state.Pending)
	s.Scores = copyMap(g.state.Scores)
	s.Rounds = append([]RoundResult(nil), g.state.Rounds...)
	return s
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
