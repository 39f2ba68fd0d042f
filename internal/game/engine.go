package game

import (
	"fmt"
	"math"
	"strconv"
)

// Move is a single action submitted by one player.
type Move struct {
	Player string `json:"player"`
	Action string `json:"action"`
}

// Engine implements the rules of one game. A fresh Engine is built for every
// match by its Constructor, which performs initialisation.
type Engine interface {
	// Players returns the player ids in seat order
	Players() []string

	// ValidMoves lists the actions the player may take right now. An empty
	// result means the player is not expected to move.
	ValidMoves(player string) []string

	IsValidMove(move Move) bool

	// ApplyMove validates and applies the move, advancing the game state
	ApplyMove(move Move) error

	IsTerminal() bool

	// Winner returns the winning player once the game is terminal.
	// ok is false for a draw or an unfinished game.
	Winner() (player string, ok bool)

	// State returns a JSON-serialisable snapshot of the current state
	State() any
}

// Scorer is implemented by engines that keep a per-player score.
type Scorer interface {
	Score(player string) int
}

// Config is the per-game configuration taken from the tournament config.
type Config map[string]any

// Int reads an integer setting. JSON numbers arrive as float64 and are
// accepted when they hold a whole value.
func (c Config) Int(key string, def int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%s must be a whole number, got %v", key, n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("%s must be a number: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", key, v)
	}
}
