package service

import (
	"context"
	"errors"
)

// MoveRequest describes the decision a player has to make.
type MoveRequest struct {
	MatchID    string
	Player     string
	ValidMoves []string
	State      any
	Sequence   int
}

// MovePolicy chooses the next action for a player.
type MovePolicy interface {
	SelectMove(ctx context.Context, req MoveRequest) (string, error)
}

// PolicyFunc adapts a function to MovePolicy
type PolicyFunc func(ctx context.Context, req MoveRequest) (string, error)

func (f PolicyFunc) SelectMove(ctx context.Context, req MoveRequest) (string, error) {
	return f(ctx, req)
}

// RandomPolicy picks uniformly among the valid moves. It is the default for
// simulated play when no bot is wired in as a move source.
type RandomPolicy struct {
	rng Rand
}

func NewRandomPolicy(rng Rand) *RandomPolicy {
	return &RandomPolicy{rng: rng}
}

func (p *RandomPolicy) SelectMove(_ context.Context, req MoveRequest) (string, error) {
	if len(req.ValidMoves) == 0 {
		return "", errors.New("no valid moves")
	}
	return req.ValidMoves[p.rng.IntN(len(req.ValidMoves))], nil
}
