package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/game"
	"github.com/AdamBeresnev/bot-arena/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/AdamBeresnev/bot-arena/internal/service")

// MatchService plays scheduled matches to completion and records their
// outcome.
type MatchService struct {
	db       *sqlx.DB
	store    *store.TournamentStore
	registry *game.Registry

	policy   MovePolicy
	rng      Rand
	now      func() time.Time
	maxMoves int
}

func NewMatchService(db *sqlx.DB, store *store.TournamentStore, registry *game.Registry, opts ...Option) *MatchService {
	o := buildOptions(opts)
	return &MatchService{
		db:       db,
		store:    store,
		registry: registry,
		policy:   o.policy,
		rng:      o.rng,
		now:      o.now,
		maxMoves: o.maxMoves,
	}
}

// MatchResult is the outcome of one ExecuteMatch call. Err is set when the
// match could not be played and was cancelled instead.
type MatchResult struct {
	Match *bracket.Match
	Moves int
	Err   error
}

func (s *MatchService) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	match, err := s.store.GetMatch(ctx, id.String())
	if err != nil {
		return nil, notFound(err, "match")
	}
	return match, nil
}

// GetMoves returns the move audit trail of a match in sequence order
func (s *MatchService) GetMoves(ctx context.Context, matchID uuid.UUID) ([]bracket.MoveRecord, error) {
	if _, err := s.GetMatch(ctx, matchID); err != nil {
		return nil, err
	}
	return s.store.GetMoves(ctx, matchID.String())
}

// WaitingMatches returns the waiting matches of the earliest round that has any
func (s *MatchService) WaitingMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	return s.store.GetWaitingMatches(ctx, tournamentID.String())
}

// ExecuteMatch claims a waiting match, plays it with a fresh engine and
// commits moves, result and participant stats together. Failures inside the
// game are contained: the match is cancelled and the error is reported in
// MatchResult.Err. The returned error is reserved for lookups, state
// violations and persistence failures.
func (s *MatchService) ExecuteMatch(ctx context.Context, matchID uuid.UUID) (*MatchResult, error) {
	ctx, span := tracer.Start(ctx, "match.execute", trace.WithAttributes(attribute.String("match.id", matchID.String())))
	defer span.End()

	match, tournament, err := s.claim(ctx, matchID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tournament.id", tournament.ID.String()),
		attribute.Int("match.round", match.RoundNumber),
	)

	engine, records, playErr := s.play(ctx, tournament, match)
	if playErr != nil {
		execErr := apperr.Wrap(apperr.CodeExecution, "match execution failed", playErr)
		span.RecordError(execErr)
		slog.Warn("Match cancelled", "match", match.ID, "tournament", tournament.ID, "error", playErr)

		if err := s.commitCancelled(ctx, tournament, match, execErr); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to record cancelled match: %w", err)
		}
		return &MatchResult{Match: match, Moves: len(records), Err: execErr}, nil
	}

	if err := s.commitCompleted(ctx, tournament, match, engine, records); err != nil {
		// Leave nothing stuck in progress
		if cerr := s.commitCancelled(context.WithoutCancel(ctx), tournament, match, err); cerr != nil {
			slog.Error("Failed to cancel match after commit failure", "match", match.ID, "error", cerr)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to record match result: %w", err)
	}

	slog.Debug("Match completed", "match", match.ID, "moves", len(records), "winner", match.WinnerID)
	return &MatchResult{Match: match, Moves: len(records)}, nil
}

func (s *MatchService) claim(ctx context.Context, matchID uuid.UUID) (*bracket.Match, *bracket.Tournament, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	match, err := s.store.GetMatchTx(ctx, tx, matchID.String())
	if err != nil {
		return nil, nil, notFound(err, "match")
	}
	tournament, err := s.store.GetTournamentTx(ctx, tx, match.TournamentID.String())
	if err != nil {
		return nil, nil, notFound(err, "tournament")
	}
	if tournament.Status != bracket.TournamentInProgress {
		return nil, nil, apperr.Newf(apperr.CodeInvalidState, "tournament is %s", tournament.Status)
	}
	if match.Status != bracket.MatchWaiting {
		return nil, nil, apperr.Newf(apperr.CodeInvalidState, "match is already %s", match.Status)
	}

	now := s.now()
	match.StartedAt = &now
	claimed, err := s.store.ClaimMatchTx(ctx, tx, match)
	if err != nil {
		return nil, nil, err
	}
	if !claimed {
		return nil, nil, apperr.New(apperr.CodeInvalidState, "match was claimed by another worker")
	}
	return match, tournament, tx.Commit()
}

// play runs the engine until it is terminal, nobody can move or the move cap
// is hit. Panics from the engine or policy are returned as errors.
func (s *MatchService) play(ctx context.Context, tournament *bracket.Tournament, match *bracket.Match) (engine game.Engine, records []bracket.MoveRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during match: %v", r)
		}
	}()

	players := []string{match.Participant1ID.String(), match.Participant2ID.String()}
	engine, err = s.registry.New(tournament.GameType, players, game.Config(tournament.Config.GameConfig()))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create engine: %w", err)
	}

	for seq := 1; !engine.IsTerminal(); seq++ {
		if seq > s.maxMoves {
			slog.Warn("Match hit the move cap", "match", match.ID, "max_moves", s.maxMoves)
			break
		}

		player, valid := nextMover(engine)
		if player == "" {
			break
		}

		started := time.Now()
		action, err := s.policy.SelectMove(ctx, MoveRequest{
			MatchID:    match.ID.String(),
			Player:     player,
			ValidMoves: valid,
			State:      engine.State(),
			Sequence:   seq,
		})
		if err != nil {
			return engine, records, fmt.Errorf("select move %d: %w", seq, err)
		}
		if err := engine.ApplyMove(game.Move{Player: player, Action: action}); err != nil {
			return engine, records, fmt.Errorf("apply move %d: %w", seq, err)
		}

		participantID, err := uuid.Parse(player)
		if err != nil {
			return engine, records, fmt.Errorf("engine returned unknown player %q", player)
		}
		records = append(records, bracket.MoveRecord{
			ID:            uuid.New(),
			MatchID:       match.ID,
			ParticipantID: participantID,
			Action:        action,
			Sequence:      seq,
			ElapsedMS:     time.Since(started).Milliseconds(),
			CreatedAt:     s.now(),
		})
	}
	return engine, records, nil
}

// nextMover returns the first player, in seat order, with any valid move
func nextMover(engine game.Engine) (string, []string) {
	for _, p := range engine.Players() {
		if valid := engine.ValidMoves(p); len(valid) > 0 {
			return p, valid
		}
	}
	return "", nil
}

func (s *MatchService) commitCompleted(ctx context.Context, tournament *bracket.Tournament, match *bracket.Match, engine game.Engine, records []bracket.MoveRecord) error {
	state, err := json.Marshal(engine.State())
	if err != nil {
		return fmt.Errorf("failed to encode engine state: %w", err)
	}

	now := s.now()
	match.Status = bracket.MatchCompleted
	match.State = state
	match.CompletedAt = &now
	match.WinnerID = nil
	if engine.IsTerminal() {
		if winner, ok := engine.Winner(); ok {
			id, err := uuid.Parse(winner)
			if err != nil {
				return fmt.Errorf("engine returned unknown winner %q", winner)
			}
			match.WinnerID = &id
		}
	}
	if scorer, ok := engine.(game.Scorer); ok {
		match.Score1 = scorer.Score(match.Participant1ID.String())
		match.Score2 = scorer.Score(match.Participant2ID.String())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.store.CreateMoves(ctx, tx, records); err != nil {
		return fmt.Errorf("failed to record moves: %w", err)
	}
	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return err
	}

	d1, d2 := matchDeltas(tournament.Format, match, s.rng)
	if err := s.applyDeltas(ctx, tx, match, d1, d2); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MatchService) commitCancelled(ctx context.Context, tournament *bracket.Tournament, match *bracket.Match, cause error) error {
	reason := cause.Error()
	now := s.now()
	match.Status = bracket.MatchCancelled
	match.Error = &reason
	match.WinnerID = nil
	match.CompletedAt = &now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.store.UpdateMatchTx(ctx, tx, match); err != nil {
		return err
	}

	d1, d2 := cancelledDeltas(tournament.Format, s.rng)
	if err := s.applyDeltas(ctx, tx, match, d1, d2); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MatchService) applyDeltas(ctx context.Context, tx *sqlx.Tx, match *bracket.Match, d1, d2 bracket.StatsDelta) error {
	for _, u := range []struct {
		id    uuid.UUID
		delta bracket.StatsDelta
	}{{match.Participant1ID, d1}, {match.Participant2ID, d2}} {
		if u.delta.IsZero() {
			continue
		}
		if err := s.store.ApplyStatsTx(ctx, tx, u.id.String(), u.delta); err != nil {
			return fmt.Errorf("failed to update participant stats: %w", err)
		}
	}
	return nil
}
