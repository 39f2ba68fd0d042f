package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/game"
	"github.com/AdamBeresnev/bot-arena/internal/store"
	"github.com/AdamBeresnev/bot-arena/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TournamentService owns the tournament lifecycle: registration, seeding,
// round generation, advancement and final standings.
type TournamentService struct {
	db       *sqlx.DB
	store    *store.TournamentStore
	bots     BotDirectory
	registry *game.Registry

	rng   Rand
	now   func() time.Time
	locks keyedMutex
}

func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, bots BotDirectory, registry *game.Registry, opts ...Option) *TournamentService {
	o := buildOptions(opts)
	return &TournamentService{
		db:       db,
		store:    store,
		bots:     bots,
		registry: registry,
		rng:      o.rng,
		now:      o.now,
	}
}

type CreateInput struct {
	Name            string                   `json:"name"`
	GameType        string                   `json:"game_type"`
	Format          bracket.TournamentFormat `json:"format"`
	MaxParticipants *int                     `json:"max_participants,omitempty"`
	Config          bracket.Config           `json:"config,omitempty"`
}

func (s *TournamentService) Create(ctx context.Context, input CreateInput) (*bracket.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperr.New(apperr.CodeConfig, "tournament name is required")
	}
	if !input.Format.Valid() {
		return nil, apperr.Newf(apperr.CodeConfig, "unknown tournament format: %q", input.Format)
	}
	if !s.registry.Has(input.GameType) {
		return nil, apperr.Newf(apperr.CodeConfig, "unknown game type: %q", input.GameType)
	}
	if input.MaxParticipants != nil && *input.MaxParticipants < 2 {
		return nil, apperr.New(apperr.CodeConfig, "max_participants must be at least 2")
	}

	cfg := input.Config
	if cfg == nil {
		cfg = bracket.Config{}
	}
	if raw, ok := cfg[bracket.GameConfigKey]; ok && raw != nil && cfg.GameConfig() == nil {
		return nil, apperr.New(apperr.CodeConfig, "game_config must be an object")
	}
	// Catch bad game settings now rather than on the first match
	if _, err := s.registry.New(input.GameType, []string{"probe-1", "probe-2"}, game.Config(cfg.GameConfig())); err != nil {
		return nil, apperr.Wrap(apperr.CodeConfig, "invalid game_config", err)
	}

	tournament := bracket.Tournament{
		ID:              uuid.New(),
		Name:            name,
		GameType:        input.GameType,
		Format:          input.Format,
		Status:          bracket.TournamentRegistrationOpen,
		MaxParticipants: input.MaxParticipants,
		Config:          cfg,
		CreatedAt:       s.now(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTournament(ctx, tx, &tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("Tournament created", "tournament", tournament.ID, "format", tournament.Format, "game", tournament.GameType)
	return &tournament, nil
}

func (s *TournamentService) Join(ctx context.Context, tournamentID, botID uuid.UUID) (*bracket.Participant, error) {
	exists, err := s.bots.Exists(ctx, botID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bot: %w", err)
	}
	if !exists {
		return nil, apperr.Newf(apperr.CodeNotFound, "bot %s not found", botID)
	}

	unlock := s.locks.Lock(tournamentID.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournamentTx(ctx, tx, tournamentID.String())
	if err != nil {
		return nil, notFound(err, "tournament")
	}
	if tournament.Status != bracket.TournamentRegistrationOpen {
		return nil, apperr.Newf(apperr.CodeInvalidState, "tournament is %s, registration is closed", tournament.Status)
	}

	_, err = s.store.GetParticipantByBotTx(ctx, tx, tournamentID.String(), botID.String())
	switch {
	case err == nil:
		return nil, apperr.Newf(apperr.CodeAlreadyRegistered, "bot %s already joined", botID)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	if tournament.MaxParticipants != nil {
		count, err := s.store.CountParticipantsTx(ctx, tx, tournamentID.String())
		if err != nil {
			return nil, err
		}
		if count >= *tournament.MaxParticipants {
			return nil, apperr.Newf(apperr.CodeFull, "tournament is full (%d participants)", count)
		}
	}

	participant := bracket.Participant{
		ID:           uuid.New(),
		TournamentID: tournamentID,
		BotID:        botID,
		RegisteredAt: s.now(),
	}
	if err := s.store.CreateParticipant(ctx, tx, &participant); err != nil {
		return nil, fmt.Errorf("failed to create participant: %w", err)
	}

	created, err := s.store.GetParticipantTx(ctx, tx, participant.ID.String())
	if err != nil {
		return nil, err
	}
	return created, tx.Commit()
}

// Start seeds the participants with a random permutation, opens the
// tournament and schedules its first round.
func (s *TournamentService) Start(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournamentTx(ctx, tx, id.String())
	if err != nil {
		return nil, notFound(err, "tournament")
	}
	if tournament.Status != bracket.TournamentRegistrationOpen {
		return nil, apperr.Newf(apperr.CodeInvalidState, "tournament is already %s", tournament.Status)
	}

	participants, err := s.store.GetParticipantsTx(ctx, tx, id.String())
	if err != nil {
		return nil, err
	}
	if len(participants) < 2 {
		return nil, apperr.Newf(apperr.CodeInvalidState, "tournament needs at least 2 participants, has %d", len(participants))
	}

	perm := s.rng.Perm(len(participants))
	for i := range participants {
		participants[i].Seed = utils.Ptr(perm[i] + 1)
	}
	if err := s.store.UpdateSeedsTx(ctx, tx, participants); err != nil {
		return nil, fmt.Errorf("failed to seed participants: %w", err)
	}

	now := s.now()
	tournament.Status = bracket.TournamentInProgress
	tournament.StartTime = &now
	if err := s.store.UpdateTournamentTx(ctx, tx, tournament); err != nil {
		return nil, err
	}

	switch tournament.Format {
	case bracket.SingleElimination:
		if err := s.scheduleEliminationRound(ctx, tx, tournament, 1, participants); err != nil {
			return nil, err
		}
	case bracket.RoundRobin:
		matches := GenerateRoundRobin(tournament.ID, participants, now)
		if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
			return nil, fmt.Errorf("failed to create matches: %w", err)
		}
	default:
		return nil, apperr.Newf(apperr.CodeConfig, "unknown tournament format: %q", tournament.Format)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	slog.Info("Tournament started", "tournament", id, "participants", len(participants))
	return tournament, nil
}

func (s *TournamentService) scheduleEliminationRound(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament, round int, active []bracket.Participant) error {
	matches, bye := GenerateSingleElimRound(tournament.ID, round, active, s.now())
	if err := s.store.CreateMatches(ctx, tx, matches); err != nil {
		return fmt.Errorf("failed to create round %d: %w", round, err)
	}

	if bye != nil {
		if err := s.store.ApplyStatsTx(ctx, tx, bye.ID.String(), byeDelta); err != nil {
			return fmt.Errorf("failed to credit bye: %w", err)
		}
		slog.Debug("Bye awarded", "tournament", tournament.ID, "round", round, "participant", bye.ID)
	}
	return nil
}

// Advance moves the tournament forward once every match of the current round
// has finished: it schedules the next elimination round or finalises the
// standings. It reports whether anything changed. A failure while advancing
// cancels the tournament.
func (s *TournamentService) Advance(ctx context.Context, id uuid.UUID) (bool, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	changed, err := s.advance(ctx, id)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound || ctx.Err() != nil {
			return false, err
		}
		slog.Error("Advancing tournament failed, cancelling it", "tournament", id, "error", err)
		if cerr := s.cancel(ctx, id, fmt.Sprintf("advance failed: %v", err)); cerr != nil {
			slog.Error("Failed to cancel tournament", "tournament", id, "error", cerr)
		}
		return false, err
	}
	return changed, nil
}

func (s *TournamentService) advance(ctx context.Context, id uuid.UUID) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournamentTx(ctx, tx, id.String())
	if err != nil {
		return false, notFound(err, "tournament")
	}
	if tournament.Status != bracket.TournamentInProgress {
		return false, nil
	}

	round, err := s.store.GetCurrentRoundTx(ctx, tx, id.String())
	if err != nil {
		return false, err
	}
	unfinished, err := s.store.CountUnfinishedMatchesTx(ctx, tx, id.String(), round)
	if err != nil {
		return false, err
	}
	if unfinished > 0 {
		return false, nil
	}

	switch tournament.Format {
	case bracket.SingleElimination:
		active, err := s.store.GetActiveParticipantsTx(ctx, tx, id.String())
		if err != nil {
			return false, err
		}
		if len(active) > 1 {
			if err := s.scheduleEliminationRound(ctx, tx, tournament, round+1, active); err != nil {
				return false, err
			}
			slog.Info("Round scheduled", "tournament", id, "round", round+1, "remaining", len(active))
			return true, tx.Commit()
		}
	case bracket.RoundRobin:
		// Every match was scheduled at start
	default:
		return false, fmt.Errorf("unknown tournament format: %q", tournament.Format)
	}

	if err := s.finalize(ctx, tx, tournament); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

func (s *TournamentService) finalize(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	participants, err := s.store.GetParticipantsTx(ctx, tx, tournament.ID.String())
	if err != nil {
		return err
	}

	ranked := rankParticipants(participants)
	if err := s.store.SetFinalRanksTx(ctx, tx, ranked); err != nil {
		return fmt.Errorf("failed to set final ranks: %w", err)
	}

	now := s.now()
	tournament.Status = bracket.TournamentCompleted
	tournament.EndTime = &now
	if err := s.store.UpdateTournamentTx(ctx, tx, tournament); err != nil {
		return err
	}

	if len(ranked) > 0 {
		slog.Info("Tournament completed", "tournament", tournament.ID, "champion", ranked[0].BotName)
	}
	return nil
}

// Cancel stops the tournament and cancels its waiting matches. Matches
// already running finish normally.
func (s *TournamentService) Cancel(ctx context.Context, id uuid.UUID, reason string) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	return s.cancel(ctx, id, reason)
}

func (s *TournamentService) cancel(ctx context.Context, id uuid.UUID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = "cancelled"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournamentTx(ctx, tx, id.String())
	if err != nil {
		return notFound(err, "tournament")
	}
	if tournament.Status.IsTerminal() {
		return apperr.Newf(apperr.CodeInvalidState, "tournament is already %s", tournament.Status)
	}

	now := s.now()
	tournament.Status = bracket.TournamentCancelled
	tournament.Error = &reason
	tournament.EndTime = &now
	if err := s.store.UpdateTournamentTx(ctx, tx, tournament); err != nil {
		return err
	}

	cancelled, err := s.store.CancelWaitingMatchesTx(ctx, tx, id.String(), reason)
	if err != nil {
		return err
	}

	slog.Info("Tournament cancelled", "tournament", id, "reason", reason, "matches_cancelled", cancelled)
	return tx.Commit()
}

func (s *TournamentService) Get(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	tournament, err := s.store.GetTournament(ctx, id.String())
	if err != nil {
		return nil, notFound(err, "tournament")
	}
	return tournament, nil
}

type ListFilter = store.TournamentFilter

type TournamentPage struct {
	Tournaments []bracket.Tournament `json:"tournaments"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

const defaultPageSize = 20

func (s *TournamentService) List(ctx context.Context, filter ListFilter) (*TournamentPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	tournaments, total, err := s.store.ListTournaments(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &TournamentPage{
		Tournaments: tournaments,
		Total:       total,
		Limit:       filter.Limit,
		Offset:      filter.Offset,
	}, nil
}

func (s *TournamentService) Participants(ctx context.Context, id uuid.UUID) ([]bracket.Participant, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.GetParticipants(ctx, id.String())
}
