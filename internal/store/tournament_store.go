package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

const (
	participantSelect = `SELECT p.*, b.name AS bot_name FROM participants p JOIN bots b ON b.id = p.bot_id`

	updateTournamentQuery = `UPDATE tournaments SET
		status = :status,
		error = :error,
		start_time = :start_time,
		end_time = :end_time
		WHERE id = :id`

	updateMatchQuery = `UPDATE matches SET
		status = :status,
		winner_id = :winner_id,
		score_1 = :score_1,
		score_2 = :score_2,
		state = :state,
		error = :error,
		started_at = :started_at,
		completed_at = :completed_at
		WHERE id = :id`

	applyStatsQuery = `UPDATE participants SET
		wins = wins + ?,
		losses = losses + ?,
		draws = draws + ?,
		games_played = games_played + ?,
		score = score + ?,
		eliminated = CASE WHEN ? THEN 1 ELSE eliminated END
		WHERE id = ?`
)

// TournamentFilter narrows ListTournaments. Zero values mean no filter.
type TournamentFilter struct {
	Status   bracket.TournamentStatus
	GameType string
	Limit    int
	Offset   int
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, name, game_type, format, status, max_participants, config, created_at)
        VALUES (:id, :name, :game_type, :format, :status, :max_participants, :config, :created_at)`, tournament)
	return err
}

func (s *TournamentStore) GetTournament(ctx context.Context, id string) (*bracket.Tournament, error) {
	return getTournament(ctx, s.db, id)
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id string) (*bracket.Tournament, error) {
	return getTournament(ctx, tx, id)
}

func getTournament(ctx context.Context, q sqlx.QueryerContext, id string) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, "SELECT * FROM tournaments WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context, filter TournamentFilter) ([]bracket.Tournament, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.GameType != "" {
		where = append(where, "game_type = ?")
		args = append(args, filter.GameType)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM tournaments"+clause, args...); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf("SELECT * FROM tournaments%s ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?", clause)
	args = append(args, limit, filter.Offset)

	tournaments := []bracket.Tournament{}
	if err := s.db.SelectContext(ctx, &tournaments, query, args...); err != nil {
		return nil, 0, err
	}
	return tournaments, total, nil
}

func (s *TournamentStore) UpdateTournamentTx(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, updateTournamentQuery, tournament)
	return err
}

func (s *TournamentStore) CreateParticipant(ctx context.Context, tx *sqlx.Tx, participant *bracket.Participant) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO participants (id, tournament_id, bot_id, registered_at)
            VALUES (:id, :tournament_id, :bot_id, :registered_at)`, participant)
	return err
}

func (s *TournamentStore) GetParticipantTx(ctx context.Context, tx *sqlx.Tx, id string) (*bracket.Participant, error) {
	var participant bracket.Participant
	if err := tx.GetContext(ctx, &participant, participantSelect+" WHERE p.id = ?", id); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *TournamentStore) GetParticipantByBotTx(ctx context.Context, tx *sqlx.Tx, tournamentID, botID string) (*bracket.Participant, error) {
	var participant bracket.Participant
	if err := tx.GetContext(ctx, &participant, participantSelect+" WHERE p.tournament_id = ? AND p.bot_id = ?", tournamentID, botID); err != nil {
		return nil, err
	}
	return &participant, nil
}

func (s *TournamentStore) CountParticipantsTx(ctx context.Context, tx *sqlx.Tx, tournamentID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM participants WHERE tournament_id = ?", tournamentID)
	return count, err
}

// GetParticipants returns all participants ordered by seed, then registration.
func (s *TournamentStore) GetParticipants(ctx context.Context, tournamentID string) ([]bracket.Participant, error) {
	return getParticipants(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetParticipantsTx(ctx context.Context, tx *sqlx.Tx, tournamentID string) ([]bracket.Participant, error) {
	return getParticipants(ctx, tx, tournamentID)
}

func getParticipants(ctx context.Context, q sqlx.QueryerContext, tournamentID string) ([]bracket.Participant, error) {
	participants := []bracket.Participant{}
	err := sqlx.SelectContext(ctx, q, &participants,
		participantSelect+" WHERE p.tournament_id = ? ORDER BY p.seed ASC, p.registered_at ASC, p.id ASC", tournamentID)
	return participants, err
}

// GetActiveParticipantsTx returns the non-eliminated participants ordered by seed.
func (s *TournamentStore) GetActiveParticipantsTx(ctx context.Context, tx *sqlx.Tx, tournamentID string) ([]bracket.Participant, error) {
	participants := []bracket.Participant{}
	err := tx.SelectContext(ctx, &participants,
		participantSelect+" WHERE p.tournament_id = ? AND p.eliminated = 0 ORDER BY p.seed ASC", tournamentID)
	return participants, err
}

func (s *TournamentStore) UpdateSeedsTx(ctx context.Context, tx *sqlx.Tx, participants []bracket.Participant) error {
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, "UPDATE participants SET seed = ? WHERE id = ? AND seed IS NULL", p.Seed, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// ApplyStatsTx increments the participant's counters in place so concurrent
// match commits never overwrite each other.
func (s *TournamentStore) ApplyStatsTx(ctx context.Context, tx *sqlx.Tx, participantID string, delta bracket.StatsDelta) error {
	res, err := tx.ExecContext(ctx, applyStatsQuery,
		delta.Wins, delta.Losses, delta.Draws, delta.GamesPlayed, delta.Score, delta.Eliminate, participantID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("participant %s not found", participantID)
	}
	return nil
}

func (s *TournamentStore) SetFinalRanksTx(ctx context.Context, tx *sqlx.Tx, participants []bracket.Participant) error {
	for _, p := range participants {
		if _, err := tx.ExecContext(ctx, "UPDATE participants SET final_rank = ? WHERE id = ?", p.FinalRank, p.ID); err != nil {
			return err
		}
	}
	return nil
}

// insertBatchSize rows per multi-row INSERT keeps the bound parameters well
// below SQLite's 32766 limit.
const insertBatchSize = 500

func (s *TournamentStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	for start := 0; start < len(matches); start += insertBatchSize {
		end := min(start+insertBatchSize, len(matches))
		_, err := tx.NamedExecContext(ctx, `INSERT INTO matches (id, tournament_id, round_number, match_order, status, participant_1_id, participant_2_id, state, created_at)
			VALUES (:id, :tournament_id, :round_number, :match_order, :status, :participant_1_id, :participant_2_id, :state, :created_at)`, matches[start:end])
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *TournamentStore) GetMatch(ctx context.Context, id string) (*bracket.Match, error) {
	return getMatch(ctx, s.db, id)
}

func (s *TournamentStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id string) (*bracket.Match, error) {
	return getMatch(ctx, tx, id)
}

func getMatch(ctx context.Context, q sqlx.QueryerContext, id string) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, "SELECT * FROM matches WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &match, nil
}

func (s *TournamentStore) GetMatches(ctx context.Context, tournamentID string) ([]bracket.Match, error) {
	return getMatches(ctx, s.db, tournamentID)
}

func (s *TournamentStore) GetMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID string) ([]bracket.Match, error) {
	return getMatches(ctx, tx, tournamentID)
}

func getMatches(ctx context.Context, q sqlx.QueryerContext, tournamentID string) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := sqlx.SelectContext(ctx, q, &matches,
		"SELECT * FROM matches WHERE tournament_id = ? ORDER BY round_number ASC, match_order ASC", tournamentID)
	return matches, err
}

// GetCurrentRoundTx returns the highest scheduled round number, 0 when no
// match exists yet.
func (s *TournamentStore) GetCurrentRoundTx(ctx context.Context, tx *sqlx.Tx, tournamentID string) (int, error) {
	var round int
	err := tx.GetContext(ctx, &round, "SELECT COALESCE(MAX(round_number), 0) FROM matches WHERE tournament_id = ?", tournamentID)
	return round, err
}

// CountUnfinishedMatchesTx counts matches that are neither completed nor
// cancelled, in every round up to and including round.
func (s *TournamentStore) CountUnfinishedMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID string, round int) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND round_number <= ? AND status NOT IN (?, ?)",
		tournamentID, round, bracket.MatchCompleted, bracket.MatchCancelled)
	return count, err
}

// GetWaitingMatches returns the waiting matches of the lowest round that still
// has any.
func (s *TournamentStore) GetWaitingMatches(ctx context.Context, tournamentID string) ([]bracket.Match, error) {
	matches := []bracket.Match{}
	err := s.db.SelectContext(ctx, &matches, `SELECT * FROM matches
		WHERE tournament_id = ? AND status = ? AND round_number = (
			SELECT MIN(round_number) FROM matches WHERE tournament_id = ? AND status = ?
		)
		ORDER BY match_order ASC`,
		tournamentID, bracket.MatchWaiting, tournamentID, bracket.MatchWaiting)
	return matches, err
}

func (s *TournamentStore) CountMatchesByStatus(ctx context.Context, tournamentID string, status bracket.MatchStatus) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM matches WHERE tournament_id = ? AND status = ?", tournamentID, status)
	return count, err
}

func (s *TournamentStore) UpdateMatchTx(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	_, err := tx.NamedExecContext(ctx, updateMatchQuery, match)
	return err
}

// ClaimMatchTx moves a waiting match to in_progress. It reports false when
// the match was no longer waiting.
func (s *TournamentStore) ClaimMatchTx(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) (bool, error) {
	res, err := tx.ExecContext(ctx, "UPDATE matches SET status = ?, started_at = ? WHERE id = ? AND status = ?",
		bracket.MatchInProgress, match.StartedAt, match.ID, bracket.MatchWaiting)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		match.Status = bracket.MatchInProgress
	}
	return n == 1, nil
}

func (s *TournamentStore) CancelWaitingMatchesTx(ctx context.Context, tx *sqlx.Tx, tournamentID string, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, "UPDATE matches SET status = ?, error = ? WHERE tournament_id = ? AND status = ?",
		bracket.MatchCancelled, reason, tournamentID, bracket.MatchWaiting)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TournamentStore) CreateMoves(ctx context.Context, tx *sqlx.Tx, moves []bracket.MoveRecord) error {
	for start := 0; start < len(moves); start += insertBatchSize {
		end := min(start+insertBatchSize, len(moves))
		_, err := tx.NamedExecContext(ctx, `INSERT INTO moves (id, match_id, participant_id, action, sequence, elapsed_ms, created_at)
			VALUES (:id, :match_id, :participant_id, :action, :sequence, :elapsed_ms, :created_at)`, moves[start:end])
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *TournamentStore) GetMoves(ctx context.Context, matchID string) ([]bracket.MoveRecord, error) {
	moves := []bracket.MoveRecord{}
	err := s.db.SelectContext(ctx, &moves, "SELECT * FROM moves WHERE match_id = ? ORDER BY sequence ASC", matchID)
	return moves, err
}
