package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when an insert violates a UNIQUE constraint.
var ErrDuplicate = errors.New("duplicate record")

// BotStore is the bot directory: registration, lookups and the aggregated
// records bots build up across tournaments.
type BotStore struct {
	db *sqlx.DB
}

const (
	getBotQuery       = "SELECT * FROM bots WHERE id = ?"
	getBotByNameQuery = "SELECT * FROM bots WHERE name = ?"
	botExistsQuery    = "SELECT EXISTS (SELECT 1 FROM bots WHERE id = ?)"
	createBotQuery    = `
		INSERT INTO bots (id, name, created_at) VALUES
		(:id, :name, :created_at)
	`
	recordColumns = `
		COUNT(p.id) AS tournaments,
		COALESCE(SUM(CASE WHEN p.final_rank = 1 THEN 1 ELSE 0 END), 0) AS tournaments_won,
		COALESCE(SUM(p.games_played), 0) AS games_played,
		COALESCE(SUM(p.wins), 0) AS wins,
		COALESCE(SUM(p.losses), 0) AS losses,
		COALESCE(SUM(p.draws), 0) AS draws,
		COALESCE(SUM(p.score), 0) AS points`
	botRecordQuery = `
		SELECT` + recordColumns + `
		FROM participants p
		JOIN tournaments t ON t.id = p.tournament_id
		WHERE p.bot_id = ? AND (? = '' OR t.game_type = ?)
	`
	gamesByTypeQuery = `
		SELECT t.game_type, COALESCE(SUM(p.games_played), 0) AS games
		FROM participants p
		JOIN tournaments t ON t.id = p.tournament_id
		WHERE p.bot_id = ?
		GROUP BY t.game_type
	`
	leaderboardQuery = `
		SELECT b.id AS bot_id, b.name AS bot_name,` + recordColumns + `
		FROM bots b
		JOIN participants p ON p.bot_id = b.id
		JOIN tournaments t ON t.id = p.tournament_id
		WHERE (? = '' OR t.game_type = ?)
		GROUP BY b.id, b.name
		HAVING COALESCE(SUM(p.games_played), 0) >= ?
		ORDER BY points DESC, wins DESC, games_played ASC, b.name ASC
		LIMIT ?
	`
)

type LeaderboardFilter struct {
	GameType string
	MinGames int
	Limit    int
}

func NewBotStore(db *sqlx.DB) *BotStore {
	return &BotStore{db: db}
}

func (s *BotStore) GetBot(ctx context.Context, id uuid.UUID) (*bracket.Bot, error) {
	var bot bracket.Bot
	err := s.db.GetContext(ctx, &bot, getBotQuery, id)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *BotStore) GetBotByName(ctx context.Context, name string) (*bracket.Bot, error) {
	var bot bracket.Bot
	err := s.db.GetContext(ctx, &bot, getBotByNameQuery, name)
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *BotStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, botExistsQuery, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

func (s *BotStore) CreateBot(ctx context.Context, bot *bracket.Bot) error {
	_, err := s.db.NamedExecContext(ctx, createBotQuery, bot)
	if isUniqueViolation(err) {
		return fmt.Errorf("bot %q: %w", bot.Name, ErrDuplicate)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// GetBotRecord sums the bot's participant stats, optionally for one game type.
func (s *BotStore) GetBotRecord(ctx context.Context, botID uuid.UUID, gameType string) (*bracket.BotRecord, error) {
	var record bracket.BotRecord
	if err := s.db.GetContext(ctx, &record, botRecordQuery, botID, gameType, gameType); err != nil {
		return nil, err
	}
	return &record, nil
}

// GetGamesByType counts the games a bot played per game type.
func (s *BotStore) GetGamesByType(ctx context.Context, botID uuid.UUID) (map[string]int, error) {
	var rows []struct {
		GameType string `db:"game_type"`
		Games    int    `db:"games"`
	}
	if err := s.db.SelectContext(ctx, &rows, gamesByTypeQuery, botID); err != nil {
		return nil, err
	}
	games := make(map[string]int, len(rows))
	for _, r := range rows {
		games[r.GameType] = r.Games
	}
	return games, nil
}

func (s *BotStore) Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]bracket.LeaderboardRow, error) {
	rows := []bracket.LeaderboardRow{}
	err := s.db.SelectContext(ctx, &rows, leaderboardQuery, filter.GameType, filter.GameType, filter.MinGames, filter.Limit)
	return rows, err
}
