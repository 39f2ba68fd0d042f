package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/AdamBeresnev/bot-arena/internal/apperr"
	"github.com/AdamBeresnev/bot-arena/internal/bracket"
	"github.com/AdamBeresnev/bot-arena/internal/store"
	"github.com/google/uuid"
)

const (
	maxBotNameLength = 50

	defaultLeaderboardLimit = 20
	maxLeaderboardLimit     = 100
)

type BotService struct {
	store *store.BotStore
	opts  options
}

func NewBotService(store *store.BotStore, opts ...Option) *BotService {
	return &BotService{store: store, opts: buildOptions(opts)}
}

// Register adds a bot under a unique name. Names are limited in characters,
// not bytes.
func (s *BotService) Register(ctx context.Context, name string) (*bracket.Bot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.New(apperr.CodeConfig, "bot name is required")
	}
	if utf8.RuneCountInString(name) > maxBotNameLength {
		return nil, apperr.Newf(apperr.CodeConfig, "bot name exceeds %d characters", maxBotNameLength)
	}

	existing, err := s.store.GetBotByName(ctx, name)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existing != nil {
		return nil, alreadyRegistered(name)
	}

	bot := &bracket.Bot{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: s.opts.now(),
	}
	if err := s.store.CreateBot(ctx, bot); err != nil {
		// Lost a race with a concurrent registration of the same name
		if errors.Is(err, store.ErrDuplicate) {
			return nil, alreadyRegistered(name)
		}
		return nil, err
	}
	return bot, nil
}

func alreadyRegistered(name string) error {
	return apperr.Newf(apperr.CodeAlreadyRegistered, "bot %q already exists", name)
}

func (s *BotService) Get(ctx context.Context, id uuid.UUID) (*bracket.Bot, error) {
	bot, err := s.store.GetBot(ctx, id)
	if err != nil {
		return nil, notFound(err, "bot")
	}
	return bot, nil
}

// BotStats is a bot's record summed over every tournament it joined.
type BotStats struct {
	Bot      *bracket.Bot `json:"bot"`
	GameType string       `json:"game_type,omitempty"`
	bracket.BotRecord
	WinRate     float64        `json:"win_rate"`
	GamesByType map[string]int `json:"games_by_type"`
}

// Stats aggregates the bot's results. An empty gameType covers all games.
func (s *BotService) Stats(ctx context.Context, id uuid.UUID, gameType string) (*BotStats, error) {
	bot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	record, err := s.store.GetBotRecord(ctx, id, gameType)
	if err != nil {
		return nil, err
	}
	byType, err := s.store.GetGamesByType(ctx, id)
	if err != nil {
		return nil, err
	}

	return &BotStats{
		Bot:         bot,
		GameType:    gameType,
		BotRecord:   *record,
		WinRate:     record.WinRate(),
		GamesByType: byType,
	}, nil
}

type LeaderboardFilter struct {
	GameType string
	Limit    int
	MinGames int
}

type LeaderboardEntry struct {
	Rank int `json:"rank"`
	bracket.LeaderboardRow
	WinRate float64 `json:"win_rate"`
}

// Leaderboard ranks bots by tournament points, then wins. Bots with fewer than
// MinGames played games are left out.
func (s *BotService) Leaderboard(ctx context.Context, filter LeaderboardFilter) ([]LeaderboardEntry, error) {
	if filter.Limit < 0 || filter.Limit > maxLeaderboardLimit {
		return nil, apperr.Newf(apperr.CodeConfig, "limit must be between 1 and %d", maxLeaderboardLimit)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultLeaderboardLimit
	}
	if filter.MinGames < 0 {
		return nil, apperr.New(apperr.CodeConfig, "min_games cannot be negative")
	}
	if filter.MinGames == 0 {
		filter.MinGames = 1
	}

	rows, err := s.store.Leaderboard(ctx, store.LeaderboardFilter{
		GameType: filter.GameType,
		MinGames: filter.MinGames,
		Limit:    filter.Limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(rows))
	for i, row := range rows {
		entries[i] = LeaderboardEntry{Rank: i + 1, LeaderboardRow: row, WinRate: row.WinRate()}
	}
	return entries, nil
}
