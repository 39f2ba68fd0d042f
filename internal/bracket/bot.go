package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Bot struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// BotRecord aggregates a bot's participant stats across tournaments.
type BotRecord struct {
	Tournaments    int `db:"tournaments" json:"tournaments"`
	TournamentsWon int `db:"tournaments_won" json:"tournaments_won"`
	GamesPlayed    int `db:"games_played" json:"games_played"`
	Wins           int `db:"wins" json:"wins"`
	Losses         int `db:"losses" json:"losses"`
	Draws          int `db:"draws" json:"draws"`
	Points         int `db:"points" json:"points"`
}

// WinRate is the percentage of played games won.
func (r BotRecord) WinRate() float64 {
	if r.GamesPlayed == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.GamesPlayed) * 100
}

type LeaderboardRow struct {
	BotID   uuid.UUID `db:"bot_id" json:"bot_id"`
	BotName string    `db:"bot_name" json:"bot_name"`
	BotRecord
}
