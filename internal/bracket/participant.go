package bracket

import (
	"time"

	"github.com/google/uuid"
)

type Participant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`
	BotID        uuid.UUID `db:"bot_id" json:"bot_id"`
	BotName      string    `db:"bot_name" json:"bot_name"`

	// Assigned once, when the tournament starts
	Seed *int `db:"seed" json:"seed,omitempty"`

	Wins        int  `db:"wins" json:"wins"`
	Losses      int  `db:"losses" json:"losses"`
	Draws       int  `db:"draws" json:"draws"`
	GamesPlayed int  `db:"games_played" json:"games_played"`
	Score       int  `db:"score" json:"score"`
	Eliminated  bool `db:"eliminated" json:"eliminated"`
	FinalRank   *int `db:"final_rank" json:"final_rank,omitempty"`

	RegisteredAt time.Time `db:"registered_at" json:"registered_at"`
}

// SeedOrZero is the seed for ordering purposes; unseeded participants sort first.
func (p *Participant) SeedOrZero() int {
	if p.Seed == nil {
		return 0
	}
	return *p.Seed
}

// StatsDelta is an increment applied to a participant's aggregate counters.
type StatsDelta struct {
	Wins        int
	Losses      int
	Draws       int
	GamesPlayed int
	Score       int
	Eliminate   bool
}

func (d StatsDelta) IsZero() bool {
	return d == StatsDelta{}
}
