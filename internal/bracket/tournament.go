package bracket

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentRegistrationOpen TournamentStatus = "registration_open"
	TournamentInProgress       TournamentStatus = "in_progress"
	TournamentCompleted        TournamentStatus = "completed"
	TournamentCancelled        TournamentStatus = "cancelled"
)

// IsTerminal reports whether no further lifecycle transitions are allowed.
func (s TournamentStatus) IsTerminal() bool {
	return s == TournamentCompleted || s == TournamentCancelled
}

type TournamentFormat string

const (
	SingleElimination TournamentFormat = "single_elimination"
	RoundRobin        TournamentFormat = "round_robin"
)

func (f TournamentFormat) Valid() bool {
	return f == SingleElimination || f == RoundRobin
}

// Config is the free-form tournament configuration, stored as a JSON object.
// The "game_config" key is handed to the game engine of every match.
type Config map[string]any

const GameConfigKey = "game_config"

// GameConfig returns the engine configuration sub-map, or nil when absent.
func (c Config) GameConfig() map[string]any {
	if c == nil {
		return nil
	}
	gc, _ := c[GameConfigKey].(map[string]any)
	return gc
}

func (c Config) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Config) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = Config{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into Config", src)
	}
	if len(raw) == 0 {
		*c = Config{}
		return nil
	}
	cfg := Config{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}
	*c = cfg
	return nil
}

type Tournament struct {
	ID              uuid.UUID        `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	GameType        string           `db:"game_type" json:"game_type"`
	Format          TournamentFormat `db:"format" json:"format"`
	Status          TournamentStatus `db:"status" json:"status"`
	MaxParticipants *int             `db:"max_participants" json:"max_participants,omitempty"`
	Config          Config           `db:"config" json:"config"`
	Error           *string          `db:"error" json:"error,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	StartTime       *time.Time       `db:"start_time" json:"start_time,omitempty"`
	EndTime         *time.Time       `db:"end_time" json:"end_time,omitempty"`
}
