package bracket

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type MatchStatus string

const (
	MatchWaiting    MatchStatus = "waiting"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
	MatchCancelled  MatchStatus = "cancelled"
)

func (s MatchStatus) IsTerminal() bool {
	return s == MatchCompleted || s == MatchCancelled
}

type Match struct {
	ID           uuid.UUID `db:"id" json:"id"`
	TournamentID uuid.UUID `db:"tournament_id" json:"tournament_id"`

	// Position in the tournament for reconstructing the view
	RoundNumber int `db:"round_number" json:"round_number"`
	MatchOrder  int `db:"match_order" json:"match_order"`

	Participant1ID uuid.UUID `db:"participant_1_id" json:"participant_1_id"`
	Participant2ID uuid.UUID `db:"participant_2_id" json:"participant_2_id"`

	Status   MatchStatus `db:"status" json:"status"`
	WinnerID *uuid.UUID  `db:"winner_id" json:"winner_id,omitempty"`
	Score1   int         `db:"score_1" json:"score_1"`
	Score2   int         `db:"score_2" json:"score_2"`

	// Final engine snapshot, written once the match is completed
	State types.JSONText `db:"state" json:"state,omitempty"`
	Error *string        `db:"error" json:"error,omitempty"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

func (m *Match) HasParticipant(id uuid.UUID) bool {
	return m.Participant1ID == id || m.Participant2ID == id
}

// Opponent returns the other participant of the match.
func (m *Match) Opponent(id uuid.UUID) uuid.UUID {
	if m.Participant1ID == id {
		return m.Participant2ID
	}
	return m.Participant1ID
}

func (m *Match) IsWinner(id uuid.UUID) bool {
	return m.Status == MatchCompleted && m.WinnerID != nil && *m.WinnerID == id
}

func (m *Match) IsDraw() bool {
	return m.Status == MatchCompleted && m.WinnerID == nil
}
