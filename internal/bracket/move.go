package bracket

import (
	"time"

	"github.com/google/uuid"
)

// MoveRecord is one entry of a match's append-only audit trail.
type MoveRecord struct {
	ID            uuid.UUID `db:"id" json:"id"`
	MatchID       uuid.UUID `db:"match_id" json:"match_id"`
	ParticipantID uuid.UUID `db:"participant_id" json:"participant_id"`
	Action        string    `db:"action" json:"action"`
	Sequence      int       `db:"sequence" json:"sequence"`
	ElapsedMS     int64     `db:"elapsed_ms" json:"elapsed_ms"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}
