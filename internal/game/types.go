// internal/game/types.go
//
// Core type definitions for the map game engine.
// Defines:
//   - Status: coarse session state (playing/finished).
//   - State: full progression state of one run through the map.
//   - Session: a stored game with its identifier.
//   - Snapshot: read-only view emitted to the presentation layer.

package game

import "time"

// Status is the coarse state of a run.
// A run is finished once every region has been completed or skipped;
// only a reset leaves the finished state.
type Status string

const (
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// State is the full progression state of one run. It is a value type:
// transitions return a fresh State and never mutate the receiver, so an
// already-handed-out snapshot stays valid.
type State struct {
	PlayOrder   []string  // permutation of the catalog ids, fixed per run
	Cursor      int       // index into PlayOrder; PlayOrder[Cursor] is the target
	Completed   []string  // correctly clicked ids, in completion order
	Skipped     []string  // skipped ids, in skip order
	WrongClicks int       // total wrong clicks this run
	LastWrongID string    // most recent wrong click, "" if cleared
	LastWrongAt time.Time // when the most recent wrong click happened
	Status      Status
}

// Session is a stored game: an identifier plus the current State.
type Session struct {
	ID        string
	State     State
	CreatedAt time.Time
}

// Snapshot is the read-only view the presentation layer renders from.
// LastWrongAt is unix milliseconds so the client can derive the transient
// wrong-click highlight by comparing against its own clock (now - lastWrongAt
// within the flash window) instead of relying on a server-side timer.
type Snapshot struct {
	Target      string   `json:"target,omitempty"`
	TargetName  string   `json:"targetName,omitempty"`
	Completed   []string `json:"completed"`
	Skipped     []string `json:"skipped"`
	WrongClicks int      `json:"wrongClicks"`
	LastWrongID string   `json:"lastWrongId,omitempty"`
	LastWrongAt int64    `json:"lastWrongAt,omitempty"`
	Remaining   int      `json:"remaining"`
	Status      Status   `json:"status"`
}
