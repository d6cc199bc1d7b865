// internal/game/engine.go
//
// State machine for a single run through the map.
// Responsibilities:
//   - Create runs with a uniformly shuffled play order.
//   - Evaluate clicks against the current target (correct/wrong).
//   - Track skips, wrong-click count, and the last-wrong marker that
//     drives the client's transient highlight.
//   - Terminal transition to finished once every region is consumed.
//
// Notes:
//   - Every transition is total: unknown ids, clicks after the run is
//     finished, and repeated clicks on completed regions degrade to a
//     defined no-op or a wrong click. Nothing here returns an error.
//   - Callers pass their own clock (now) so transitions stay deterministic
//     in tests.
package game

import (
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand/v2"
	"time"
)

// NewState starts a fresh run over ids: a uniform random permutation,
// cursor at the front, all counters zeroed. An empty id list yields an
// immediately finished run.
func NewState(ids []string, rng *mrand.Rand) State {
	order := make([]string, len(ids))
	copy(order, ids)
	rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	s := State{
		PlayOrder: order,
		Completed: []string{},
		Skipped:   []string{},
		Status:    StatusPlaying,
	}
	if len(order) == 0 {
		s.Status = StatusFinished
	}
	return s
}

// SubmitClick evaluates a click against the current target.
//
// Transitions:
//   - Finished run, or id already completed → no-op.
//   - id == current target → completed grows, cursor advances, last-wrong
//     marker clears; finished once the cursor passes the final region.
//   - anything else (including ids not on the map at all) → wrong click:
//     counter bumps and the last-wrong marker is set to (id, now). The
//     timestamp is updated even for a repeated wrong id so the client can
//     retrigger the highlight.
func (s State) SubmitClick(id string, now time.Time) State {
	if s.Status == StatusFinished || s.isCompleted(id) {
		return s
	}
	next := s.clone()
	if id == s.PlayOrder[s.Cursor] {
		next.Completed = append(next.Completed, id)
		next.Cursor++
		next.LastWrongID = ""
		next.LastWrongAt = time.Time{}
		if next.Cursor == len(next.PlayOrder) {
			next.Status = StatusFinished
		}
		return next
	}
	next.WrongClicks++
	next.LastWrongID = id
	next.LastWrongAt = now
	return next
}

// Skip gives up on the current target: it moves to the skipped list, the
// cursor advances, and the last-wrong marker clears. No-op once finished.
func (s State) Skip() State {
	if s.Status == StatusFinished {
		return s
	}
	next := s.clone()
	next.Skipped = append(next.Skipped, s.PlayOrder[s.Cursor])
	next.Cursor++
	next.LastWrongID = ""
	next.LastWrongAt = time.Time{}
	if next.Cursor == len(next.PlayOrder) {
		next.Status = StatusFinished
	}
	return next
}

// Reset discards all progress and starts a fresh run over ids.
func (s State) Reset(ids []string, rng *mrand.Rand) State {
	return NewState(ids, rng)
}

// Target returns the current target id, or false once the run is finished.
func (s State) Target() (string, bool) {
	if s.Status == StatusFinished {
		return "", false
	}
	return s.PlayOrder[s.Cursor], true
}

// Remaining reports how many regions are still to be played.
func (s State) Remaining() int { return len(s.PlayOrder) - s.Cursor }

// Finished reports whether the run is over.
func (s State) Finished() bool { return s.Status == StatusFinished }

// Perfect reports a finished run with no wrong clicks and no skips.
func (s State) Perfect() bool {
	return s.Status == StatusFinished && s.WrongClicks == 0 && len(s.Skipped) == 0
}

// Snapshot builds the read-only view for the presentation layer.
// TargetName is left for the caller to fill from the catalog.
func (s State) Snapshot() Snapshot {
	snap := Snapshot{
		Completed:   append([]string{}, s.Completed...),
		Skipped:     append([]string{}, s.Skipped...),
		WrongClicks: s.WrongClicks,
		LastWrongID: s.LastWrongID,
		Remaining:   s.Remaining(),
		Status:      s.Status,
	}
	if !s.LastWrongAt.IsZero() {
		snap.LastWrongAt = s.LastWrongAt.UnixMilli()
	}
	if target, ok := s.Target(); ok {
		snap.Target = target
	}
	return snap
}

// clone deep-copies the slices so the old snapshot is never aliased.
func (s State) clone() State {
	next := s
	next.Completed = append([]string{}, s.Completed...)
	next.Skipped = append([]string{}, s.Skipped...)
	return next
}

func (s State) isCompleted(id string) bool {
	for _, c := range s.Completed {
		if c == id {
			return true
		}
	}
	return false
}

// New constructs a session with a random play order.
func New(ids []string) *Session {
	return &Session{
		ID:        randomID(),
		State:     NewState(ids, newRNG()),
		CreatedAt: time.Now().UTC(),
	}
}

// NewSeeded constructs a session whose play order is fully determined by
// seed. Used by the daily challenge so every player gets the same order.
func NewSeeded(ids []string, seed uint64) *Session {
	return &Session{
		ID:        randomID(),
		State:     NewState(ids, mrand.New(mrand.NewPCG(seed, seed))),
		CreatedAt: time.Now().UTC(),
	}
}

// Reset replaces the session's state with a fresh random run over ids.
func (g *Session) Reset(ids []string) {
	g.State = g.State.Reset(ids, newRNG())
}

// newRNG seeds a PCG source from the process-global generator.
func newRNG() *mrand.Rand {
	return mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64()))
}

// randomID returns a compact 16-hex-char identifier.
// Collisions are extremely unlikely given crypto/rand entropy.
func randomID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
