// internal/httpserver/routes_daily.go
//
// HTTP routes for the "Daily Challenge" mode.
// Exposes four endpoints under /daily:
//   - POST /daily/new         → start today's run (creates or reuses session)
//   - POST /daily/click       → submit a click for today's run
//   - POST /daily/skip        → skip the current target
//   - GET  /daily/leaderboard → fetch top 20 runs for today (or a given date)
//
// Each user plays once per day (enforced by DB + in-memory session).
// Sessions are held in memory for active play and persisted to DB on finish.
// The play order is deterministic per date + salt, so every player faces
// the same shuffled map.

package httpserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/soteland/world-map/internal/daily"
	"github.com/soteland/world-map/internal/game"
	"github.com/soteland/world-map/internal/region"
)

// dailyServer wraps dependencies for /daily endpoints.
type dailyServer struct {
	srv      *Server
	store    *daily.Store
	salt     string
	sessions map[string]*dailySession // active sessions keyed by userID|date
	mu       sync.Mutex               // guards sessions
}

// dailySession holds transient in-memory state for an in-progress daily run.
type dailySession struct {
	Sess      *game.Session
	UserID    string
	Date      string
	Start     time.Time
	Persisted bool // run row written to DB
}

// mountDaily registers all /daily routes.
func (s *Server) mountDaily(r chi.Router) {
	dd := &dailyServer{
		srv:      s,
		store:    daily.NewStore(s.db),
		salt:     getEnv("DAILY_SALT", "local_dev_salt"),
		sessions: make(map[string]*dailySession),
	}
	r.Route("/daily", func(r chi.Router) {
		r.Post("/new", dd.handleNew)
		r.Post("/click", dd.handleClick)
		r.Post("/skip", dd.handleSkip)
		r.Get("/leaderboard", dd.handleLeaderboard)
	})
}

// dateKeyNow returns today's date key and the deterministic shuffle seed.
func (d *dailyServer) dateKeyNow() (date string, seed uint64) {
	now := time.Now().UTC()
	return daily.DateKey(now), daily.OrderSeed(now, d.salt)
}

// userIDWithAnon returns the authenticated user ID if logged in,
// otherwise ensures an anonymous ID via Server.ensureAnonID.
func (d *dailyServer) userIDWithAnon(w http.ResponseWriter, r *http.Request) string {
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		return me.ID
	}
	return d.srv.ensureAnonID(w, r)
}

// -----------------------------------------------------------------------------
// /daily/new

// dailyNewRes is returned by /daily/new.
type dailyNewRes struct {
	GameID   string         `json:"gameId,omitempty"`
	Date     string         `json:"date"`
	Played   bool           `json:"played"`
	Snapshot *game.Snapshot `json:"snapshot,omitempty"`
}

// handleNew creates or reuses a daily session for the current date.
// - If user already has a persisted run for today → return Played=true.
// - Otherwise create/reuse an in-memory session and return its snapshot.
func (d *dailyServer) handleNew(w http.ResponseWriter, r *http.Request) {
	uid := d.userIDWithAnon(w, r)
	date, seed := d.dateKeyNow()

	// Check if already played (persisted in DB).
	if played, err := d.store.AlreadyPlayed(r.Context(), uid, date); err == nil && played {
		_ = json.NewEncoder(w).Encode(dailyNewRes{Date: date, Played: true})
		return
	}

	// Reuse or create session in memory.
	key := uid + "|" + date
	d.mu.Lock()
	ds, ok := d.sessions[key]
	if !ok {
		ds = &dailySession{
			Sess:   game.NewSeeded(region.IDs(), seed),
			UserID: uid,
			Date:   date,
			Start:  time.Now(),
		}
		d.sessions[key] = ds
	}
	d.mu.Unlock()

	snap := snapshotFor(ds.Sess).Snapshot
	_ = json.NewEncoder(w).Encode(dailyNewRes{GameID: ds.Sess.ID, Date: date, Played: false, Snapshot: &snap})
}

// -----------------------------------------------------------------------------
// /daily/click and /daily/skip

// dailyMoveReq is the request payload for /daily/click and /daily/skip.
type dailyMoveReq struct {
	GameID   string `json:"gameId"`
	RegionID string `json:"regionId,omitempty"` // unused for skip
}

// dailyMoveRes is the response payload for both transitions.
type dailyMoveRes struct {
	Date     string        `json:"date"`
	Snapshot game.Snapshot `json:"snapshot"`
}

// handleClick applies a click to today's run; persists the run on finish.
func (d *dailyServer) handleClick(w http.ResponseWriter, r *http.Request) {
	d.applyMove(w, r, func(st game.State, p dailyMoveReq) game.State {
		return st.SubmitClick(p.RegionID, time.Now())
	})
}

// applyMove factors the shared session lookup/persist logic for click and
// skip. The transition closure receives the current state and the decoded
// request.
func (d *dailyServer) applyMove(w http.ResponseWriter, r *http.Request, transition func(game.State, dailyMoveReq) game.State) {
	uid := d.userIDWithAnon(w, r)

	var p dailyMoveReq
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	if p.GameID == "" {
		http.Error(w, `{"error":"invalid"}`, http.StatusBadRequest)
		return
	}

	date, _ := d.dateKeyNow()
	key := uid + "|" + date

	d.mu.Lock()
	ds, ok := d.sessions[key]
	if !ok || ds.Sess.ID != p.GameID {
		d.mu.Unlock()
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	ds.Sess.State = transition(ds.Sess.State, p)
	finished, persisted := ds.Sess.State.Finished(), ds.Persisted
	if finished {
		ds.Persisted = true
	}
	st := ds.Sess.State
	start := ds.Start
	d.mu.Unlock()

	if finished && !persisted {
		run := daily.Run{
			UserID:      uid,
			Date:        date,
			WrongClicks: st.WrongClicks,
			Skips:       len(st.Skipped),
			ElapsedMs:   int(time.Since(start).Milliseconds()),
		}
		if err := d.store.InsertRun(r.Context(), run); err != nil {
			log.Warn().Err(err).Str("user", uid).Str("date", date).Msg("insert daily run")
		}
	}

	snap := st.Snapshot()
	if snap.Target != "" {
		if name, ok := region.Name(snap.Target); ok {
			snap.TargetName = name
		}
	}
	_ = json.NewEncoder(w).Encode(dailyMoveRes{Date: date, Snapshot: snap})
}

// handleSkip skips the current target of today's run.
func (d *dailyServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	d.applyMove(w, r, func(st game.State, _ dailyMoveReq) game.State {
		return st.Skip()
	})
}

// -----------------------------------------------------------------------------
// /daily/leaderboard

// handleLeaderboard returns the top runs for ?date= (default today).
func (d *dailyServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date, _ = d.dateKeyNow()
	}
	rows, err := d.store.Leaderboard(r.Context(), date, 20)
	if err != nil {
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"date": date, "rows": rows})
}
