// internal/httpserver/server.go
//
// HTTP server wiring for the map game backend.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health", "/regions".
//   - Game endpoints (optional auth): /game/new, /game/click, /game/skip,
//     /game/reset, GET /game/{gameID}.
//   - Daily Challenge endpoints (optional auth): mounted under /daily.
//   - Auth + profile/stat endpoints (require auth): /auth/*, /stats/me, /games/mine.
//   - Database persistence for finished runs and user stats.
//
// Notes:
//   - CORS is origin-aware and credentials-enabled (so cookies work).
//   - Game transitions never fail; handler errors are limited to bad JSON
//     and unknown game ids.
//   - DB writes along the game path are best effort: a failed row update is
//     logged and the response still carries the new snapshot.

package httpserver

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/soteland/world-map/internal/game"
	"github.com/soteland/world-map/internal/region"
	"github.com/soteland/world-map/internal/store"
)

// Server bundles router, in-memory session store, and DB handle.
type Server struct {
	r     *chi.Mux
	store store.Store
	db    *sql.DB
}

// New constructs a Server, installs middleware, and registers routes.
func New(st store.Store, db *sql.DB) *Server {
	s := &Server{r: chi.NewRouter(), store: st, db: db}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                 // add X-Request-ID
	s.r.Use(chimw.RealIP)                    // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                 // recover from panics
	s.r.Use(chimw.Timeout(10 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                 // default JSON responses
	s.r.Use(corsFromEnv)                     // credentials-friendly CORS

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"mapclick-go","endpoints":["/health","/regions","POST /game/new","POST /game/click","POST /game/skip","POST /game/reset","/daily/*","/auth/*"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	// Catalog for the map renderer: ordered list of {id, name}.
	s.r.Get("/regions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(region.All())
	})

	// Game endpoints — OPTIONAL AUTH (guests can play)
	s.r.With(s.withOptionalAuth()).Post("/game/new", s.handleNewGame)
	s.r.With(s.withOptionalAuth()).Post("/game/click", s.handleClick)
	s.r.With(s.withOptionalAuth()).Post("/game/skip", s.handleSkip)
	s.r.With(s.withOptionalAuth()).Post("/game/reset", s.handleReset)
	s.r.Get("/game/{gameID}", s.handleGetGame)

	// Daily Challenge — OPTIONAL AUTH (guests can play; one run per day)
	s.mountDaily(s.r.With(s.withOptionalAuth()))

	// Auth + profile/stats (require auth)
	s.mountAuthRoutes()

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	// Debug: catalog size
	s.r.Get("/debug/regions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]int{"regions": region.Count()})
	})

	return s
}

// Start begins serving HTTP on addr.
func (s *Server) Start(addr string) error { return http.ListenAndServe(addr, s.r) }

// Router exposes the internal router (useful for tests).
func (s *Server) Router() chi.Router { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// corsFromEnv enables credentialed CORS for a single origin.
// Uses CLIENT_ORIGIN env var; defaults to http://localhost:5173.
func corsFromEnv(next http.Handler) http.Handler {
	origin := os.Getenv("CLIENT_ORIGIN")
	if origin == "" {
		origin = "http://localhost:5173"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ------------------------------ GAME ---------------------------------------

// snapshotRes decorates an engine snapshot with the target's display name.
type snapshotRes struct {
	GameID string `json:"gameId"`
	game.Snapshot
}

func snapshotFor(sess *game.Session) snapshotRes {
	snap := sess.State.Snapshot()
	if snap.Target != "" {
		if name, ok := region.Name(snap.Target); ok {
			snap.TargetName = name
		}
	}
	return snapshotRes{GameID: sess.ID, Snapshot: snap}
}

// handleNewGame creates a new in-memory session over the full catalog and
// persists a DB "owner" row (either user_id or anonymous_id) for history/stats.
func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	sess := game.New(region.IDs())
	if err := s.store.Save(r.Context(), sess); err != nil {
		log.Error().Err(err).Msg("save session")
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	total := region.Count()
	if me, _ := r.Context().Value(ctxUserKey{}).(*authUser); me != nil {
		_, err := s.db.Exec(`INSERT INTO games (id, user_id, started_at, status, regions_total)
		                     VALUES (?,?,?,?,?)`, sess.ID, me.ID, now, "playing", total)
		if err != nil {
			log.Warn().Err(err).Str("gameId", sess.ID).Msg("insert user game row")
		}
	} else {
		anon := s.ensureAnonID(w, r)
		_, err := s.db.Exec(`INSERT INTO games (id, anonymous_id, started_at, status, regions_total)
		                     VALUES (?,?,?,?,?)`, sess.ID, anon, now, "playing", total)
		if err != nil {
			log.Warn().Err(err).Str("gameId", sess.ID).Msg("insert anon game row")
		}
	}

	_ = json.NewEncoder(w).Encode(snapshotFor(sess))
}

// clickReq is the payload for POST /game/click.
type clickReq struct {
	GameID   string `json:"gameId"`
	RegionID string `json:"regionId"`
}

// handleClick applies a click to a session and persists progress.
// Unknown region ids are not an error: the engine counts them as wrong
// clicks, so the handler only rejects bad JSON and unknown game ids.
func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req clickReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	wasPlaying := !sess.State.Finished()
	sess.State = sess.State.SubmitClick(req.RegionID, time.Now())
	if err := s.store.Save(r.Context(), sess); err != nil {
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	s.persistProgress(w, r, sess, wasPlaying)
	_ = json.NewEncoder(w).Encode(snapshotFor(sess))
}

// skipReq is the payload for POST /game/skip and POST /game/reset.
type skipReq struct {
	GameID string `json:"gameId"`
}

// handleSkip gives up on the current target.
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req skipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	wasPlaying := !sess.State.Finished()
	sess.State = sess.State.Skip()
	if err := s.store.Save(r.Context(), sess); err != nil {
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	s.persistProgress(w, r, sess, wasPlaying)
	_ = json.NewEncoder(w).Encode(snapshotFor(sess))
}

// handleReset discards all progress and draws a fresh play order over the
// same catalog. The session id is kept so the client can hold onto it.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req skipReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"bad_json"}`, http.StatusBadRequest)
		return
	}
	sess, err := s.store.Get(r.Context(), req.GameID)
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}

	sess.Reset(region.IDs())
	if err := s.store.Save(r.Context(), sess); err != nil {
		http.Error(w, `{"error":"save_failed"}`, http.StatusInternalServerError)
		return
	}

	if _, err := s.db.Exec(`UPDATE games SET status='playing', finished_at=NULL,
	                        completed=0, skipped=0, wrong_clicks=0 WHERE id=?`, sess.ID); err != nil {
		log.Warn().Err(err).Str("gameId", sess.ID).Msg("reset game row")
	}
	_ = json.NewEncoder(w).Encode(snapshotFor(sess))
}

// handleGetGame returns the current snapshot without applying a transition.
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		http.Error(w, `{"error":"not_found"}`, http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(snapshotFor(sess))
}

// persistProgress writes counters/history for a session (best effort,
// non-fatal if it fails). When the run just finished, the row is closed out
// and logged-in users get their stats bumped in a transaction.
func (s *Server) persistProgress(w http.ResponseWriter, r *http.Request, sess *game.Session, wasPlaying bool) {
	st := sess.State

	me, _ := r.Context().Value(ctxUserKey{}).(*authUser)
	ownerClause := `anonymous_id=?`
	ownerArg := any(s.ensureAnonID(w, r))
	if me != nil {
		ownerClause = `user_id=?`
		ownerArg = any(me.ID)
	}

	tx, err := s.db.Begin()
	if err != nil {
		log.Warn().Err(err).Msg("begin progress tx")
		return
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE games SET completed=?, skipped=?, wrong_clicks=? WHERE id=? AND `+ownerClause,
		len(st.Completed), len(st.Skipped), st.WrongClicks, sess.ID, ownerArg); err != nil {
		log.Warn().Err(err).Msg("update progress")
	}

	if wasPlaying && st.Finished() {
		if _, err := tx.Exec(`UPDATE games SET status='finished', finished_at=? WHERE id=? AND `+ownerClause,
			time.Now().UTC().Format(time.RFC3339), sess.ID, ownerArg); err != nil {
			log.Warn().Err(err).Msg("finish game")
		}
		if me != nil {
			if err := s.bumpStats(tx, me.ID, st.Perfect()); err != nil {
				log.Warn().Err(err).Str("user", me.ID).Msg("bump stats")
			}
		}
	}
	_ = tx.Commit()
}
