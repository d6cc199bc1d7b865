package httpserver

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"reflect"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteland/world-map/internal/game"
	"github.com/soteland/world-map/internal/region"
	"github.com/soteland/world-map/internal/store"
)

const testSchema = `
CREATE TABLE users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    games_played  INTEGER NOT NULL DEFAULT 0,
    perfect_runs  INTEGER NOT NULL DEFAULT 0,
    streak        INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE games (
    id            TEXT PRIMARY KEY,
    user_id       TEXT REFERENCES users(id),
    anonymous_id  TEXT,
    started_at    TEXT NOT NULL,
    finished_at   TEXT,
    status        TEXT NOT NULL DEFAULT 'playing',
    regions_total INTEGER NOT NULL DEFAULT 0,
    completed     INTEGER NOT NULL DEFAULT 0,
    skipped       INTEGER NOT NULL DEFAULT 0,
    wrong_clicks  INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE daily_runs (
    user_id      TEXT NOT NULL,
    date         TEXT NOT NULL,
    wrong_clicks INTEGER NOT NULL,
    skips        INTEGER NOT NULL,
    elapsed_ms   INTEGER NOT NULL,
    created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(user_id, date)
);`

// newTestServer spins up the full router over an in-memory DB and a client
// with a cookie jar (anon/auth cookies persist across requests).
func newTestServer(t *testing.T) (*httptest.Server, *http.Client) {
	t.Helper()
	require.NoError(t, region.Init())

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A pooled :memory: DSN would open a fresh empty database per connection.
	db.SetMaxOpenConns(1)
	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	srv := New(store.NewMemoryStore(), db)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = db.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return ts, &http.Client{Jar: jar}
}

func postJSON(t *testing.T, c *http.Client, url string, body any, out any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := c.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		// Zero the target first: omitempty fields absent from the response
		// would otherwise keep stale values when decoding into a reused struct.
		reflect.ValueOf(out).Elem().SetZero()
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

func getJSON(t *testing.T, c *http.Client, url string, out any) *http.Response {
	t.Helper()
	res, err := c.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		reflect.ValueOf(out).Elem().SetZero()
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res
}

// snapRes mirrors the handler response shape.
type snapRes struct {
	GameID string `json:"gameId"`
	game.Snapshot
}

func TestHealthAndRegions(t *testing.T) {
	ts, c := newTestServer(t)

	res := getJSON(t, c, ts.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var regions []region.Region
	res = getJSON(t, c, ts.URL+"/regions", &regions)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Len(t, regions, region.Count())

	res = getJSON(t, c, ts.URL+"/nope", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestGameFlow(t *testing.T) {
	ts, c := newTestServer(t)

	var snap snapRes
	res := postJSON(t, c, ts.URL+"/game/new", map[string]any{}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NotEmpty(t, snap.GameID)
	require.NotEmpty(t, snap.Target)
	assert.NotEmpty(t, snap.TargetName)
	assert.Equal(t, game.StatusPlaying, snap.Status)
	assert.Equal(t, region.Count(), snap.Remaining)

	gameID := snap.GameID

	// Wrong click: pick any catalog id that is not the target.
	wrong := ""
	for _, id := range region.IDs() {
		if id != snap.Target {
			wrong = id
			break
		}
	}
	target := snap.Target
	res = postJSON(t, c, ts.URL+"/game/click", map[string]string{"gameId": gameID, "regionId": wrong}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, snap.WrongClicks)
	assert.Equal(t, wrong, snap.LastWrongID)
	assert.NotZero(t, snap.LastWrongAt)
	assert.Equal(t, target, snap.Target, "wrong click keeps the target")

	// Correct click advances and clears the wrong marker.
	res = postJSON(t, c, ts.URL+"/game/click", map[string]string{"gameId": gameID, "regionId": target}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{target}, snap.Completed)
	assert.Empty(t, snap.LastWrongID)
	assert.Equal(t, region.Count()-1, snap.Remaining)

	// Skip moves the target to the skipped list.
	skipped := snap.Target
	res = postJSON(t, c, ts.URL+"/game/skip", map[string]string{"gameId": gameID}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, []string{skipped}, snap.Skipped)

	// GET returns the same snapshot without mutating.
	var got snapRes
	res = getJSON(t, c, ts.URL+"/game/"+gameID, &got)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, snap, got)

	// Reset zeroes everything but keeps the session id.
	res = postJSON(t, c, ts.URL+"/game/reset", map[string]string{"gameId": gameID}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, gameID, snap.GameID)
	assert.Empty(t, snap.Completed)
	assert.Empty(t, snap.Skipped)
	assert.Zero(t, snap.WrongClicks)
	assert.Equal(t, region.Count(), snap.Remaining)
}

func TestGameErrors(t *testing.T) {
	ts, c := newTestServer(t)

	res := postJSON(t, c, ts.URL+"/game/click", map[string]string{"gameId": "missing", "regionId": "4"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = postJSON(t, c, ts.URL+"/game/skip", map[string]string{"gameId": "missing"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	res = getJSON(t, c, ts.URL+"/game/missing", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	raw, err := c.Post(ts.URL+"/game/click", "application/json", bytes.NewReader([]byte("{{{")))
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestUnknownRegionIsWrongClick(t *testing.T) {
	ts, c := newTestServer(t)

	var snap snapRes
	postJSON(t, c, ts.URL+"/game/new", map[string]any{}, &snap)
	target := snap.Target

	res := postJSON(t, c, ts.URL+"/game/click",
		map[string]string{"gameId": snap.GameID, "regionId": "ocean"}, &snap)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, 1, snap.WrongClicks)
	assert.Equal(t, "ocean", snap.LastWrongID)
	assert.Equal(t, target, snap.Target)
}

func TestAuthAndStats(t *testing.T) {
	ts, c := newTestServer(t)

	// Gated route without a token.
	res := getJSON(t, c, ts.URL+"/stats/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Signup sets the auth cookie on the jar.
	var created map[string]any
	res = postJSON(t, c, ts.URL+"/auth/signup",
		map[string]string{"username": "mapfan", "password": "super-secret"}, &created)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "mapfan", created["username"])

	res = postJSON(t, c, ts.URL+"/auth/signup",
		map[string]string{"username": "mapfan", "password": "super-secret"}, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	var me authUser
	res = getJSON(t, c, ts.URL+"/auth/me", &me)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "mapfan", me.Username)

	// Play a perfect run: always click the current target.
	var snap snapRes
	postJSON(t, c, ts.URL+"/game/new", map[string]any{}, &snap)
	for snap.Status == game.StatusPlaying {
		postJSON(t, c, ts.URL+"/game/click",
			map[string]string{"gameId": snap.GameID, "regionId": snap.Target}, &snap)
	}
	require.Equal(t, game.StatusFinished, snap.Status)
	assert.Len(t, snap.Completed, region.Count())

	var stats map[string]any
	res = getJSON(t, c, ts.URL+"/stats/me", &stats)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.EqualValues(t, 1, stats["gamesPlayed"])
	assert.EqualValues(t, 1, stats["perfectRuns"])
	assert.EqualValues(t, 1, stats["streak"])

	var mine []map[string]any
	res = getJSON(t, c, ts.URL+"/games/mine", &mine)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, mine, 1)
	assert.Equal(t, "finished", mine[0]["status"])

	// Logout clears the cookie; gated routes lock again.
	postJSON(t, c, ts.URL+"/auth/logout", map[string]any{}, nil)
	res = getJSON(t, c, ts.URL+"/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	// Wrong password.
	res = postJSON(t, c, ts.URL+"/auth/login",
		map[string]string{"username": "mapfan", "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = postJSON(t, c, ts.URL+"/auth/login",
		map[string]string{"username": "mapfan", "password": "super-secret"}, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestDailyFlow(t *testing.T) {
	ts, c := newTestServer(t)

	var first struct {
		GameID   string         `json:"gameId"`
		Date     string         `json:"date"`
		Played   bool           `json:"played"`
		Snapshot *game.Snapshot `json:"snapshot"`
	}
	res := postJSON(t, c, ts.URL+"/daily/new", map[string]any{}, &first)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.False(t, first.Played)
	require.NotNil(t, first.Snapshot)

	// Same user, same day: the session is reused.
	var again struct {
		GameID string `json:"gameId"`
		Played bool   `json:"played"`
	}
	postJSON(t, c, ts.URL+"/daily/new", map[string]any{}, &again)
	assert.Equal(t, first.GameID, again.GameID)

	// Skip through the whole map to finish the run.
	var move struct {
		Date     string        `json:"date"`
		Snapshot game.Snapshot `json:"snapshot"`
	}
	move.Snapshot = *first.Snapshot
	for move.Snapshot.Status == game.StatusPlaying {
		res = postJSON(t, c, ts.URL+"/daily/skip", map[string]string{"gameId": first.GameID}, &move)
		require.Equal(t, http.StatusOK, res.StatusCode)
	}
	assert.Len(t, move.Snapshot.Skipped, region.Count())

	// The finished run is on the leaderboard.
	var lb struct {
		Date string `json:"date"`
		Rows []struct {
			UserID string `json:"userId"`
			Skips  int    `json:"skips"`
		} `json:"rows"`
	}
	res = getJSON(t, c, ts.URL+"/daily/leaderboard", &lb)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, lb.Rows, 1)
	assert.Equal(t, region.Count(), lb.Rows[0].Skips)

	// One run per day.
	var replay struct {
		Played bool `json:"played"`
	}
	postJSON(t, c, ts.URL+"/daily/new", map[string]any{}, &replay)
	assert.True(t, replay.Played)

	// Unknown game id on the daily routes.
	res = postJSON(t, c, ts.URL+"/daily/click", map[string]string{"gameId": "bogus", "regionId": "4"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestDailyOrderIsSharedAcrossPlayers(t *testing.T) {
	ts, _ := newTestServer(t)

	// Two different anonymous users (separate cookie jars) must face the
	// same first target on the same date.
	type newRes struct {
		Snapshot *game.Snapshot `json:"snapshot"`
	}
	var a, b newRes

	jarA, _ := cookiejar.New(nil)
	jarB, _ := cookiejar.New(nil)
	postJSON(t, &http.Client{Jar: jarA}, ts.URL+"/daily/new", map[string]any{}, &a)
	postJSON(t, &http.Client{Jar: jarB}, ts.URL+"/daily/new", map[string]any{}, &b)

	require.NotNil(t, a.Snapshot)
	require.NotNil(t, b.Snapshot)
	assert.Equal(t, a.Snapshot.Target, b.Snapshot.Target)
}
