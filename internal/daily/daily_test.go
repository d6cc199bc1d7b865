package daily

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateKey(t *testing.T) {
	// 01:30 in UTC+2 is still the previous day in UTC.
	loc := time.FixedZone("UTC+2", 2*3600)
	at := time.Date(2026, 3, 1, 1, 30, 0, 0, loc)
	assert.Equal(t, "2026-02-28", DateKey(at))
	assert.Equal(t, "2026-03-01", DateKey(at.Add(time.Hour)))
}

func TestOrderSeed(t *testing.T) {
	day := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Deterministic for a (date, salt) pair regardless of time of day.
	assert.Equal(t, OrderSeed(day, "salt"), OrderSeed(day.Add(9*time.Hour), "salt"))

	// Different date or different salt gives a different seed.
	assert.NotEqual(t, OrderSeed(day, "salt"), OrderSeed(day.AddDate(0, 0, 1), "salt"))
	assert.NotEqual(t, OrderSeed(day, "salt"), OrderSeed(day, "other"))
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// A pooled :memory: DSN would open a fresh empty database per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	_, err = db.Exec(`
		CREATE TABLE daily_runs (
			user_id      TEXT NOT NULL,
			date         TEXT NOT NULL,
			wrong_clicks INTEGER NOT NULL,
			skips        INTEGER NOT NULL,
			elapsed_ms   INTEGER NOT NULL,
			created_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, date)
		);`)
	require.NoError(t, err)
	return db
}

func TestStore(t *testing.T) {
	ctx := context.Background()
	st := NewStore(testDB(t))
	const date = "2026-03-01"

	played, err := st.AlreadyPlayed(ctx, "u1", date)
	require.NoError(t, err)
	assert.False(t, played)

	require.NoError(t, st.InsertRun(ctx, Run{UserID: "u1", Date: date, WrongClicks: 3, Skips: 1, ElapsedMs: 90000}))
	require.NoError(t, st.InsertRun(ctx, Run{UserID: "u2", Date: date, WrongClicks: 0, Skips: 0, ElapsedMs: 120000}))
	require.NoError(t, st.InsertRun(ctx, Run{UserID: "u3", Date: date, WrongClicks: 0, Skips: 2, ElapsedMs: 80000}))

	// Second insert for the same user/date is silently ignored.
	require.NoError(t, st.InsertRun(ctx, Run{UserID: "u1", Date: date, WrongClicks: 0, Skips: 0, ElapsedMs: 1}))

	played, err = st.AlreadyPlayed(ctx, "u1", date)
	require.NoError(t, err)
	assert.True(t, played)

	lb, err := st.Leaderboard(ctx, date, 0)
	require.NoError(t, err)
	require.Len(t, lb, 3)
	// Wrong clicks dominate, then skips.
	assert.Equal(t, "u2", lb[0].UserID)
	assert.Equal(t, "u3", lb[1].UserID)
	assert.Equal(t, "u1", lb[2].UserID)
	assert.Equal(t, 3, lb[2].WrongClicks, "duplicate insert must not overwrite")

	lb, err = st.Leaderboard(ctx, "2026-03-02", 0)
	require.NoError(t, err)
	assert.Empty(t, lb)
}
