package daily

import (
	"context"
	"database/sql"
)

// Run is one finished daily challenge attempt.
type Run struct {
	UserID      string `json:"userId"`
	Date        string `json:"date"`
	WrongClicks int    `json:"wrongClicks"`
	Skips       int    `json:"skips"`
	ElapsedMs   int    `json:"elapsedMs"`
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// AlreadyPlayed reports whether the user has a persisted run for the date.
func (s *Store) AlreadyPlayed(ctx context.Context, userID, date string) (bool, error) {
	var cnt int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM daily_runs WHERE user_id=? AND date=?`,
		userID, date,
	).Scan(&cnt)
	return cnt > 0, err
}

// InsertRun records a finished run. Respects UNIQUE(user_id, date); a
// duplicate insert is ignored rather than erroring.
func (s *Store) InsertRun(ctx context.Context, r Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO daily_runs(user_id, date, wrong_clicks, skips, elapsed_ms)
		 VALUES(?,?,?,?,?)`, r.UserID, r.Date, r.WrongClicks, r.Skips, r.ElapsedMs,
	)
	return err
}

// LBRow is one leaderboard entry.
type LBRow struct {
	UserID      string `json:"userId"`
	WrongClicks int    `json:"wrongClicks"`
	Skips       int    `json:"skips"`
	ElapsedMs   int    `json:"elapsedMs"`
}

// Leaderboard returns the best runs for a date: fewest wrong clicks, then
// fewest skips, then fastest, then earliest finish.
func (s *Store) Leaderboard(ctx context.Context, date string, limit int) ([]LBRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, wrong_clicks, skips, elapsed_ms
		 FROM daily_runs
		 WHERE date=?
		 ORDER BY wrong_clicks ASC, skips ASC, elapsed_ms ASC, created_at ASC
		 LIMIT ?`, date, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LBRow, 0, limit)
	for rows.Next() {
		var r LBRow
		if err := rows.Scan(&r.UserID, &r.WrongClicks, &r.Skips, &r.ElapsedMs); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
