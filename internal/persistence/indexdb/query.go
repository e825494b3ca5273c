package indexdb

import (
	"context"
	"database/sql"
)

// Reader runs read-only queries against an index database.
type Reader struct {
	db    *sql.DB
	owned bool
}

// OpenReader opens an index written by a (possibly running) server.
func OpenReader(path string) (*Reader, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db, owned: true}, nil
}

func (r *Reader) Close() error {
	if r == nil || !r.owned {
		return nil
	}
	return r.db.Close()
}

type PlayerRow struct {
	PlayerID  string  `json:"player_id"`
	Best      float64 `json:"best"`
	Finishes  int     `json:"finishes"`
	Falls     int     `json:"falls"`
	Restarts  int     `json:"restarts"`
	FirstSeen string  `json:"first_seen"`
	LastSeen  string  `json:"last_seen"`
}

type RunRow struct {
	ID         int64   `json:"id"`
	WorldID    string  `json:"world_id"`
	PlayerID   string  `json:"player_id"`
	Generation uint64  `json:"generation"`
	Tick       uint64  `json:"tick"`
	Elapsed    float64 `json:"elapsed"`
	Best       float64 `json:"best"`
	NewBest    bool    `json:"new_best"`
	FinishedAt string  `json:"finished_at"`
}

// Leaderboard lists players with at least one finish, fastest first.
func (r *Reader) Leaderboard(ctx context.Context, limit int) ([]PlayerRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT player_id,best,finishes,falls,restarts,first_seen,last_seen
		FROM players WHERE best IS NOT NULL ORDER BY best ASC, player_id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []PlayerRow
	for rows.Next() {
		var p PlayerRow
		if err := rows.Scan(&p.PlayerID, &p.Best, &p.Finishes, &p.Falls, &p.Restarts, &p.FirstSeen, &p.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Runs lists finished runs, newest first. An empty playerID lists everyone.
func (r *Reader) Runs(ctx context.Context, playerID string, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id,world_id,player_id,generation,tick,elapsed,best,new_best,finished_at FROM runs`
	args := []any{}
	if playerID != "" {
		q += ` WHERE player_id=?`
		args = append(args, playerID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RunRow
	for rows.Next() {
		var (
			run     RunRow
			gen     int64
			tick    int64
			newBest int
		)
		if err := rows.Scan(&run.ID, &run.WorldID, &run.PlayerID, &gen, &tick, &run.Elapsed, &run.Best, &newBest, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Generation = uint64(gen)
		run.Tick = uint64(tick)
		run.NewBest = newBest != 0
		out = append(out, run)
	}
	return out, rows.Err()
}
