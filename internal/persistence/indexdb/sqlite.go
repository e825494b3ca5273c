package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelfall.ai/internal/sim/course"
	"voxelfall.ai/internal/sim/race"
	"voxelfall.ai/internal/sim/tuning"
	"voxelfall.ai/internal/sim/world"
)

// SQLiteIndex is a queryable read-model of race events. It is never read back
// into the world: the race log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan world.RaceLogEntry
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTotal    atomic.Uint64
	writtenTotal atomic.Uint64
}

type Stats struct {
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
	DropTotal     uint64 `json:"drop_total"`
	WrittenTotal  uint64 `json:"written_total"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan world.RaceLogEntry, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func initPragmas(db *sql.DB) error {
	// WAL lets the admin CLI read while the server writes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS configs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS race_events (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			world_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			player_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			at TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_race_events_player_tick ON race_events(player_id, tick);`,
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			world_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			elapsed REAL NOT NULL,
			best REAL NOT NULL,
			new_best INTEGER NOT NULL,
			finished_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_player ON runs(player_id, elapsed);`,
		`CREATE TABLE IF NOT EXISTS players (
			player_id TEXT PRIMARY KEY,
			best REAL,
			finishes INTEGER NOT NULL DEFAULT 0,
			falls INTEGER NOT NULL DEFAULT 0,
			restarts INTEGER NOT NULL DEFAULT 0,
			first_seen TEXT NOT NULL,
			last_seen TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// WriteRace queues an event for indexing. It never blocks the world loop.
func (s *SQLiteIndex) WriteRace(entry world.RaceLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- entry:
	default:
		// Drop if the indexer falls behind; the race log remains the source of truth.
		s.dropTotal.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DropTotal:     s.dropTotal.Load(),
		WrittenTotal:  s.writtenTotal.Load(),
	}
}

// Reader exposes the query side over the same connection.
func (s *SQLiteIndex) Reader() *Reader { return &Reader{db: s.db} }

// UpsertConfigs stores the tuning and course the server actually applies.
func (s *SQLiteIndex) UpsertConfigs(tune tuning.Tuning, crs course.Config) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name string
		json []byte
	}
	var rows []kv
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, kv{name: "tuning", json: b})
	}
	if b, err := json.Marshal(crs); err == nil {
		rows = append(rows, kv{name: "course", json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO configs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		sum := sha256.Sum256(r.json)
		if _, err := stmt.Exec(r.name, hex.EncodeToString(sum[:]), string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO race_events(tick,seq,world_id,kind,player_id,generation,at,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT INTO runs(world_id,player_id,generation,tick,elapsed,best,new_best,finished_at) VALUES(?,?,?,?,?,?,?,?)`)
	seenPlayer, _ := s.db.Prepare(`INSERT INTO players(player_id,first_seen,last_seen) VALUES(?,?,?)
		ON CONFLICT(player_id) DO UPDATE SET last_seen=excluded.last_seen`)
	finishPlayer, _ := s.db.Prepare(`UPDATE players SET finishes=finishes+1, best=CASE WHEN ? > 0 AND (best IS NULL OR ? < best) THEN ? ELSE best END, last_seen=? WHERE player_id=?`)
	fallPlayer, _ := s.db.Prepare(`UPDATE players SET falls=falls+1, last_seen=? WHERE player_id=?`)
	restartPlayer, _ := s.db.Prepare(`UPDATE players SET restarts=restarts+1, last_seen=? WHERE player_id=?`)
	stmts := []*sql.Stmt{insertEvent, insertRun, seenPlayer, finishPlayer, fallPlayer, restartPlayer}
	defer func() {
		for _, st := range stmts {
			if st != nil {
				_ = st.Close()
			}
		}
	}()
	for _, st := range stmts {
		if st == nil {
			// Schema mismatch; drain so writers never block.
			for range s.ch {
				s.dropTotal.Add(1)
			}
			return
		}
	}

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastTick uint64
		seq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	apply := func(e world.RaceLogEntry) {
		begin()
		if tx == nil {
			s.dropTotal.Add(1)
			return
		}
		if e.Tick != lastTick {
			lastTick = e.Tick
			seq = 0
		}
		at := e.At.UTC().Format(time.RFC3339Nano)
		raw, _ := json.Marshal(e)
		if !exec(insertEvent, int64(e.Tick), seq, e.WorldID, string(e.Kind), e.PlayerID, int64(e.Generation), at, string(raw)) {
			return
		}
		seq++

		ok := true
		switch e.Kind {
		case race.EventJoin:
			ok = exec(seenPlayer, e.PlayerID, at, at)
		case race.EventFinish:
			newBest := 0
			if e.NewBest {
				newBest = 1
			}
			ok = exec(insertRun, e.WorldID, e.PlayerID, int64(e.Generation), int64(e.Tick), e.Elapsed, e.Best, newBest, at) &&
				exec(finishPlayer, e.Elapsed, e.Elapsed, e.Elapsed, at, e.PlayerID)
		case race.EventFall:
			ok = exec(fallPlayer, at, e.PlayerID)
		case race.EventRestart:
			ok = exec(restartPlayer, at, e.PlayerID)
		}
		if ok {
			s.writtenTotal.Add(1)
		}
	}

	// Race events are sparse: commit as soon as the queue drains so readers see them.
	ticker := time.NewTicker(commitMaxWait / 4)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			apply(e)
			if len(s.ch) == 0 {
				commit()
			} else {
				flushIfNeeded()
			}
		case <-ticker.C:
			flushIfNeeded()
		}
	}
}
