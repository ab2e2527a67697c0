// Package indexdb keeps a queryable SQLite read model of runs, events, image
// captures and snapshot archives. The simulator never reads it back; writes
// are queued and dropped when the writer falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"swarmsim.ai/internal/persistence/snapshot"
	"swarmsim.ai/internal/sim/model"
	"swarmsim.ai/internal/sim/world"
)

const schemaVersion = "1"

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropCapture  atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqCapture
	reqSnapshot
)

type req struct {
	kind reqKind

	event    world.Event
	capture  captureRow
	snapshot snapshotRow
}

type captureRow struct {
	RunID      string
	Req        model.CaptureRequest
	RecordedAt string
}

type snapshotRow struct {
	Path       string
	Header     snapshot.Header
	Agents     int
	Tasks      int
	Completed  int
	RecordedAt string
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEventTotal    uint64
	DropCaptureTotal  uint64
	DropSnapshotTotal uint64
}

func OpenSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if queue <= 0 {
		queue = 4096
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
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
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
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			end_code TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			game_id TEXT NOT NULL,
			at TEXT NOT NULL,
			sim_time REAL NOT NULL,
			code TEXT NOT NULL,
			agent_id TEXT,
			task_id TEXT,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_time ON events(run_id, sim_time);`,
		`CREATE INDEX IF NOT EXISTS idx_events_code ON events(code);`,
		`CREATE TABLE IF NOT EXISTS captures (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			task_id TEXT NOT NULL,
			lat REAL NOT NULL,
			lng REAL NOT NULL,
			deep INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_captures_task ON captures(task_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			run_id TEXT,
			game_id TEXT NOT NULL,
			sim_time REAL NOT NULL,
			reason TEXT NOT NULL,
			agents INTEGER NOT NULL,
			tasks INTEGER NOT NULL,
			completed_tasks INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
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

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropCaptureTotal:  s.dropCapture.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// WriteEvent queues an event row. Scenario and sandbox start events open a run;
// passthrough and reset close it.
func (s *SQLiteIndex) WriteEvent(ev world.Event) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEvent, event: ev}:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropEvent.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordCapture(runID string, c model.CaptureRequest) {
	if s == nil || s.closed.Load() {
		return
	}
	r := captureRow{RunID: runID, Req: c, RecordedAt: time.Now().UTC().Format(time.RFC3339Nano)}
	select {
	case s.ch <- req{kind: reqCapture, capture: r}:
	default:
		s.dropCapture.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, a snapshot.Archive) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Path:       path,
		Header:     a.Header,
		Agents:     len(a.State.Agents),
		Tasks:      len(a.State.Tasks),
		Completed:  len(a.State.CompletedTasks),
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT INTO events(run_id,game_id,at,sim_time,code,agent_id,task_id,raw_json) VALUES(?,?,?,?,?,?,?,?)`)
	insertRun, _ := s.db.Prepare(`INSERT OR IGNORE INTO runs(run_id,game_id,kind,started_at) VALUES(?,?,?,?)`)
	endRun, _ := s.db.Prepare(`UPDATE runs SET ended_at=?, end_code=? WHERE run_id=? AND ended_at IS NULL`)
	insertCapture, _ := s.db.Prepare(`INSERT INTO captures(run_id,task_id,lat,lng,deep,sim_time,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,run_id,game_id,sim_time,reason,agents,tasks,completed_tasks,recorded_at) VALUES(?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertRun, endRun, insertCapture, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
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
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	// Idle transactions are committed on the ticker so readers are not held off.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var (
			r  req
			ok bool
		)
		select {
		case r, ok = <-s.ch:
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}
		if !ok {
			break
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEvent:
			ev := r.event
			raw, _ := json.Marshal(ev)
			at := ev.At.UTC().Format(time.RFC3339Nano)
			if !exec(insertEvent, ev.RunID, ev.GameID, at, ev.SimTime, ev.Code, nullable(ev.AgentID), nullable(ev.TaskID), string(raw)) {
				continue
			}
			if ev.RunID == "" {
				break
			}
			switch ev.Code {
			case world.EventScenarioInit:
				exec(insertRun, ev.RunID, ev.GameID, "scenario", at)
			case world.EventSandboxLoaded:
				exec(insertRun, ev.RunID, ev.GameID, "sandbox", at)
			case world.EventPassthrough, world.EventReset:
				exec(endRun, at, ev.Code, ev.RunID)
			}

		case reqCapture:
			c := r.capture
			deep := 0
			if c.Req.Deep {
				deep = 1
			}
			exec(insertCapture, c.RunID, c.Req.TaskID, c.Req.Coordinate.Lat, c.Req.Coordinate.Lng, deep, c.Req.Time, c.RecordedAt)

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Path, nullable(sn.Header.RunID), sn.Header.GameID, sn.Header.SimTime, sn.Header.Reason, sn.Agents, sn.Tasks, sn.Completed, sn.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
