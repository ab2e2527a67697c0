package indexdb

import (
	"context"
	"database/sql"
)

type EventRow struct {
	ID      int64   `json:"id"`
	RunID   string  `json:"run_id"`
	GameID  string  `json:"game_id"`
	At      string  `json:"at"`
	SimTime float64 `json:"sim_time"`
	Code    string  `json:"code"`
	AgentID string  `json:"agent_id,omitempty"`
	TaskID  string  `json:"task_id,omitempty"`
}

type RunRow struct {
	RunID     string `json:"run_id"`
	GameID    string `json:"game_id"`
	Kind      string `json:"kind"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
	EndCode   string `json:"end_code,omitempty"`
}

// RecentEvents returns the newest events first. An empty runID matches every run.
func (s *SQLiteIndex) RecentEvents(ctx context.Context, runID string, limit int) ([]EventRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT id,run_id,game_id,at,sim_time,code,agent_id,task_id FROM events`
	args := []any{}
	if runID != "" {
		q += ` WHERE run_id=?`
		args = append(args, runID)
	}
	q += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var (
			r             EventRow
			agent, taskID sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.GameID, &r.At, &r.SimTime, &r.Code, &agent, &taskID); err != nil {
			return nil, err
		}
		r.AgentID = agent.String
		r.TaskID = taskID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// Runs lists known runs, most recently started first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]RunRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,game_id,kind,started_at,ended_at,end_code FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var (
			r            RunRow
			ended, endCd sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.GameID, &r.Kind, &r.StartedAt, &ended, &endCd); err != nil {
			return nil, err
		}
		r.EndedAt = ended.String
		r.EndCode = endCd.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// CaptureCount returns how many image captures were indexed for a task.
func (s *SQLiteIndex) CaptureCount(ctx context.Context, taskID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

type SnapshotRow struct {
	Path           string  `json:"path"`
	RunID          string  `json:"run_id,omitempty"`
	GameID         string  `json:"game_id"`
	SimTime        float64 `json:"sim_time"`
	Reason         string  `json:"reason"`
	Agents         int     `json:"agents"`
	Tasks          int     `json:"tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	RecordedAt     string  `json:"recorded_at"`
}

func (s *SQLiteIndex) Snapshots(ctx context.Context, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path,run_id,game_id,sim_time,reason,agents,tasks,completed_tasks,recorded_at FROM snapshots ORDER BY recorded_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotRow
	for rows.Next() {
		var (
			r     SnapshotRow
			runID sql.NullString
		)
		if err := rows.Scan(&r.Path, &runID, &r.GameID, &r.SimTime, &r.Reason, &r.Agents, &r.Tasks, &r.CompletedTasks, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.RunID = runID.String
		out = append(out, r)
	}
	return out, rows.Err()
}
