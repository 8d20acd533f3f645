package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// RunSummary is a row of the run history.
type RunSummary struct {
	ID            string         `json:"id"`
	Pattern       models.Pattern `json:"pattern"`
	Success       bool           `json:"success"`
	TotalDuration time.Duration  `json:"total_duration"`
	Tasks         int            `json:"tasks"`
	CreatedAt     time.Time      `json:"created_at"`
}

// SaveRun stores an orchestration result and its traces.
func (db *DB) SaveRun(result *models.OrchestrationResult, at time.Time) error {
	if result.RunID == "" {
		return fmt.Errorf("save run: result has no run id")
	}
	results, err := json.Marshal(result.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO runs (id, pattern, success, total_duration_ns, results, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, result.RunID, string(result.Pattern), result.Success, int64(result.TotalDuration), string(results), formatTime(at))
		if err != nil {
			return fmt.Errorf("save run %s: %w", result.RunID, err)
		}

		for i, tr := range result.Traces {
			_, err := tx.Exec(`
				INSERT INTO traces (run_id, seq, task_id, agent_id, start_time, duration_ns, output, error)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, result.RunID, i, tr.TaskID, tr.AgentID, formatTime(tr.StartTime), int64(tr.Duration), tr.Output, tr.Error)
			if err != nil {
				return fmt.Errorf("save trace %d of run %s: %w", i, result.RunID, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run with its traces. Returns nil if not found.
func (db *DB) GetRun(id string) (*models.OrchestrationResult, error) {
	row := db.QueryRow(`
		SELECT id, pattern, success, total_duration_ns, results
		FROM runs WHERE id = ?
	`, id)

	var r models.OrchestrationResult
	var durationNS int64
	var results string
	err := row.Scan(&r.RunID, &r.Pattern, &r.Success, &durationNS, &results)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	r.TotalDuration = time.Duration(durationNS)
	if err := json.Unmarshal([]byte(results), &r.Results); err != nil {
		return nil, fmt.Errorf("decode results of run %s: %w", id, err)
	}

	rows, err := db.Query(`
		SELECT task_id, agent_id, start_time, duration_ns, COALESCE(output, ''), COALESCE(error, '')
		FROM traces WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get traces: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tr models.ExecutionTrace
		var start string
		var dur int64
		if err := rows.Scan(&tr.TaskID, &tr.AgentID, &start, &dur, &tr.Output, &tr.Error); err != nil {
			return nil, fmt.Errorf("scan trace: %w", err)
		}
		tr.StartTime, _ = parseTime(start)
		tr.Duration = time.Duration(dur)
		r.Traces = append(r.Traces, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate traces: %w", err)
	}

	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(`
		SELECT r.id, r.pattern, r.success, r.total_duration_ns, r.created_at,
			(SELECT COUNT(DISTINCT t.task_id) FROM traces t WHERE t.run_id = r.id)
		FROM runs r
		ORDER BY r.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var s RunSummary
		var dur int64
		var created string
		if err := rows.Scan(&s.ID, &s.Pattern, &s.Success, &dur, &created, &s.Tasks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.TotalDuration = time.Duration(dur)
		s.CreatedAt, _ = parseTime(created)
		runs = append(runs, s)
	}
	return runs, rows.Err()
}
