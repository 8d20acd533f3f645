package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ShayCichocki/conductor/internal/queue"
	"github.com/ShayCichocki/conductor/pkg/models"
)

// SaveSnapshot replaces the stored live tasks and dead-letter entries with
// the given collections in one transaction.
func (db *DB) SaveSnapshot(tasks []*models.Task, dlq []models.DeadLetterTask) error {
	return db.Transaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM tasks`); err != nil {
			return fmt.Errorf("clear tasks: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM dead_letters`); err != nil {
			return fmt.Errorf("clear dead letters: %w", err)
		}

		for _, t := range tasks {
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("encode task %s: %w", t.ID, err)
			}
			_, err = tx.Exec(`
				INSERT INTO tasks (id, agent_id, type, priority, status, retry_count, created_at, data)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, t.ID, t.AgentID, string(t.Type), string(t.Priority), string(t.Status), t.RetryCount, formatTime(t.CreatedAt), string(data))
			if err != nil {
				return fmt.Errorf("save task %s: %w", t.ID, err)
			}
		}

		for _, d := range dlq {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode dead letter %s: %w", d.ID, err)
			}
			_, err = tx.Exec(`
				INSERT INTO dead_letters (id, agent_id, type, moved_at, final_error, data)
				VALUES (?, ?, ?, ?, ?, ?)
			`, d.ID, d.AgentID, string(d.Type), formatTime(d.MovedToDLQAt), d.FinalError, string(data))
			if err != nil {
				return fmt.Errorf("save dead letter %s: %w", d.ID, err)
			}
		}
		return nil
	})
}

// LoadSnapshot returns the stored live tasks, oldest first, and the
// dead-letter entries in the order they were moved.
func (db *DB) LoadSnapshot() ([]*models.Task, []models.DeadLetterTask, error) {
	taskRows, err := db.Query(`SELECT data FROM tasks ORDER BY created_at, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("load tasks: %w", err)
	}
	defer taskRows.Close()

	var tasks []*models.Task
	for taskRows.Next() {
		var data string
		if err := taskRows.Scan(&data); err != nil {
			return nil, nil, fmt.Errorf("scan task: %w", err)
		}
		var t models.Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, nil, fmt.Errorf("decode task: %w", err)
		}
		tasks = append(tasks, &t)
	}
	if err := taskRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate tasks: %w", err)
	}

	dlqRows, err := db.Query(`SELECT data FROM dead_letters ORDER BY moved_at, id`)
	if err != nil {
		return nil, nil, fmt.Errorf("load dead letters: %w", err)
	}
	defer dlqRows.Close()

	var dlq []models.DeadLetterTask
	for dlqRows.Next() {
		var data string
		if err := dlqRows.Scan(&data); err != nil {
			return nil, nil, fmt.Errorf("scan dead letter: %w", err)
		}
		var d models.DeadLetterTask
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, nil, fmt.Errorf("decode dead letter: %w", err)
		}
		dlq = append(dlq, d)
	}
	if err := dlqRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate dead letters: %w", err)
	}

	return tasks, dlq, nil
}

// SaveQueue persists the current contents of q.
func SaveQueue(s QueueStore, q *queue.Queue) error {
	return s.SaveSnapshot(q.Snapshot(), q.DeadLetters())
}

// RestoreQueue loads the stored snapshot into q. Tasks that were processing
// when the snapshot was taken are queued again.
func RestoreQueue(s QueueStore, q *queue.Queue) error {
	tasks, dlq, err := s.LoadSnapshot()
	if err != nil {
		return err
	}
	q.Restore(tasks, dlq)
	return nil
}
