package repositories

import (
	"context"
	"time"

	"github.com/lib/pq"
)

// ReminderRepository stores per-user task alarms, keyed by (task, user).
type ReminderRepository interface {
	// LoadByTasks batch-loads one user's alarms for the given tasks.
	LoadByTasks(ctx context.Context, contextID, userID int64, taskIDs []int64) (map[int64]time.Time, error)
	Exists(ctx context.Context, contextID, taskID, userID int64) (bool, error)
	Upsert(ctx context.Context, contextID, taskID, userID int64, alarm time.Time) error
	// Delete removes one user's reminder, or every reminder of the task when
	// userID is 0.
	Delete(ctx context.Context, contextID, taskID, userID int64) error
}

type reminderRepository struct {
	db DBTX
}

func NewReminderRepository(db DBTX) ReminderRepository {
	return &reminderRepository{db: db}
}

func (r *reminderRepository) LoadByTasks(ctx context.Context, contextID, userID int64, taskIDs []int64) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT task, alarm FROM reminder WHERE cid = $1 AND user_id = $2 AND task = ANY($3)`,
		contextID, userID, pq.Array(taskIDs))
	if err != nil {
		return nil, wrapDBErr(err, "load reminders", nil)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID int64
		var alarm time.Time
		if err := rows.Scan(&taskID, &alarm); err != nil {
			return nil, wrapDBErr(err, "scan reminder", nil)
		}
		out[taskID] = alarm
	}
	return out, wrapDBErr(rows.Err(), "load reminders", nil)
}

func (r *reminderRepository) Exists(ctx context.Context, contextID, taskID, userID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reminder WHERE cid = $1 AND task = $2 AND user_id = $3`,
		contextID, taskID, userID).Scan(&n)
	if err != nil {
		return false, wrapDBErr(err, "reminder exists", nil)
	}
	return n > 0, nil
}

func (r *reminderRepository) Upsert(ctx context.Context, contextID, taskID, userID int64, alarm time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder (cid, task, user_id, alarm)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (cid, task, user_id) DO UPDATE SET alarm = EXCLUDED.alarm`,
		contextID, taskID, userID, alarm)
	return wrapDBErr(err, "upsert reminder", nil)
}

func (r *reminderRepository) Delete(ctx context.Context, contextID, taskID, userID int64) error {
	if userID == 0 {
		_, err := r.db.ExecContext(ctx,
			`DELETE FROM reminder WHERE cid = $1 AND task = $2`, contextID, taskID)
		return wrapDBErr(err, "delete reminders", nil)
	}
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reminder WHERE cid = $1 AND task = $2 AND user_id = $3`,
		contextID, taskID, userID)
	return wrapDBErr(err, "delete reminder", nil)
}
