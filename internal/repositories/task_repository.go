package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"groupware/internal/apperr"
	"groupware/internal/models"
	"groupware/internal/stream"
)

// taskColumn maps directly-readable attributes onto their storage columns.
// Participants, users and alarms need a second round trip and have no entry.
var taskColumn = map[models.Attribute]string{
	models.AttrTitle:                "title",
	models.AttrNote:                 "note",
	models.AttrStart:                "start_date",
	models.AttrEnd:                  "end_date",
	models.AttrStatus:               "status",
	models.AttrPercentComplete:      "percent_complete",
	models.AttrPriority:             "priority",
	models.AttrPrivate:              "private",
	models.AttrCategories:           "categories",
	models.AttrTargetCosts:          "target_costs",
	models.AttrActualCosts:          "actual_costs",
	models.AttrCurrency:             "currency",
	models.AttrRecurrenceType:       "recurrence_type",
	models.AttrRecurrenceInterval:   "recurrence_interval",
	models.AttrRecurrenceDays:       "recurrence_days",
	models.AttrRecurrenceDayInMonth: "recurrence_day_in_month",
	models.AttrRecurrenceMonth:      "recurrence_month",
	models.AttrRecurrenceUntil:      "recurrence_until",
	models.AttrRecurrenceCount:      "recurrence_count",
}

// directAttributes lists every column-backed attribute in stable order.
var directAttributes = []models.Attribute{
	models.AttrTitle, models.AttrNote, models.AttrStart, models.AttrEnd,
	models.AttrStatus, models.AttrPercentComplete, models.AttrPriority,
	models.AttrPrivate, models.AttrCategories, models.AttrTargetCosts,
	models.AttrActualCosts, models.AttrCurrency, models.AttrRecurrenceType,
	models.AttrRecurrenceInterval, models.AttrRecurrenceDays,
	models.AttrRecurrenceDayInMonth, models.AttrRecurrenceMonth,
	models.AttrRecurrenceUntil, models.AttrRecurrenceCount,
}

func taskTable(st models.StorageType) string { return "task_" + string(st) }

// ListQuery scopes one streamed listing.
type ListQuery struct {
	ContextID int64
	// FolderID restricts the listing to one folder; 0 lists every task the
	// user has a folder mapping for.
	FolderID int64
	UserID   int64
	Storage  models.StorageType
}

type TaskRepository interface {
	ByID(ctx context.Context, contextID, id int64, st models.StorageType) (*models.Task, error)
	Insert(ctx context.Context, task *models.Task, st models.StorageType) error
	// Update applies the changed columns under the optimistic-concurrency
	// condition last_modified<=lastRead; zero affected rows is a conflict.
	Update(ctx context.Context, task *models.Task, lastRead time.Time, fields []models.Attribute, st models.StorageType) error
	Delete(ctx context.Context, contextID, id int64, lastRead time.Time, st models.StorageType) error
	// Stream returns the row source a streaming reader drains on its
	// background goroutine.
	Stream(q ListQuery) stream.RowSource
}

type taskRepository struct {
	db DBTX
}

func NewTaskRepository(db DBTX) TaskRepository {
	return &taskRepository{db: db}
}

const taskBaseColumns = "id, cid, created_by, modified_by, creating_date, last_modified"

func projection(attrs []models.Attribute, prefix string) (string, []models.Attribute) {
	cols := make([]string, 0, len(attrs))
	kept := make([]models.Attribute, 0, len(attrs))
	for _, a := range attrs {
		if a == models.AttrFolder {
			// The folder placement lives on the mapping row, joined in by
			// the listing query.
			cols = append(cols, "tf.folder_id")
			kept = append(kept, a)
			continue
		}
		if col, ok := taskColumn[a]; ok {
			cols = append(cols, prefix+col)
			kept = append(kept, a)
		}
	}
	return strings.Join(cols, ", "), kept
}

// scanTask reads one row whose projection was built by projection() over the
// same attribute list.
func scanTask(rows *sql.Rows, attrs []models.Attribute) (*models.Task, error) {
	t := &models.Task{}
	dests := []any{&t.ID, &t.ContextID, &t.CreatedBy, &t.ModifiedBy, &t.CreatedAt, &t.LastModified}

	var start, end, until sql.NullTime
	var count sql.NullInt64
	for _, a := range attrs {
		switch a {
		case models.AttrTitle:
			dests = append(dests, &t.Title)
		case models.AttrNote:
			dests = append(dests, &t.Note)
		case models.AttrStart:
			dests = append(dests, &start)
		case models.AttrEnd:
			dests = append(dests, &end)
		case models.AttrStatus:
			dests = append(dests, &t.Status)
		case models.AttrPercentComplete:
			dests = append(dests, &t.PercentComplete)
		case models.AttrPriority:
			dests = append(dests, &t.Priority)
		case models.AttrPrivate:
			dests = append(dests, &t.Private)
		case models.AttrFolder:
			dests = append(dests, &t.FolderID)
		case models.AttrCategories:
			dests = append(dests, &t.Categories)
		case models.AttrTargetCosts:
			dests = append(dests, &t.TargetCosts)
		case models.AttrActualCosts:
			dests = append(dests, &t.ActualCosts)
		case models.AttrCurrency:
			dests = append(dests, &t.Currency)
		case models.AttrRecurrenceType:
			dests = append(dests, &t.Recurrence.Type)
		case models.AttrRecurrenceInterval:
			dests = append(dests, &t.Recurrence.Interval)
		case models.AttrRecurrenceDays:
			dests = append(dests, &t.Recurrence.Days)
		case models.AttrRecurrenceDayInMonth:
			dests = append(dests, &t.Recurrence.DayInMonth)
		case models.AttrRecurrenceMonth:
			dests = append(dests, &t.Recurrence.Month)
		case models.AttrRecurrenceUntil:
			dests = append(dests, &until)
		case models.AttrRecurrenceCount:
			dests = append(dests, &count)
		}
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}
	if start.Valid {
		t.Start = &start.Time
	}
	if end.Valid {
		t.End = &end.Time
	}
	if until.Valid {
		t.Recurrence.Until = &until.Time
	}
	if count.Valid {
		n := int(count.Int64)
		t.Recurrence.Count = &n
	}
	t.Mark(attrs...)
	return t, nil
}

func (r *taskRepository) ByID(ctx context.Context, contextID, id int64, st models.StorageType) (*models.Task, error) {
	cols, attrs := projection(directAttributes, "")
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE cid = $1 AND id = $2`,
		taskBaseColumns, cols, taskTable(st))
	rows, err := r.db.QueryContext(ctx, query, contextID, id)
	if err != nil {
		return nil, wrapDBErr(err, "select task", nil)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, wrapDBErr(err, "select task", nil)
		}
		return nil, apperr.New(apperr.KindNotFound, "TASK_NOT_FOUND", "task %d not found", id)
	}
	t, err := scanTask(rows, attrs)
	if err != nil {
		return nil, wrapDBErr(err, "scan task", nil)
	}
	return t, nil
}

// Insert writes a new task row. A zero ID lets the sequence assign one; a
// non-zero ID keeps it, which is how a row set is copied between partitions.
func (r *taskRepository) Insert(ctx context.Context, task *models.Task, st models.StorageType) error {
	var count sql.NullInt64
	if task.Recurrence.Count != nil {
		count = sql.NullInt64{Int64: int64(*task.Recurrence.Count), Valid: true}
	}
	args := []any{
		task.ContextID, task.CreatedBy, task.ModifiedBy, task.CreatedAt, task.LastModified,
		task.Title, task.Note, task.Start, task.End, task.Status, task.PercentComplete,
		task.Priority, task.Private, task.Categories, task.TargetCosts, task.ActualCosts, task.Currency,
		task.Recurrence.Type, task.Recurrence.Interval, task.Recurrence.Days,
		task.Recurrence.DayInMonth, task.Recurrence.Month, task.Recurrence.Until, count,
	}
	const valueColumns = `cid, created_by, modified_by, creating_date, last_modified,
			title, note, start_date, end_date, status, percent_complete,
			priority, private, categories, target_costs, actual_costs, currency,
			recurrence_type, recurrence_interval, recurrence_days,
			recurrence_day_in_month, recurrence_month, recurrence_until, recurrence_count`
	const placeholders = `$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24`

	if task.ID != 0 {
		// id goes last so the value placeholders stay stable
		query := fmt.Sprintf(`INSERT INTO %s (%s, id) VALUES (%s,$25)`,
			taskTable(st), valueColumns, placeholders)
		_, err := r.db.ExecContext(ctx, query, append(args, task.ID)...)
		return wrapDBErr(err, "insert task", stringFields(models.AllAttributes()))
	}

	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING id`,
		taskTable(st), valueColumns, placeholders)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&task.ID)
	return wrapDBErr(err, "insert task", stringFields(models.AllAttributes()))
}

// Update writes only the changed columns. The WHERE clause closes the race
// window between the explicit timestamp check and this statement: a writer
// that committed in between bumps last_modified and drops the row count to 0.
func (r *taskRepository) Update(ctx context.Context, task *models.Task, lastRead time.Time, fields []models.Attribute, st models.StorageType) error {
	sets := []string{"modified_by = $1", "last_modified = $2"}
	args := []any{task.ModifiedBy, task.LastModified}
	n := 3
	for _, a := range fields {
		col, ok := taskColumn[a]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, n))
		args = append(args, taskValue(task, a))
		n++
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE cid = $%d AND id = $%d AND last_modified <= $%d`,
		taskTable(st), strings.Join(sets, ", "), n, n+1, n+2)
	args = append(args, task.ContextID, task.ID, lastRead)

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapDBErr(err, "update task", stringFields(fields))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(err, "update task", nil)
	}
	if affected == 0 {
		return apperr.New(apperr.KindConcurrentModification, "ROW_COUNT_ZERO",
			"task %d was modified concurrently", task.ID)
	}
	return nil
}

func taskValue(t *models.Task, a models.Attribute) any {
	switch a {
	case models.AttrTitle:
		return t.Title
	case models.AttrNote:
		return t.Note
	case models.AttrStart:
		return t.Start
	case models.AttrEnd:
		return t.End
	case models.AttrStatus:
		return t.Status
	case models.AttrPercentComplete:
		return t.PercentComplete
	case models.AttrPriority:
		return t.Priority
	case models.AttrPrivate:
		return t.Private
	case models.AttrCategories:
		return t.Categories
	case models.AttrTargetCosts:
		return t.TargetCosts
	case models.AttrActualCosts:
		return t.ActualCosts
	case models.AttrCurrency:
		return t.Currency
	case models.AttrRecurrenceType:
		return t.Recurrence.Type
	case models.AttrRecurrenceInterval:
		return t.Recurrence.Interval
	case models.AttrRecurrenceDays:
		return t.Recurrence.Days
	case models.AttrRecurrenceDayInMonth:
		return t.Recurrence.DayInMonth
	case models.AttrRecurrenceMonth:
		return t.Recurrence.Month
	case models.AttrRecurrenceUntil:
		return t.Recurrence.Until
	case models.AttrRecurrenceCount:
		if t.Recurrence.Count == nil {
			return nil
		}
		return *t.Recurrence.Count
	}
	return nil
}

// stringFields names the string-valued attributes among fields, the
// candidates reported on a column truncation.
func stringFields(fields []models.Attribute) []string {
	var out []string
	for _, a := range fields {
		switch a {
		case models.AttrTitle, models.AttrNote, models.AttrCategories, models.AttrCurrency:
			out = append(out, a.String())
		}
	}
	return out
}

func (r *taskRepository) Delete(ctx context.Context, contextID, id int64, lastRead time.Time, st models.StorageType) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND id = $2 AND last_modified <= $3`, taskTable(st))
	res, err := r.db.ExecContext(ctx, query, contextID, id, lastRead)
	if err != nil {
		return wrapDBErr(err, "delete task", nil)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(err, "delete task", nil)
	}
	if affected == 0 {
		return apperr.New(apperr.KindConcurrentModification, "ROW_COUNT_ZERO",
			"task %d was modified concurrently", id)
	}
	return nil
}

// Stream adapts the repository to the reader's row-source port.
func (r *taskRepository) Stream(q ListQuery) stream.RowSource {
	if q.Storage == "" {
		q.Storage = models.StorageActive
	}
	return &taskRowSource{repo: r, q: q}
}

type taskRowSource struct {
	repo *taskRepository
	q    ListQuery
}

func (s *taskRowSource) QueryTasks(ctx context.Context, columns []models.Attribute) (stream.TaskRows, error) {
	cols, attrs := projection(columns, "t.")
	query := fmt.Sprintf(`
		SELECT t.id, t.cid, t.created_by, t.modified_by, t.creating_date, t.last_modified%s
		FROM %s t
		JOIN task_folder_%s tf ON tf.cid = t.cid AND tf.task = t.id
		WHERE t.cid = $1`, prefixComma(cols), taskTable(s.q.Storage), s.q.Storage)
	args := []any{s.q.ContextID}
	n := 2
	if s.q.FolderID != 0 {
		query += fmt.Sprintf(" AND tf.folder_id = $%d", n)
		args = append(args, s.q.FolderID)
		n++
	} else if s.q.UserID != 0 {
		query += fmt.Sprintf(" AND tf.user_id = $%d", n)
		args = append(args, s.q.UserID)
		n++
	}
	query += " ORDER BY t.id"

	rows, err := s.repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBErr(err, "list tasks", nil)
	}
	return &taskRows{rows: rows, attrs: attrs}, nil
}

func prefixComma(cols string) string {
	if cols == "" {
		return ""
	}
	return ", " + cols
}

type taskRows struct {
	rows  *sql.Rows
	attrs []models.Attribute
}

func (r *taskRows) Next() bool { return r.rows.Next() }

func (r *taskRows) Scan() (*models.Task, error) {
	t, err := scanTask(r.rows, r.attrs)
	if err != nil {
		return nil, wrapDBErr(err, "scan task row", nil)
	}
	return t, nil
}

func (r *taskRows) Err() error   { return r.rows.Err() }
func (r *taskRows) Close() error { return r.rows.Close() }
