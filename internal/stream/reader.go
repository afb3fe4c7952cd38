package stream

import (
	"context"
	"sync"
	"time"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

// TaskRows is the storage cursor the producer drains: one partial task per
// row, in query order.
type TaskRows interface {
	Next() bool
	Scan() (*models.Task, error)
	Err() error
	Close() error
}

// RowSource executes the listing query for the given direct column
// projection.
type RowSource interface {
	QueryTasks(ctx context.Context, columns []models.Attribute) (TaskRows, error)
}

// ParticipantLoader batch-loads participants for a set of task ids.
type ParticipantLoader interface {
	SelectByTasks(ctx context.Context, contextID int64, taskIDs []int64, st models.StorageType) (map[int64][]models.Participant, error)
}

// ReminderLoader batch-loads one user's reminders for a set of task ids.
type ReminderLoader interface {
	LoadByTasks(ctx context.Context, contextID, userID int64, taskIDs []int64) (map[int64]time.Time, error)
}

// ReaderConfig describes one listing.
type ReaderConfig struct {
	ContextID int64
	UserID    int64 // requesting user, owns the loaded reminders
	Columns   []models.Attribute
	// FolderID, when non-zero, is stamped on every task instead of being
	// read from the row (folder-scoped queries).
	FolderID     int64
	Storage      models.StorageType
	MinimumBatch int
	BufferSize   int

	Participants ParticipantLoader
	Reminders    ReminderLoader
}

// TaskReader streams a listing: a background goroutine feeds the prefetch
// buffer while the consumer pulls batches, enriches them and yields tasks one
// by one in row order.
type TaskReader struct {
	cfg        ReaderConfig
	direct     []models.Attribute
	additional []models.Attribute

	buf   *Prefetch
	ready []*models.Task

	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	prodErr error
}

// NewTaskReader partitions the projection, starts the producing goroutine and
// returns immediately. An additional attribute the reader cannot batch-load
// is a programming error, reported here.
func NewTaskReader(ctx context.Context, source RowSource, cfg ReaderConfig) (*TaskReader, error) {
	r := &TaskReader{
		cfg:  cfg,
		buf:  NewPrefetch(cfg.BufferSize, cfg.MinimumBatch),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	if r.cfg.Storage == "" {
		r.cfg.Storage = models.StorageActive
	}

	wantParticipants := false
	for _, a := range cfg.Columns {
		switch a {
		case models.AttrParticipants:
			wantParticipants = true
		case models.AttrUsers:
			// Users are derived from participants; folding the attribute in
			// here keeps it out of the additional set.
			wantParticipants = true
		case models.AttrAlarm:
			r.additional = append(r.additional, models.AttrAlarm)
		case models.AttrNotification:
			return nil, apperr.New(apperr.KindInfrastructure, "UNKNOWN_ATTRIBUTE",
				"attribute %q cannot be read from storage", a)
		default:
			r.direct = append(r.direct, a)
		}
	}
	if wantParticipants {
		r.additional = append(r.additional, models.AttrParticipants)
		if cfg.Participants == nil {
			return nil, apperr.New(apperr.KindInfrastructure, "UNKNOWN_ATTRIBUTE",
				"no participant loader configured")
		}
	}

	go r.produce(ctx, source)
	return r, nil
}

func (r *TaskReader) produce(ctx context.Context, source RowSource) {
	defer close(r.done)
	defer r.buf.Finish()

	rows, err := source.QueryTasks(ctx, r.direct)
	if err != nil {
		r.fail(err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		t, err := rows.Scan()
		if err != nil {
			r.fail(err)
			return
		}
		if r.cfg.FolderID != 0 {
			t.FolderID = r.cfg.FolderID
			t.Mark(models.AttrFolder)
		}
		if !r.buf.Offer(t, r.quit) {
			return
		}
	}
	if err := rows.Err(); err != nil {
		r.fail(err)
	}
}

func (r *TaskReader) fail(err error) {
	r.mu.Lock()
	if r.prodErr == nil {
		r.prodErr = err
	}
	r.mu.Unlock()
}

func (r *TaskReader) producerErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prodErr
}

// HasNext reports whether another task is available, blocking while the
// producer is still ahead of the consumer.
func (r *TaskReader) HasNext() bool {
	return len(r.ready) > 0 || r.buf.HasNext()
}

// Next yields the next task. Producer-side failures are re-raised here once
// the already-buffered tasks are exhausted.
func (r *TaskReader) Next(ctx context.Context) (*models.Task, error) {
	if len(r.ready) == 0 {
		batch := r.buf.Take(len(r.additional) > 0)
		if len(batch) == 0 {
			if err := r.producerErr(); err != nil {
				return nil, apperr.Wrap(apperr.KindInfrastructure, err, "reading task stream")
			}
			return nil, apperr.New(apperr.KindNotFound, "STREAM_EXHAUSTED", "no more tasks")
		}
		if err := r.enrich(ctx, batch); err != nil {
			return nil, err
		}
		r.ready = batch
	}
	t := r.ready[0]
	r.ready = r.ready[1:]
	return t, nil
}

// enrich runs one batched secondary fetch per additional attribute across the
// whole drained group.
func (r *TaskReader) enrich(ctx context.Context, batch []*models.Task) error {
	ids := make([]int64, len(batch))
	for i, t := range batch {
		ids[i] = t.ID
	}
	for _, a := range r.additional {
		switch a {
		case models.AttrParticipants:
			parts, err := r.cfg.Participants.SelectByTasks(ctx, r.cfg.ContextID, ids, r.cfg.Storage)
			if err != nil {
				return apperr.Wrap(apperr.KindInfrastructure, err, "loading participants")
			}
			for _, t := range batch {
				t.Participants = parts[t.ID]
				t.Mark(models.AttrParticipants)
			}
		case models.AttrAlarm:
			if r.cfg.Reminders == nil {
				continue
			}
			alarms, err := r.cfg.Reminders.LoadByTasks(ctx, r.cfg.ContextID, r.cfg.UserID, ids)
			if err != nil {
				return apperr.Wrap(apperr.KindInfrastructure, err, "loading reminders")
			}
			for _, t := range batch {
				if alarm, ok := alarms[t.ID]; ok {
					a := alarm
					t.Alarm = &a
				}
				t.Mark(models.AttrAlarm)
			}
		}
	}
	return nil
}

// Close stops the producer and waits for it to release the underlying cursor.
// Safe to call before full consumption, and more than once.
func (r *TaskReader) Close() error {
	r.closeOnce.Do(func() { close(r.quit) })
	<-r.done
	return r.producerErr()
}
