package services

import (
	"context"
	"log"

	"groupware/internal/models"
)

// Event names a persisted task change.
type Event string

const (
	EventCreated  Event = "created"
	EventModified Event = "modified"
	EventDeleted  Event = "deleted"
)

// EventSink is notified after a task change committed. Failures are surfaced
// to the caller as warnings; the persisted change stands.
type EventSink interface {
	TaskEvent(ctx context.Context, event Event, task *models.Task) error
}

// MultiSink fans one event out to several sinks and reports the first
// failure after trying all of them.
type MultiSink []EventSink

func (m MultiSink) TaskEvent(ctx context.Context, event Event, task *models.Task) error {
	var first error
	for _, sink := range m {
		if err := sink.TaskEvent(ctx, event, task); err != nil {
			log.Printf("[events][%s][err] task=%d: %v", event, task.ID, err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}
