// internal/services/task_service.go
package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"groupware/internal/apperr"
	"groupware/internal/authz"
	"groupware/internal/diff"
	"groupware/internal/models"
	"groupware/internal/recurrence"
	"groupware/internal/repositories"
	"groupware/internal/stream"
)

// ListOptions scopes one streamed task listing.
type ListOptions struct {
	ContextID int64
	UserID    int64
	FolderID  int64
	Columns   []models.Attribute
	Storage   models.StorageType
}

// UpdateResult is the outcome of a successful update: the fully merged task,
// the follow-up occurrence if one was generated, and post-commit warnings
// (event delivery, recurrence regeneration) that did not undo the change.
type UpdateResult struct {
	Task     *models.Task
	Next     *models.Task
	Warnings []error
}

// TaskService defines the task persistence and update engine entry points.
type TaskService interface {
	Create(ctx context.Context, contextID, userID, folderID int64, task *models.Task) (*models.Task, []error, error)
	GetByID(ctx context.Context, contextID, userID, id int64) (*models.Task, error)
	List(ctx context.Context, opt ListOptions) (*stream.TaskReader, error)
	Update(ctx context.Context, contextID, userID, folderID int64, task *models.Task, lastRead time.Time) (*UpdateResult, error)
	Delete(ctx context.Context, contextID, userID, folderID, id int64, lastRead time.Time) ([]error, error)
	Confirm(ctx context.Context, contextID, taskID, userID int64, confirm models.ConfirmStatus, message string) error
}

// StreamDefaults tunes the listing reader; zero values fall back to the
// stream package defaults.
type StreamDefaults struct {
	MinimumBatch int
	BufferSize   int
}

type taskService struct {
	db     *sql.DB
	users  repositories.UserRepository
	perms  authz.Oracle
	events EventSink
	stream StreamDefaults
}

// NewTaskService creates a new instance of TaskService.
func NewTaskService(db *sql.DB, users repositories.UserRepository, perms authz.Oracle, events EventSink, stream StreamDefaults) TaskService {
	return &taskService{db: db, users: users, perms: perms, events: events, stream: stream}
}

func (s *taskService) Create(ctx context.Context, contextID, userID, folderID int64, task *models.Task) (*models.Task, []error, error) {
	folderRepo := repositories.NewFolderRepository(s.db)
	folder, err := folderRepo.Folder(ctx, contextID, folderID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.perms.CheckCreate(ctx, userID, *folder); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	task.ContextID = contextID
	task.FolderID = folderID
	task.CreatedBy = userID
	task.ModifiedBy = userID
	task.CreatedAt = now
	task.LastModified = now
	if task.Status == "" {
		task.Status = models.StatusNotStarted
	}
	if task.Priority == "" {
		task.Priority = models.PriorityNormal
	}

	resolved, err := s.resolveParticipants(ctx, contextID, task.Participants)
	if err != nil {
		return nil, nil, err
	}
	task.Participants = resolved
	if task.Private && folder.Type == models.FolderPublic {
		return nil, nil, apperr.New(apperr.KindPermission, "NO_PRIVATE_IN_PUBLIC",
			"private task may not be created in public folder %d", folderID)
	}
	if err := diff.ValidateNew(task); err != nil {
		return nil, nil, err
	}

	mappings, err := s.creationMappings(ctx, contextID, userID, folderID, task.Participants)
	if err != nil {
		return nil, nil, err
	}

	if err := s.insertTask(ctx, task, mappings); err != nil {
		return nil, nil, err
	}

	var warnings []error
	if warn := s.notify(ctx, EventCreated, task); warn != nil {
		warnings = append(warnings, warn)
	}
	return task, warnings, nil
}

// creationMappings builds the initial folder-mapping set: the creator in the
// acting folder, every internal participant in their personal folder.
func (s *taskService) creationMappings(ctx context.Context, contextID, userID, folderID int64, participants []models.Participant) ([]models.FolderMapping, error) {
	mappings := []models.FolderMapping{{FolderID: folderID, UserID: userID}}
	seen := map[int64]bool{userID: true}
	for _, p := range participants {
		if p.UserID == 0 || seen[p.UserID] {
			continue
		}
		seen[p.UserID] = true
		fid := p.FolderID
		if fid == 0 {
			var err error
			fid, err = s.users.StandardTaskFolder(ctx, contextID, p.UserID)
			if err != nil {
				return nil, err
			}
		}
		mappings = append(mappings, models.FolderMapping{FolderID: fid, UserID: p.UserID})
	}
	return mappings, nil
}

// insertTask writes a task with its participants, folder mappings and alarm
// in one transaction.
func (s *taskService) insertTask(ctx context.Context, task *models.Task, mappings []models.FolderMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, err, "begin transaction")
	}
	defer tx.Rollback()

	if err := repositories.NewTaskRepository(tx).Insert(ctx, task, models.StorageActive); err != nil {
		return err
	}
	for i := range mappings {
		mappings[i].TaskID = task.ID
	}
	if err := repositories.NewFolderRepository(tx).InsertMappings(ctx, task.ContextID, mappings, models.StorageActive); err != nil {
		return err
	}
	if len(task.Participants) > 0 {
		if err := repositories.NewParticipantRepository(tx).Insert(ctx, task.ContextID, task.ID, task.Participants, models.StorageActive); err != nil {
			return err
		}
	}
	if task.Has(models.AttrAlarm) && task.Alarm != nil {
		if err := repositories.NewReminderRepository(tx).Upsert(ctx, task.ContextID, task.ID, task.CreatedBy, *task.Alarm); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, err, "commit transaction")
	}
	return nil
}

func (s *taskService) GetByID(ctx context.Context, contextID, userID, id int64) (*models.Task, error) {
	taskRepo := repositories.NewTaskRepository(s.db)
	task, err := taskRepo.ByID(ctx, contextID, id, models.StorageActive)
	if err != nil {
		return nil, err
	}
	parts, err := repositories.NewParticipantRepository(s.db).SelectByTasks(ctx, contextID, []int64{id}, models.StorageActive)
	if err != nil {
		return nil, err
	}
	task.Participants = parts[id]
	task.Mark(models.AttrParticipants)

	mappings, err := repositories.NewFolderRepository(s.db).SelectMappings(ctx, contextID, id, models.StorageActive)
	if err != nil {
		return nil, err
	}
	for _, m := range mappings {
		if m.UserID == userID {
			task.FolderID = m.FolderID
			task.Mark(models.AttrFolder)
			break
		}
	}
	alarms, err := repositories.NewReminderRepository(s.db).LoadByTasks(ctx, contextID, userID, []int64{id})
	if err != nil {
		return nil, err
	}
	if alarm, ok := alarms[id]; ok {
		task.Alarm = &alarm
		task.Mark(models.AttrAlarm)
	}
	return task, nil
}

func (s *taskService) List(ctx context.Context, opt ListOptions) (*stream.TaskReader, error) {
	if opt.FolderID != 0 {
		folder, err := repositories.NewFolderRepository(s.db).Folder(ctx, opt.ContextID, opt.FolderID)
		if err != nil {
			return nil, err
		}
		if err := s.perms.CheckRead(ctx, opt.UserID, *folder); err != nil {
			return nil, err
		}
	}
	taskRepo := repositories.NewTaskRepository(s.db)
	source := taskRepo.Stream(repositories.ListQuery{
		ContextID: opt.ContextID,
		FolderID:  opt.FolderID,
		UserID:    opt.UserID,
		Storage:   opt.Storage,
	})
	return stream.NewTaskReader(ctx, source, stream.ReaderConfig{
		ContextID:    opt.ContextID,
		UserID:       opt.UserID,
		Columns:      opt.Columns,
		FolderID:     opt.FolderID,
		Storage:      opt.Storage,
		MinimumBatch: s.stream.MinimumBatch,
		BufferSize:   s.stream.BufferSize,
		Participants: repositories.NewParticipantRepository(s.db),
		Reminders:    repositories.NewReminderRepository(s.db),
	})
}

func (s *taskService) Update(ctx context.Context, contextID, userID, folderID int64, submitted *models.Task, lastRead time.Time) (*UpdateResult, error) {
	taskRepo := repositories.NewTaskRepository(s.db)
	partRepo := repositories.NewParticipantRepository(s.db)
	folderRepo := repositories.NewFolderRepository(s.db)

	folder, err := folderRepo.Folder(ctx, contextID, folderID)
	if err != nil {
		return nil, err
	}
	original, err := taskRepo.ByID(ctx, contextID, submitted.ID, models.StorageActive)
	if err != nil {
		return nil, err
	}
	origParts, err := partRepo.SelectByTasks(ctx, contextID, []int64{original.ID}, models.StorageActive)
	if err != nil {
		return nil, err
	}
	origFolders, err := folderRepo.SelectMappings(ctx, contextID, original.ID, models.StorageActive)
	if err != nil {
		return nil, err
	}
	removedRecs, err := partRepo.SelectByTasks(ctx, contextID, []int64{original.ID}, models.StorageRemoved)
	if err != nil {
		return nil, err
	}

	sess := &diff.Session{
		UserID:           userID,
		Folder:           *folder,
		Storage:          models.StorageActive,
		Original:         original,
		Submitted:        submitted,
		OrigParticipants: origParts[original.ID],
		OrigFolders:      origFolders,
		RemovedRecords:   removedRecs[original.ID],
		Groups:           s.users,
		Folders:          s.users,
		Perms:            s.perms,
	}
	if sess.IsMove() {
		dest, err := folderRepo.Folder(ctx, contextID, submitted.FolderID)
		if err != nil {
			return nil, err
		}
		sess.DestFolder = dest
	}

	// All checks are local and pre-transaction; nothing is persisted until
	// they all pass.
	if err := sess.CheckConflict(lastRead); err != nil {
		return nil, err
	}
	if err := sess.CheckPermissions(ctx); err != nil {
		return nil, err
	}
	if err := sess.Validate(ctx); err != nil {
		return nil, err
	}
	modified := sess.ModifiedFields()
	addedParts, err := sess.AddedParticipants(ctx)
	if err != nil {
		return nil, err
	}
	removedParts, err := sess.RemovedParticipants(ctx)
	if err != nil {
		return nil, err
	}
	addedFolders, err := sess.AddedFolders(ctx)
	if err != nil {
		return nil, err
	}
	removedFolders, err := sess.RemovedFolders(ctx)
	if err != nil {
		return nil, err
	}
	merged, err := sess.Updated(ctx)
	if err != nil {
		return nil, err
	}
	merged.LastModified = time.Now()

	if err := s.applyUpdate(ctx, merged, lastRead, modified, addedParts, removedParts, addedFolders, removedFolders, submitted, userID); err != nil {
		return nil, err
	}

	result := &UpdateResult{Task: merged}
	if warn := s.notify(ctx, EventModified, merged); warn != nil {
		result.Warnings = append(result.Warnings, warn)
	}

	// Completing a recurring task spawns the next occurrence. Strictly
	// post-commit: a failure here never rolls back the completion.
	if merged.Recurrence.Type != models.RecurrenceNone &&
		merged.Status == models.StatusDone && containsAttr(modified, models.AttrStatus) {
		finalFolders := survivingMappings(sess, addedFolders, removedFolders)
		next, err := s.regenerate(ctx, merged, finalFolders)
		if err != nil {
			log.Printf("[task][recurrence][err] task=%d: %v", merged.ID, err)
			result.Warnings = append(result.Warnings,
				apperr.Wrap(apperr.KindInfrastructure, err, "regenerating task %d", merged.ID))
		} else {
			result.Next = next
		}
	}
	return result, nil
}

// applyUpdate runs the optimistic-concurrency gate: the conditional task row
// update plus every participant, folder and reminder mutation in a single
// transaction.
func (s *taskService) applyUpdate(ctx context.Context, merged *models.Task, lastRead time.Time,
	modified []models.Attribute, addedParts, removedParts []models.Participant,
	addedFolders, removedFolders []models.FolderMapping, submitted *models.Task, userID int64) error {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, err, "begin transaction")
	}
	defer tx.Rollback()

	txTask := repositories.NewTaskRepository(tx)
	txPart := repositories.NewParticipantRepository(tx)
	txFolder := repositories.NewFolderRepository(tx)
	txRem := repositories.NewReminderRepository(tx)
	cid := merged.ContextID

	if err := txTask.Update(ctx, merged, lastRead, modified, models.StorageActive); err != nil {
		return err
	}

	if len(removedParts) > 0 {
		if err := txPart.Delete(ctx, cid, merged.ID, removedParts, models.StorageActive); err != nil {
			return err
		}
		// Mirror dropped internal participants into the REMOVED partition so
		// a later re-add can restore their folder and confirmation state.
		var internals []models.Participant
		for _, p := range removedParts {
			if p.UserID != 0 {
				internals = append(internals, p)
				if err := txRem.Delete(ctx, cid, merged.ID, p.UserID); err != nil {
					return err
				}
			}
		}
		if len(internals) > 0 {
			if err := txPart.Delete(ctx, cid, merged.ID, internals, models.StorageRemoved); err != nil {
				return err
			}
			if err := txPart.Insert(ctx, cid, merged.ID, internals, models.StorageRemoved); err != nil {
				return err
			}
		}
	}
	if len(addedParts) > 0 {
		// A restored participant's REMOVED record is consumed by the re-add.
		if err := txPart.Delete(ctx, cid, merged.ID, addedParts, models.StorageRemoved); err != nil {
			return err
		}
		if err := txPart.Insert(ctx, cid, merged.ID, addedParts, models.StorageActive); err != nil {
			return err
		}
	}

	if len(removedFolders) > 0 {
		if err := txFolder.DeleteMappings(ctx, cid, removedFolders, models.StorageActive); err != nil {
			return err
		}
	}
	if len(addedFolders) > 0 {
		if err := txFolder.InsertMappings(ctx, cid, addedFolders, models.StorageActive); err != nil {
			return err
		}
	}

	if submitted.Has(models.AttrAlarm) {
		if merged.Alarm != nil {
			if err := txRem.Upsert(ctx, cid, merged.ID, userID, *merged.Alarm); err != nil {
				return err
			}
		} else if err := txRem.Delete(ctx, cid, merged.ID, userID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, err, "commit transaction")
	}
	return nil
}

// regenerate inserts the next occurrence of a completed recurring task as an
// independent task sharing participants and folder placements.
func (s *taskService) regenerate(ctx context.Context, done *models.Task, mappings []models.FolderMapping) (*models.Task, error) {
	rec := done.Recurrence
	if rec.Count != nil && *rec.Count <= 0 {
		return nil, nil
	}
	if done.Start == nil || done.End == nil {
		return nil, nil
	}
	start, end, ok := recurrence.Next(*done.Start, *done.End, rec)
	if !ok {
		return nil, nil
	}

	next := *done
	next.ID = 0
	next.Start = &start
	next.End = &end
	next.Status = models.StatusNotStarted
	next.PercentComplete = 0
	now := time.Now()
	next.CreatedAt = now
	next.LastModified = now
	if rec.Count != nil {
		c := *rec.Count - 1
		next.Recurrence.Count = &c
	}
	if err := diff.ValidateNew(&next); err != nil {
		return nil, err
	}

	copies := make([]models.FolderMapping, len(mappings))
	copy(copies, mappings)
	if err := s.insertTask(ctx, &next, copies); err != nil {
		return nil, err
	}
	log.Printf("[task][recurrence][ok] task=%d next=%d start=%s", done.ID, next.ID, start.Format(time.RFC3339))
	return &next, nil
}

func (s *taskService) Delete(ctx context.Context, contextID, userID, folderID, id int64, lastRead time.Time) ([]error, error) {
	taskRepo := repositories.NewTaskRepository(s.db)
	partRepo := repositories.NewParticipantRepository(s.db)
	folderRepo := repositories.NewFolderRepository(s.db)

	folder, err := folderRepo.Folder(ctx, contextID, folderID)
	if err != nil {
		return nil, err
	}
	original, err := taskRepo.ByID(ctx, contextID, id, models.StorageActive)
	if err != nil {
		return nil, err
	}
	if original.LastModified.After(lastRead) {
		return nil, apperr.New(apperr.KindConcurrentModification, "MODIFIED_SINCE_READ",
			"task %d changed after client read", id)
	}
	if err := s.perms.CheckDelete(ctx, userID, *folder, original); err != nil {
		return nil, err
	}
	parts, err := partRepo.SelectByTasks(ctx, contextID, []int64{id}, models.StorageActive)
	if err != nil {
		return nil, err
	}
	mappings, err := folderRepo.SelectMappings(ctx, contextID, id, models.StorageActive)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, err, "begin transaction")
	}
	defer tx.Rollback()

	txTask := repositories.NewTaskRepository(tx)
	txPart := repositories.NewParticipantRepository(tx)
	txFolder := repositories.NewFolderRepository(tx)

	// Soft delete: duplicate the full row set into the DELETED partition,
	// then prune the ACTIVE one. Reminders and REMOVED leftovers are dropped
	// outright.
	if err := txTask.Delete(ctx, contextID, id, lastRead, models.StorageActive); err != nil {
		return nil, err
	}
	deleted := *original
	deleted.ModifiedBy = userID
	deleted.LastModified = time.Now()
	if err := txTask.Insert(ctx, &deleted, models.StorageDeleted); err != nil {
		return nil, err
	}
	if len(parts[id]) > 0 {
		if err := txPart.Insert(ctx, contextID, id, parts[id], models.StorageDeleted); err != nil {
			return nil, err
		}
	}
	if err := txPart.DeleteAll(ctx, contextID, id, models.StorageActive); err != nil {
		return nil, err
	}
	if err := txPart.DeleteAll(ctx, contextID, id, models.StorageRemoved); err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		if err := txFolder.InsertMappings(ctx, contextID, mappings, models.StorageDeleted); err != nil {
			return nil, err
		}
	}
	if err := txFolder.DeleteAllMappings(ctx, contextID, id, models.StorageActive); err != nil {
		return nil, err
	}
	if err := repositories.NewReminderRepository(tx).Delete(ctx, contextID, id, 0); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.KindInfrastructure, err, "commit transaction")
	}

	var warnings []error
	if warn := s.notify(ctx, EventDeleted, original); warn != nil {
		warnings = append(warnings, warn)
	}
	return warnings, nil
}

func (s *taskService) Confirm(ctx context.Context, contextID, taskID, userID int64, confirm models.ConfirmStatus, message string) error {
	switch confirm {
	case models.ConfirmAccepted, models.ConfirmDeclined, models.ConfirmTentative, models.ConfirmNone:
	default:
		return apperr.New(apperr.KindValidation, "INVALID_CONFIRM", "unknown confirmation %q", confirm)
	}
	return repositories.NewParticipantRepository(s.db).UpdateConfirm(ctx, contextID, taskID, userID, confirm, message)
}

// resolveParticipants expands group entries and de-duplicates by participant
// key, first entry wins.
func (s *taskService) resolveParticipants(ctx context.Context, contextID int64, ps []models.Participant) ([]models.Participant, error) {
	if len(ps) == 0 {
		return nil, nil
	}
	out := make([]models.Participant, 0, len(ps))
	seen := make(map[string]bool)
	for _, p := range ps {
		if p.Group() {
			members, err := s.users.GroupMembers(ctx, contextID, p.GroupID)
			if err != nil {
				return nil, err
			}
			for _, uid := range members {
				m := models.Participant{UserID: uid, GroupID: p.GroupID, Confirm: models.ConfirmNone}
				if !seen[m.Key()] {
					seen[m.Key()] = true
					out = append(out, m)
				}
			}
			continue
		}
		if p.Confirm == "" {
			p.Confirm = models.ConfirmNone
		}
		if !seen[p.Key()] {
			seen[p.Key()] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *taskService) notify(ctx context.Context, event Event, task *models.Task) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.TaskEvent(ctx, event, task); err != nil {
		return apperr.Wrap(apperr.KindEventDelivery, err, "delivering %s event for task %d", event, task.ID)
	}
	return nil
}

func containsAttr(attrs []models.Attribute, a models.Attribute) bool {
	for _, x := range attrs {
		if x == a {
			return true
		}
	}
	return false
}

// survivingMappings is the folder-mapping set after the diff was applied.
func survivingMappings(sess *diff.Session, added, removed []models.FolderMapping) []models.FolderMapping {
	dropped := make(map[models.FolderMapping]bool, len(removed))
	for _, m := range removed {
		dropped[m] = true
	}
	var out []models.FolderMapping
	for _, m := range sess.OrigFolders {
		if !dropped[m] {
			out = append(out, m)
		}
	}
	return append(out, added...)
}
