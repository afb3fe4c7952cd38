// Package diff computes the authoritative set of database mutations for one
// task update: the changed columns, the participant add/remove sets and the
// folder-mapping add/remove sets. All checks run before any persistence.
package diff

import (
	"context"
	"time"

	"groupware/internal/apperr"
	"groupware/internal/authz"
	"groupware/internal/models"
)

// GroupResolver expands a group participant into its member user ids.
type GroupResolver interface {
	GroupMembers(ctx context.Context, contextID, groupID int64) ([]int64, error)
}

// StandardFolderSource yields a user's personal standard task folder, the
// landing place for newly delegated tasks.
type StandardFolderSource interface {
	StandardTaskFolder(ctx context.Context, contextID, userID int64) (int64, error)
}

// Session is one diff computation over an original task and a client-submitted
// partial task. Each step is memoized, so repeated calls are idempotent within
// the session.
type Session struct {
	UserID     int64
	Folder     models.Folder  // folder through which the edit arrived
	DestFolder *models.Folder // set when the submission moves the task
	Storage    models.StorageType

	Original  *models.Task
	Submitted *models.Task

	OrigParticipants []models.Participant
	OrigFolders      []models.FolderMapping
	// RemovedRecords holds this task's REMOVED-partition participant rows;
	// re-added users take their prior folder/confirmation state from here.
	RemovedRecords []models.Participant

	Groups  GroupResolver
	Folders StandardFolderSource
	Perms   authz.Oracle

	modified     []models.Attribute
	modifiedDone bool

	resolved            []models.Participant
	addedParticipants   []models.Participant
	removedParticipants []models.Participant
	participantsDone    bool

	addedFolders   []models.FolderMapping
	removedFolders []models.FolderMapping
	foldersDone    bool

	merged *models.Task
}

// IsMove reports whether the submission re-files the task into another folder.
func (s *Session) IsMove() bool {
	return s.Submitted.Has(models.AttrFolder) && s.Submitted.FolderID != s.Folder.ID
}

// CheckConflict rejects the update when the stored task was modified after the
// client last read it.
func (s *Session) CheckConflict(lastRead time.Time) error {
	if s.Original.LastModified.After(lastRead) {
		return apperr.New(apperr.KindConcurrentModification, "MODIFIED_SINCE_READ",
			"task %d changed at %s, after client read at %s",
			s.Original.ID, s.Original.LastModified.Format(time.RFC3339), lastRead.Format(time.RFC3339))
	}
	return nil
}

// CheckPermissions enforces the move and shared-folder policy on top of the
// permission oracle.
func (s *Session) CheckPermissions(ctx context.Context) error {
	if s.IsMove() {
		if s.DestFolder == nil {
			return apperr.New(apperr.KindMandatoryField, "MISSING_FOLDER",
				"destination folder %d unknown", s.Submitted.FolderID)
		}
		if err := s.Perms.CheckDelete(ctx, s.UserID, s.Folder, s.Original); err != nil {
			return err
		}
		if err := s.Perms.CheckCreate(ctx, s.UserID, *s.DestFolder); err != nil {
			return err
		}
		if s.Folder.Type == models.FolderShared || s.DestFolder.Type == models.FolderShared {
			return apperr.New(apperr.KindPermission, "NO_SHARED_MOVE",
				"tasks may not be moved into or out of shared folder")
		}
		if s.privateFlag() && s.DestFolder.Type == models.FolderPublic {
			return apperr.New(apperr.KindPermission, "NO_PRIVATE_IN_PUBLIC",
				"private task may not be moved into public folder %d", s.DestFolder.ID)
		}
		return nil
	}

	if err := s.Perms.CheckWrite(ctx, s.UserID, s.Folder, s.Original); err != nil {
		return err
	}
	if !s.filedIn(s.Folder.ID) {
		return apperr.New(apperr.KindNotFound, "TASK_NOT_IN_FOLDER",
			"task %d is not filed in folder %d", s.Original.ID, s.Folder.ID)
	}
	if s.privateFlag() && s.Folder.Type == models.FolderShared {
		return apperr.New(apperr.KindPermission, "NO_PRIVATE_VIA_SHARED",
			"private task may not be edited through shared folder %d", s.Folder.ID)
	}
	return nil
}

// privateFlag is the effective private flag after the update: the submitted
// value when explicitly sent, the stored one otherwise.
func (s *Session) privateFlag() bool {
	if s.Submitted.Has(models.AttrPrivate) {
		return s.Submitted.Private
	}
	return s.Original.Private
}

func (s *Session) filedIn(folderID int64) bool {
	for _, m := range s.OrigFolders {
		if m.FolderID == folderID {
			return true
		}
	}
	return false
}

// columnAttributes are the attributes the field diff covers; participants,
// alarm and notification have their own handling.
var columnAttributes = []models.Attribute{
	models.AttrTitle, models.AttrNote, models.AttrStart, models.AttrEnd,
	models.AttrStatus, models.AttrPercentComplete, models.AttrPriority,
	models.AttrPrivate, models.AttrFolder, models.AttrCategories,
	models.AttrTargetCosts, models.AttrActualCosts, models.AttrCurrency,
	models.AttrRecurrenceType, models.AttrRecurrenceInterval,
	models.AttrRecurrenceDays, models.AttrRecurrenceDayInMonth,
	models.AttrRecurrenceMonth, models.AttrRecurrenceUntil,
	models.AttrRecurrenceCount,
}

// ModifiedFields lists every column attribute the submission explicitly sets
// to a value the original does not already have.
func (s *Session) ModifiedFields() []models.Attribute {
	if s.modifiedDone {
		return s.modified
	}
	for _, a := range columnAttributes {
		if !s.Submitted.Has(a) {
			continue
		}
		if !s.Original.Has(a) || !attrEqual(s.Original, s.Submitted, a) {
			s.modified = append(s.modified, a)
		}
	}
	s.modifiedDone = true
	return s.modified
}

func attrEqual(a, b *models.Task, attr models.Attribute) bool {
	switch attr {
	case models.AttrTitle:
		return a.Title == b.Title
	case models.AttrNote:
		return a.Note == b.Note
	case models.AttrStart:
		return timeEqual(a.Start, b.Start)
	case models.AttrEnd:
		return timeEqual(a.End, b.End)
	case models.AttrStatus:
		return a.Status == b.Status
	case models.AttrPercentComplete:
		return a.PercentComplete == b.PercentComplete
	case models.AttrPriority:
		return a.Priority == b.Priority
	case models.AttrPrivate:
		return a.Private == b.Private
	case models.AttrFolder:
		return a.FolderID == b.FolderID
	case models.AttrCategories:
		return a.Categories == b.Categories
	case models.AttrTargetCosts:
		return a.TargetCosts == b.TargetCosts
	case models.AttrActualCosts:
		return a.ActualCosts == b.ActualCosts
	case models.AttrCurrency:
		return a.Currency == b.Currency
	case models.AttrRecurrenceType:
		return a.Recurrence.Type == b.Recurrence.Type
	case models.AttrRecurrenceInterval:
		return a.Recurrence.Interval == b.Recurrence.Interval
	case models.AttrRecurrenceDays:
		return a.Recurrence.Days == b.Recurrence.Days
	case models.AttrRecurrenceDayInMonth:
		return a.Recurrence.DayInMonth == b.Recurrence.DayInMonth
	case models.AttrRecurrenceMonth:
		return a.Recurrence.Month == b.Recurrence.Month
	case models.AttrRecurrenceUntil:
		return timeEqual(a.Recurrence.Until, b.Recurrence.Until)
	case models.AttrRecurrenceCount:
		return intPtrEqual(a.Recurrence.Count, b.Recurrence.Count)
	}
	return true
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// participantDiff resolves the submitted participant set and computes the
// add/remove sets against the original. Re-added users on an active task are
// replaced by their REMOVED-partition record so prior folder and confirmation
// state survives the round trip.
func (s *Session) participantDiff(ctx context.Context) error {
	if s.participantsDone {
		return nil
	}
	s.participantsDone = true
	if !s.Submitted.Has(models.AttrParticipants) {
		return nil
	}

	resolved := make([]models.Participant, 0, len(s.Submitted.Participants))
	seen := make(map[string]bool)
	for _, p := range s.Submitted.Participants {
		if p.Group() {
			members, err := s.Groups.GroupMembers(ctx, s.Original.ContextID, p.GroupID)
			if err != nil {
				return apperr.Wrap(apperr.KindInfrastructure, err, "resolving group %d", p.GroupID)
			}
			for _, uid := range members {
				m := models.Participant{UserID: uid, GroupID: p.GroupID, Confirm: models.ConfirmNone}
				if !seen[m.Key()] {
					seen[m.Key()] = true
					resolved = append(resolved, m)
				}
			}
			continue
		}
		if p.Confirm == "" {
			p.Confirm = models.ConfirmNone
		}
		if !seen[p.Key()] {
			seen[p.Key()] = true
			resolved = append(resolved, p)
		}
	}
	s.resolved = resolved

	orig := make(map[string]models.Participant, len(s.OrigParticipants))
	for _, p := range s.OrigParticipants {
		orig[p.Key()] = p
	}
	for _, p := range resolved {
		if _, ok := orig[p.Key()]; !ok {
			s.addedParticipants = append(s.addedParticipants, s.restoreRemoved(p))
		}
	}
	for _, p := range s.OrigParticipants {
		if !seen[p.Key()] {
			s.removedParticipants = append(s.removedParticipants, p)
		}
	}
	return nil
}

// restoreRemoved swaps an added internal participant for the matching
// REMOVED-partition record, if the task is active and one exists. Matching is
// by user id only; the group the record was inherited from is ignored.
func (s *Session) restoreRemoved(p models.Participant) models.Participant {
	if s.Storage != models.StorageActive || p.UserID == 0 {
		return p
	}
	for _, r := range s.RemovedRecords {
		if r.UserID == p.UserID {
			return r
		}
	}
	return p
}

// AddedParticipants returns the participants the update introduces.
func (s *Session) AddedParticipants(ctx context.Context) ([]models.Participant, error) {
	if err := s.participantDiff(ctx); err != nil {
		return nil, err
	}
	return s.addedParticipants, nil
}

// RemovedParticipants returns the participants the update drops.
func (s *Session) RemovedParticipants(ctx context.Context) ([]models.Participant, error) {
	if err := s.participantDiff(ctx); err != nil {
		return nil, err
	}
	return s.removedParticipants, nil
}

// finalParticipants is the task's participant set after the update.
func (s *Session) finalParticipants(ctx context.Context) ([]models.Participant, error) {
	if err := s.participantDiff(ctx); err != nil {
		return nil, err
	}
	if !s.Submitted.Has(models.AttrParticipants) {
		return s.OrigParticipants, nil
	}
	out := make([]models.Participant, 0, len(s.resolved))
	for _, p := range s.resolved {
		out = append(out, s.restoreRemoved(p))
	}
	return out, nil
}
