package diff

import (
	"context"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

// folderDiff derives the folder-mapping mutations from the move policy and
// the participant diff. The resulting set never contains two mappings for the
// same user and is never empty while the task still has an owner.
func (s *Session) folderDiff(ctx context.Context) error {
	if s.foldersDone {
		return nil
	}
	if err := s.participantDiff(ctx); err != nil {
		return err
	}
	s.foldersDone = true

	taskID := s.Original.ID
	var adds, removes []models.FolderMapping

	if s.IsMove() {
		adds = append(adds, models.FolderMapping{TaskID: taskID, FolderID: s.DestFolder.ID, UserID: s.UserID})
		for _, m := range s.OrigFolders {
			if m.FolderID == s.Folder.ID {
				removes = append(removes, m)
			}
		}
		switch {
		case s.Folder.Type == models.FolderPublic && s.DestFolder.Type == models.FolderPrivate:
			// Leaving the public space: every internal participant needs a
			// personal mapping again.
			final, err := s.finalParticipants(ctx)
			if err != nil {
				return err
			}
			for _, p := range final {
				if p.UserID == 0 {
					continue
				}
				fid, err := s.personalFolder(ctx, p)
				if err != nil {
					return err
				}
				adds = append(adds, models.FolderMapping{TaskID: taskID, FolderID: fid, UserID: p.UserID})
			}
		case s.Folder.Type == models.FolderPrivate && s.DestFolder.Type == models.FolderPublic:
			// Public folders carry no per-user placement.
			removes = appendMissing(removes, s.OrigFolders)
		}
	}

	// Participant churn moves mappings regardless of a folder move.
	for _, p := range s.addedParticipants {
		if p.UserID == 0 {
			continue
		}
		fid, err := s.personalFolder(ctx, p)
		if err != nil {
			return err
		}
		adds = append(adds, models.FolderMapping{TaskID: taskID, FolderID: fid, UserID: p.UserID})
	}
	for _, p := range s.removedParticipants {
		if p.UserID == 0 {
			continue
		}
		for _, m := range s.OrigFolders {
			if m.UserID == p.UserID {
				removes = appendMissing(removes, []models.FolderMapping{m})
			}
		}
	}

	removed := make(map[models.FolderMapping]bool, len(removes))
	for _, m := range removes {
		removed[m] = true
	}
	surviving := make(map[int64]bool)
	count := 0
	for _, m := range s.OrigFolders {
		if !removed[m] {
			surviving[m.UserID] = true
			count++
		}
	}

	// De-duplication: a user keeps at most one mapping; adds for users that
	// still have an original mapping are discarded.
	var kept []models.FolderMapping
	for _, m := range adds {
		if surviving[m.UserID] {
			continue
		}
		surviving[m.UserID] = true
		kept = append(kept, m)
		count++
	}

	// Degenerate case: the mapping set must never end up empty, or the task
	// would be orphaned.
	if count == 0 {
		fid := s.Folder.ID
		if s.IsMove() {
			fid = s.DestFolder.ID
		}
		kept = append(kept, models.FolderMapping{TaskID: taskID, FolderID: fid, UserID: s.UserID})
	}

	s.addedFolders = kept
	s.removedFolders = removes
	return nil
}

// personalFolder is the folder an internal participant sees the task in: the
// one recorded on the participant (e.g. restored from the REMOVED partition),
// falling back to the user's standard task folder.
func (s *Session) personalFolder(ctx context.Context, p models.Participant) (int64, error) {
	if p.FolderID != 0 {
		return p.FolderID, nil
	}
	fid, err := s.Folders.StandardTaskFolder(ctx, s.Original.ContextID, p.UserID)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInfrastructure, err, "resolving standard folder of user %d", p.UserID)
	}
	return fid, nil
}

func appendMissing(dst []models.FolderMapping, src []models.FolderMapping) []models.FolderMapping {
	for _, m := range src {
		found := false
		for _, d := range dst {
			if d == m {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, m)
		}
	}
	return dst
}

// AddedFolders returns the folder mappings the update creates.
func (s *Session) AddedFolders(ctx context.Context) ([]models.FolderMapping, error) {
	if err := s.folderDiff(ctx); err != nil {
		return nil, err
	}
	return s.addedFolders, nil
}

// RemovedFolders returns the folder mappings the update drops.
func (s *Session) RemovedFolders(ctx context.Context) ([]models.FolderMapping, error) {
	if err := s.folderDiff(ctx); err != nil {
		return nil, err
	}
	return s.removedFolders, nil
}

// Updated is the fully merged task view: submitted values override the
// original per attribute; participants are the resolved final set; alarm and
// notification come from the submission only when explicitly present.
func (s *Session) Updated(ctx context.Context) (*models.Task, error) {
	if s.merged != nil {
		return s.merged, nil
	}
	final, err := s.finalParticipants(ctx)
	if err != nil {
		return nil, err
	}

	m := *s.Original
	sub := s.Submitted
	if sub.Has(models.AttrTitle) {
		m.Title = sub.Title
	}
	if sub.Has(models.AttrNote) {
		m.Note = sub.Note
	}
	if sub.Has(models.AttrStart) {
		m.Start = sub.Start
	}
	if sub.Has(models.AttrEnd) {
		m.End = sub.End
	}
	if sub.Has(models.AttrStatus) {
		m.Status = sub.Status
	}
	if sub.Has(models.AttrPercentComplete) {
		m.PercentComplete = sub.PercentComplete
	}
	if sub.Has(models.AttrPriority) {
		m.Priority = sub.Priority
	}
	if sub.Has(models.AttrPrivate) {
		m.Private = sub.Private
	}
	if sub.Has(models.AttrFolder) {
		m.FolderID = sub.FolderID
	}
	if sub.Has(models.AttrCategories) {
		m.Categories = sub.Categories
	}
	if sub.Has(models.AttrTargetCosts) {
		m.TargetCosts = sub.TargetCosts
	}
	if sub.Has(models.AttrActualCosts) {
		m.ActualCosts = sub.ActualCosts
	}
	if sub.Has(models.AttrCurrency) {
		m.Currency = sub.Currency
	}
	// Unset recurrence fields inherit from the original, so validation sees
	// the complete descriptor.
	if sub.Has(models.AttrRecurrenceType) {
		m.Recurrence.Type = sub.Recurrence.Type
	}
	if sub.Has(models.AttrRecurrenceInterval) {
		m.Recurrence.Interval = sub.Recurrence.Interval
	}
	if sub.Has(models.AttrRecurrenceDays) {
		m.Recurrence.Days = sub.Recurrence.Days
	}
	if sub.Has(models.AttrRecurrenceDayInMonth) {
		m.Recurrence.DayInMonth = sub.Recurrence.DayInMonth
	}
	if sub.Has(models.AttrRecurrenceMonth) {
		m.Recurrence.Month = sub.Recurrence.Month
	}
	if sub.Has(models.AttrRecurrenceUntil) {
		m.Recurrence.Until = sub.Recurrence.Until
	}
	if sub.Has(models.AttrRecurrenceCount) {
		m.Recurrence.Count = sub.Recurrence.Count
	}
	if sub.Has(models.AttrAlarm) {
		m.Alarm = sub.Alarm
	}
	if sub.Has(models.AttrNotification) {
		m.Notification = sub.Notification
	}
	m.Participants = final
	m.ModifiedBy = s.UserID
	m.Attrs = s.Original.Attrs | sub.Attrs
	m.Attrs.Remove(models.AttrUsers)

	s.merged = &m
	return s.merged, nil
}
