package diff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupware/internal/apperr"
	"groupware/internal/authz"
	"groupware/internal/models"
)

type staticGroups map[int64][]int64

func (g staticGroups) GroupMembers(_ context.Context, _, groupID int64) ([]int64, error) {
	members, ok := g[groupID]
	if !ok {
		return nil, errors.New("unknown group")
	}
	return members, nil
}

type staticFolders map[int64]int64

func (f staticFolders) StandardTaskFolder(_ context.Context, _, userID int64) (int64, error) {
	fid, ok := f[userID]
	if !ok {
		return 0, errors.New("unknown user")
	}
	return fid, nil
}

var readTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func baseOriginal() *models.Task {
	t := &models.Task{
		ID:              1,
		ContextID:       1,
		CreatedBy:       5,
		ModifiedBy:      5,
		LastModified:    readTime.Add(-time.Hour),
		Title:           "Quarterly report",
		Status:          models.StatusInProgress,
		PercentComplete: 40,
		Priority:        models.PriorityNormal,
	}
	t.Mark(models.AttrTitle, models.AttrStatus, models.AttrPercentComplete,
		models.AttrPriority, models.AttrPrivate)
	return t
}

func privateFolder(id, owner int64) models.Folder {
	return models.Folder{ID: id, ContextID: 1, Type: models.FolderPrivate, OwnerID: owner}
}

func newSession(orig, sub *models.Task, folder models.Folder) *Session {
	return &Session{
		UserID:    5,
		Folder:    folder,
		Storage:   models.StorageActive,
		Original:  orig,
		Submitted: sub,
		OrigFolders: []models.FolderMapping{
			{TaskID: orig.ID, FolderID: folder.ID, UserID: 5},
		},
		Groups:  staticGroups{},
		Folders: staticFolders{},
		Perms:   authz.NewFolderOracle(),
	}
}

func TestCheckConflict(t *testing.T) {
	orig := baseOriginal()
	s := newSession(orig, &models.Task{ID: 1}, privateFolder(10, 5))

	require.NoError(t, s.CheckConflict(readTime))

	orig.LastModified = readTime.Add(time.Minute)
	err := s.CheckConflict(readTime)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConcurrentModification, apperr.KindOf(err))
}

func TestModifiedFieldsNoOp(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Title: orig.Title, Status: orig.Status}
	sub.Mark(models.AttrTitle, models.AttrStatus)

	s := newSession(orig, sub, privateFolder(10, 5))
	assert.Empty(t, s.ModifiedFields())

	added, err := s.AddedParticipants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
	removed, err := s.RemovedParticipants(context.Background())
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestModifiedFieldsChanges(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Title: "Quarterly report v2", Status: models.StatusDone, Priority: orig.Priority}
	sub.Mark(models.AttrTitle, models.AttrStatus, models.AttrPriority)

	s := newSession(orig, sub, privateFolder(10, 5))
	fields := s.ModifiedFields()
	assert.ElementsMatch(t, []models.Attribute{models.AttrTitle, models.AttrStatus}, fields)

	// memoized: a second call yields the identical answer
	assert.Equal(t, fields, s.ModifiedFields())
}

func TestIsMove(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, FolderID: 20}
	sub.Mark(models.AttrFolder)
	s := newSession(orig, sub, privateFolder(10, 5))
	assert.True(t, s.IsMove())

	same := &models.Task{ID: 1, FolderID: 10}
	same.Mark(models.AttrFolder)
	s = newSession(orig, same, privateFolder(10, 5))
	assert.False(t, s.IsMove())
}

func TestCheckPermissionsPrivateViaShared(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Private: true}
	sub.Mark(models.AttrPrivate)

	shared := models.Folder{ID: 30, ContextID: 1, Type: models.FolderShared, OwnerID: 9}
	s := newSession(orig, sub, shared)

	err := s.CheckPermissions(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestCheckPermissionsTaskNotInFolder(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Title: "x"}
	sub.Mark(models.AttrTitle)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.OrigFolders = []models.FolderMapping{{TaskID: 1, FolderID: 99, UserID: 5}}

	err := s.CheckPermissions(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCheckPermissionsPrivateIntoPublic(t *testing.T) {
	orig := baseOriginal()
	orig.Private = true
	sub := &models.Task{ID: 1, FolderID: 20}
	sub.Mark(models.AttrFolder)

	s := newSession(orig, sub, privateFolder(10, 5))
	dest := models.Folder{ID: 20, ContextID: 1, Type: models.FolderPublic}
	s.DestFolder = &dest

	err := s.CheckPermissions(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestCheckPermissionsMoveIntoSharedDenied(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, FolderID: 30}
	sub.Mark(models.AttrFolder)

	s := newSession(orig, sub, privateFolder(10, 5))
	dest := models.Folder{ID: 30, ContextID: 1, Type: models.FolderShared, OwnerID: 9}
	s.DestFolder = &dest

	err := s.CheckPermissions(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindPermission, apperr.KindOf(err))
}

func TestParticipantDiffGroupsAndDedupe(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{
		{UserID: 7},
		{GroupID: 3},
	}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.Groups = staticGroups{3: {7, 8}}
	s.Folders = staticFolders{7: 71, 8: 81}

	added, err := s.AddedParticipants(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 2)
	// user 7 was submitted explicitly and again via the group; the explicit
	// entry wins and appears once
	assert.Equal(t, int64(7), added[0].UserID)
	assert.Equal(t, int64(0), added[0].GroupID)
	assert.Equal(t, int64(8), added[1].UserID)
	assert.Equal(t, int64(3), added[1].GroupID)
}

func TestParticipantDiffRemoval(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.OrigParticipants = []models.Participant{
		{UserID: 7, Confirm: models.ConfirmAccepted},
		{Email: "ext@example.org", Confirm: models.ConfirmNone},
	}

	removed, err := s.RemovedParticipants(context.Background())
	require.NoError(t, err)
	assert.Len(t, removed, 2)
}

func TestRestoreRemovedByUserID(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{{GroupID: 3}}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.Groups = staticGroups{3: {9}}
	// the user was removed earlier while in a different group; the record is
	// matched by user id only
	s.RemovedRecords = []models.Participant{
		{UserID: 9, GroupID: 99, FolderID: 77, Confirm: models.ConfirmDeclined, ConfirmMessage: "no time"},
	}

	added, err := s.AddedParticipants(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, int64(77), added[0].FolderID)
	assert.Equal(t, models.ConfirmDeclined, added[0].Confirm)
	assert.Equal(t, "no time", added[0].ConfirmMessage)
}

func TestRestoreRemovedSkippedOffActive(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{{UserID: 9}}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.Storage = models.StorageDeleted
	s.RemovedRecords = []models.Participant{{UserID: 9, FolderID: 77}}

	added, err := s.AddedParticipants(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, int64(0), added[0].FolderID)
}

func TestFolderDiffMove(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, FolderID: 20, Participants: []models.Participant{}}
	sub.Mark(models.AttrFolder, models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	dest := privateFolder(20, 5)
	s.DestFolder = &dest
	s.OrigParticipants = []models.Participant{{UserID: 7}}
	s.OrigFolders = []models.FolderMapping{
		{TaskID: 1, FolderID: 10, UserID: 5},
		{TaskID: 1, FolderID: 30, UserID: 7},
	}

	added, err := s.AddedFolders(context.Background())
	require.NoError(t, err)
	removed, err := s.RemovedFolders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.FolderMapping{{TaskID: 1, FolderID: 20, UserID: 5}}, added)
	assert.ElementsMatch(t, []models.FolderMapping{
		{TaskID: 1, FolderID: 10, UserID: 5},
		{TaskID: 1, FolderID: 30, UserID: 7},
	}, removed)
}

func TestFolderDiffAddedParticipantGetsPersonalFolder(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{{UserID: 7}}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.Folders = staticFolders{7: 71}

	added, err := s.AddedFolders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.FolderMapping{{TaskID: 1, FolderID: 71, UserID: 7}}, added)
}

func TestFolderDiffUserKeepsSingleMapping(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{{UserID: 5}}}
	sub.Mark(models.AttrParticipants)

	// the editor already has a mapping; the add derived from the participant
	// churn must be discarded
	s := newSession(orig, sub, privateFolder(10, 5))
	s.Folders = staticFolders{5: 51}

	added, err := s.AddedFolders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, added)
}

func TestFolderDiffNeverEmpty(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Participants: []models.Participant{}}
	sub.Mark(models.AttrParticipants)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.OrigParticipants = []models.Participant{{UserID: 7}}
	s.OrigFolders = []models.FolderMapping{{TaskID: 1, FolderID: 10, UserID: 7}}

	added, err := s.AddedFolders(context.Background())
	require.NoError(t, err)
	removed, err := s.RemovedFolders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.FolderMapping{{TaskID: 1, FolderID: 10, UserID: 7}}, removed)
	// the last mapping fell away; the acting user's placement backstops it
	assert.Equal(t, []models.FolderMapping{{TaskID: 1, FolderID: 10, UserID: 5}}, added)
}

func TestUpdatedMergesSubmittedOverOriginal(t *testing.T) {
	orig := baseOriginal()
	orig.Note = "keep me"
	orig.Mark(models.AttrNote)

	sub := &models.Task{ID: 1, Title: "New title", Status: models.StatusDone, PercentComplete: 100}
	sub.Mark(models.AttrTitle, models.AttrStatus, models.AttrPercentComplete)

	s := newSession(orig, sub, privateFolder(10, 5))
	merged, err := s.Updated(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "New title", merged.Title)
	assert.Equal(t, models.StatusDone, merged.Status)
	assert.Equal(t, 100, merged.PercentComplete)
	assert.Equal(t, "keep me", merged.Note)
	assert.Equal(t, int64(5), merged.ModifiedBy)
	assert.True(t, merged.Has(models.AttrTitle))
	assert.True(t, merged.Has(models.AttrNote))
}

func TestValidateOnlyCreatorPrivate(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Private: true}
	sub.Mark(models.AttrPrivate)

	s := newSession(orig, sub, privateFolder(10, 5))
	s.UserID = 6 // not the creator

	err := s.Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateNoPrivateDelegate(t *testing.T) {
	orig := baseOriginal()
	sub := &models.Task{ID: 1, Private: true}
	sub.Mark(models.AttrPrivate)

	s := newSession(orig, sub, privateFolder(10, 5))
	// the merged view draws participants from the session's loaded set
	s.OrigParticipants = []models.Participant{{UserID: 7}}
	err := s.Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestValidateTaskRules(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	cases := []struct {
		name string
		task models.Task
		kind apperr.Kind
	}{
		{"start after end", models.Task{FolderID: 1, Status: models.StatusNotStarted, Start: &start, End: &end}, apperr.KindMandatoryField},
		{"percentage range", models.Task{FolderID: 1, Status: models.StatusInProgress, PercentComplete: 101}, apperr.KindValidation},
		{"unknown status", models.Task{FolderID: 1, Status: "archived"}, apperr.KindValidation},
		{"not started with progress", models.Task{FolderID: 1, Status: models.StatusNotStarted, PercentComplete: 10}, apperr.KindValidation},
		{"negative costs", models.Task{FolderID: 1, Status: models.StatusDone, TargetCosts: -1}, apperr.KindValidation},
		{"external without mail", models.Task{FolderID: 1, Status: models.StatusDone,
			Participants: []models.Participant{{DisplayName: "guest"}}}, apperr.KindValidation},
		{"weekly without days", models.Task{FolderID: 1, Status: models.StatusDone,
			Recurrence: models.Recurrence{Type: models.RecurrenceWeekly, Interval: 1}}, apperr.KindMandatoryField},
		{"missing folder", models.Task{Status: models.StatusDone}, apperr.KindMandatoryField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateNew(&tc.task)
			require.Error(t, err)
			assert.Equal(t, tc.kind, apperr.KindOf(err))
		})
	}

	// done without 100% is fine
	ok := models.Task{FolderID: 1, Status: models.StatusDone, PercentComplete: 60}
	assert.NoError(t, ValidateNew(&ok))
}
