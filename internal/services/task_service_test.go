package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupware/internal/diff"
	"groupware/internal/models"
)

type fakeUsers struct {
	groups  map[int64][]int64
	folders map[int64]int64
}

func (f *fakeUsers) ByID(context.Context, int64, int64) (*models.User, error) { return nil, nil }
func (f *fakeUsers) ByEmail(context.Context, string) (*models.User, error)    { return nil, nil }
func (f *fakeUsers) UpdateRefresh(context.Context, int64, string, time.Time) error {
	return nil
}
func (f *fakeUsers) ByRefreshToken(context.Context, string) (*models.User, error) { return nil, nil }

func (f *fakeUsers) StandardTaskFolder(_ context.Context, _, userID int64) (int64, error) {
	fid, ok := f.folders[userID]
	if !ok {
		return 0, errors.New("unknown user")
	}
	return fid, nil
}

func (f *fakeUsers) GroupMembers(_ context.Context, _, groupID int64) ([]int64, error) {
	members, ok := f.groups[groupID]
	if !ok {
		return nil, errors.New("unknown group")
	}
	return members, nil
}

func TestResolveParticipantsExpandsGroups(t *testing.T) {
	s := &taskService{users: &fakeUsers{groups: map[int64][]int64{3: {7, 8}}}}

	resolved, err := s.resolveParticipants(context.Background(), 1, []models.Participant{
		{UserID: 7, Confirm: models.ConfirmAccepted},
		{GroupID: 3},
		{Email: "Guest@Example.org"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 3)
	assert.Equal(t, int64(7), resolved[0].UserID)
	assert.Equal(t, models.ConfirmAccepted, resolved[0].Confirm) // explicit entry wins
	assert.Equal(t, int64(8), resolved[1].UserID)
	assert.Equal(t, int64(3), resolved[1].GroupID)
	assert.Equal(t, "Guest@Example.org", resolved[2].Email)
	assert.Equal(t, models.ConfirmNone, resolved[2].Confirm)
}

func TestResolveParticipantsDedupesByMailCaseInsensitive(t *testing.T) {
	s := &taskService{users: &fakeUsers{}}

	resolved, err := s.resolveParticipants(context.Background(), 1, []models.Participant{
		{Email: "guest@example.org"},
		{Email: "GUEST@example.org"},
	})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
}

func TestCreationMappingsUsesStandardFolders(t *testing.T) {
	s := &taskService{users: &fakeUsers{folders: map[int64]int64{7: 71}}}

	mappings, err := s.creationMappings(context.Background(), 1, 5, 10, []models.Participant{
		{UserID: 7},
		{UserID: 9, FolderID: 91},
		{Email: "ext@example.org"}, // external, no placement
		{UserID: 5},                // the creator already has one
	})
	require.NoError(t, err)
	assert.Equal(t, []models.FolderMapping{
		{FolderID: 10, UserID: 5},
		{FolderID: 71, UserID: 7},
		{FolderID: 91, UserID: 9},
	}, mappings)
}

type recordingSink struct {
	events []Event
	err    error
}

func (r *recordingSink) TaskEvent(_ context.Context, event Event, _ *models.Task) error {
	r.events = append(r.events, event)
	return r.err
}

func TestMultiSinkFanOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{err: errors.New("smtp down")}
	c := &recordingSink{}
	sink := MultiSink{a, b, c}

	err := sink.TaskEvent(context.Background(), EventModified, &models.Task{ID: 1})
	require.Error(t, err)
	assert.Equal(t, "smtp down", err.Error())
	// every sink is tried despite the failure
	assert.Equal(t, []Event{EventModified}, a.events)
	assert.Equal(t, []Event{EventModified}, c.events)
}

func TestSurvivingMappings(t *testing.T) {
	sess := &diff.Session{
		OrigFolders: []models.FolderMapping{
			{TaskID: 1, FolderID: 10, UserID: 5},
			{TaskID: 1, FolderID: 30, UserID: 7},
		},
	}
	added := []models.FolderMapping{{TaskID: 1, FolderID: 20, UserID: 5}}
	removed := []models.FolderMapping{{TaskID: 1, FolderID: 10, UserID: 5}}

	out := survivingMappings(sess, added, removed)
	assert.Equal(t, []models.FolderMapping{
		{TaskID: 1, FolderID: 30, UserID: 7},
		{TaskID: 1, FolderID: 20, UserID: 5},
	}, out)
}

func TestContainsAttr(t *testing.T) {
	attrs := []models.Attribute{models.AttrTitle, models.AttrStatus}
	assert.True(t, containsAttr(attrs, models.AttrStatus))
	assert.False(t, containsAttr(attrs, models.AttrAlarm))
}
