package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

func TestTaskRequestToTaskMarksOnlyPresentFields(t *testing.T) {
	title := "Budget review"
	percent := 0
	req := taskRequest{Title: &title, PercentComplete: &percent}

	task := req.toTask()
	assert.Equal(t, "Budget review", task.Title)
	assert.True(t, task.Has(models.AttrTitle))
	// explicitly submitted zero is present, unlike an absent field
	assert.True(t, task.Has(models.AttrPercentComplete))
	assert.False(t, task.Has(models.AttrStatus))
	assert.False(t, task.Has(models.AttrFolder))
	assert.False(t, task.Has(models.AttrParticipants))
}

func TestTaskRequestToTaskRecurrence(t *testing.T) {
	typ := models.RecurrenceWeekly
	interval := 2
	days := models.Weekdays(1 << uint(time.Monday))
	req := taskRequest{Recurrence: &recurrenceRequest{Type: &typ, Interval: &interval, Days: &days}}

	task := req.toTask()
	assert.Equal(t, models.RecurrenceWeekly, task.Recurrence.Type)
	assert.Equal(t, 2, task.Recurrence.Interval)
	assert.True(t, task.Has(models.AttrRecurrenceType))
	assert.True(t, task.Has(models.AttrRecurrenceInterval))
	assert.True(t, task.Has(models.AttrRecurrenceDays))
	assert.False(t, task.Has(models.AttrRecurrenceUntil))
}

func TestTaskRequestToTaskParticipants(t *testing.T) {
	empty := []participantRequest{}
	req := taskRequest{Participants: &empty}

	task := req.toTask()
	// an explicitly empty list means "remove everyone", so the attribute is set
	assert.True(t, task.Has(models.AttrParticipants))
	assert.Empty(t, task.Participants)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.KindConcurrentModification, http.StatusConflict},
		{apperr.KindPermission, http.StatusForbidden},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindMandatoryField, http.StatusBadRequest},
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindTruncated, http.StatusBadRequest},
		{apperr.KindInfrastructure, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := apperr.New(tc.kind, "X", "boom")
		assert.Equal(t, tc.want, httpStatus(err), tc.kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, httpStatus(errors.New("plain")))
}

func TestErrorBodyCarriesTruncatedFields(t *testing.T) {
	err := apperr.Truncated(errors.New("pq: value too long"), []string{"title", "note"})
	body := errorBody(err)
	assert.Equal(t, "DATA_TRUNCATION", body["code"])
	assert.Equal(t, []string{"title", "note"}, body["fields"])
}

func testContext(rawQuery string) *gin.Context {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/tasks?"+rawQuery, nil)
	return c
}

func TestFolderParam(t *testing.T) {
	id, ok := folderParam(testContext("folder=42"))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	_, ok = folderParam(testContext(""))
	assert.False(t, ok)
	_, ok = folderParam(testContext("folder=abc"))
	assert.False(t, ok)
	_, ok = folderParam(testContext("folder=-1"))
	assert.False(t, ok)
}

func TestLastReadParam(t *testing.T) {
	ts, ok := lastReadParam(testContext("timestamp=2026-03-10T12:00:00Z"))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), ts.UTC())

	ts, ok = lastReadParam(testContext("timestamp=1767225600000"))
	require.True(t, ok)
	assert.Equal(t, int64(1767225600000), ts.UnixMilli())

	_, ok = lastReadParam(testContext(""))
	assert.False(t, ok)
	_, ok = lastReadParam(testContext("timestamp=yesterday"))
	assert.False(t, ok)
}

func TestParseColumns(t *testing.T) {
	cols, err := parseColumns(testContext("columns=title,status,participants"))
	require.NoError(t, err)
	assert.Equal(t, []models.Attribute{models.AttrTitle, models.AttrStatus, models.AttrParticipants}, cols)

	cols, err = parseColumns(testContext(""))
	require.NoError(t, err)
	assert.Equal(t, defaultColumns, cols)

	_, err = parseColumns(testContext("columns=title,nope"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// notification has no storage column and cannot be projected
	_, err = parseColumns(testContext("columns=notification"))
	require.Error(t, err)
}
