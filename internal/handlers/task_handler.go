package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"groupware/internal/apperr"
	"groupware/internal/models"
	"groupware/internal/pdf"
	"groupware/internal/services"
	"groupware/internal/stream"
)

type TaskHandler struct {
	service services.TaskService
}

func NewTaskHandler(service services.TaskService) *TaskHandler {
	return &TaskHandler{service: service}
}

// recurrenceRequest mirrors models.Recurrence with optional fields; absent
// fields stay out of the attribute set.
type recurrenceRequest struct {
	Type       *models.RecurrenceType `json:"type"`
	Interval   *int                   `json:"interval"`
	Days       *models.Weekdays       `json:"days"`
	DayInMonth *int                   `json:"day_in_month"`
	Month      *time.Month            `json:"month"`
	Until      *time.Time             `json:"until"`
	Count      *int                   `json:"count"`
}

type participantRequest struct {
	UserID         int64                `json:"user_id"`
	GroupID        int64                `json:"group_id"`
	Email          string               `json:"email"`
	DisplayName    string               `json:"display_name"`
	FolderID       int64                `json:"folder_id"`
	Confirm        models.ConfirmStatus `json:"confirm"`
	ConfirmMessage string               `json:"confirm_message"`
}

// taskRequest is a partial task: every field is a pointer so "absent" and
// "submitted as zero" stay distinguishable.
type taskRequest struct {
	Title           *string               `json:"title"`
	Note            *string               `json:"note"`
	Start           *time.Time            `json:"start"`
	End             *time.Time            `json:"end"`
	Status          *models.TaskStatus    `json:"status"`
	PercentComplete *int                  `json:"percent_complete"`
	Priority        *models.TaskPriority  `json:"priority"`
	Private         *bool                 `json:"private"`
	FolderID        *int64                `json:"folder_id"`
	Categories      *string               `json:"categories"`
	TargetCosts     *float64              `json:"target_costs"`
	ActualCosts     *float64              `json:"actual_costs"`
	Currency        *string               `json:"currency"`
	Recurrence      *recurrenceRequest    `json:"recurrence"`
	Participants    *[]participantRequest `json:"participants"`
	Alarm           *time.Time            `json:"alarm"`
	Notification    *bool                 `json:"notification"`
}

func (r *taskRequest) toTask() *models.Task {
	t := &models.Task{}
	if r.Title != nil {
		t.Title = *r.Title
		t.Mark(models.AttrTitle)
	}
	if r.Note != nil {
		t.Note = *r.Note
		t.Mark(models.AttrNote)
	}
	if r.Start != nil {
		t.Start = r.Start
		t.Mark(models.AttrStart)
	}
	if r.End != nil {
		t.End = r.End
		t.Mark(models.AttrEnd)
	}
	if r.Status != nil {
		t.Status = *r.Status
		t.Mark(models.AttrStatus)
	}
	if r.PercentComplete != nil {
		t.PercentComplete = *r.PercentComplete
		t.Mark(models.AttrPercentComplete)
	}
	if r.Priority != nil {
		t.Priority = *r.Priority
		t.Mark(models.AttrPriority)
	}
	if r.Private != nil {
		t.Private = *r.Private
		t.Mark(models.AttrPrivate)
	}
	if r.FolderID != nil {
		t.FolderID = *r.FolderID
		t.Mark(models.AttrFolder)
	}
	if r.Categories != nil {
		t.Categories = *r.Categories
		t.Mark(models.AttrCategories)
	}
	if r.TargetCosts != nil {
		t.TargetCosts = *r.TargetCosts
		t.Mark(models.AttrTargetCosts)
	}
	if r.ActualCosts != nil {
		t.ActualCosts = *r.ActualCosts
		t.Mark(models.AttrActualCosts)
	}
	if r.Currency != nil {
		t.Currency = *r.Currency
		t.Mark(models.AttrCurrency)
	}
	if r.Recurrence != nil {
		rec := r.Recurrence
		if rec.Type != nil {
			t.Recurrence.Type = *rec.Type
			t.Mark(models.AttrRecurrenceType)
		}
		if rec.Interval != nil {
			t.Recurrence.Interval = *rec.Interval
			t.Mark(models.AttrRecurrenceInterval)
		}
		if rec.Days != nil {
			t.Recurrence.Days = *rec.Days
			t.Mark(models.AttrRecurrenceDays)
		}
		if rec.DayInMonth != nil {
			t.Recurrence.DayInMonth = *rec.DayInMonth
			t.Mark(models.AttrRecurrenceDayInMonth)
		}
		if rec.Month != nil {
			t.Recurrence.Month = *rec.Month
			t.Mark(models.AttrRecurrenceMonth)
		}
		if rec.Until != nil {
			t.Recurrence.Until = rec.Until
			t.Mark(models.AttrRecurrenceUntil)
		}
		if rec.Count != nil {
			t.Recurrence.Count = rec.Count
			t.Mark(models.AttrRecurrenceCount)
		}
	}
	if r.Participants != nil {
		for _, p := range *r.Participants {
			t.Participants = append(t.Participants, models.Participant{
				UserID:         p.UserID,
				GroupID:        p.GroupID,
				Email:          p.Email,
				DisplayName:    p.DisplayName,
				FolderID:       p.FolderID,
				Confirm:        p.Confirm,
				ConfirmMessage: p.ConfirmMessage,
			})
		}
		t.Mark(models.AttrParticipants)
	}
	if r.Alarm != nil {
		t.Alarm = r.Alarm
		t.Mark(models.AttrAlarm)
	}
	if r.Notification != nil {
		t.Notification = *r.Notification
		t.Mark(models.AttrNotification)
	}
	return t
}

func warningStrings(warnings []error) []string {
	if len(warnings) == 0 {
		return nil
	}
	out := make([]string, len(warnings))
	for i, w := range warnings {
		out[i] = w.Error()
	}
	return out
}

func folderParam(c *gin.Context) (int64, bool) {
	v := c.Query("folder")
	if v == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// lastReadParam reads the client's last-read timestamp, RFC3339 or unix
// milliseconds.
func lastReadParam(c *gin.Context) (time.Time, bool) {
	v := c.Query("timestamp")
	if v == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// POST /tasks?folder=ID
func (h *TaskHandler) Create(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][create] call by userID=%d cid=%d", userID, contextID)

	folderID, ok := folderParam(c)
	if !ok {
		log.Printf("[task][create][err] missing folder param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid folder"})
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][create][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := req.toTask()
	created, warnings, err := h.service.Create(c.Request.Context(), contextID, userID, folderID, task)
	if err != nil {
		log.Printf("[task][create][err] %v", err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][create][ok] id=%d folder=%d title=%q", created.ID, folderID, created.Title)
	c.JSON(http.StatusCreated, gin.H{"task": created, "warnings": warningStrings(warnings)})
}

// GET /tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][getByID] call by userID=%d cid=%d id_param=%s", userID, contextID, c.Param("id"))

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		log.Printf("[task][getByID][err] invalid id: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	task, err := h.service.GetByID(c.Request.Context(), contextID, userID, id)
	if err != nil {
		log.Printf("[task][getByID][err] id=%d: %v", id, err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][getByID][ok] id=%d", id)
	c.JSON(http.StatusOK, task)
}

// defaultColumns is the projection used when the client names none.
var defaultColumns = []models.Attribute{
	models.AttrTitle, models.AttrStart, models.AttrEnd, models.AttrStatus,
	models.AttrPercentComplete, models.AttrPriority, models.AttrPrivate,
	models.AttrFolder, models.AttrParticipants, models.AttrAlarm,
}

func parseColumns(c *gin.Context) ([]models.Attribute, error) {
	v := c.Query("columns")
	if v == "" {
		return defaultColumns, nil
	}
	var out []models.Attribute
	for _, name := range strings.Split(v, ",") {
		a, ok := models.AttributeByName(strings.TrimSpace(name))
		if !ok || a == models.AttrNotification {
			return nil, apperr.New(apperr.KindValidation, "UNKNOWN_ATTRIBUTE", "unknown column %q", name)
		}
		out = append(out, a)
	}
	return out, nil
}

// GET /tasks?folder=ID&columns=title,status&deleted=true
//
// The response is streamed: tasks are written as they come off the storage
// cursor, batch by batch, never materialized as a whole.
func (h *TaskHandler) List(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][list] call by userID=%d cid=%d q=%v", userID, contextID, c.Request.URL.RawQuery)

	columns, err := parseColumns(c)
	if err != nil {
		log.Printf("[task][list][err] %v", err)
		abortWithError(c, err)
		return
	}
	storage := models.StorageActive
	if c.Query("deleted") == "true" {
		storage = models.StorageDeleted
	}
	folderID, _ := folderParam(c)

	reader, err := h.service.List(c.Request.Context(), services.ListOptions{
		ContextID: contextID,
		UserID:    userID,
		FolderID:  folderID,
		Columns:   columns,
		Storage:   storage,
	})
	if err != nil {
		log.Printf("[task][list][err] %v", err)
		abortWithError(c, err)
		return
	}
	defer reader.Close()

	h.streamTasks(c, reader)
}

func (h *TaskHandler) streamTasks(c *gin.Context, reader *stream.TaskReader) {
	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	c.Writer.Write([]byte("["))
	enc := json.NewEncoder(c.Writer)

	count := 0
	for reader.HasNext() {
		task, err := reader.Next(c.Request.Context())
		if err != nil {
			if apperr.IsKind(err, apperr.KindNotFound) {
				break
			}
			// headers are gone; all we can do is truncate the stream
			log.Printf("[task][list][err] mid-stream: %v", err)
			break
		}
		if count > 0 {
			c.Writer.Write([]byte(","))
		}
		if err := enc.Encode(task); err != nil {
			log.Printf("[task][list][err] encode: %v", err)
			break
		}
		count++
	}
	c.Writer.Write([]byte("]"))
	log.Printf("[task][list][ok] count=%d", count)
}

// PUT /tasks/:id?folder=ID&timestamp=RFC3339
func (h *TaskHandler) Update(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][update] call by userID=%d cid=%d id_param=%s", userID, contextID, c.Param("id"))

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		log.Printf("[task][update][err] invalid id: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	folderID, ok := folderParam(c)
	if !ok {
		log.Printf("[task][update][err] missing folder param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid folder"})
		return
	}
	lastRead, ok := lastReadParam(c)
	if !ok {
		log.Printf("[task][update][err] missing timestamp param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid timestamp"})
		return
	}

	var req taskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Printf("[task][update][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task := req.toTask()
	task.ID = id

	result, err := h.service.Update(c.Request.Context(), contextID, userID, folderID, task, lastRead)
	if err != nil {
		log.Printf("[task][update][err] id=%d: %v", id, err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][update][ok] id=%d modified=%s", id, result.Task.LastModified.Format(time.RFC3339))

	resp := gin.H{"task": result.Task, "warnings": warningStrings(result.Warnings)}
	if result.Next != nil {
		resp["next_occurrence"] = result.Next
	}
	c.JSON(http.StatusOK, resp)
}

// DELETE /tasks/:id?folder=ID&timestamp=RFC3339
func (h *TaskHandler) Delete(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][delete] call by userID=%d cid=%d id_param=%s", userID, contextID, c.Param("id"))

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		log.Printf("[task][delete][err] invalid id: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	folderID, ok := folderParam(c)
	if !ok {
		log.Printf("[task][delete][err] missing folder param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid folder"})
		return
	}
	lastRead, ok := lastReadParam(c)
	if !ok {
		log.Printf("[task][delete][err] missing timestamp param")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid timestamp"})
		return
	}

	warnings, err := h.service.Delete(c.Request.Context(), contextID, userID, folderID, id, lastRead)
	if err != nil {
		log.Printf("[task][delete][err] id=%d: %v", id, err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][delete][ok] id=%d", id)
	if len(warnings) > 0 {
		c.JSON(http.StatusOK, gin.H{"warnings": warningStrings(warnings)})
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /tasks/:id/confirm { "confirm": "accepted", "message": "..." }
func (h *TaskHandler) Confirm(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][confirm] call by userID=%d cid=%d id_param=%s", userID, contextID, c.Param("id"))

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		log.Printf("[task][confirm][err] invalid id: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body struct {
		Confirm models.ConfirmStatus `json:"confirm" binding:"required"`
		Message string               `json:"message"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Printf("[task][confirm][bind][err] %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.Confirm(c.Request.Context(), contextID, id, userID, body.Confirm, body.Message); err != nil {
		log.Printf("[task][confirm][err] id=%d: %v", id, err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][confirm][ok] id=%d user=%d confirm=%s", id, userID, body.Confirm)
	c.Status(http.StatusNoContent)
}

// GET /tasks/export?folder=ID
func (h *TaskHandler) Export(c *gin.Context) {
	userID, contextID := getUserAndContext(c)
	log.Printf("[task][export] call by userID=%d cid=%d q=%v", userID, contextID, c.Request.URL.RawQuery)

	folderID, _ := folderParam(c)
	reader, err := h.service.List(c.Request.Context(), services.ListOptions{
		ContextID: contextID,
		UserID:    userID,
		FolderID:  folderID,
		Columns:   defaultColumns,
		Storage:   models.StorageActive,
	})
	if err != nil {
		log.Printf("[task][export][err] %v", err)
		abortWithError(c, err)
		return
	}
	defer reader.Close()

	data, err := pdf.TaskListReport(c.Request.Context(), reader)
	if err != nil {
		log.Printf("[task][export][err] %v", err)
		abortWithError(c, err)
		return
	}
	log.Printf("[task][export][ok] bytes=%d", len(data))
	c.Header("Content-Disposition", `attachment; filename="tasks.pdf"`)
	c.Data(http.StatusOK, "application/pdf", data)
}
