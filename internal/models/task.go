// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusNotStarted TaskStatus = "not_started"
	StatusInProgress TaskStatus = "in_progress"
	StatusDone       TaskStatus = "done"
	StatusWaiting    TaskStatus = "waiting"
	StatusDeferred   TaskStatus = "deferred"
)

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityNormal TaskPriority = "normal"
	PriorityHigh   TaskPriority = "high"
)

// Attribute identifies one task attribute for projections and partial updates.
type Attribute uint8

const (
	AttrTitle Attribute = iota
	AttrNote
	AttrStart
	AttrEnd
	AttrStatus
	AttrPercentComplete
	AttrPriority
	AttrPrivate
	AttrFolder
	AttrCategories
	AttrTargetCosts
	AttrActualCosts
	AttrCurrency
	AttrRecurrenceType
	AttrRecurrenceInterval
	AttrRecurrenceDays
	AttrRecurrenceDayInMonth
	AttrRecurrenceMonth
	AttrRecurrenceUntil
	AttrRecurrenceCount
	AttrParticipants
	AttrUsers
	AttrAlarm
	AttrNotification

	attrMax
)

var attributeNames = map[Attribute]string{
	AttrTitle:                "title",
	AttrNote:                 "note",
	AttrStart:                "start",
	AttrEnd:                  "end",
	AttrStatus:               "status",
	AttrPercentComplete:      "percent_complete",
	AttrPriority:             "priority",
	AttrPrivate:              "private",
	AttrFolder:               "folder_id",
	AttrCategories:           "categories",
	AttrTargetCosts:          "target_costs",
	AttrActualCosts:          "actual_costs",
	AttrCurrency:             "currency",
	AttrRecurrenceType:       "recurrence_type",
	AttrRecurrenceInterval:   "recurrence_interval",
	AttrRecurrenceDays:       "recurrence_days",
	AttrRecurrenceDayInMonth: "recurrence_day_in_month",
	AttrRecurrenceMonth:      "recurrence_month",
	AttrRecurrenceUntil:      "recurrence_until",
	AttrRecurrenceCount:      "recurrence_count",
	AttrParticipants:         "participants",
	AttrUsers:                "users",
	AttrAlarm:                "alarm",
	AttrNotification:         "notification",
}

func (a Attribute) String() string {
	if s, ok := attributeNames[a]; ok {
		return s
	}
	return "unknown"
}

// AttributeByName resolves a wire-level attribute name; ok is false for
// unknown names.
func AttributeByName(name string) (Attribute, bool) {
	for a, n := range attributeNames {
		if n == name {
			return a, true
		}
	}
	return 0, false
}

// AllAttributes returns every known attribute, in declaration order.
func AllAttributes() []Attribute {
	out := make([]Attribute, 0, int(attrMax))
	for a := Attribute(0); a < attrMax; a++ {
		out = append(out, a)
	}
	return out
}

// AttributeSet is a bitset of explicitly present attributes. It distinguishes
// "not submitted" from "submitted as empty/zero" on partial tasks.
type AttributeSet uint32

func (s AttributeSet) Has(a Attribute) bool { return s&(1<<a) != 0 }

func (s *AttributeSet) Add(attrs ...Attribute) {
	for _, a := range attrs {
		*s |= 1 << a
	}
}

func (s *AttributeSet) Remove(a Attribute) { *s &^= 1 << a }

func (s AttributeSet) Empty() bool { return s == 0 }

// Attributes lists the set members in declaration order.
func (s AttributeSet) Attributes() []Attribute {
	var out []Attribute
	for a := Attribute(0); a < attrMax; a++ {
		if s.Has(a) {
			out = append(out, a)
		}
	}
	return out
}

// RecurrenceType defines how a task repeats.
type RecurrenceType string

const (
	RecurrenceNone    RecurrenceType = ""
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

// Weekdays is a bitmask of weekdays, bit 0 = Sunday (matches time.Weekday).
type Weekdays uint8

func (w Weekdays) Has(d time.Weekday) bool { return w&(1<<uint(d)) != 0 }
func (w Weekdays) Empty() bool             { return w == 0 }

// Recurrence describes the repeat schedule of a task. Count, when non-nil,
// tracks the remaining occurrences and is decremented on each completion.
type Recurrence struct {
	Type       RecurrenceType `json:"type,omitempty"`
	Interval   int            `json:"interval,omitempty"`
	Days       Weekdays       `json:"days,omitempty"`
	DayInMonth int            `json:"day_in_month,omitempty"`
	Month      time.Month     `json:"month,omitempty"`
	Until      *time.Time     `json:"until,omitempty"`
	Count      *int           `json:"count,omitempty"`
}

// Task represents the structure of a task in the system. Attrs records which
// attributes are actually populated; on partial tasks everything outside the
// set is meaningless.
type Task struct {
	ID        int64 `json:"id"`
	ContextID int64 `json:"context_id"`

	FolderID int64 `json:"folder_id"`

	CreatedBy    int64     `json:"created_by"`
	ModifiedBy   int64     `json:"modified_by"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`

	Title           string       `json:"title"`
	Note            string       `json:"note,omitempty"`
	Start           *time.Time   `json:"start,omitempty"`
	End             *time.Time   `json:"end,omitempty"`
	Status          TaskStatus   `json:"status"`
	PercentComplete int          `json:"percent_complete"`
	Priority        TaskPriority `json:"priority"`
	Private         bool         `json:"private"`
	Categories      string       `json:"categories,omitempty"`
	TargetCosts     float64      `json:"target_costs,omitempty"`
	ActualCosts     float64      `json:"actual_costs,omitempty"`
	Currency        string       `json:"currency,omitempty"`

	Recurrence Recurrence `json:"recurrence"`

	Participants []Participant `json:"participants,omitempty"`
	Alarm        *time.Time    `json:"alarm,omitempty"`
	Notification bool          `json:"notification,omitempty"`

	Attrs AttributeSet `json:"-"`
}

// Mark flags the given attributes as explicitly present.
func (t *Task) Mark(attrs ...Attribute) { t.Attrs.Add(attrs...) }

// Has reports whether the attribute was explicitly set on this task.
func (t *Task) Has(a Attribute) bool { return t.Attrs.Has(a) }

// StorageType selects one of the parallel storage partitions a task's rows
// live in. A task's full row set is duplicated-then-pruned across partitions
// on delete and participant removal, never shared.
type StorageType string

const (
	StorageActive  StorageType = "active"
	StorageDeleted StorageType = "deleted"
	StorageRemoved StorageType = "removed"
)
