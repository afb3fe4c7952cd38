package diff

import (
	"context"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

// Validate runs the business rules over the merged task view. It must pass
// before any persistence happens.
func (s *Session) Validate(ctx context.Context) error {
	merged, err := s.Updated(ctx)
	if err != nil {
		return err
	}
	if s.Submitted.Has(models.AttrPrivate) && s.Submitted.Private && s.UserID != s.Original.CreatedBy {
		return apperr.New(apperr.KindValidation, "ONLY_CREATOR_PRIVATE",
			"only the creator (user %d) may flag task %d private", s.Original.CreatedBy, s.Original.ID)
	}
	return validateTask(merged)
}

// ValidateNew applies the same rules to a task about to be inserted.
func ValidateNew(task *models.Task) error {
	if task.FolderID == 0 {
		return apperr.New(apperr.KindMandatoryField, "MISSING_FOLDER", "task has no folder")
	}
	return validateTask(task)
}

func validateTask(t *models.Task) error {
	if t.Start != nil && t.End != nil && t.Start.After(*t.End) {
		return apperr.New(apperr.KindMandatoryField, "START_AFTER_END",
			"start date %s is after end date %s", t.Start, t.End)
	}
	if t.PercentComplete < 0 || t.PercentComplete > 100 {
		return apperr.New(apperr.KindValidation, "INVALID_PERCENTAGE",
			"percent complete %d out of range", t.PercentComplete)
	}
	if !validStatus(t.Status) {
		return apperr.New(apperr.KindValidation, "INVALID_STATUS", "unknown status %q", t.Status)
	}
	// A task that was not started cannot be partially complete. The reverse
	// rule (done implies 100%) is deliberately not enforced.
	if t.Status == models.StatusNotStarted && t.PercentComplete != 0 {
		return apperr.New(apperr.KindValidation, "PERCENTAGE_NOT_ZERO",
			"status %q requires 0%% completion, got %d%%", t.Status, t.PercentComplete)
	}
	if t.TargetCosts < 0 || t.ActualCosts < 0 {
		return apperr.New(apperr.KindValidation, "COSTS_OUT_OF_RANGE", "costs must not be negative")
	}
	if t.Private && len(t.Participants) > 0 {
		return apperr.New(apperr.KindValidation, "NO_PRIVATE_DELEGATE",
			"private task cannot carry participants")
	}
	for _, p := range t.Participants {
		if p.External() && p.Email == "" {
			return apperr.New(apperr.KindValidation, "EXTERNAL_WITHOUT_MAIL",
				"external participant %q has no email address", p.DisplayName)
		}
	}
	return validateRecurrence(t.Recurrence)
}

func validStatus(s models.TaskStatus) bool {
	switch s {
	case models.StatusNotStarted, models.StatusInProgress, models.StatusDone,
		models.StatusWaiting, models.StatusDeferred:
		return true
	}
	return false
}

func validateRecurrence(r models.Recurrence) error {
	missing := func(field string) error {
		return apperr.New(apperr.KindMandatoryField, "MISSING_RECURRENCE_VALUE",
			"recurrence type %q requires %s", r.Type, field)
	}
	switch r.Type {
	case models.RecurrenceNone:
		return nil
	case models.RecurrenceDaily:
		if r.Interval <= 0 {
			return missing("an interval")
		}
	case models.RecurrenceWeekly:
		if r.Interval <= 0 {
			return missing("an interval")
		}
		if r.Days.Empty() {
			return missing("a weekday mask")
		}
	case models.RecurrenceMonthly:
		if r.Interval <= 0 {
			return missing("an interval")
		}
		if r.DayInMonth <= 0 {
			return missing("a day of month")
		}
	case models.RecurrenceYearly:
		if r.DayInMonth <= 0 {
			return missing("a day of month")
		}
		if r.Month == 0 {
			return missing("a month")
		}
	default:
		return apperr.New(apperr.KindValidation, "INVALID_RECURRENCE_TYPE",
			"unknown recurrence type %q", r.Type)
	}
	return nil
}
