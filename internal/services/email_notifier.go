package services

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"groupware/internal/models"
)

type emailNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewEmailNotifier builds an EventSink that mails internal participants about
// task changes.
func NewEmailNotifier(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EventSink {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailNotifier{
		dialer: dialer,
		from:   fromEmail,
	}
}

func (s *emailNotifier) TaskEvent(ctx context.Context, event Event, task *models.Task) error {
	if !task.Notification {
		return nil
	}
	var recipients []string
	for _, p := range task.Participants {
		if p.Email != "" {
			recipients = append(recipients, p.Email)
		}
	}
	if len(recipients) == 0 {
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipients...)
	m.SetHeader("Subject", fmt.Sprintf("Task %s: %s", event, task.Title))
	m.SetBody("text/html", taskMailBody(event, task))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send task %s email: %w", event, err)
	}
	return nil
}

func taskMailBody(event Event, task *models.Task) string {
	due := "-"
	if task.End != nil {
		due = task.End.Format(time.RFC1123)
	}
	return fmt.Sprintf(`
		<h3>Task %s</h3>
		<p><strong>%s</strong></p>
		<p>Status: %s<br>Priority: %s<br>Due: %s</p>
		<p>%s</p>
	`, event, task.Title, task.Status, task.Priority, due, task.Note)
}
