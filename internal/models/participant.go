// internal/models/participant.go
package models

import (
	"strconv"
	"strings"
)

// ConfirmStatus is a participant's answer to a task delegation.
type ConfirmStatus string

const (
	ConfirmNone      ConfirmStatus = "none"
	ConfirmAccepted  ConfirmStatus = "accepted"
	ConfirmDeclined  ConfirmStatus = "declined"
	ConfirmTentative ConfirmStatus = "tentative"
)

// Participant is either internal (a system user, with a per-user folder and a
// confirmation state) or external (a free-form email invitee). A UserID of 0
// with a non-zero GroupID marks an unresolved group entry that still has to be
// expanded into its members.
type Participant struct {
	UserID  int64 `json:"user_id,omitempty"`
	GroupID int64 `json:"group_id,omitempty"`

	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	FolderID       int64         `json:"folder_id,omitempty"`
	Confirm        ConfirmStatus `json:"confirm,omitempty"`
	ConfirmMessage string        `json:"confirm_message,omitempty"`
}

// External reports whether this is an email-only invitee.
func (p Participant) External() bool { return p.UserID == 0 && p.GroupID == 0 }

// Group reports whether this entry is an unresolved group participant.
func (p Participant) Group() bool { return p.UserID == 0 && p.GroupID != 0 }

// Key identifies the participant within one task: internal participants by
// user id, external ones by lower-cased email.
func (p Participant) Key() string {
	if p.UserID != 0 {
		return "u:" + strconv.FormatInt(p.UserID, 10)
	}
	return "e:" + strings.ToLower(p.Email)
}
