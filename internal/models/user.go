package models

import "time"

type User struct {
	ID           int64  `json:"id"`
	ContextID    int64  `json:"context_id"`
	DisplayName  string `json:"display_name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // never serialized

	// Personal standard task folder; newly delegated tasks land here.
	StandardFolderID int64 `json:"standard_folder_id"`

	// refresh-токен storage
	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
