// internal/models/folder.go
package models

// FolderType is the sharing category of a task folder.
type FolderType string

const (
	FolderPrivate FolderType = "private"
	FolderPublic  FolderType = "public"
	// FolderShared is another user's private folder made visible to the
	// current one; tasks may not be moved into or out of it.
	FolderShared FolderType = "shared"
)

// Folder is the metadata the engine needs about a task folder.
type Folder struct {
	ID        int64      `json:"id"`
	ContextID int64      `json:"context_id"`
	Type      FolderType `json:"type"`
	OwnerID   int64      `json:"owner_id"`
	Name      string     `json:"name"`
}

// FolderMapping records which folder a task appears in for a given user.
// Each user who participates in (or owns) a task has exactly one mapping per
// storage partition, and a task never has zero mappings while it still has an
// owner or participant.
type FolderMapping struct {
	TaskID   int64 `json:"task_id"`
	FolderID int64 `json:"folder_id"`
	UserID   int64 `json:"user_id"`
}
