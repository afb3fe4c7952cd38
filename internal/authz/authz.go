// Package authz decides what a user may do with a task folder. The full ACL
// model lives outside this service; the engine only consumes this oracle.
package authz

import (
	"context"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

// Oracle answers folder-level permission questions. Implementations raise a
// permission-taxonomy error when the operation is denied.
type Oracle interface {
	CheckCreate(ctx context.Context, userID int64, folder models.Folder) error
	CheckWrite(ctx context.Context, userID int64, folder models.Folder, task *models.Task) error
	CheckDelete(ctx context.Context, userID int64, folder models.Folder, task *models.Task) error
	CheckRead(ctx context.Context, userID int64, folder models.Folder) error
}

// FolderOracle is the default category-based oracle: private folders belong
// to their owner, shared folders are read-only views of someone else's
// private folder, public folders are open to every user of the context.
type FolderOracle struct{}

func NewFolderOracle() *FolderOracle { return &FolderOracle{} }

func (o *FolderOracle) CheckCreate(_ context.Context, userID int64, folder models.Folder) error {
	switch folder.Type {
	case models.FolderPrivate:
		if folder.OwnerID != userID {
			return apperr.New(apperr.KindPermission, "NO_CREATE_PERMISSION",
				"user %d may not create objects in folder %d", userID, folder.ID)
		}
	case models.FolderShared:
		return apperr.New(apperr.KindPermission, "NO_CREATE_PERMISSION",
			"shared folder %d is read-only for user %d", folder.ID, userID)
	}
	return nil
}

func (o *FolderOracle) CheckWrite(_ context.Context, userID int64, folder models.Folder, task *models.Task) error {
	switch folder.Type {
	case models.FolderPrivate:
		if folder.OwnerID != userID {
			return apperr.New(apperr.KindPermission, "NO_WRITE_PERMISSION",
				"user %d may not modify objects in folder %d", userID, folder.ID)
		}
	case models.FolderShared:
		// Delegated write through a shared folder is allowed unless the task
		// is private; the private check lives in the diff engine.
	}
	return nil
}

func (o *FolderOracle) CheckDelete(_ context.Context, userID int64, folder models.Folder, task *models.Task) error {
	if folder.Type == models.FolderPrivate && folder.OwnerID != userID {
		return apperr.New(apperr.KindPermission, "NO_DELETE_PERMISSION",
			"user %d may not delete objects from folder %d", userID, folder.ID)
	}
	if folder.Type == models.FolderShared {
		return apperr.New(apperr.KindPermission, "NO_DELETE_PERMISSION",
			"shared folder %d is read-only for user %d", folder.ID, userID)
	}
	return nil
}

func (o *FolderOracle) CheckRead(_ context.Context, userID int64, folder models.Folder) error {
	if folder.Type == models.FolderPrivate && folder.OwnerID != userID {
		return apperr.New(apperr.KindPermission, "NO_READ_PERMISSION",
			"user %d may not read folder %d", userID, folder.ID)
	}
	return nil
}
