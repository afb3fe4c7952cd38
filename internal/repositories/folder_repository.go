package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

func folderTable(st models.StorageType) string { return "task_folder_" + string(st) }

type FolderRepository interface {
	// Folder reads the metadata of a task folder from the folder tree.
	Folder(ctx context.Context, contextID, folderID int64) (*models.Folder, error)
	SelectMappings(ctx context.Context, contextID, taskID int64, st models.StorageType) ([]models.FolderMapping, error)
	InsertMappings(ctx context.Context, contextID int64, ms []models.FolderMapping, st models.StorageType) error
	DeleteMappings(ctx context.Context, contextID int64, ms []models.FolderMapping, st models.StorageType) error
	DeleteAllMappings(ctx context.Context, contextID, taskID int64, st models.StorageType) error
}

type folderRepository struct {
	db DBTX
}

func NewFolderRepository(db DBTX) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) Folder(ctx context.Context, contextID, folderID int64) (*models.Folder, error) {
	f := &models.Folder{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, cid, type, owner_id, name FROM folders WHERE cid = $1 AND id = $2`,
		contextID, folderID,
	).Scan(&f.ID, &f.ContextID, &f.Type, &f.OwnerID, &f.Name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "FOLDER_NOT_FOUND", "folder %d not found", folderID)
		}
		return nil, wrapDBErr(err, "select folder", nil)
	}
	return f, nil
}

func (r *folderRepository) SelectMappings(ctx context.Context, contextID, taskID int64, st models.StorageType) ([]models.FolderMapping, error) {
	query := fmt.Sprintf(`SELECT task, folder_id, user_id FROM %s WHERE cid = $1 AND task = $2 ORDER BY user_id`, folderTable(st))
	rows, err := r.db.QueryContext(ctx, query, contextID, taskID)
	if err != nil {
		return nil, wrapDBErr(err, "select folder mappings", nil)
	}
	defer rows.Close()

	var out []models.FolderMapping
	for rows.Next() {
		var m models.FolderMapping
		if err := rows.Scan(&m.TaskID, &m.FolderID, &m.UserID); err != nil {
			return nil, wrapDBErr(err, "scan folder mapping", nil)
		}
		out = append(out, m)
	}
	return out, wrapDBErr(rows.Err(), "select folder mappings", nil)
}

func (r *folderRepository) InsertMappings(ctx context.Context, contextID int64, ms []models.FolderMapping, st models.StorageType) error {
	query := fmt.Sprintf(`INSERT INTO %s (cid, task, folder_id, user_id) VALUES ($1,$2,$3,$4)`, folderTable(st))
	for _, m := range ms {
		if _, err := r.db.ExecContext(ctx, query, contextID, m.TaskID, m.FolderID, m.UserID); err != nil {
			return wrapDBErr(err, "insert folder mapping", nil)
		}
	}
	return nil
}

func (r *folderRepository) DeleteMappings(ctx context.Context, contextID int64, ms []models.FolderMapping, st models.StorageType) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND task = $2 AND folder_id = $3 AND user_id = $4`, folderTable(st))
	for _, m := range ms {
		if _, err := r.db.ExecContext(ctx, query, contextID, m.TaskID, m.FolderID, m.UserID); err != nil {
			return wrapDBErr(err, "delete folder mapping", nil)
		}
	}
	return nil
}

func (r *folderRepository) DeleteAllMappings(ctx context.Context, contextID, taskID int64, st models.StorageType) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND task = $2`, folderTable(st))
	_, err := r.db.ExecContext(ctx, query, contextID, taskID)
	return wrapDBErr(err, "delete folder mappings", nil)
}
