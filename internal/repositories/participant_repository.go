package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

func participantNotFound(taskID, userID int64) error {
	return apperr.New(apperr.KindNotFound, "PARTICIPANT_NOT_FOUND",
		"user %d does not participate in task %d", userID, taskID)
}

func participantTable(st models.StorageType) string { return "task_participant_" + string(st) }

type ParticipantRepository interface {
	// SelectByTasks batch-loads the participants of every given task in one
	// round trip, keyed by task id.
	SelectByTasks(ctx context.Context, contextID int64, taskIDs []int64, st models.StorageType) (map[int64][]models.Participant, error)
	Insert(ctx context.Context, contextID, taskID int64, ps []models.Participant, st models.StorageType) error
	Delete(ctx context.Context, contextID, taskID int64, ps []models.Participant, st models.StorageType) error
	DeleteAll(ctx context.Context, contextID, taskID int64, st models.StorageType) error
	UpdateConfirm(ctx context.Context, contextID, taskID, userID int64, confirm models.ConfirmStatus, message string) error
}

type participantRepository struct {
	db DBTX
}

func NewParticipantRepository(db DBTX) ParticipantRepository {
	return &participantRepository{db: db}
}

func (r *participantRepository) SelectByTasks(ctx context.Context, contextID int64, taskIDs []int64, st models.StorageType) (map[int64][]models.Participant, error) {
	out := make(map[int64][]models.Participant, len(taskIDs))
	if len(taskIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`
		SELECT task, COALESCE(user_id,0), COALESCE(group_id,0), COALESCE(mail,''),
		       COALESCE(display_name,''), COALESCE(folder_id,0), confirm, COALESCE(confirm_message,'')
		FROM %s
		WHERE cid = $1 AND task = ANY($2)
		ORDER BY task, user_id`, participantTable(st))
	rows, err := r.db.QueryContext(ctx, query, contextID, pq.Array(taskIDs))
	if err != nil {
		return nil, wrapDBErr(err, "select participants", nil)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID int64
		var p models.Participant
		if err := rows.Scan(&taskID, &p.UserID, &p.GroupID, &p.Email,
			&p.DisplayName, &p.FolderID, &p.Confirm, &p.ConfirmMessage); err != nil {
			return nil, wrapDBErr(err, "scan participant", nil)
		}
		out[taskID] = append(out[taskID], p)
	}
	return out, wrapDBErr(rows.Err(), "select participants", nil)
}

func (r *participantRepository) Insert(ctx context.Context, contextID, taskID int64, ps []models.Participant, st models.StorageType) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (cid, task, user_id, group_id, mail, display_name, folder_id, confirm, confirm_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, participantTable(st))
	for _, p := range ps {
		confirm := p.Confirm
		if confirm == "" {
			confirm = models.ConfirmNone
		}
		_, err := r.db.ExecContext(ctx, query,
			contextID, taskID, nullID(p.UserID), nullID(p.GroupID),
			nullStr(p.Email), nullStr(p.DisplayName), nullID(p.FolderID),
			confirm, nullStr(p.ConfirmMessage))
		if err != nil {
			return wrapDBErr(err, "insert participant", []string{"mail", "display_name"})
		}
	}
	return nil
}

func (r *participantRepository) Delete(ctx context.Context, contextID, taskID int64, ps []models.Participant, st models.StorageType) error {
	byUser := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND task = $2 AND user_id = $3`, participantTable(st))
	byMail := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND task = $2 AND lower(mail) = lower($3)`, participantTable(st))
	for _, p := range ps {
		var err error
		if p.UserID != 0 {
			_, err = r.db.ExecContext(ctx, byUser, contextID, taskID, p.UserID)
		} else {
			_, err = r.db.ExecContext(ctx, byMail, contextID, taskID, p.Email)
		}
		if err != nil {
			return wrapDBErr(err, "delete participant", nil)
		}
	}
	return nil
}

func (r *participantRepository) DeleteAll(ctx context.Context, contextID, taskID int64, st models.StorageType) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cid = $1 AND task = $2`, participantTable(st))
	_, err := r.db.ExecContext(ctx, query, contextID, taskID)
	return wrapDBErr(err, "delete participants", nil)
}

func (r *participantRepository) UpdateConfirm(ctx context.Context, contextID, taskID, userID int64, confirm models.ConfirmStatus, message string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET confirm = $1, confirm_message = $2
		WHERE cid = $3 AND task = $4 AND user_id = $5`, participantTable(models.StorageActive))
	res, err := r.db.ExecContext(ctx, query, confirm, nullStr(message), contextID, taskID, userID)
	if err != nil {
		return wrapDBErr(err, "confirm participation", []string{"confirm_message"})
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return wrapDBErr(err, "confirm participation", nil)
	}
	if affected == 0 {
		return participantNotFound(taskID, userID)
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
