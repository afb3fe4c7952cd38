package repositories

import (
	"context"
	"database/sql"
	"time"

	"groupware/internal/apperr"
	"groupware/internal/models"
)

type UserRepository interface {
	ByID(ctx context.Context, contextID, id int64) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)

	// refresh helpers
	UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	ByRefreshToken(ctx context.Context, token string) (*models.User, error)

	// StandardTaskFolder is the user's personal standard task folder, where
	// newly delegated tasks are filed.
	StandardTaskFolder(ctx context.Context, contextID, userID int64) (int64, error)
	// GroupMembers expands a participant group into user ids.
	GroupMembers(ctx context.Context, contextID, groupID int64) ([]int64, error)
}

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, cid, display_name, email, password_hash, std_task_folder, refresh_token, refresh_expires_at`

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.ContextID, &u.DisplayName, &u.Email, &u.PasswordHash,
		&u.StandardFolderID, &u.RefreshToken, &u.RefreshExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user not found")
		}
		return nil, wrapDBErr(err, "select user", nil)
	}
	return u, nil
}

func (r *userRepository) ByID(ctx context.Context, contextID, id int64) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE cid = $1 AND id = $2`, contextID, id))
}

func (r *userRepository) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (r *userRepository) UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET refresh_token = $1, refresh_expires_at = $2 WHERE id = $3`,
		token, expiresAt, userID)
	return wrapDBErr(err, "update refresh token", nil)
}

func (r *userRepository) ByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE refresh_token = $1 AND refresh_expires_at > NOW()`, token))
}

func (r *userRepository) StandardTaskFolder(ctx context.Context, contextID, userID int64) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT std_task_folder FROM users WHERE cid = $1 AND id = $2`, contextID, userID).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, apperr.New(apperr.KindNotFound, "USER_NOT_FOUND", "user %d not found", userID)
		}
		return 0, wrapDBErr(err, "select standard folder", nil)
	}
	return id, nil
}

func (r *userRepository) GroupMembers(ctx context.Context, contextID, groupID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT member FROM groups_member WHERE cid = $1 AND id = $2 ORDER BY member`, contextID, groupID)
	if err != nil {
		return nil, wrapDBErr(err, "select group members", nil)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var uid int64
		if err := rows.Scan(&uid); err != nil {
			return nil, wrapDBErr(err, "scan group member", nil)
		}
		out = append(out, uid)
	}
	return out, wrapDBErr(rows.Err(), "select group members", nil)
}
