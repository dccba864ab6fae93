package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/ibs-portal-api/internal/models"
)

const webUserColumns = `user_id, auth_user_id, email, password_hash, first_name, last_name, nickname, birth_day, birth_month, position, is_active, created_at, updated_at`

// UserRepository provides database access for web users, their roles and sessions.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.WebUser, error) {
	query := `SELECT ` + webUserColumns + ` FROM web_users WHERE LOWER(email) = LOWER($1) LIMIT 1`
	var user models.WebUser
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.WebUser, error) {
	query := `SELECT ` + webUserColumns + ` FROM web_users WHERE user_id = $1 LIMIT 1`
	var user models.WebUser
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// Create provisions a profile and fills in the generated identity.
func (r *UserRepository) Create(ctx context.Context, user *models.WebUser) error {
	if user.AuthUserID == "" {
		user.AuthUserID = uuid.NewString()
	}
	const query = `INSERT INTO web_users (auth_user_id, email, password_hash, first_name, last_name, nickname, birth_day, birth_month, position, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING user_id, created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, query, user.AuthUserID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Nickname, user.BirthDay, user.BirthMonth, user.Position, user.IsActive)
	if err := row.Scan(&user.UserID, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// List returns users ordered by last name.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.WebUser, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.Position != nil {
		args = append(args, *filter.Position)
		conditions = append(conditions, fmt.Sprintf("position = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.TrimSpace(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(email ILIKE $%d OR first_name ILIKE $%d OR last_name ILIKE $%d)", len(args), len(args), len(args)))
	}

	query := `SELECT ` + webUserColumns + ` FROM web_users`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY last_name ASC, first_name ASC"

	var users []models.WebUser
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdatePosition changes the organizational position of a user.
func (r *UserRepository) UpdatePosition(ctx context.Context, id int64, position models.Position, ts time.Time) error {
	return r.updateOne(ctx, "update position", `UPDATE web_users SET position = $2, updated_at = $3 WHERE user_id = $1`, id, position, ts)
}

// UpdateNickname sets or clears the nickname.
func (r *UserRepository) UpdateNickname(ctx context.Context, id int64, nickname *string, ts time.Time) error {
	return r.updateOne(ctx, "update nickname", `UPDATE web_users SET nickname = $2, updated_at = $3 WHERE user_id = $1`, id, nickname, ts)
}

// Deactivate marks a user inactive. Users are never deleted.
func (r *UserRepository) Deactivate(ctx context.Context, id int64, ts time.Time) error {
	return r.updateOne(ctx, "deactivate user", `UPDATE web_users SET is_active = FALSE, updated_at = $2 WHERE user_id = $1`, id, ts)
}

func (r *UserRepository) updateOne(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RolesFor returns the explicit role grants of a user.
func (r *UserRepository) RolesFor(ctx context.Context, userID int64) ([]models.AppRole, error) {
	const query = `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`
	var roles []models.AppRole
	if err := r.db.SelectContext(ctx, &roles, query, userID); err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

// ReplaceRoles swaps the role set of a user atomically.
func (r *UserRepository) ReplaceRoles(ctx context.Context, userID int64, roles []models.AppRole) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin role transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear user roles: %w", err)
	}
	for _, role := range roles {
		if _, err = tx.ExecContext(ctx, `INSERT INTO user_roles (id, user_id, role) VALUES ($1, $2, $3)`, uuid.NewString(), userID, role); err != nil {
			return fmt.Errorf("insert user role: %w", err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit user roles: %w", err)
	}
	return nil
}

// UserIDsWithRole lists holders of a role.
func (r *UserRepository) UserIDsWithRole(ctx context.Context, role models.AppRole) ([]int64, error) {
	const query = `SELECT DISTINCT user_id FROM user_roles WHERE role = $1 ORDER BY user_id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, role); err != nil {
		return nil, fmt.Errorf("list users with role: %w", err)
	}
	return ids, nil
}

// UserIDsWithPositions lists active holders of any of the positions.
func (r *UserRepository) UserIDsWithPositions(ctx context.Context, positions ...models.Position) ([]int64, error) {
	if len(positions) == 0 {
		return nil, nil
	}
	values := make([]string, len(positions))
	for i, p := range positions {
		values[i] = string(p)
	}
	const query = `SELECT user_id FROM web_users WHERE position = ANY($1) AND is_active = TRUE ORDER BY user_id`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list users with positions: %w", err)
	}
	return ids, nil
}

// CreateRefreshToken stores a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent) VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken loads a refresh token by its opaque value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1`
	var rt models.RefreshToken
	if err := r.db.GetContext(ctx, &rt, query, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &rt, nil
}

// RevokeRefreshToken marks a single token as revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token of a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID int64) error {
	const query = `UPDATE refresh_tokens SET revoked = TRUE, revoked_at = NOW() WHERE user_id = $1 AND revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}
