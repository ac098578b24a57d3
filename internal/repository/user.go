package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/templui/accounts/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already exists")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	CreateIfAbsent(ctx context.Context, user *model.User) (bool, error)
	ByID(ctx context.Context, id string) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	AttachCredential(ctx context.Context, email string, credential *model.Credential) (bool, error)
	UpdateCredential(ctx context.Context, id string, credential *model.Credential) error
	UpdateNickname(ctx context.Context, id, nickname string) error
	Activate(ctx context.Context, id, key string, issuedAfter, at time.Time) (bool, error)
	ReissueActivation(ctx context.Context, id, key string, at time.Time) (bool, error)
	Count(ctx context.Context) (int, error)
	ListWithSignins(ctx context.Context) ([]model.UserSignins, error)
	Delete(ctx context.Context, id string) error
}

const userColumns = `id, created_at, email, nickname, password_hash, password_salt, activation_key, activation_issued_at, activated_at`

// userRow mirrors the users table; nullable credential columns collapse into
// model.Credential on the way out.
type userRow struct {
	ID            string         `db:"id"`
	CreatedAt     time.Time      `db:"created_at"`
	Email         string         `db:"email"`
	Nickname      string         `db:"nickname"`
	PasswordHash  sql.NullString `db:"password_hash"`
	PasswordSalt  sql.NullString `db:"password_salt"`
	ActivationKey sql.NullString `db:"activation_key"`
	KeyIssuedAt   sql.NullTime   `db:"activation_issued_at"`
	ActivatedAt   sql.NullTime   `db:"activated_at"`
}

func (r *userRow) toModel() *model.User {
	user := &model.User{
		ID:        r.ID,
		Email:     r.Email,
		Nickname:  r.Nickname,
		CreatedAt: r.CreatedAt.UTC(),
	}
	if r.PasswordHash.Valid && r.PasswordSalt.Valid {
		user.Credential = &model.Credential{Hash: r.PasswordHash.String, Salt: r.PasswordSalt.String}
	}
	if r.ActivationKey.Valid {
		key := r.ActivationKey.String
		user.ActivationKey = &key
	}
	if r.KeyIssuedAt.Valid {
		at := r.KeyIssuedAt.Time.UTC()
		user.ActivationIssuedAt = &at
	}
	if r.ActivatedAt.Valid {
		at := r.ActivatedAt.Time.UTC()
		user.ActivatedAt = &at
	}
	return user
}

func credentialArgs(c *model.Credential) (hash, salt any) {
	if c == nil {
		return nil, nil
	}
	return c.Hash, c.Salt
}

type userRepository struct {
	q Querier
}

func NewUserRepository(q Querier) UserRepository {
	return &userRepository{q: q}
}

func (r *userRepository) insertArgs(user *model.User) []any {
	hash, salt := credentialArgs(user.Credential)
	return []any{user.ID, user.CreatedAt, user.Email, user.Nickname, hash, salt, user.ActivationKey, user.ActivationIssuedAt, user.ActivatedAt}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.q.ExecContext(ctx, query, r.insertArgs(user)...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return err
	}

	return nil
}

// CreateIfAbsent inserts user unless the email is taken. The unique index
// decides, so two racing callers cannot both insert.
func (r *userRepository) CreateIfAbsent(ctx context.Context, user *model.User) (bool, error) {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (email) DO NOTHING`

	result, err := r.q.ExecContext(ctx, query, r.insertArgs(user)...)
	if err != nil {
		return false, err
	}

	return affectedOne(result)
}

func (r *userRepository) ByID(ctx context.Context, id string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepository) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepository) get(ctx context.Context, query string, arg any) (*model.User, error) {
	var row userRow

	err := sqlx.GetContext(ctx, r.q, &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return row.toModel(), nil
}

// AttachCredential gives a credential-less account a password. It reports
// false when the email is unknown or the account already has one.
func (r *userRepository) AttachCredential(ctx context.Context, email string, credential *model.Credential) (bool, error) {
	query := `UPDATE users SET password_hash = $1, password_salt = $2 WHERE email = $3 AND password_hash IS NULL`

	result, err := r.q.ExecContext(ctx, query, credential.Hash, credential.Salt, email)
	if err != nil {
		return false, err
	}

	return affectedOne(result)
}

func (r *userRepository) UpdateCredential(ctx context.Context, id string, credential *model.Credential) error {
	hash, salt := credentialArgs(credential)
	query := `UPDATE users SET password_hash = $1, password_salt = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, hash, salt, id)
	if err != nil {
		return err
	}
	return requireOne(result)
}

func (r *userRepository) UpdateNickname(ctx context.Context, id, nickname string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE users SET nickname = $1 WHERE id = $2`, nickname, id)
	if err != nil {
		return err
	}
	return requireOne(result)
}

// Activate consumes the activation key in a single conditional UPDATE. Only
// the first caller presenting the right key for an unactivated account whose
// key was issued after issuedAfter gets true.
func (r *userRepository) Activate(ctx context.Context, id, key string, issuedAfter, at time.Time) (bool, error) {
	query := `
		UPDATE users
		SET activated_at = $1, activation_key = NULL, activation_issued_at = NULL
		WHERE id = $2
		AND activation_key = $3
		AND activated_at IS NULL
		AND activation_issued_at > $4
	`

	result, err := r.q.ExecContext(ctx, query, at, id, key, issuedAfter)
	if err != nil {
		return false, err
	}

	return affectedOne(result)
}

// ReissueActivation replaces the key of an account that is still waiting for
// activation. It reports false once the account is activated.
func (r *userRepository) ReissueActivation(ctx context.Context, id, key string, at time.Time) (bool, error) {
	query := `
		UPDATE users
		SET activation_key = $1, activation_issued_at = $2
		WHERE id = $3
		AND activation_key IS NOT NULL
		AND activated_at IS NULL
	`

	result, err := r.q.ExecContext(ctx, query, key, at, id)
	if err != nil {
		return false, err
	}

	return affectedOne(result)
}

func (r *userRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

// ListWithSignins returns users that have at least one session, with the
// session count and latest login computed from user_sessions.
func (r *userRepository) ListWithSignins(ctx context.Context) ([]model.UserSignins, error) {
	query := `
		SELECT u.id, u.created_at, u.email, u.nickname, u.password_hash, u.password_salt,
		       u.activation_key, u.activation_issued_at, u.activated_at, agg.signin_count, ls.logged_at AS last_signin_at
		FROM users u
		JOIN (
			SELECT user_id, COUNT(*) AS signin_count FROM user_sessions GROUP BY user_id
		) agg ON agg.user_id = u.id
		JOIN user_sessions ls ON ls.user_id = u.id
		WHERE NOT EXISTS (
			SELECT 1 FROM user_sessions later
			WHERE later.user_id = ls.user_id
			AND (later.logged_at > ls.logged_at OR (later.logged_at = ls.logged_at AND later.id > ls.id))
		)
		ORDER BY u.created_at, u.id
	`

	var rows []struct {
		userRow
		SigninCount  int       `db:"signin_count"`
		LastSigninAt time.Time `db:"last_signin_at"`
	}
	err := sqlx.SelectContext(ctx, r.q, &rows, query)
	if err != nil {
		return nil, err
	}

	users := make([]model.UserSignins, 0, len(rows))
	for _, row := range rows {
		users = append(users, model.UserSignins{
			User:         *row.toModel(),
			SigninCount:  row.SigninCount,
			LastSigninAt: row.LastSigninAt.UTC(),
		})
	}
	return users, nil
}

func (r *userRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return rows == 1, nil
}

func requireOne(result sql.Result) error {
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUserNotFound
	}
	return nil
}
