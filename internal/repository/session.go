package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/templui/accounts/internal/model"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	CountByUser(ctx context.Context, userID string) (int, error)
	LastByUser(ctx context.Context, userID string) (*model.Session, error)
	CountActiveUsers(ctx context.Context, from, to time.Time) (int, error)
}

type sessionRepository struct {
	q Querier
}

func NewSessionRepository(q Querier) SessionRepository {
	return &sessionRepository{q: q}
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	if session.LoggedAt.IsZero() {
		session.LoggedAt = time.Now()
	}
	session.LoggedAt = session.LoggedAt.UTC()

	query := `INSERT INTO user_sessions (id, user_id, logged_at) VALUES ($1, $2, $3)`
	_, err := r.q.ExecContext(ctx, query, session.ID, session.UserID, session.LoggedAt)
	return err
}

func (r *sessionRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.q, &count, `SELECT COUNT(*) FROM user_sessions WHERE user_id = $1`, userID)
	return count, err
}

func (r *sessionRepository) LastByUser(ctx context.Context, userID string) (*model.Session, error) {
	var session model.Session
	query := `SELECT id, user_id, logged_at FROM user_sessions WHERE user_id = $1 ORDER BY logged_at DESC, id DESC LIMIT 1`

	err := sqlx.GetContext(ctx, r.q, &session, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	session.LoggedAt = session.LoggedAt.UTC()
	return &session, nil
}

// CountActiveUsers counts distinct users with a session in [from, to).
func (r *sessionRepository) CountActiveUsers(ctx context.Context, from, to time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(DISTINCT user_id) FROM user_sessions WHERE logged_at >= $1 AND logged_at < $2`
	err := sqlx.GetContext(ctx, r.q, &count, query, from.UTC(), to.UTC())
	return count, err
}
