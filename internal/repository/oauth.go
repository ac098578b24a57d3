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

var (
	ErrOAuthNotFound  = errors.New("oauth identity not found")
	ErrDuplicateOAuth = errors.New("oauth identity already linked")
)

type OAuthRepository interface {
	Create(ctx context.Context, oauth *model.OAuth) error
	ByProvider(ctx context.Context, provider, providerUserID string) (*model.OAuth, error)
	ByUserID(ctx context.Context, userID string) ([]*model.OAuth, error)
	All(ctx context.Context) ([]*model.OAuth, error)
	UpdateToken(ctx context.Context, id, token string) error
}

const oauthColumns = `id, provider, provider_user_id, user_id, token, created_at`

type oauthRepository struct {
	q Querier
}

func NewOAuthRepository(q Querier) OAuthRepository {
	return &oauthRepository{q: q}
}

// Create links an identity. Both (provider, provider_user_id) and
// (user_id, provider) are unique; either conflict yields ErrDuplicateOAuth.
func (r *oauthRepository) Create(ctx context.Context, oauth *model.OAuth) error {
	if oauth.ID == "" {
		oauth.ID = uuid.New().String()
	}
	if oauth.CreatedAt.IsZero() {
		oauth.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO oauths (` + oauthColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.q.ExecContext(ctx, query,
		oauth.ID,
		oauth.Provider,
		oauth.ProviderUserID,
		oauth.UserID,
		oauth.Token,
		oauth.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOAuth
		}
		return err
	}
	return nil
}

func (r *oauthRepository) ByProvider(ctx context.Context, provider, providerUserID string) (*model.OAuth, error) {
	var oauth model.OAuth
	query := `SELECT ` + oauthColumns + ` FROM oauths WHERE provider = $1 AND provider_user_id = $2`

	err := sqlx.GetContext(ctx, r.q, &oauth, query, provider, providerUserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOAuthNotFound
	}
	if err != nil {
		return nil, err
	}
	return &oauth, nil
}

func (r *oauthRepository) ByUserID(ctx context.Context, userID string) ([]*model.OAuth, error) {
	var oauths []*model.OAuth
	query := `SELECT ` + oauthColumns + ` FROM oauths WHERE user_id = $1 ORDER BY provider`

	err := sqlx.SelectContext(ctx, r.q, &oauths, query, userID)
	if err != nil {
		return nil, err
	}
	return oauths, nil
}

func (r *oauthRepository) All(ctx context.Context) ([]*model.OAuth, error) {
	var oauths []*model.OAuth
	query := `SELECT ` + oauthColumns + ` FROM oauths ORDER BY user_id, provider`

	err := sqlx.SelectContext(ctx, r.q, &oauths, query)
	if err != nil {
		return nil, err
	}
	return oauths, nil
}

func (r *oauthRepository) UpdateToken(ctx context.Context, id, token string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE oauths SET token = $1 WHERE id = $2`, token, id)
	if err != nil {
		return err
	}

	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrOAuthNotFound
	}
	return nil
}
