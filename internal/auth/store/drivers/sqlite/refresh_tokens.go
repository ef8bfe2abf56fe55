package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (
			id, client_id, auth_request_id, token_hash, family_id,
			scopes, user_token_enc, expires_at, consumed_at, revoked,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.ClientID,
		t.AuthRequestID,
		t.TokenHash,
		t.FamilyID,
		joinScopes(t.Scopes),
		t.UserTokenEnc,
		t.ExpiresAt,
		nil,
		t.Revoked,
		t.CreatedAt,
		t.UpdatedAt,
	)
	return err
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, auth_request_id, token_hash, family_id,
		       scopes, user_token_enc, expires_at, consumed_at, revoked,
		       created_at, updated_at
		FROM refresh_tokens WHERE token_hash = ?`, hash)

	var (
		t          domain.RefreshToken
		scopes     string
		consumedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID, &t.ClientID, &t.AuthRequestID, &t.TokenHash, &t.FamilyID,
		&scopes, &t.UserTokenEnc, &t.ExpiresAt, &consumedAt, &t.Revoked,
		&t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.Scopes = splitScopes(scopes)
	t.ConsumedAt = mapNullTimePtr(consumedAt)
	return t, nil
}

// ConsumeRefreshToken retires a token during rotation. The guard makes sure
// only one concurrent exchange wins; everyone else sees false.
func (r *refreshTokensRepo) ConsumeRefreshToken(
	ctx context.Context,
	id string,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET consumed_at = ?, updated_at = ?
		WHERE id = ? AND consumed_at IS NULL AND revoked = 0`,
		now, now, id,
	)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	return err
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, updated_at = CURRENT_TIMESTAMP
		WHERE family_id = ?`, familyID)
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at <= CURRENT_TIMESTAMP`)
	return err
}
