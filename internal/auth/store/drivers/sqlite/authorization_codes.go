package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
)

type authorizationCodesRepo struct {
	db dbtx
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(
	ctx context.Context,
	code domain.AuthorizationCode,
) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			id, auth_request_id, client_id, code_hash, redirect_uri,
			scopes, expires_at, used_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.AuthRequestID,
		code.ClientID,
		code.CodeHash,
		code.RedirectURI,
		joinScopes(code.Scopes),
		code.ExpiresAt,
		nil,
		code.CreatedAt,
	)
	return err
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(
	ctx context.Context,
	hash string,
) (domain.AuthorizationCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, auth_request_id, client_id, code_hash, redirect_uri,
		       scopes, expires_at, used_at, created_at
		FROM authorization_codes WHERE code_hash = ?`, hash)

	var (
		code   domain.AuthorizationCode
		scopes string
		usedAt sql.NullTime
	)
	if err := row.Scan(
		&code.ID, &code.AuthRequestID, &code.ClientID, &code.CodeHash,
		&code.RedirectURI, &scopes, &code.ExpiresAt, &usedAt, &code.CreatedAt,
	); err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}
	code.Scopes = splitScopes(scopes)
	code.UsedAt = mapNullTimePtr(usedAt)
	return code, nil
}

// MarkAuthorizationCodeUsed consumes a code exactly once: the guard on
// used_at IS NULL makes concurrent redemptions lose cleanly.
func (r *authorizationCodesRepo) MarkAuthorizationCodeUsed(
	ctx context.Context,
	id string,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE authorization_codes
		SET used_at = ?
		WHERE id = ? AND used_at IS NULL`, now, id)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM authorization_codes WHERE expires_at <= CURRENT_TIMESTAMP`)
	return err
}
