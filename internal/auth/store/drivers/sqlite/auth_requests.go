package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/tunegate/tunegate/internal/auth/domain"
)

type authRequestsRepo struct {
	db dbtx
}

func (r *authRequestsRepo) CreateAuthRequest(ctx context.Context, req domain.AuthRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_requests (
			id, client_id, redirect_uri, scopes, state,
			code_challenge, code_challenge_method, status,
			user_token_enc, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID,
		req.ClientID,
		req.RedirectURI,
		joinScopes(req.Scopes),
		req.State,
		req.CodeChallenge,
		req.CodeChallengeMethod,
		string(req.Status),
		req.UserTokenEnc,
		req.CreatedAt,
		req.ExpiresAt,
	)
	return err
}

func (r *authRequestsRepo) GetAuthRequest(ctx context.Context, id string) (domain.AuthRequest, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, redirect_uri, scopes, state,
		       code_challenge, code_challenge_method, status,
		       user_token_enc, created_at, expires_at
		FROM auth_requests WHERE id = ?`, id)

	var (
		req          domain.AuthRequest
		scopes       string
		status       string
		userTokenEnc []byte
	)
	if err := row.Scan(
		&req.ID, &req.ClientID, &req.RedirectURI, &scopes, &req.State,
		&req.CodeChallenge, &req.CodeChallengeMethod, &status,
		&userTokenEnc, &req.CreatedAt, &req.ExpiresAt,
	); err != nil {
		return domain.AuthRequest{}, mapNotFound(err)
	}
	req.Scopes = splitScopes(scopes)
	req.Status = domain.AuthRequestStatus(status)
	req.UserTokenEnc = userTokenEnc
	return req, nil
}

// CompleteAuthRequest is the single compare-and-set that decides the winner
// when the browser callback races a duplicate or the sweeper. Only a live
// pending row transitions.
func (r *authRequestsRepo) CompleteAuthRequest(
	ctx context.Context,
	id string,
	userTokenEnc []byte,
	now time.Time,
) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_requests
		SET status = 'authorized', user_token_enc = ?
		WHERE id = ? AND status = 'pending' AND expires_at > ?`,
		userTokenEnc, id, now,
	)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

func (r *authRequestsRepo) ConsumeAuthRequest(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_requests
		SET status = 'consumed'
		WHERE id = ? AND status = 'authorized'`, id)
	if err != nil {
		return false, err
	}
	return rowsAffected(res)
}

func (r *authRequestsRepo) MarkExpiredAuthRequests(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE auth_requests
		SET status = 'expired'
		WHERE status IN ('pending', 'authorized') AND expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *authRequestsRepo) DeleteAuthRequestsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM auth_requests
		WHERE status IN ('consumed', 'expired') AND expires_at <= ?`, cutoff)
	return err
}

func rowsAffected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
