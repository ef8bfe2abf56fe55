package sqlite

import (
	"context"
	"database/sql"

	"github.com/tunegate/tunegate/internal/auth/domain"
)

type clientsRepo struct {
	db dbtx
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, name, secret_hash, redirect_uris, auth_method, scopes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		mapStringNull(c.SecretHash),
		joinURIs(c.RedirectURIs),
		c.AuthMethod,
		joinScopes(c.Scopes),
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, redirect_uris, auth_method, scopes, created_at, updated_at
		FROM clients WHERE id = ?`, id)

	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		c            domain.Client
		secretHash   sql.NullString
		redirectURIs string
		scopes       string
	)
	if err := row.Scan(
		&c.ID, &c.Name, &secretHash, &redirectURIs, &c.AuthMethod, &scopes,
		&c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return domain.Client{}, err
	}
	c.SecretHash = mapNullString(secretHash)
	c.RedirectURIs = splitURIs(redirectURIs)
	c.Scopes = splitScopes(scopes)
	return c, nil
}
