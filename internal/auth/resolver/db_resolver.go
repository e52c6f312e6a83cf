package resolver

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/victorxys/dify-0.15.3/internal/auth"
	"github.com/victorxys/dify-0.15.3/internal/db"
	"github.com/victorxys/dify-0.15.3/internal/logger"
)

// DBResolver keeps the account link ledger in Postgres.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.ExternalIdentity,
	internalEmail string,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}

	externalUserID := identity.User.ID
	if externalUserID == "" {
		externalUserID = identity.Identifier
	}

	// 1. Existing link for (provider, external user id)
	var (
		linkID      uuid.UUID
		storedEmail string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, internal_email
		FROM account_links
		WHERE provider = $1
		  AND external_user_id = $2
	`,
		identity.Provider,
		externalUserID,
	).Scan(&linkID, &storedEmail)

	if err == nil {
		if storedEmail != internalEmail {
			// The identifier-to-email mapping must be stable; a change
			// means a second internal account now exists for this user.
			logger.Warn("internal email changed for linked identity", map[string]any{
				"link_id":  linkID.String(),
				"previous": storedEmail,
				"current":  internalEmail,
			})
		}

		_, err = r.db.ExecContext(ctx, `
			UPDATE account_links
			SET internal_email = $2,
			    identifier = $3,
			    last_login_at = NOW()
			WHERE id = $1
		`,
			linkID,
			internalEmail,
			identity.Identifier,
		)
		if err != nil {
			return "", err
		}
		return linkID.String(), nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}

	// 2. First login: create the link
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO account_links (provider, external_user_id, identifier, internal_email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, external_user_id)
		DO UPDATE SET last_login_at = NOW()
		RETURNING id
	`,
		identity.Provider,
		externalUserID,
		identity.Identifier,
		internalEmail,
	).Scan(&linkID)

	if err != nil {
		return "", err
	}

	return linkID.String(), nil
}
