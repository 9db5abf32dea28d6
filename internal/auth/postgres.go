package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// PostgresRepository implements Repository over a Postgres identities
// table. Login-state updates run in a transaction holding a row lock, so
// concurrent attempts against one identity serialize instead of losing
// increments.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, username, email, credential_hash, active, failure_count, locked_until, last_authenticated_at, created_at, updated_at`

func (r *PostgresRepository) FindByUsernameOrEmail(ctx context.Context, identifier string) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE username = $1 OR lower(email) = lower($1)
	`, identifier)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("query identity by identifier: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
	`, id)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("query identity by id: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) Create(ctx context.Context, identity Identity) (Identity, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Identity{}, fmt.Errorf("generate identity id: %w", err)
	}

	now := time.Now().UTC()
	identity.ID = id.String()
	identity.CreatedAt = now
	identity.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO identities (id, username, email, credential_hash, active, failure_count, locked_until, last_authenticated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, identity.ID, identity.Username, identity.Email, identity.CredentialHash,
		identity.Active, identity.FailureCount, nullTime(identity.LockedUntil),
		nullTime(identity.LastAuthenticatedAt), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Identity{}, ErrAlreadyExists
		}
		return Identity{}, fmt.Errorf("insert identity: %w", err)
	}

	return identity, nil
}

func (r *PostgresRepository) Update(ctx context.Context, identity Identity) (Identity, error) {
	now := time.Now().UTC()
	identity.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET credential_hash = $2,
		    active = $3,
		    failure_count = $4,
		    locked_until = $5,
		    last_authenticated_at = $6,
		    updated_at = $7
		WHERE id = $1
	`, identity.ID, identity.CredentialHash, identity.Active, identity.FailureCount,
		nullTime(identity.LockedUntil), nullTime(identity.LastAuthenticatedAt), now)
	if err != nil {
		return Identity{}, fmt.Errorf("update identity: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return Identity{}, fmt.Errorf("update identity rows affected: %w", err)
	}
	if affected == 0 {
		return Identity{}, ErrIdentityNotFound
	}

	return identity, nil
}

func (r *PostgresRepository) RecordLoginFailure(ctx context.Context, id string, policy LockoutPolicy, now time.Time) (Identity, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Identity{}, fmt.Errorf("begin login failure tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE id = $1
		FOR UPDATE
	`, id)

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("lock identity row: %w", err)
	}

	policy.RegisterFailure(&identity, now)
	identity.UpdatedAt = now.UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE identities
		SET failure_count = $2, locked_until = $3, updated_at = $4
		WHERE id = $1
	`, identity.ID, identity.FailureCount, nullTime(identity.LockedUntil), identity.UpdatedAt)
	if err != nil {
		return Identity{}, fmt.Errorf("record login failure: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Identity{}, fmt.Errorf("commit login failure tx: %w", err)
	}
	return identity, nil
}

func (r *PostgresRepository) RecordLoginSuccess(ctx context.Context, id string, now time.Time) (Identity, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE identities
		SET failure_count = 0,
		    locked_until = NULL,
		    last_authenticated_at = $2,
		    updated_at = $2
		WHERE id = $1
		RETURNING `+identityColumns+`
	`, id, now.UTC())

	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, ErrIdentityNotFound
		}
		return Identity{}, fmt.Errorf("record login success: %w", err)
	}
	return identity, nil
}

// ClearStaleLockouts zeroes lockout state that has been inert longer than
// retention: the lock expired before the cutoff and no attempt has
// touched the record since. Batched so a cron caller cannot hold long
// row locks.
func (r *PostgresRepository) ClearStaleLockouts(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM identities
			WHERE (failure_count > 0 OR locked_until IS NOT NULL)
			  AND (locked_until IS NULL OR locked_until < NOW())
			  AND updated_at < $1
			ORDER BY updated_at ASC
			LIMIT $2
		)
		UPDATE identities t
		SET failure_count = 0, locked_until = NULL, updated_at = NOW()
		FROM stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("clear stale lockouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale lockouts rows affected: %w", err)
	}
	return affected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (Identity, error) {
	var identity Identity
	var lockedUntil, lastAuthenticatedAt sql.NullTime

	err := row.Scan(
		&identity.ID,
		&identity.Username,
		&identity.Email,
		&identity.CredentialHash,
		&identity.Active,
		&identity.FailureCount,
		&lockedUntil,
		&lastAuthenticatedAt,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return Identity{}, err
	}

	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		identity.LockedUntil = &value
	}
	if lastAuthenticatedAt.Valid {
		value := lastAuthenticatedAt.Time.UTC()
		identity.LastAuthenticatedAt = &value
	}
	return identity, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
