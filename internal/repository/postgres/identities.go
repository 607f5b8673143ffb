package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/repository"
)

// IdentityRepository implements port.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewIdentityRepository constructs a repository backed by any pgExecutor.
func NewIdentityRepository(exec pgExecutor) *IdentityRepository {
	return &IdentityRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new identity row.
func (r *IdentityRepository) Create(ctx context.Context, identity domain.Identity) error {
	stmt, args, err := r.builder.Insert("voiceauth.identities").
		Columns("id", "external_ref", "status", "enrollment_samples", "consecutive_failures", "locked_until", "created_at", "updated_at").
		Values(identity.ID, identity.ExternalRef, string(identity.Status), identity.EnrollmentSamples, identity.ConsecutiveFailures, identity.LockedUntil, identity.CreatedAt, identity.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert identity sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by primary key.
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	stmt, args, err := r.builder.Select("id", "external_ref", "status", "enrollment_samples", "consecutive_failures", "locked_until", "created_at", "updated_at").
		From("voiceauth.identities").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select identity sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		identity    domain.Identity
		externalRef sql.NullString
		status      string
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&identity.ID, &externalRef, &status, &identity.EnrollmentSamples, &identity.ConsecutiveFailures, &lockedUntil, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	identity.Status = domain.IdentityStatus(status)
	if externalRef.Valid {
		identity.ExternalRef = &externalRef.String
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		identity.LockedUntil = &t
	}
	return &identity, nil
}

// UpdateStatus transitions the identity's lifecycle status.
func (r *IdentityRepository) UpdateStatus(ctx context.Context, id string, status domain.IdentityStatus) error {
	stmt, args, err := r.builder.Update("voiceauth.identities").
		Set("status", string(status)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update identity status sql: %w", err)
	}
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update identity status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateLockState mirrors the lockout ledger state onto the identity row.
func (r *IdentityRepository) UpdateLockState(ctx context.Context, id string, failures int, lockedUntil *time.Time) error {
	stmt, args, err := r.builder.Update("voiceauth.identities").
		Set("consecutive_failures", failures).
		Set("locked_until", lockedUntil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update lock state sql: %w", err)
	}
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update lock state: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
