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

// ChallengeRepository implements port.ChallengeRepository using PostgreSQL.
type ChallengeRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewChallengeRepository constructs a repository backed by any pgExecutor.
func NewChallengeRepository(exec pgExecutor) *ChallengeRepository {
	return &ChallengeRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new challenge row.
func (r *ChallengeRepository) Create(ctx context.Context, challenge domain.Challenge) error {
	stmt, args, err := r.builder.Insert("voiceauth.challenges").
		Columns("id", "identity_id", "phrase_id", "phrase_text", "created_at", "expires_at", "used_at").
		Values(challenge.ID, challenge.IdentityID, challenge.PhraseID, challenge.PhraseText, challenge.CreatedAt, challenge.ExpiresAt, challenge.UsedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert challenge sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// GetByID retrieves a challenge by primary key.
func (r *ChallengeRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	stmt, args, err := r.builder.Select("id", "identity_id", "phrase_id", "phrase_text", "created_at", "expires_at", "used_at").
		From("voiceauth.challenges").
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select challenge sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var (
		challenge  domain.Challenge
		identityID sql.NullString
		usedAt     sql.NullTime
	)
	if err := row.Scan(&challenge.ID, &identityID, &challenge.PhraseID, &challenge.PhraseText, &challenge.CreatedAt, &challenge.ExpiresAt, &usedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan challenge: %w", err)
	}
	if identityID.Valid {
		challenge.IdentityID = &identityID.String
	}
	if usedAt.Valid {
		t := usedAt.Time
		challenge.UsedAt = &t
	}
	return &challenge, nil
}

// Consume sets used_at for an unused, unexpired challenge. The guarded UPDATE
// is the atomic check-and-set: under concurrent consumers of the same id the
// row lock serializes them and only the first sees used_at IS NULL.
func (r *ChallengeRepository) Consume(ctx context.Context, id string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("voiceauth.challenges").
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": id}).
		Where("used_at IS NULL").
		Where(squirrel.Gt{"expires_at": usedAt}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build consume challenge sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// DeleteFinished removes used or expired challenges created before the
// cutoff. Expiry is judged against the caller's reference time so the sweep
// stays on the service clock.
func (r *ChallengeRepository) DeleteFinished(ctx context.Context, createdBefore, now time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("voiceauth.challenges").
		Where(squirrel.Lt{"created_at": createdBefore}).
		Where(squirrel.Or{
			squirrel.Expr("used_at IS NOT NULL"),
			squirrel.LtOrEq{"expires_at": now},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete challenges sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete challenges: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
