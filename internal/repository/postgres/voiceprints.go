package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/repository"
)

// VoiceprintRepository implements port.VoiceprintRepository using PostgreSQL.
// The current template lives in voiceauth.voiceprints (one row per identity);
// replaced templates are appended to voiceauth.voiceprint_history.
type VoiceprintRepository struct {
	pool    *pgxpool.Pool
	builder squirrel.StatementBuilderType
}

// NewVoiceprintRepository constructs a repository backed by the pool. Replace
// needs transaction control, so this repository keeps the pool rather than a
// bare executor.
func NewVoiceprintRepository(pool *pgxpool.Pool) *VoiceprintRepository {
	return &VoiceprintRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetCurrent retrieves the identity's current voiceprint.
func (r *VoiceprintRepository) GetCurrent(ctx context.Context, identityID string) (*domain.Voiceprint, error) {
	stmt, args, err := r.builder.Select("id", "identity_id", "embedding", "sample_count", "model_version", "created_at", "updated_at").
		From("voiceauth.voiceprints").
		Where(squirrel.Eq{"identity_id": identityID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select voiceprint sql: %w", err)
	}

	row := r.pool.QueryRow(ctx, stmt, args...)

	var voiceprint domain.Voiceprint
	if err := row.Scan(&voiceprint.ID, &voiceprint.IdentityID, &voiceprint.Embedding, &voiceprint.SampleCount, &voiceprint.ModelVersion, &voiceprint.CreatedAt, &voiceprint.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan voiceprint: %w", err)
	}
	return &voiceprint, nil
}

// Replace installs a new current voiceprint inside one transaction: any
// existing current row is appended to history first, the session's samples
// are bound to the new template, and the identity's sample count is updated.
// The singularity invariant holds at every commit point.
func (r *VoiceprintRepository) Replace(ctx context.Context, voiceprint domain.Voiceprint, sessionID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace voiceprint: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := r.currentForUpdate(ctx, tx, voiceprint.IdentityID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	if current != nil {
		if err := r.appendHistory(ctx, tx, *current); err != nil {
			return err
		}
		stmt, args, err := r.builder.Delete("voiceauth.voiceprints").
			Where(squirrel.Eq{"id": current.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete voiceprint sql: %w", err)
		}
		if _, err := tx.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("retire voiceprint: %w", err)
		}
	}

	stmt, args, err := r.builder.Insert("voiceauth.voiceprints").
		Columns("id", "identity_id", "embedding", "sample_count", "model_version", "created_at", "updated_at").
		Values(voiceprint.ID, voiceprint.IdentityID, voiceprint.Embedding, voiceprint.SampleCount, voiceprint.ModelVersion, voiceprint.CreatedAt, voiceprint.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert voiceprint sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert voiceprint: %w", err)
	}

	stmt, args, err = r.builder.Update("voiceauth.enrollment_samples").
		Set("voiceprint_id", voiceprint.ID).
		Where(squirrel.Eq{"session_id": sessionID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build bind samples sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("bind samples: %w", err)
	}

	stmt, args, err = r.builder.Update("voiceauth.identities").
		Set("enrollment_samples", voiceprint.SampleCount).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": voiceprint.IdentityID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update identity samples sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update identity samples: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace voiceprint: %w", err)
	}
	return nil
}

// History returns the append-only trail of replaced voiceprints, newest first.
func (r *VoiceprintRepository) History(ctx context.Context, identityID string) ([]domain.VoiceprintHistoryEntry, error) {
	stmt, args, err := r.builder.Select("id", "identity_id", "voiceprint_id", "embedding", "sample_count", "model_version", "created_at", "retired_at").
		From("voiceauth.voiceprint_history").
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("retired_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select history sql: %w", err)
	}

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []domain.VoiceprintHistoryEntry
	for rows.Next() {
		var entry domain.VoiceprintHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.IdentityID, &entry.VoiceprintID, &entry.Embedding, &entry.SampleCount, &entry.ModelVersion, &entry.CreatedAt, &entry.RetiredAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (r *VoiceprintRepository) currentForUpdate(ctx context.Context, tx pgx.Tx, identityID string) (*domain.Voiceprint, error) {
	stmt, args, err := r.builder.Select("id", "identity_id", "embedding", "sample_count", "model_version", "created_at", "updated_at").
		From("voiceauth.voiceprints").
		Where(squirrel.Eq{"identity_id": identityID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lock voiceprint sql: %w", err)
	}

	row := tx.QueryRow(ctx, stmt, args...)
	var voiceprint domain.Voiceprint
	if err := row.Scan(&voiceprint.ID, &voiceprint.IdentityID, &voiceprint.Embedding, &voiceprint.SampleCount, &voiceprint.ModelVersion, &voiceprint.CreatedAt, &voiceprint.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock voiceprint: %w", err)
	}
	return &voiceprint, nil
}

func (r *VoiceprintRepository) appendHistory(ctx context.Context, tx pgx.Tx, retired domain.Voiceprint) error {
	stmt, args, err := r.builder.Insert("voiceauth.voiceprint_history").
		Columns("id", "identity_id", "voiceprint_id", "embedding", "sample_count", "model_version", "created_at", "retired_at").
		Values(uuid.NewString(), retired.IdentityID, retired.ID, retired.Embedding, retired.SampleCount, retired.ModelVersion, retired.CreatedAt, time.Now().UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert history sql: %w", err)
	}
	if _, err := tx.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}
