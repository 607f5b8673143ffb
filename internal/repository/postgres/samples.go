package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/vocalid/voiceauth/internal/core/domain"
)

// SampleRepository implements port.SampleRepository using PostgreSQL.
type SampleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSampleRepository constructs a repository backed by any pgExecutor.
func NewSampleRepository(exec pgExecutor) *SampleRepository {
	return &SampleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts an accepted enrollment sample. Duration is stored in
// milliseconds.
func (r *SampleRepository) Create(ctx context.Context, sample domain.EnrollmentSample) error {
	stmt, args, err := r.builder.Insert("voiceauth.enrollment_samples").
		Columns("id", "identity_id", "session_id", "embedding", "snr_db", "duration_ms", "created_at").
		Values(sample.ID, sample.IdentityID, sample.SessionID, sample.Embedding, sample.SNRdB, sample.Duration.Milliseconds(), sample.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert sample sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

// ListBySession returns the session's samples in submission order.
func (r *SampleRepository) ListBySession(ctx context.Context, sessionID string) ([]domain.EnrollmentSample, error) {
	stmt, args, err := r.builder.Select("id", "identity_id", "session_id", "embedding", "snr_db", "duration_ms", "created_at").
		From("voiceauth.enrollment_samples").
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list samples sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	var samples []domain.EnrollmentSample
	for rows.Next() {
		var (
			sample     domain.EnrollmentSample
			durationMs int64
		)
		if err := rows.Scan(&sample.ID, &sample.IdentityID, &sample.SessionID, &sample.Embedding, &sample.SNRdB, &durationMs, &sample.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Duration = time.Duration(durationMs) * time.Millisecond
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// DeleteOrphaned purges samples never aggregated into a voiceprint whose
// session expired long ago.
func (r *SampleRepository) DeleteOrphaned(ctx context.Context, createdBefore time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("voiceauth.enrollment_samples").
		Where("voiceprint_id IS NULL").
		Where(squirrel.Lt{"created_at": createdBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete samples sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete samples: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
