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
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

// AttemptRepository implements the append-only verification attempt ledger
// using PostgreSQL.
type AttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAttemptRepository constructs a repository backed by any pgExecutor.
func NewAttemptRepository(exec pgExecutor) *AttemptRepository {
	return &AttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts an undecided attempt row.
func (r *AttemptRepository) Create(ctx context.Context, attempt domain.VerificationAttempt) error {
	stmt, args, err := r.builder.Insert("voiceauth.verification_attempts").
		Columns("id", "identity_id", "challenge_id", "session_id", "decided", "accepted", "reason", "similarity", "spoof_prob", "phrase_match", "latency_ms", "created_at", "decided_at").
		Values(attempt.ID, attempt.IdentityID, attempt.ChallengeID, attempt.SessionID, attempt.Decided, attempt.Accepted, nullableReason(attempt.Reason), nil, nil, nil, nil, attempt.CreatedAt, attempt.DecidedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attempt sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// Decide transitions an attempt from undecided to decided exactly once. The
// guard on decided = false makes the transition irreversible: a decided row
// never matches again.
func (r *AttemptRepository) Decide(ctx context.Context, id string, decision port.AttemptDecision) error {
	update := r.builder.Update("voiceauth.verification_attempts").
		Set("decided", true).
		Set("accepted", decision.Accepted).
		Set("reason", string(decision.Reason)).
		Set("latency_ms", decision.Latency.Milliseconds()).
		Set("decided_at", decision.DecidedAt).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"decided": false})
	if decision.Scores != nil {
		update = update.
			Set("similarity", decision.Scores.Similarity).
			Set("spoof_prob", decision.Scores.SpoofProb).
			Set("phrase_match", decision.Scores.PhraseMatch)
	}

	stmt, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build decide attempt sql: %w", err)
	}
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("decide attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetByID retrieves one attempt.
func (r *AttemptRepository) GetByID(ctx context.Context, id string) (*domain.VerificationAttempt, error) {
	stmt, args, err := r.selectColumns().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select attempt sql: %w", err)
	}
	attempt, err := scanAttempt(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	return attempt, nil
}

// ListByIdentity returns the identity's attempts, newest first.
func (r *AttemptRepository) ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.VerificationAttempt, error) {
	query := r.selectColumns().
		Where(squirrel.Eq{"identity_id": identityID}).
		OrderBy("created_at DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list attempts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.VerificationAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, *attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// DeleteDecidedBefore purges decided attempts past the retention window.
// Undecided rows are never touched.
func (r *AttemptRepository) DeleteDecidedBefore(ctx context.Context, decidedBefore time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("voiceauth.verification_attempts").
		Where(squirrel.Eq{"decided": true}).
		Where(squirrel.Lt{"decided_at": decidedBefore}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete attempts sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

func (r *AttemptRepository) selectColumns() squirrel.SelectBuilder {
	return r.builder.Select("id", "identity_id", "challenge_id", "session_id", "decided", "accepted", "reason", "similarity", "spoof_prob", "phrase_match", "latency_ms", "created_at", "decided_at").
		From("voiceauth.verification_attempts")
}

func scanAttempt(row pgx.Row) (*domain.VerificationAttempt, error) {
	var (
		attempt     domain.VerificationAttempt
		identityID  sql.NullString
		sessionID   sql.NullString
		accepted    sql.NullBool
		reason      sql.NullString
		similarity  sql.NullFloat64
		spoofProb   sql.NullFloat64
		phraseMatch sql.NullFloat64
		latencyMs   sql.NullInt64
		decidedAt   sql.NullTime
	)
	if err := row.Scan(&attempt.ID, &identityID, &attempt.ChallengeID, &sessionID, &attempt.Decided, &accepted, &reason, &similarity, &spoofProb, &phraseMatch, &latencyMs, &attempt.CreatedAt, &decidedAt); err != nil {
		return nil, err
	}
	if identityID.Valid {
		attempt.IdentityID = &identityID.String
	}
	if sessionID.Valid {
		attempt.SessionID = &sessionID.String
	}
	if accepted.Valid {
		attempt.Accepted = &accepted.Bool
	}
	if reason.Valid {
		attempt.Reason = domain.DecisionReason(reason.String)
	}
	if similarity.Valid && spoofProb.Valid && phraseMatch.Valid {
		attempt.Scores = &domain.SignalScores{
			Similarity:  similarity.Float64,
			SpoofProb:   spoofProb.Float64,
			PhraseMatch: phraseMatch.Float64,
		}
	}
	if latencyMs.Valid {
		attempt.Latency = time.Duration(latencyMs.Int64) * time.Millisecond
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		attempt.DecidedAt = &t
	}
	return &attempt, nil
}

func nullableReason(reason domain.DecisionReason) *string {
	if reason == "" {
		return nil
	}
	s := string(reason)
	return &s
}
