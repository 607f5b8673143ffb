package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/vocalid/voiceauth/internal/core/domain"
	"github.com/vocalid/voiceauth/internal/core/port"
	"github.com/vocalid/voiceauth/internal/repository"
)

// PhraseRepository implements port.PhraseRepository using PostgreSQL.
type PhraseRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPhraseRepository constructs a repository backed by any pgExecutor.
func NewPhraseRepository(exec pgExecutor) *PhraseRepository {
	return &PhraseRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new phrase row.
func (r *PhraseRepository) Create(ctx context.Context, phrase domain.Phrase) error {
	stmt, args, err := r.builder.Insert("voiceauth.phrases").
		Columns("id", "text", "language", "difficulty", "active", "created_at").
		Values(phrase.ID, phrase.Text, phrase.Language, string(phrase.Difficulty), phrase.Active, phrase.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert phrase sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert phrase: %w", err)
	}
	return nil
}

// GetByID retrieves a phrase by primary key.
func (r *PhraseRepository) GetByID(ctx context.Context, id string) (*domain.Phrase, error) {
	stmt, args, err := r.selectColumns().
		Where(squirrel.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select phrase sql: %w", err)
	}
	row := r.exec.QueryRow(ctx, stmt, args...)
	phrase, err := scanPhrase(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan phrase: %w", err)
	}
	return phrase, nil
}

// ListEligible returns active phrases matching the filter, excluding the
// provided ids.
func (r *PhraseRepository) ListEligible(ctx context.Context, filter port.PhraseFilter) ([]domain.Phrase, error) {
	query := r.selectColumns().Where(squirrel.Eq{"active": true})
	if filter.Language != "" {
		query = query.Where(squirrel.Eq{"language": filter.Language})
	}
	if filter.Difficulty != "" {
		query = query.Where(squirrel.Eq{"difficulty": string(filter.Difficulty)})
	}
	if len(filter.ExcludeIDs) > 0 {
		query = query.Where(squirrel.NotEq{"id": filter.ExcludeIDs})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list phrases sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list phrases: %w", err)
	}
	defer rows.Close()

	var phrases []domain.Phrase
	for rows.Next() {
		phrase, err := scanPhrase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan phrase: %w", err)
		}
		phrases = append(phrases, *phrase)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate phrases: %w", err)
	}
	return phrases, nil
}

// SetActive toggles a phrase's membership in the active pool.
func (r *PhraseRepository) SetActive(ctx context.Context, id string, active bool) error {
	stmt, args, err := r.builder.Update("voiceauth.phrases").
		Set("active", active).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update phrase sql: %w", err)
	}
	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update phrase: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *PhraseRepository) selectColumns() squirrel.SelectBuilder {
	return r.builder.Select("id", "text", "language", "difficulty", "active", "created_at").
		From("voiceauth.phrases")
}

func scanPhrase(row pgx.Row) (*domain.Phrase, error) {
	var (
		phrase     domain.Phrase
		difficulty string
	)
	if err := row.Scan(&phrase.ID, &phrase.Text, &phrase.Language, &difficulty, &phrase.Active, &phrase.CreatedAt); err != nil {
		return nil, err
	}
	phrase.Difficulty = domain.PhraseDifficulty(difficulty)
	return &phrase, nil
}
