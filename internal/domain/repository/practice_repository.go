package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"preecode/internal/common"
	"preecode/internal/domain/model"
)

type PracticeRepository interface {
	Create(ctx context.Context, p *model.PracticeSession) error
	// ListByUser returns newest first. limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error)
}

type pgPracticeRepository struct {
	db *sql.DB
}

func NewPgPracticeRepository(db *sql.DB) PracticeRepository {
	return &pgPracticeRepository{db: db}
}

func (r *pgPracticeRepository) Create(ctx context.Context, p *model.PracticeSession) error {
	query := `INSERT INTO practice_sessions (id, user_id, question, language, time_taken, hints_used, solution_viewed, date)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING created_at`
	err := r.db.QueryRowContext(ctx, query,
		p.ID, p.UserID, p.Question, p.Language, p.TimeTaken, p.HintsUsed, p.SolutionViewed, p.Date,
	).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" { // FK violation: user gone
			return common.ErrNotFound
		}
		return fmt.Errorf("pgPracticeRepository.Create: %w", err)
	}
	return nil
}

func (r *pgPracticeRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.PracticeSession, error) {
	query := `SELECT id, user_id, question, language, time_taken, hints_used, solution_viewed, date, created_at
	          FROM practice_sessions WHERE user_id = $1 ORDER BY date DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgPracticeRepository.ListByUser: %w", err)
	}
	defer rows.Close()

	sessions := []model.PracticeSession{}
	for rows.Next() {
		var p model.PracticeSession
		if err := rows.Scan(&p.ID, &p.UserID, &p.Question, &p.Language, &p.TimeTaken, &p.HintsUsed, &p.SolutionViewed, &p.Date, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgPracticeRepository.ListByUser: scan: %w", err)
		}
		sessions = append(sessions, p)
	}
	return sessions, rows.Err()
}
