package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"preecode/internal/common"
	"preecode/internal/domain/model"
)

type SubmissionRepository interface {
	// CreateWithCounters inserts sub and, when accepted, bumps the owner's
	// solve counters in the same transaction.
	CreateWithCounters(ctx context.Context, sub *model.Submission) error
	// ListByUser returns newest first. limit <= 0 means no limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.Submission, error)
	WeakTopics(ctx context.Context, userID string, limit int) ([]model.WeakTopic, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

// counterColumn maps a difficulty to its users column. Unknown values never
// reach SQL.
func counterColumn(d model.Difficulty) string {
	switch d {
	case model.DifficultyMedium:
		return "medium_solved"
	case model.DifficultyHard:
		return "hard_solved"
	default:
		return "easy_solved"
	}
}

func (r *pgSubmissionRepository) CreateWithCounters(ctx context.Context, sub *model.Submission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateWithCounters: begin: %w", err)
	}
	defer tx.Rollback() // Rollback if not committed

	// Row lock serialises writers for the same user.
	var locked string
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, sub.UserID).Scan(&locked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		return fmt.Errorf("pgSubmissionRepository.CreateWithCounters: lock user: %w", err)
	}

	query := `INSERT INTO submissions (id, user_id, problem_name, difficulty, status, topic, time_taken, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.ProblemName, sub.Difficulty, sub.Status, sub.Topic, sub.TimeTaken, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateWithCounters: insert: %w", err)
	}

	if sub.Status == model.StatusAccepted {
		col := counterColumn(sub.Difficulty)
		update := `UPDATE users SET total_solved = total_solved + 1, ` + col + ` = ` + col + ` + 1, updated_at = now()
		           WHERE id = $1`
		if _, err := tx.ExecContext(ctx, update, sub.UserID); err != nil {
			return fmt.Errorf("pgSubmissionRepository.CreateWithCounters: counters: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateWithCounters: commit: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.Submission, error) {
	query := `SELECT id, user_id, problem_name, difficulty, status, topic, time_taken, submitted_at
	          FROM submissions WHERE user_id = $1 ORDER BY submitted_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByUser: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.UserID, &s.ProblemName, &s.Difficulty, &s.Status, &s.Topic, &s.TimeTaken, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListByUser: scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByUser: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) WeakTopics(ctx context.Context, userID string, limit int) ([]model.WeakTopic, error) {
	query := `SELECT topic, COUNT(*) AS wrong_count
	          FROM submissions
	          WHERE user_id = $1 AND status = 'wrong'
	          GROUP BY topic
	          ORDER BY wrong_count DESC, topic ASC
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.WeakTopics: %w", err)
	}
	defer rows.Close()

	topics := []model.WeakTopic{}
	for rows.Next() {
		var t model.WeakTopic
		if err := rows.Scan(&t.Topic, &t.WrongCount); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.WeakTopics: scan: %w", err)
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}
