package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// AttemptRepo implements repo.AttemptRepo against PostgreSQL. Attempts
// are append-only; there is no Update or Delete.
type AttemptRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewAttemptRepo constructs an AttemptRepo.
func NewAttemptRepo(db *sqlx.DB, timeout time.Duration) *AttemptRepo {
	return &AttemptRepo{db: db, timeout: timeout}
}

func (r *AttemptRepo) Append(ctx context.Context, a core.Attempt) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO attempts
		(id, question_id, user_id, answered_choice, is_correct, time_spent_sec,
		 time_budget_sec, was_guessed, was_overtime, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.QuestionID, a.UserID, a.AnsweredChoice, a.IsCorrect, a.TimeSpentSec,
		a.TimeBudgetSec, a.WasGuessed, a.WasOvertime, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("append attempt %s: %w", a.ID, core.ErrPersistenceFailure)
	}
	return nil
}

func (r *AttemptRepo) RecentByAtom(ctx context.Context, userID string, atomID core.AtomID, limit int) ([]core.Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT a.id, a.question_id, a.user_id, a.answered_choice, a.is_correct,
		       a.time_spent_sec, a.time_budget_sec, a.was_guessed, a.was_overtime, a.created_at
		FROM attempts a
		JOIN questions q ON q.id = a.question_id
		WHERE a.user_id = $1 AND $2 = ANY(q.atoms)
		ORDER BY a.created_at DESC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, userID, string(atomID), limit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts by atom %s: %w", atomID, core.ErrPersistenceFailure)
	}
	defer rows.Close()

	var out []core.Attempt
	for rows.Next() {
		var a core.Attempt
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.UserID, &a.AnsweredChoice, &a.IsCorrect,
			&a.TimeSpentSec, &a.TimeBudgetSec, &a.WasGuessed, &a.WasOvertime, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", core.ErrPersistenceFailure)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", core.ErrPersistenceFailure)
	}
	return out, nil
}
