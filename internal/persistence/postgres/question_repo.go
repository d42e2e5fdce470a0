package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// QuestionRepo implements repo.QuestionRepo against PostgreSQL.
type QuestionRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewQuestionRepo constructs a QuestionRepo.
func NewQuestionRepo(db *sqlx.DB, timeout time.Duration) *QuestionRepo {
	return &QuestionRepo{db: db, timeout: timeout}
}

func (r *QuestionRepo) Get(ctx context.Context, id string) (core.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, questionSelect+" WHERE id = $1", id)
	q, err := scanQuestion(row)
	if err == sql.ErrNoRows {
		return core.Question{}, fmt.Errorf("question %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Question{}, fmt.Errorf("get question %s: %w", id, core.ErrPersistenceFailure)
	}
	return q, nil
}

func (r *QuestionRepo) FindByAtoms(ctx context.Context, atomIDs []core.AtomID) ([]core.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	codes := make([]string, len(atomIDs))
	for i, a := range atomIDs {
		codes[i] = string(a)
	}

	rows, err := r.db.QueryxContext(ctx, questionSelect+" WHERE atoms && $1", pq.Array(codes))
	if err != nil {
		return nil, fmt.Errorf("find by atoms: %w", core.ErrPersistenceFailure)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func (r *QuestionRepo) FindBySection(ctx context.Context, sectionCode string, low, high int) ([]core.Question, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := questionSelect + " WHERE difficulty_rating BETWEEN $1 AND $2"
	args := []interface{}{low, high}
	if sectionCode != "" {
		query += " AND section_code = $3"
		args = append(args, sectionCode)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find by section: %w", core.ErrPersistenceFailure)
	}
	defer rows.Close()
	return scanQuestions(rows)
}

func (r *QuestionRepo) IncrementTimesServed(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE questions SET times_served = times_served + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment times served %s: %w", id, core.ErrPersistenceFailure)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected %s: %w", id, core.ErrPersistenceFailure)
	}
	if n == 0 {
		return fmt.Errorf("question %s: %w", id, core.ErrNotFound)
	}
	return nil
}

const questionSelect = `
	SELECT id, section_code, topic_code, question_type_code, difficulty_rating, times_served,
	       quality_score, is_verified, source, atoms, correct_choice, time_budget_sec
	FROM questions`

func scanQuestion(row *sqlx.Row) (core.Question, error) {
	var q core.Question
	var source string
	var atomCodes pq.StringArray
	var qualityScore sql.NullFloat64

	err := row.Scan(&q.ID, &q.SectionCode, &q.TopicCode, &q.QuestionTypeCode, &q.DifficultyRating,
		&q.TimesServed, &qualityScore, &q.IsVerified, &source, &atomCodes,
		&q.CorrectChoice, &q.TimeBudgetSec)
	if err != nil {
		return core.Question{}, err
	}
	return finishQuestion(q, source, atomCodes, qualityScore), nil
}

func scanQuestionRow(rows *sqlx.Rows) (core.Question, error) {
	var q core.Question
	var source string
	var atomCodes pq.StringArray
	var qualityScore sql.NullFloat64

	err := rows.Scan(&q.ID, &q.SectionCode, &q.TopicCode, &q.QuestionTypeCode, &q.DifficultyRating,
		&q.TimesServed, &qualityScore, &q.IsVerified, &source, &atomCodes,
		&q.CorrectChoice, &q.TimeBudgetSec)
	if err != nil {
		return core.Question{}, err
	}
	return finishQuestion(q, source, atomCodes, qualityScore), nil
}

func finishQuestion(q core.Question, source string, atomCodes pq.StringArray, qualityScore sql.NullFloat64) core.Question {
	q.Source = core.QuestionSource(source)
	q.Atoms = make(map[core.AtomID]struct{}, len(atomCodes))
	for _, code := range atomCodes {
		q.Atoms[core.AtomID(code)] = struct{}{}
	}
	if qualityScore.Valid {
		v := qualityScore.Float64
		q.QualityScore = &v
	}
	return q
}

func scanQuestions(rows *sqlx.Rows) ([]core.Question, error) {
	var out []core.Question
	for rows.Next() {
		q, err := scanQuestionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", core.ErrPersistenceFailure)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", core.ErrPersistenceFailure)
	}
	return out, nil
}
