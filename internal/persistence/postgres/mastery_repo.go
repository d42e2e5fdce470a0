package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// MasteryRepo implements repo.MasteryRepo against PostgreSQL.
type MasteryRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewMasteryRepo constructs a MasteryRepo.
func NewMasteryRepo(db *sqlx.DB, timeout time.Duration) *MasteryRepo {
	return &MasteryRepo{db: db, timeout: timeout}
}

func (r *MasteryRepo) Get(ctx context.Context, userID string, atomID core.AtomID) (core.AtomMastery, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, atom_id, attempts_total, attempts_correct, recent_attempts, mastery_level
		FROM atom_mastery
		WHERE user_id = $1 AND atom_id = $2`

	row := r.db.QueryRowxContext(ctx, query, userID, string(atomID))

	var m core.AtomMastery
	var atomIDStr, level string
	var recentJSON []byte
	err := row.Scan(&m.UserID, &atomIDStr, &m.AttemptsTotal, &m.AttemptsCorrect, &recentJSON, &level)
	if err == sql.ErrNoRows {
		return core.AtomMastery{}, fmt.Errorf("mastery %s/%s: %w", userID, atomID, core.ErrNotFound)
	}
	if err != nil {
		return core.AtomMastery{}, fmt.Errorf("get mastery %s/%s: %w", userID, atomID, core.ErrPersistenceFailure)
	}
	m.AtomID = core.AtomID(atomIDStr)
	m.MasteryLevel = core.MasteryLevel(level)
	if len(recentJSON) > 0 {
		if err := json.Unmarshal(recentJSON, &m.RecentAttempts); err != nil {
			return core.AtomMastery{}, fmt.Errorf("unmarshal recent attempts: %w", core.ErrPersistenceFailure)
		}
	}
	return m, nil
}

func (r *MasteryRepo) ListByUser(ctx context.Context, userID string) ([]core.AtomMastery, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, atom_id, attempts_total, attempts_correct, recent_attempts, mastery_level
		FROM atom_mastery
		WHERE user_id = $1
		ORDER BY atom_id`

	rows, err := r.db.QueryxContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list mastery for %s: %w", userID, core.ErrPersistenceFailure)
	}
	defer rows.Close()

	var out []core.AtomMastery
	for rows.Next() {
		var m core.AtomMastery
		var atomIDStr, level string
		var recentJSON []byte
		if err := rows.Scan(&m.UserID, &atomIDStr, &m.AttemptsTotal, &m.AttemptsCorrect, &recentJSON, &level); err != nil {
			return nil, fmt.Errorf("scan mastery: %w", core.ErrPersistenceFailure)
		}
		m.AtomID = core.AtomID(atomIDStr)
		m.MasteryLevel = core.MasteryLevel(level)
		if len(recentJSON) > 0 {
			if err := json.Unmarshal(recentJSON, &m.RecentAttempts); err != nil {
				return nil, fmt.Errorf("unmarshal recent attempts: %w", core.ErrPersistenceFailure)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mastery rows: %w", core.ErrPersistenceFailure)
	}
	return out, nil
}

func (r *MasteryRepo) Put(ctx context.Context, m core.AtomMastery) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	recentJSON, err := json.Marshal(m.RecentAttempts)
	if err != nil {
		return fmt.Errorf("marshal recent attempts: %w", err)
	}

	query := `
		INSERT INTO atom_mastery
		(user_id, atom_id, attempts_total, attempts_correct, recent_attempts, mastery_level)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, atom_id) DO UPDATE SET
			attempts_total = EXCLUDED.attempts_total,
			attempts_correct = EXCLUDED.attempts_correct,
			recent_attempts = EXCLUDED.recent_attempts,
			mastery_level = EXCLUDED.mastery_level`

	_, err = r.db.ExecContext(ctx, query,
		m.UserID, string(m.AtomID), m.AttemptsTotal, m.AttemptsCorrect, recentJSON, m.MasteryLevel)
	if err != nil {
		return fmt.Errorf("put mastery %s/%s: %w", m.UserID, m.AtomID, core.ErrPersistenceFailure)
	}
	return nil
}
