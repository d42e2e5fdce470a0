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

// UserStateRepo implements repo.UserStateRepo against PostgreSQL.
type UserStateRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewUserStateRepo constructs a UserStateRepo.
func NewUserStateRepo(db *sqlx.DB, timeout time.Duration) *UserStateRepo {
	return &UserStateRepo{db: db, timeout: timeout}
}

func (r *UserStateRepo) Get(ctx context.Context, userID string) (core.UserProgression, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, total_xp, current_level, passed_gate_ids, mastered_atom_ids
		FROM user_progression
		WHERE user_id = $1`

	row := r.db.QueryRowxContext(ctx, query, userID)

	var p core.UserProgression
	var passedJSON, masteredJSON []byte
	err := row.Scan(&p.UserID, &p.TotalXP, &p.CurrentLevel, &passedJSON, &masteredJSON)
	if err == sql.ErrNoRows {
		return core.NewUserProgression(userID), nil
	}
	if err != nil {
		return core.UserProgression{}, fmt.Errorf("get user state %s: %w", userID, core.ErrPersistenceFailure)
	}

	p.PassedGateIDs = make(map[core.GateID]struct{})
	p.MasteredAtomIDs = make(map[core.AtomID]struct{})
	var passedList []string
	var masteredList []string
	if len(passedJSON) > 0 {
		if err := json.Unmarshal(passedJSON, &passedList); err != nil {
			return core.UserProgression{}, fmt.Errorf("unmarshal passed gates: %w", core.ErrPersistenceFailure)
		}
	}
	if len(masteredJSON) > 0 {
		if err := json.Unmarshal(masteredJSON, &masteredList); err != nil {
			return core.UserProgression{}, fmt.Errorf("unmarshal mastered atoms: %w", core.ErrPersistenceFailure)
		}
	}
	for _, g := range passedList {
		p.PassedGateIDs[core.GateID(g)] = struct{}{}
	}
	for _, a := range masteredList {
		p.MasteredAtomIDs[core.AtomID(a)] = struct{}{}
	}
	return p, nil
}

func (r *UserStateRepo) Put(ctx context.Context, p core.UserProgression) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	passedList := make([]string, 0, len(p.PassedGateIDs))
	for g := range p.PassedGateIDs {
		passedList = append(passedList, string(g))
	}
	masteredList := make([]string, 0, len(p.MasteredAtomIDs))
	for a := range p.MasteredAtomIDs {
		masteredList = append(masteredList, string(a))
	}

	passedJSON, err := json.Marshal(passedList)
	if err != nil {
		return fmt.Errorf("marshal passed gates: %w", err)
	}
	masteredJSON, err := json.Marshal(masteredList)
	if err != nil {
		return fmt.Errorf("marshal mastered atoms: %w", err)
	}

	query := `
		INSERT INTO user_progression (user_id, total_xp, current_level, passed_gate_ids, mastered_atom_ids)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp = EXCLUDED.total_xp,
			current_level = EXCLUDED.current_level,
			passed_gate_ids = EXCLUDED.passed_gate_ids,
			mastered_atom_ids = EXCLUDED.mastered_atom_ids`

	_, err = r.db.ExecContext(ctx, query, p.UserID, p.TotalXP, p.CurrentLevel, passedJSON, masteredJSON)
	if err != nil {
		return fmt.Errorf("put user state %s: %w", p.UserID, core.ErrPersistenceFailure)
	}
	return nil
}
