// Package postgres implements every repo.* interface against
// PostgreSQL via sqlx and lib/pq, one file per aggregate:
// context-timeout-wrapped methods, upserts keyed on the natural
// primary key, and scan-row/scan-rows helper pairs.
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

// RatingRepo implements repo.RatingRepo against PostgreSQL.
type RatingRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRatingRepo constructs a RatingRepo.
func NewRatingRepo(db *sqlx.DB, timeout time.Duration) *RatingRepo {
	return &RatingRepo{db: db, timeout: timeout}
}

// Get returns the stored rating row, or a freshly-initialized record
// if none
// exists yet.
func (r *RatingRepo) Get(ctx context.Context, userID string, scope core.ScopeKey) (core.Rating, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT user_id, scope_type, scope_code, value, deviation, games_played,
		       games_won, peak_rating, current_streak, streak_type, last10_results,
		       last10_bands, confidence
		FROM ratings
		WHERE user_id = $1 AND scope_type = $2 AND scope_code = $3`

	row := r.db.QueryRowxContext(ctx, query, userID, scope.ScopeType, scope.ScopeCode)
	rating, err := scanRating(row)
	if err == sql.ErrNoRows {
		return core.NewRating(userID, scope), nil
	}
	if err != nil {
		return core.Rating{}, fmt.Errorf("get rating %s/%s: %w", userID, scope.ScopeType, core.ErrPersistenceFailure)
	}
	return rating, nil
}

// Put upserts one rating record, keyed by (user_id, scope_type, scope_code).
func (r *RatingRepo) Put(ctx context.Context, rec core.Rating) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	last10JSON, err := json.Marshal(rec.Last10Results)
	if err != nil {
		return fmt.Errorf("marshal last10: %w", err)
	}
	bandsJSON, err := json.Marshal(rec.Last10Bands)
	if err != nil {
		return fmt.Errorf("marshal last10 bands: %w", err)
	}

	query := `
		INSERT INTO ratings
		(user_id, scope_type, scope_code, value, deviation, games_played, games_won,
		 peak_rating, current_streak, streak_type, last10_results, last10_bands, confidence)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (user_id, scope_type, scope_code) DO UPDATE SET
			value = EXCLUDED.value,
			deviation = EXCLUDED.deviation,
			games_played = EXCLUDED.games_played,
			games_won = EXCLUDED.games_won,
			peak_rating = EXCLUDED.peak_rating,
			current_streak = EXCLUDED.current_streak,
			streak_type = EXCLUDED.streak_type,
			last10_results = EXCLUDED.last10_results,
			last10_bands = EXCLUDED.last10_bands,
			confidence = EXCLUDED.confidence`

	_, err = r.db.ExecContext(ctx, query,
		rec.UserID, rec.Scope.ScopeType, rec.Scope.ScopeCode, rec.Value, rec.Deviation,
		rec.GamesPlayed, rec.GamesWon, rec.PeakRating, rec.CurrentStreak, rec.StreakType,
		last10JSON, bandsJSON, rec.Confidence)
	if err != nil {
		return fmt.Errorf("put rating %s/%s: %w", rec.UserID, rec.Scope.ScopeType, core.ErrPersistenceFailure)
	}
	return nil
}

func scanRating(row *sqlx.Row) (core.Rating, error) {
	var rec core.Rating
	var scopeType, streakType, confidence string
	var last10JSON, bandsJSON []byte

	err := row.Scan(
		&rec.UserID, &scopeType, &rec.Scope.ScopeCode, &rec.Value, &rec.Deviation,
		&rec.GamesPlayed, &rec.GamesWon, &rec.PeakRating, &rec.CurrentStreak,
		&streakType, &last10JSON, &bandsJSON, &confidence)
	if err != nil {
		return core.Rating{}, err
	}
	rec.Scope.ScopeType = core.ScopeType(scopeType)
	rec.StreakType = core.StreakType(streakType)
	rec.Confidence = core.ConfidenceLevel(confidence)
	if len(last10JSON) > 0 {
		if err := json.Unmarshal(last10JSON, &rec.Last10Results); err != nil {
			return core.Rating{}, fmt.Errorf("unmarshal last10: %w", err)
		}
	}
	if len(bandsJSON) > 0 {
		if err := json.Unmarshal(bandsJSON, &rec.Last10Bands); err != nil {
			return core.Rating{}, fmt.Errorf("unmarshal last10 bands: %w", err)
		}
	}
	return rec, nil
}
