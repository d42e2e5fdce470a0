package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// ReviewRepo implements repo.ReviewRepo against PostgreSQL.
type ReviewRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewReviewRepo constructs a ReviewRepo.
func NewReviewRepo(db *sqlx.DB, timeout time.Duration) *ReviewRepo {
	return &ReviewRepo{db: db, timeout: timeout}
}

const reviewSelect = `
	SELECT id, user_id, item_type, item_id, ease_factor, interval_days,
	       repetitions, next_review_date, priority
	FROM review_items`

func (r *ReviewRepo) Get(ctx context.Context, id string) (core.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	row := r.db.QueryRowxContext(ctx, reviewSelect+" WHERE id = $1", id)
	item, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return core.ReviewItem{}, fmt.Errorf("review item %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ReviewItem{}, fmt.Errorf("get review item %s: %w", id, core.ErrPersistenceFailure)
	}
	return item, nil
}

func (r *ReviewRepo) GetByItem(ctx context.Context, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := reviewSelect + " WHERE user_id = $1 AND item_type = $2 AND item_id = $3"
	row := r.db.QueryRowxContext(ctx, query, userID, itemType, itemID)
	item, err := scanReviewItem(row)
	if err == sql.ErrNoRows {
		return core.ReviewItem{}, fmt.Errorf("review item %s/%s/%s: %w", userID, itemType, itemID, core.ErrNotFound)
	}
	if err != nil {
		return core.ReviewItem{}, fmt.Errorf("get review item by item %s: %w", itemID, core.ErrPersistenceFailure)
	}
	return item, nil
}

func (r *ReviewRepo) Upsert(ctx context.Context, item core.ReviewItem) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		INSERT INTO review_items
		(id, user_id, item_type, item_id, ease_factor, interval_days, repetitions,
		 next_review_date, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			ease_factor = EXCLUDED.ease_factor,
			interval_days = EXCLUDED.interval_days,
			repetitions = EXCLUDED.repetitions,
			next_review_date = EXCLUDED.next_review_date,
			priority = EXCLUDED.priority`

	_, err := r.db.ExecContext(ctx, query,
		item.ID, item.UserID, item.ItemType, item.ItemID, item.EaseFactor,
		item.IntervalDays, item.Repetitions, item.NextReviewDate, item.Priority)
	if err != nil {
		return fmt.Errorf("upsert review item %s: %w", item.ID, core.ErrPersistenceFailure)
	}
	return nil
}

func (r *ReviewRepo) Due(ctx context.Context, userID string, itemType core.ReviewItemType, today time.Time, limit int) ([]core.ReviewItem, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := reviewSelect + `
		WHERE user_id = $1 AND item_type = $2 AND next_review_date <= $3
		ORDER BY priority DESC, next_review_date ASC
		LIMIT $4`

	rows, err := r.db.QueryxContext(ctx, query, userID, itemType, today, limit)
	if err != nil {
		return nil, fmt.Errorf("due reviews for %s: %w", userID, core.ErrPersistenceFailure)
	}
	defer rows.Close()

	var out []core.ReviewItem
	for rows.Next() {
		item, err := scanReviewItemRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review item: %w", core.ErrPersistenceFailure)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review items: %w", core.ErrPersistenceFailure)
	}
	return out, nil
}

func scanReviewItem(row *sqlx.Row) (core.ReviewItem, error) {
	var item core.ReviewItem
	var itemType string
	err := row.Scan(&item.ID, &item.UserID, &itemType, &item.ItemID, &item.EaseFactor,
		&item.IntervalDays, &item.Repetitions, &item.NextReviewDate, &item.Priority)
	if err != nil {
		return core.ReviewItem{}, err
	}
	item.ItemType = core.ReviewItemType(itemType)
	return item, nil
}

func scanReviewItemRows(rows *sqlx.Rows) (core.ReviewItem, error) {
	var item core.ReviewItem
	var itemType string
	err := rows.Scan(&item.ID, &item.UserID, &itemType, &item.ItemID, &item.EaseFactor,
		&item.IntervalDays, &item.Repetitions, &item.NextReviewDate, &item.Priority)
	if err != nil {
		return core.ReviewItem{}, err
	}
	item.ItemType = core.ReviewItemType(itemType)
	return item, nil
}
