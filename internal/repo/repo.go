// Package repo declares the abstract repository collaborators the
// adaptive core consumes. Every method takes a context so
// implementations may suspend on I/O — these are the only permitted
// suspension points in the system.
package repo

import (
	"context"
	"time"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// QuestionRepo resolves questions for the selector and pipeline.
type QuestionRepo interface {
	Get(ctx context.Context, id string) (core.Question, error)
	// FindByAtoms returns all questions linked to any atom in atomIDs.
	FindByAtoms(ctx context.Context, atomIDs []core.AtomID) ([]core.Question, error)
	// FindBySection returns questions in a section (or all sections if
	// sectionCode is empty) whose difficulty falls within [low, high].
	FindBySection(ctx context.Context, sectionCode string, low, high int) ([]core.Question, error)
	// IncrementTimesServed records that a question was served.
	IncrementTimesServed(ctx context.Context, id string) error
}

// RatingRepo persists per-(user, scope) rating records.
type RatingRepo interface {
	Get(ctx context.Context, userID string, scope core.ScopeKey) (core.Rating, error)
	Put(ctx context.Context, r core.Rating) error
}

// AttemptRepo appends immutable attempt records.
type AttemptRepo interface {
	Append(ctx context.Context, a core.Attempt) error
	RecentByAtom(ctx context.Context, userID string, atomID core.AtomID, limit int) ([]core.Attempt, error)
}

// MasteryRepo persists per-(user, atom) mastery records.
type MasteryRepo interface {
	Get(ctx context.Context, userID string, atomID core.AtomID) (core.AtomMastery, error)
	Put(ctx context.Context, m core.AtomMastery) error
	// ListByUser returns every mastery record for a user, used by gate
	// evaluation over "all atoms" and by the selector's default
	// weakness targeting.
	ListByUser(ctx context.Context, userID string) ([]core.AtomMastery, error)
}

// ReviewRepo persists SM-2 scheduling state.
type ReviewRepo interface {
	Get(ctx context.Context, id string) (core.ReviewItem, error)
	// GetByItem returns the review item for (itemType, itemID), or
	// core.ErrNotFound if none exists yet.
	GetByItem(ctx context.Context, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error)
	Upsert(ctx context.Context, item core.ReviewItem) error
	// Due returns items with NextReviewDate <= today, ordered by
	// (priority desc, next_review_date asc), up to limit.
	Due(ctx context.Context, userID string, itemType core.ReviewItemType, today time.Time, limit int) ([]core.ReviewItem, error)
}

// UserStateRepo persists the single per-user progression row.
type UserStateRepo interface {
	Get(ctx context.Context, userID string) (core.UserProgression, error)
	Put(ctx context.Context, p core.UserProgression) error
}
