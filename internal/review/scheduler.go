// Package review implements the spaced-repetition scheduler: the SM-2
// state transition and the due-items query. The pure transition
// (ProcessReview) never touches a repository; Scheduler composes it
// with repo.ReviewRepo for the external-facing process-review and
// due-reviews operations.
package review

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/cache"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repo"
)

// dueListTTL bounds how long a cached due-review list survives before
// the next query hits the repository again.
const dueListTTL = 15 * time.Second

// ProcessReview applies one SM-2 transition to item given a quality
// grade in [0,5]. today is the caller-supplied "now" so the
// transition stays pure and testable.
func ProcessReview(item core.ReviewItem, quality int, today time.Time) (core.ReviewItem, error) {
	if quality < 0 || quality > 5 {
		return core.ReviewItem{}, fmt.Errorf("quality %d out of [0,5]: %w", quality, core.ErrInvalidInput)
	}

	next := item

	if quality < 3 {
		next.Repetitions = 0
		next.IntervalDays = 1
	} else {
		switch next.Repetitions {
		case 0:
			next.IntervalDays = 1
		case 1:
			next.IntervalDays = 6
		default:
			next.IntervalDays = int(math.Round(float64(next.IntervalDays) * next.EaseFactor))
		}
		next.Repetitions++
	}

	q := float64(quality)
	delta := 0.1 - (5-q)*(0.08+(5-q)*0.02)
	next.EaseFactor = math.Max(1.3, next.EaseFactor+delta)

	next.NextReviewDate = truncateDay(today).AddDate(0, 0, next.IntervalDays)

	return next, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// OutcomeToQuality maps an attempt outcome type to the SM-2 quality
// grade used to drive review scheduling.
func OutcomeToQuality(outcome string) int {
	switch outcome {
	case "clean_win":
		return 5
	case "slow_win":
		return 4
	case "lucky_win":
		return 3
	case "upset_loss", "expected_loss":
		return 2
	case "timeout":
		return 1
	default:
		return 2
	}
}

// Scheduler composes the pure SM-2 transition with a ReviewRepo.
type Scheduler struct {
	Reviews repo.ReviewRepo
	Now     func() time.Time

	// Cache, when set, read-throughs due_reviews queries.
	Cache cache.Cache
}

// NewScheduler constructs a Scheduler; now defaults to time.Now if nil.
func NewScheduler(reviews repo.ReviewRepo, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{Reviews: reviews, Now: now}
}

// Process loads the review item, applies the SM-2 transition, then
// persists and returns the new state.
func (s *Scheduler) Process(ctx context.Context, reviewID string, quality int) (core.ReviewItem, error) {
	item, err := s.Reviews.Get(ctx, reviewID)
	if err != nil {
		return core.ReviewItem{}, fmt.Errorf("load review item %s: %w", reviewID, err)
	}

	next, err := ProcessReview(item, quality, s.Now())
	if err != nil {
		return core.ReviewItem{}, err
	}

	if err := s.Reviews.Upsert(ctx, next); err != nil {
		return core.ReviewItem{}, fmt.Errorf("persist review item %s: %w", reviewID, err)
	}
	if s.Cache != nil {
		_ = s.Cache.Invalidate(ctx, cache.DueReviewsKey(next.UserID, string(next.ItemType)))
	}

	return next, nil
}

// Due returns the due review items for a user.
func (s *Scheduler) Due(ctx context.Context, userID string, itemType core.ReviewItemType, limit int) ([]core.ReviewItem, error) {
	key := cache.DueReviewsKey(userID, string(itemType))
	if s.Cache != nil {
		var cached []core.ReviewItem
		if hit, _ := s.Cache.Get(ctx, key, &cached); hit {
			if limit > 0 && len(cached) > limit {
				cached = cached[:limit]
			}
			return cached, nil
		}
	}

	items, err := s.Reviews.Due(ctx, userID, itemType, s.Now(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due reviews: %w", err)
	}
	if s.Cache != nil {
		_ = s.Cache.Set(ctx, key, items, dueListTTL)
	}
	return items, nil
}

// EnsureItem returns the existing review item for (itemType, itemID)
// for a user, or creates and persists a fresh one if none exists yet.
func (s *Scheduler) EnsureItem(ctx context.Context, id, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error) {
	existing, err := s.Reviews.GetByItem(ctx, userID, itemType, itemID)
	if err == nil {
		return existing, nil
	}

	fresh := core.NewReviewItem(id, userID, itemType, itemID, s.Now())
	if err := s.Reviews.Upsert(ctx, fresh); err != nil {
		return core.ReviewItem{}, fmt.Errorf("create review item %s: %w", id, err)
	}
	return fresh, nil
}
