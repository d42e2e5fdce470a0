package review

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

func day(offset int) time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func TestProcessReview_RejectsOutOfRangeQuality(t *testing.T) {
	item := core.NewReviewItem("r1", "u1", core.ReviewItemAtom, "fractions", day(0))
	_, err := ProcessReview(item, 6, day(0))
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestProcessReview_LowQualityResetsRepetitions(t *testing.T) {
	item := core.ReviewItem{EaseFactor: 2.5, IntervalDays: 15, Repetitions: 3, NextReviewDate: day(0)}
	next, err := ProcessReview(item, 2, day(0))
	require.NoError(t, err)
	assert.Equal(t, 0, next.Repetitions)
	assert.Equal(t, 1, next.IntervalDays)
}

func TestProcessReview_WorkedExampleQuality4ThreeTimes(t *testing.T) {
	item := core.NewReviewItem("r1", "u1", core.ReviewItemAtom, "fractions", day(0))
	require.Equal(t, 2.5, item.EaseFactor)

	first, err := ProcessReview(item, 4, day(0))
	require.NoError(t, err)
	assert.Equal(t, 1, first.IntervalDays)
	assert.Equal(t, 1, first.Repetitions)

	second, err := ProcessReview(first, 4, day(1))
	require.NoError(t, err)
	assert.Equal(t, 6, second.IntervalDays)
	assert.Equal(t, 2, second.Repetitions)

	third, err := ProcessReview(second, 4, day(7))
	require.NoError(t, err)
	assert.Equal(t, 15, third.IntervalDays)
	assert.Equal(t, 3, third.Repetitions)
}

func TestOutcomeToQuality(t *testing.T) {
	assert.Equal(t, 5, OutcomeToQuality("clean_win"))
	assert.Equal(t, 4, OutcomeToQuality("slow_win"))
	assert.Equal(t, 3, OutcomeToQuality("lucky_win"))
	assert.Equal(t, 2, OutcomeToQuality("upset_loss"))
	assert.Equal(t, 2, OutcomeToQuality("expected_loss"))
	assert.Equal(t, 1, OutcomeToQuality("timeout"))
}

type fakeReviewRepo struct {
	byID    map[string]core.ReviewItem
	byItem  map[string]string
	dueCall int
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{byID: map[string]core.ReviewItem{}, byItem: map[string]string{}}
}

func (f *fakeReviewRepo) Get(_ context.Context, id string) (core.ReviewItem, error) {
	item, ok := f.byID[id]
	if !ok {
		return core.ReviewItem{}, core.ErrNotFound
	}
	return item, nil
}

func (f *fakeReviewRepo) GetByItem(_ context.Context, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error) {
	id, ok := f.byItem[userID+"|"+string(itemType)+"|"+itemID]
	if !ok {
		return core.ReviewItem{}, core.ErrNotFound
	}
	return f.byID[id], nil
}

func (f *fakeReviewRepo) Upsert(_ context.Context, item core.ReviewItem) error {
	f.byID[item.ID] = item
	f.byItem[item.UserID+"|"+string(item.ItemType)+"|"+item.ItemID] = item.ID
	return nil
}

func (f *fakeReviewRepo) Due(_ context.Context, userID string, itemType core.ReviewItemType, today time.Time, limit int) ([]core.ReviewItem, error) {
	f.dueCall++
	var out []core.ReviewItem
	for _, item := range f.byID {
		if item.UserID == userID && item.ItemType == itemType && item.IsOverdue(today) {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestScheduler_EnsureItemCreatesOnce(t *testing.T) {
	repo := newFakeReviewRepo()
	s := NewScheduler(repo, func() time.Time { return day(0) })

	first, err := s.EnsureItem(context.Background(), "r1", "u1", core.ReviewItemAtom, "fractions")
	require.NoError(t, err)

	second, err := s.EnsureItem(context.Background(), "r2", "u1", core.ReviewItemAtom, "fractions")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestScheduler_ProcessPersistsTransition(t *testing.T) {
	repo := newFakeReviewRepo()
	s := NewScheduler(repo, func() time.Time { return day(0) })

	item, err := s.EnsureItem(context.Background(), "r1", "u1", core.ReviewItemAtom, "fractions")
	require.NoError(t, err)

	updated, err := s.Process(context.Background(), item.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Repetitions)

	stored, err := repo.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.IntervalDays, stored.IntervalDays)
}
