package selector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/difficulty"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/memrepo"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/review"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
}

func pastDate() time.Time {
	return fixedNow().AddDate(0, 0, -1)
}

func newSchedulerForTest(repo *fakeReviewRepo) *review.Scheduler {
	return review.NewScheduler(repo, fixedNow)
}

// sequentialRNG always returns 0 so pickFromPool is deterministic: it
// always takes the highest-scored remaining candidate in its window.
type sequentialRNG struct{}

func (sequentialRNG) Intn(int) int { return 0 }

func atomSet(ids ...string) map[core.AtomID]struct{} {
	out := make(map[core.AtomID]struct{}, len(ids))
	for _, id := range ids {
		out[core.AtomID(id)] = struct{}{}
	}
	return out
}

func question(id string, difficultyRating int, atoms ...string) core.Question {
	return core.Question{
		ID:               id,
		SectionCode:      "quant",
		QuestionTypeCode: "problem_solving",
		DifficultyRating: difficultyRating,
		Atoms:            atomSet(atoms...),
		CorrectChoice:    "A",
		TimeBudgetSec:    120,
	}
}

func manyQuestions(n int, difficultyRating int, atomID string) []core.Question {
	out := make([]core.Question, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, question(fmt.Sprintf("q%02d", i), difficultyRating, atomID))
	}
	return out
}

// fakeReviewRepo is a minimal repo.ReviewRepo stand-in local to this
// package's tests (review's own fake of the same name lives in
// internal/review and is unexported there).
type fakeReviewRepo struct {
	byID map[string]core.ReviewItem
}

func newFakeReviewRepo() *fakeReviewRepo {
	return &fakeReviewRepo{byID: map[string]core.ReviewItem{}}
}

func (f *fakeReviewRepo) Get(_ context.Context, id string) (core.ReviewItem, error) {
	item, ok := f.byID[id]
	if !ok {
		return core.ReviewItem{}, core.ErrNotFound
	}
	return item, nil
}

func (f *fakeReviewRepo) GetByItem(_ context.Context, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error) {
	for _, item := range f.byID {
		if item.UserID == userID && item.ItemType == itemType && item.ItemID == itemID {
			return item, nil
		}
	}
	return core.ReviewItem{}, core.ErrNotFound
}

func (f *fakeReviewRepo) Upsert(_ context.Context, item core.ReviewItem) error {
	f.byID[item.ID] = item
	return nil
}

func (f *fakeReviewRepo) Due(_ context.Context, userID string, itemType core.ReviewItemType, today time.Time, limit int) ([]core.ReviewItem, error) {
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

func TestSelect_RejectsNonPositiveCount(t *testing.T) {
	s := NewSelector(memrepo.NewQuestions(), nil, sequentialRNG{})
	_, err := s.Select(context.Background(), "u1", Criteria{Count: 0})
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestSelect_ReturnsUpToCountFromSection(t *testing.T) {
	seed := manyQuestions(20, 500, "fractions")
	s := NewSelector(memrepo.NewQuestions(seed...), nil, sequentialRNG{})

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:          difficulty.ModeBuild,
		SectionCode:   "quant",
		Count:         5,
		LearnerRating: 500,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 5)
	assert.NotEmpty(t, results)
}

func TestSelect_ExcludedIDsAreNeverReturned(t *testing.T) {
	seed := manyQuestions(10, 500, "fractions")
	excluded := map[string]struct{}{seed[0].ID: {}}
	s := NewSelector(memrepo.NewQuestions(seed...), nil, sequentialRNG{})

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:          difficulty.ModeBuild,
		SectionCode:   "quant",
		Count:         10,
		LearnerRating: 500,
		ExcludeIDs:    excluded,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, seed[0].ID, r.Question.ID)
	}
}

func TestSelect_AntiRepetitionCapIsEnforcedAcrossWholeBatch(t *testing.T) {
	// Every candidate shares the same single atom, so with a cap of 2
	// no more than 2 of the selected questions may come through.
	seed := manyQuestions(30, 500, "fractions")
	s := NewSelector(memrepo.NewQuestions(seed...), nil, sequentialRNG{})

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:                  difficulty.ModeBuild,
		SectionCode:           "quant",
		Count:                 10,
		LearnerRating:         500,
		MaxSameAtomPerSession: 2,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 2)
}

func TestSelect_ReviewModeOverrideFillsFromDueItemsFirst(t *testing.T) {
	due := question("due-1", 500, "fractions")
	other := manyQuestions(5, 500, "fractions")
	questions := memrepo.NewQuestions(append(other, due)...)

	reviewRepo := newFakeReviewRepo()
	reviewRepo.byID["r1"] = core.ReviewItem{
		ID: "r1", UserID: "u1", ItemType: core.ReviewItemQuestion, ItemID: due.ID,
		NextReviewDate: pastDate(), EaseFactor: 2.5,
	}

	sched := newSchedulerForTest(reviewRepo)
	s := NewSelector(questions, sched, sequentialRNG{})

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:          difficulty.ModeReview,
		SectionCode:   "quant",
		Count:         3,
		LearnerRating: 500,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, due.ID, results[0].Question.ID)
	assert.Equal(t, ReasonReviewDue, results[0].Reason)
}

func TestSelect_NeverReturnsTheSameQuestionTwice(t *testing.T) {
	// A spread of difficulties puts candidates into several plan
	// buckets at once; a question eligible for more than one bucket
	// must still appear at most once in the batch.
	var seed []core.Question
	for i, d := range []int{420, 450, 480, 510, 550, 620, 650, 720} {
		seed = append(seed, question(fmt.Sprintf("q%02d", i), d, "fractions", "ratios"))
	}
	s := NewSelector(memrepo.NewQuestions(seed...), nil, sequentialRNG{})

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:                  difficulty.ModeDiagnostic,
		SectionCode:           "quant",
		Count:                 8,
		LearnerRating:         500,
		MaxSameAtomPerSession: 8,
	})
	require.NoError(t, err)

	seen := map[string]struct{}{}
	for _, r := range results {
		_, dup := seen[r.Question.ID]
		assert.False(t, dup, "question %s returned twice", r.Question.ID)
		seen[r.Question.ID] = struct{}{}
	}
}

func TestSelect_WeaknessDefaultsFromMasteryRecords(t *testing.T) {
	weak := question("weak-1", 500, "fractions")
	strong := question("strong-1", 500, "circles")
	questions := memrepo.NewQuestions(weak, strong)

	mastery := memrepo.NewMastery()
	require.NoError(t, mastery.Put(context.Background(), core.AtomMastery{
		UserID: "u1", AtomID: "fractions", AttemptsTotal: 4, AttemptsCorrect: 1,
		RecentAttempts: []bool{false, false, true, false}, MasteryLevel: core.MasteryReviewing,
	}))

	s := NewSelector(questions, nil, sequentialRNG{})
	s.Mastery = mastery

	results, err := s.Select(context.Background(), "u1", Criteria{
		Mode:          difficulty.ModeBuild,
		SectionCode:   "quant",
		Count:         2,
		LearnerRating: 500,
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	// The weakness-linked question outscores its otherwise-identical
	// peer by the +20 weakness bonus.
	scores := map[string]int{}
	for _, r := range results {
		scores[r.Question.ID] = r.Score
	}
	if _, both := scores["strong-1"]; both {
		assert.Greater(t, scores["weak-1"], scores["strong-1"])
	}
}

func TestPickFromPool_RespectsAtomCapWithinASingleCall(t *testing.T) {
	s := NewSelector(nil, nil, sequentialRNG{})
	pool := []scoredCandidate{
		{question: question("a", 500, "fractions"), score: 90},
		{question: question("b", 500, "fractions"), score: 80},
		{question: question("c", 500, "ratios"), score: 70},
	}
	usage := map[core.AtomID]int{}
	picked := s.pickFromPool(pool, 3, ReasonNearRating, map[string]struct{}{}, usage, 1)
	assert.Len(t, picked, 2)

	seenAtoms := map[core.AtomID]int{}
	for _, p := range picked {
		for a := range p.Question.Atoms {
			seenAtoms[a]++
		}
	}
	for _, count := range seenAtoms {
		assert.LessOrEqual(t, count, 1)
	}
}
