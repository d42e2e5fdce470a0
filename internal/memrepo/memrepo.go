// Package memrepo provides in-memory implementations of every
// repository interface in internal/repo, guarded by a sync.RWMutex
// per store. These back the CLI demo commands and the
// pipeline/selector test suites in place of a database.
package memrepo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// Questions is an in-memory QuestionRepo.
type Questions struct {
	mu   sync.RWMutex
	byID map[string]core.Question
}

// NewQuestions seeds a Questions repo with the given questions.
func NewQuestions(seed ...core.Question) *Questions {
	q := &Questions{byID: make(map[string]core.Question, len(seed))}
	for _, question := range seed {
		q.byID[question.ID] = question
	}
	return q
}

func (q *Questions) Get(_ context.Context, id string) (core.Question, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	question, ok := q.byID[id]
	if !ok {
		return core.Question{}, fmt.Errorf("question %s: %w", id, core.ErrNotFound)
	}
	return question, nil
}

func (q *Questions) FindByAtoms(_ context.Context, atomIDs []core.AtomID) ([]core.Question, error) {
	set := make(map[core.AtomID]struct{}, len(atomIDs))
	for _, a := range atomIDs {
		set[a] = struct{}{}
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []core.Question
	for _, question := range q.byID {
		if question.IntersectsAtoms(set) {
			out = append(out, question)
		}
	}
	sortQuestionsByID(out)
	return out, nil
}

func (q *Questions) FindBySection(_ context.Context, sectionCode string, low, high int) ([]core.Question, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []core.Question
	for _, question := range q.byID {
		if sectionCode != "" && question.SectionCode != sectionCode {
			continue
		}
		if question.DifficultyRating < low || question.DifficultyRating > high {
			continue
		}
		out = append(out, question)
	}
	sortQuestionsByID(out)
	return out, nil
}

func (q *Questions) IncrementTimesServed(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	question, ok := q.byID[id]
	if !ok {
		return fmt.Errorf("question %s: %w", id, core.ErrNotFound)
	}
	question.TimesServed++
	q.byID[id] = question
	return nil
}

func (q *Questions) lookup(id string) (core.Question, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	question, ok := q.byID[id]
	return question, ok
}

func sortQuestionsByID(qs []core.Question) {
	sort.Slice(qs, func(i, j int) bool { return qs[i].ID < qs[j].ID })
}

// Ratings is an in-memory RatingRepo, keyed by (userID, scope).
type Ratings struct {
	mu    sync.RWMutex
	store map[string]core.Rating
}

// NewRatings returns an empty Ratings repo.
func NewRatings() *Ratings {
	return &Ratings{store: make(map[string]core.Rating)}
}

func ratingKey(userID string, scope core.ScopeKey) string {
	return fmt.Sprintf("%s|%s|%s", userID, scope.ScopeType, scope.ScopeCode)
}

// Get returns the stored rating, or a freshly-initialized one if none exists yet.
func (r *Ratings) Get(_ context.Context, userID string, scope core.ScopeKey) (core.Rating, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rec, ok := r.store[ratingKey(userID, scope)]; ok {
		return rec, nil
	}
	return core.NewRating(userID, scope), nil
}

func (r *Ratings) Put(_ context.Context, rec core.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[ratingKey(rec.UserID, rec.Scope)] = rec
	return nil
}

// Attempts is an in-memory, append-only AttemptRepo.
type Attempts struct {
	mu   sync.RWMutex
	list []core.Attempt

	// Questions, when set, lets RecentByAtom restrict results to
	// attempts on questions exercising the requested atom (the
	// postgres implementation does this with a join; without it every
	// attempt by the user matches).
	Questions *Questions
}

// NewAttempts returns an empty Attempts repo.
func NewAttempts() *Attempts {
	return &Attempts{}
}

func (a *Attempts) Append(_ context.Context, rec core.Attempt) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.list = append(a.list, rec)
	return nil
}

func (a *Attempts) RecentByAtom(_ context.Context, userID string, atomID core.AtomID, limit int) ([]core.Attempt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []core.Attempt
	for i := len(a.list) - 1; i >= 0 && len(out) < limit; i-- {
		rec := a.list[i]
		if rec.UserID != userID {
			continue
		}
		if a.Questions != nil {
			q, ok := a.Questions.lookup(rec.QuestionID)
			if !ok || !q.HasAtom(atomID) {
				continue
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// Mastery is an in-memory MasteryRepo, keyed by (userID, atomID).
type Mastery struct {
	mu    sync.RWMutex
	store map[string]core.AtomMastery
}

// NewMastery returns an empty Mastery repo.
func NewMastery() *Mastery {
	return &Mastery{store: make(map[string]core.AtomMastery)}
}

func masteryKey(userID string, atomID core.AtomID) string {
	return fmt.Sprintf("%s|%s", userID, atomID)
}

func (m *Mastery) Get(_ context.Context, userID string, atomID core.AtomID) (core.AtomMastery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.store[masteryKey(userID, atomID)]
	if !ok {
		return core.AtomMastery{}, fmt.Errorf("mastery %s/%s: %w", userID, atomID, core.ErrNotFound)
	}
	return rec, nil
}

func (m *Mastery) Put(_ context.Context, rec core.AtomMastery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[masteryKey(rec.UserID, rec.AtomID)] = rec
	return nil
}

func (m *Mastery) ListByUser(_ context.Context, userID string) ([]core.AtomMastery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []core.AtomMastery
	for _, rec := range m.store {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AtomID < out[j].AtomID })
	return out, nil
}

// Reviews is an in-memory ReviewRepo.
type Reviews struct {
	mu        sync.RWMutex
	byID      map[string]core.ReviewItem
	byItemKey map[string]string // userID|itemType|itemID -> id
}

// NewReviews returns an empty Reviews repo.
func NewReviews() *Reviews {
	return &Reviews{
		byID:      make(map[string]core.ReviewItem),
		byItemKey: make(map[string]string),
	}
}

func itemKey(userID string, itemType core.ReviewItemType, itemID string) string {
	return fmt.Sprintf("%s|%s|%s", userID, itemType, itemID)
}

func (r *Reviews) Get(_ context.Context, id string) (core.ReviewItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.byID[id]
	if !ok {
		return core.ReviewItem{}, fmt.Errorf("review item %s: %w", id, core.ErrNotFound)
	}
	return item, nil
}

func (r *Reviews) GetByItem(_ context.Context, userID string, itemType core.ReviewItemType, itemID string) (core.ReviewItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byItemKey[itemKey(userID, itemType, itemID)]
	if !ok {
		return core.ReviewItem{}, fmt.Errorf("review item for %s/%s/%s: %w", userID, itemType, itemID, core.ErrNotFound)
	}
	return r.byID[id], nil
}

func (r *Reviews) Upsert(_ context.Context, item core.ReviewItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[item.ID] = item
	r.byItemKey[itemKey(item.UserID, item.ItemType, item.ItemID)] = item.ID
	return nil
}

func (r *Reviews) Due(_ context.Context, userID string, itemType core.ReviewItemType, today time.Time, limit int) ([]core.ReviewItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var due []core.ReviewItem
	for _, item := range r.byID {
		if item.UserID != userID || item.ItemType != itemType {
			continue
		}
		if !item.NextReviewDate.After(truncateDay(today)) {
			due = append(due, item)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].NextReviewDate.Before(due[j].NextReviewDate)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// UserStates is an in-memory UserStateRepo.
type UserStates struct {
	mu    sync.RWMutex
	store map[string]core.UserProgression
}

// NewUserStates returns an empty UserStates repo.
func NewUserStates() *UserStates {
	return &UserStates{store: make(map[string]core.UserProgression)}
}

func (u *UserStates) Get(_ context.Context, userID string) (core.UserProgression, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if rec, ok := u.store[userID]; ok {
		return rec, nil
	}
	return core.NewUserProgression(userID), nil
}

func (u *UserStates) Put(_ context.Context, rec core.UserProgression) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.store[rec.UserID] = rec
	return nil
}
