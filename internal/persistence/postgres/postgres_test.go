package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

const testTimeout = 2 * time.Second

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestRatingRepoGet_MissingRowReturnsFreshRating(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT user_id, scope_type, scope_code").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	r := NewRatingRepo(db, testTimeout)
	rec, err := r.Get(context.Background(), "u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	require.NoError(t, err)

	assert.Equal(t, core.DefaultRating, rec.Value)
	assert.Equal(t, core.DefaultDeviation, rec.Deviation)
	assert.Equal(t, core.ConfidenceProvisional, rec.Confidence)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepoGet_ScansStoredRow(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{
		"user_id", "scope_type", "scope_code", "value", "deviation", "games_played",
		"games_won", "peak_rating", "current_streak", "streak_type", "last10_results",
		"last10_bands", "confidence",
	}
	mock.ExpectQuery("SELECT user_id, scope_type, scope_code").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"u1", "section", "quant", 560, 210, 14, 9, 580, 2, "win",
			[]byte(`[true,false,true]`), []byte(`[4,5,4]`), "establishing",
		))

	r := NewRatingRepo(db, testTimeout)
	rec, err := r.Get(context.Background(), "u1", core.ScopeKey{ScopeType: core.ScopeSection, ScopeCode: "quant"})
	require.NoError(t, err)

	assert.Equal(t, 560, rec.Value)
	assert.Equal(t, core.ScopeSection, rec.Scope.ScopeType)
	assert.Equal(t, core.StreakWin, rec.StreakType)
	assert.Equal(t, []bool{true, false, true}, rec.Last10Results)
	assert.Equal(t, []int{4, 5, 4}, rec.Last10Bands)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRatingRepoPut_Upserts(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO ratings").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := NewRatingRepo(db, testTimeout)
	rec := core.NewRating("u1", core.ScopeKey{ScopeType: core.ScopeGlobal})
	rec.Last10Results = []bool{true}
	rec.Last10Bands = []int{5}
	require.NoError(t, r.Put(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepoGet_MissingRowIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT id, section_code").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	r := NewQuestionRepo(db, testTimeout)
	_, err := r.Get(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQuestionRepoIncrementTimesServed_ZeroRowsIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("UPDATE questions SET times_served").
		WillReturnResult(sqlmock.NewResult(0, 0))

	r := NewQuestionRepo(db, testTimeout)
	err := r.IncrementTimesServed(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMasteryRepoListByUser_ScansAllRows(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"user_id", "atom_id", "attempts_total", "attempts_correct", "recent_attempts", "mastery_level"}
	mock.ExpectQuery("SELECT user_id, atom_id").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("u1", "fractions", 6, 5, []byte(`[false,true,true,true,true,true]`), "mastered").
			AddRow("u1", "ratios", 2, 1, []byte(`[true,false]`), "learning"))

	r := NewMasteryRepo(db, testTimeout)
	out, err := r.ListByUser(context.Background(), "u1")
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, core.AtomID("fractions"), out[0].AtomID)
	assert.Equal(t, core.MasteryMastered, out[0].MasteryLevel)
	assert.Equal(t, []bool{true, false}, out[1].RecentAttempts)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRepoDue_ScansRowsInQueryOrder(t *testing.T) {
	db, mock := newMockDB(t)
	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "user_id", "item_type", "item_id", "ease_factor", "interval_days", "repetitions", "next_review_date", "priority"}
	mock.ExpectQuery("SELECT id, user_id, item_type").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "u1", "atom", "fractions", 2.5, 6, 2, today.AddDate(0, 0, -2), 5).
			AddRow("r2", "u1", "atom", "ratios", 2.36, 1, 0, today.AddDate(0, 0, -1), 0))

	r := NewReviewRepo(db, testTimeout)
	out, err := r.Due(context.Background(), "u1", core.ReviewItemAtom, today, 10)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "r1", out[0].ID)
	assert.Equal(t, 5, out[0].Priority)
	assert.Equal(t, core.ReviewItemAtom, out[1].ItemType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStateRepoGet_MissingRowReturnsFreshProgression(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT user_id, total_xp").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	r := NewUserStateRepo(db, testTimeout)
	p, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, p.CurrentLevel)
	assert.Zero(t, p.TotalXP)
	assert.Empty(t, p.PassedGateIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserStateRepoGet_UnmarshalsGateAndAtomSets(t *testing.T) {
	db, mock := newMockDB(t)
	cols := []string{"user_id", "total_xp", "current_level", "passed_gate_ids", "mastered_atom_ids"}
	mock.ExpectQuery("SELECT user_id, total_xp").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"u1", 640, 2, []byte(`["mastery:fractions"]`), []byte(`["fractions"]`)))

	r := NewUserStateRepo(db, testTimeout)
	p, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 640, p.TotalXP)
	assert.Contains(t, p.PassedGateIDs, core.GateID("mastery:fractions"))
	assert.Contains(t, p.MasteredAtomIDs, core.AtomID("fractions"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttemptRepoAppend_InsertsOneRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("INSERT INTO attempts").
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := NewAttemptRepo(db, testTimeout)
	err := r.Append(context.Background(), core.Attempt{
		ID: "a1", QuestionID: "q1", UserID: "u1", AnsweredChoice: "A",
		IsCorrect: true, TimeSpentSec: 60, TimeBudgetSec: 120,
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
