// Package progression implements the XP and level engine: outcome
// classification, the per-attempt XP formula, level thresholds, and
// level-up event emission.
package progression

import "math"

// OutcomeType classifies one attempt's result.
type OutcomeType string

const (
	OutcomeTimeout      OutcomeType = "timeout"
	OutcomeUpsetLoss    OutcomeType = "upset_loss"
	OutcomeExpectedLoss OutcomeType = "expected_loss"
	OutcomeLuckyWin     OutcomeType = "lucky_win"
	OutcomeSlowWin      OutcomeType = "slow_win"
	OutcomeCleanWin     OutcomeType = "clean_win"
)

// ClassifyOutcome is a pure function of (isCorrect, wasOvertime,
// wasGuessed, expectedWinRate). Note: "upset" here names a LOSS on a
// question the learner was favored to win (E > 0.6) — a distinct,
// unreconciled concept from the upset win bonus below.
func ClassifyOutcome(isCorrect, wasOvertime, wasGuessed bool, expectedWinRate float64) OutcomeType {
	if !isCorrect {
		if wasOvertime {
			return OutcomeTimeout
		}
		if expectedWinRate > 0.6 {
			return OutcomeUpsetLoss
		}
		return OutcomeExpectedLoss
	}

	if wasGuessed {
		return OutcomeLuckyWin
	}
	if wasOvertime {
		return OutcomeSlowWin
	}
	return OutcomeCleanWin
}

// DifficultyMatchBonus is the XP add-on for how hard the question was
// relative to the learner, keyed by the difficulty matcher's
// categories.
func DifficultyMatchBonus(category string) int {
	switch category {
	case "easy":
		return 0
	case "optimal":
		return 5
	case "hard":
		return 10
	case "stretch":
		return 20
	default:
		return 0
	}
}

// XPInput bundles the facts XPForAttempt needs.
type XPInput struct {
	Outcome           OutcomeType
	DifficultyMatch   string // "easy"|"optimal"|"hard"|"stretch"
	CurrentStreak     int
	ExpectedWinRate   float64
	TargetWinRate     float64 // the mode's target win rate; <=0.55 is "prove-like"
}

// XPForAttempt computes the XP award for one attempt. The upset win
// bonus here rewards winning against a question the learner was NOT
// favored on (E < 0.4) — intentionally independent of
// OutcomeUpsetLoss.
func XPForAttempt(in XPInput) int {
	if in.Outcome == OutcomeTimeout || in.Outcome == OutcomeUpsetLoss || in.Outcome == OutcomeExpectedLoss {
		return 0
	}

	total := 10.0 // base

	switch in.Outcome {
	case OutcomeCleanWin:
		total += 5 + 5 // fast + clean
	case OutcomeSlowWin:
		total += 0
	case OutcomeLuckyWin:
		total -= 5
	}

	if in.ExpectedWinRate < 0.4 {
		total += 10 // upset_win_bonus
	}

	total += float64(DifficultyMatchBonus(in.DifficultyMatch))

	streakBonus := in.CurrentStreak
	if streakBonus > 10 {
		streakBonus = 10
	}
	total += float64(streakBonus)

	if in.TargetWinRate > 0 && in.TargetWinRate <= 0.55 {
		total = math.Round(total * 1.5)
	}

	if total < 0 {
		total = 0
	}
	return int(total)
}

// Level is one entry in the authoritative level table.
type Level struct {
	Number int
	Name   string
	MinXP  int
}

// Levels is the authoritative 10-level table. Index 0 is level 1.
var Levels = []Level{
	{1, "Orientation", 0},
	{2, "Foundations", 500},
	{3, "Recognition", 1500},
	{4, "Easy Mastery", 3000},
	{5, "Medium Control", 5000},
	{6, "Strategy & Abandonment", 8000},
	{7, "Hard Exposure", 12000},
	{8, "Consistency", 17000},
	{9, "Elite Execution", 23000},
	{10, "Test-Day Operator", 30000},
}

// Table is an ordered level table plus the optional per-level gate
// requirements that hold advancement back until the named gates have
// been passed. The zero LevelGates map attaches no gates to any level.
type Table struct {
	Levels     []Level
	LevelGates map[int][]string // level number -> gate ids required to enter it
}

// NewTable constructs a Table; nil levels falls back to the built-in
// table.
func NewTable(levels []Level, levelGates map[int][]string) *Table {
	if levels == nil {
		levels = Levels
	}
	return &Table{Levels: levels, LevelGates: levelGates}
}

// DefaultTable returns the built-in level table with no level gates.
func DefaultTable() *Table {
	return &Table{Levels: Levels}
}

// LevelForXP returns the largest level whose MinXP <= totalXP.
func (t *Table) LevelForXP(totalXP int) int {
	level := t.Levels[0].Number
	for _, l := range t.Levels {
		if l.MinXP <= totalXP {
			level = l.Number
		} else {
			break
		}
	}
	return level
}

// Name returns the display name of a level number.
func (t *Table) Name(level int) string {
	if level < 1 || level > len(t.Levels) {
		return ""
	}
	return t.Levels[level-1].Name
}

// LevelUpEvent is emitted once per crossed threshold.
type LevelUpEvent struct {
	FromLevel int
	ToLevel   int
	LevelName string
}

// ApplyXP adds xpAwarded to priorTotalXP and returns the new total
// plus one LevelUpEvent per threshold crossed, one level at a time.
// Advancement into a level with attached gates additionally requires
// every one of those gate ids to appear in passedGates; XP keeps
// accumulating, but the level holds until the gates clear.
func (t *Table) ApplyXP(priorTotalXP, priorLevel, xpAwarded int, passedGates map[string]struct{}) (newTotalXP int, events []LevelUpEvent) {
	newTotalXP = priorTotalXP + xpAwarded
	level := priorLevel
	for level < len(t.Levels) && t.Levels[level].MinXP <= newTotalXP {
		if !t.gatesCleared(level+1, passedGates) {
			break
		}
		events = append(events, LevelUpEvent{
			FromLevel: level,
			ToLevel:   level + 1,
			LevelName: t.Levels[level].Name,
		})
		level++
	}
	return newTotalXP, events
}

func (t *Table) gatesCleared(level int, passed map[string]struct{}) bool {
	for _, g := range t.LevelGates[level] {
		if _, ok := passed[g]; !ok {
			return false
		}
	}
	return true
}

// LevelForXP returns the largest level whose MinXP <= totalXP in the
// built-in table.
func LevelForXP(totalXP int) int {
	return DefaultTable().LevelForXP(totalXP)
}

// ApplyXP applies XP against the built-in table with no level gates.
func ApplyXP(priorTotalXP, priorLevel, xpAwarded int) (int, []LevelUpEvent) {
	return DefaultTable().ApplyXP(priorTotalXP, priorLevel, xpAwarded, nil)
}
