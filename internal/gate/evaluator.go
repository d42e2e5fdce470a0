// Package gate implements the mastery gate evaluator: a tagged-union
// Requirement (accuracy / consistency / volume / timing / streak /
// composite) evaluated against mastery data into a GateStatus with
// progress reporting. Composite requirements form an explicit,
// weighted tree rather than an open class hierarchy.
package gate

import (
	"fmt"
	"math"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
)

// RequirementKind tags which variant a Requirement holds.
type RequirementKind string

const (
	KindAccuracy    RequirementKind = "accuracy"
	KindConsistency RequirementKind = "consistency"
	KindVolume      RequirementKind = "volume"
	KindTiming      RequirementKind = "timing"
	KindStreak      RequirementKind = "streak"
	KindComposite   RequirementKind = "composite"
)

// Requirement is a tagged union. Exactly one variant's fields are
// meaningful for a given Kind; Description is always human-readable
// text shown in progress reporting.
type Requirement struct {
	Kind        RequirementKind
	Description string

	// Accuracy
	Threshold    float64
	MinAttempts  int
	WindowSize   int // 0 means "no window, use overall"
	AtomIDs      map[core.AtomID]struct{}

	// Volume
	CorrectOnly bool

	// Timing
	BudgetMultiplier float64

	// Composite
	Requirements []Requirement
	PassingMode  core.PassingMode
	Weights      map[int]float64 // index into Requirements -> weight
}

// Gate is a declarative composite mastery condition. Definitions are
// read-only; evaluation is derived on demand and never persisted.
type Gate struct {
	ID          core.GateID
	Name        string
	Description string
	Requirement Requirement
	AtomIDs     map[core.AtomID]struct{} // nil means "all atoms"
	XPReward    int
}

// TimingSample records one correct attempt's time spent against its
// budget, consumed by the Timing requirement.
type TimingSample struct {
	SpentSec  int
	BudgetSec int
}

// AtomStat is the per-atom performance data the evaluator needs. It is
// a read-only projection of core.AtomMastery plus the attempt facts
// (time spent vs budget) that AtomMastery alone doesn't retain.
type AtomStat struct {
	AtomID         core.AtomID
	AttemptsTotal  int
	AttemptsCorrect int
	RecentResults  []bool // oldest first, used for Consistency/Streak
	// Timings holds (spent, budget) pairs for correct attempts only,
	// oldest first — the Timing requirement applies its own budget
	// multiplier to each.
	Timings []TimingSample
}

// Progress is the evaluated state for one requirement.
type Progress struct {
	Status          core.GateStatus
	CurrentValue    float64
	RequiredValue   float64
	PercentComplete float64
	Description     string
	Details         map[string]Progress // populated for composite requirements
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func statusFor(percent float64) core.GateStatus {
	switch {
	case percent >= 100:
		return core.StatusPassed
	case percent <= 0:
		return core.StatusLocked
	default:
		return core.StatusInProgress
	}
}

// filterAtoms returns the subset of stats whose AtomID is in ids, or
// all of stats if ids is nil.
func filterAtoms(stats []AtomStat, ids map[core.AtomID]struct{}) []AtomStat {
	if ids == nil {
		return stats
	}
	out := make([]AtomStat, 0, len(stats))
	for _, s := range stats {
		if _, ok := ids[s.AtomID]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Evaluate recursively evaluates req against the supplied per-atom
// stats, dispatching on Kind.
func Evaluate(req Requirement, stats []AtomStat) Progress {
	switch req.Kind {
	case KindAccuracy:
		return evaluateAccuracy(req, stats)
	case KindConsistency:
		return evaluateConsistency(req, stats)
	case KindVolume:
		return evaluateVolume(req, stats)
	case KindTiming:
		return evaluateTiming(req, stats)
	case KindStreak:
		return evaluateStreak(req, stats)
	case KindComposite:
		return evaluateComposite(req, stats)
	default:
		return Progress{Status: core.StatusLocked, Description: fmt.Sprintf("unknown requirement kind %q", req.Kind)}
	}
}

func evaluateAccuracy(req Requirement, stats []AtomStat) Progress {
	subset := filterAtoms(stats, req.AtomIDs)

	totalAttempts, totalCorrect := 0, 0
	var windowCorrect, windowTotal int
	for _, s := range subset {
		totalAttempts += s.AttemptsTotal
		totalCorrect += s.AttemptsCorrect
		if req.WindowSize > 0 {
			recent := s.RecentResults
			if len(recent) > req.WindowSize {
				recent = recent[len(recent)-req.WindowSize:]
			}
			for _, r := range recent {
				windowTotal++
				if r {
					windowCorrect++
				}
			}
		}
	}

	accuracy := 0.0
	if req.WindowSize > 0 {
		if windowTotal > 0 {
			accuracy = float64(windowCorrect) / float64(windowTotal)
		}
	} else if totalAttempts > 0 {
		accuracy = float64(totalCorrect) / float64(totalAttempts)
	}

	accuracyPct := 0.0
	if req.Threshold > 0 {
		accuracyPct = accuracy / req.Threshold * 100
	}
	volumePct := 0.0
	if req.MinAttempts > 0 {
		volumePct = float64(totalAttempts) / float64(req.MinAttempts) * 100
	} else {
		volumePct = 100
	}

	percent := math.Min(accuracyPct, volumePct)
	passed := accuracy >= req.Threshold && totalAttempts >= req.MinAttempts
	if passed {
		percent = 100
	}

	return Progress{
		Status:          statusFor(clampPercent(percent)),
		CurrentValue:    accuracy,
		RequiredValue:   req.Threshold,
		PercentComplete: clampPercent(percent),
		Description:     req.Description,
	}
}

func evaluateConsistency(req Requirement, stats []AtomStat) Progress {
	subset := filterAtoms(stats, req.AtomIDs)

	var window []bool
	for _, s := range subset {
		window = append(window, s.RecentResults...)
	}
	if len(window) > req.WindowSize && req.WindowSize > 0 {
		window = window[len(window)-req.WindowSize:]
	}

	stddev := stddevBool(window)
	passed := len(window) > 0 && stddev <= req.Threshold

	percent := 0.0
	if len(window) == 0 {
		percent = 0
	} else if req.Threshold > 0 {
		// Lower stddev is better; invert toward 100 at stddev==0.
		percent = clampPercent((1 - stddev/math.Max(req.Threshold, 0.0001)) * 100)
		if passed {
			percent = 100
		}
	}

	return Progress{
		Status:          statusFor(percent),
		CurrentValue:    stddev,
		RequiredValue:   req.Threshold,
		PercentComplete: percent,
		Description:     req.Description,
	}
}

func stddevBool(window []bool) float64 {
	if len(window) == 0 {
		return 0
	}
	n := float64(len(window))
	mean := 0.0
	for _, v := range window {
		if v {
			mean++
		}
	}
	mean /= n
	variance := 0.0
	for _, v := range window {
		x := 0.0
		if v {
			x = 1.0
		}
		variance += (x - mean) * (x - mean)
	}
	variance /= n
	return math.Sqrt(variance)
}

func evaluateVolume(req Requirement, stats []AtomStat) Progress {
	subset := filterAtoms(stats, req.AtomIDs)

	total := 0
	for _, s := range subset {
		if req.CorrectOnly {
			total += s.AttemptsCorrect
		} else {
			total += s.AttemptsTotal
		}
	}

	percent := 0.0
	if req.Threshold > 0 {
		percent = clampPercent(float64(total) / req.Threshold * 100)
	}

	return Progress{
		Status:          statusFor(percent),
		CurrentValue:    float64(total),
		RequiredValue:   req.Threshold,
		PercentComplete: percent,
		Description:     req.Description,
	}
}

func evaluateTiming(req Requirement, stats []AtomStat) Progress {
	subset := filterAtoms(stats, req.AtomIDs)

	mult := req.BudgetMultiplier
	if mult <= 0 {
		mult = 1.0
	}

	withinBudget, total := 0, 0
	for _, s := range subset {
		for _, ts := range s.Timings {
			total++
			if float64(ts.SpentSec) <= float64(ts.BudgetSec)*mult {
				withinBudget++
			}
		}
	}

	fraction := 0.0
	if total > 0 {
		fraction = float64(withinBudget) / float64(total)
	}

	percent := 0.0
	if req.Threshold > 0 {
		percent = clampPercent(fraction / req.Threshold * 100)
	}

	return Progress{
		Status:          statusFor(percent),
		CurrentValue:    fraction,
		RequiredValue:   req.Threshold,
		PercentComplete: percent,
		Description:     req.Description,
	}
}

func evaluateStreak(req Requirement, stats []AtomStat) Progress {
	subset := filterAtoms(stats, req.AtomIDs)

	best := 0
	for _, s := range subset {
		cur := 0
		for _, r := range s.RecentResults {
			if r {
				cur++
				if cur > best {
					best = cur
				}
			} else {
				cur = 0
			}
		}
	}

	percent := 0.0
	if req.Threshold > 0 {
		percent = clampPercent(float64(best) / req.Threshold * 100)
	}

	return Progress{
		Status:          statusFor(percent),
		CurrentValue:    float64(best),
		RequiredValue:   req.Threshold,
		PercentComplete: percent,
		Description:     req.Description,
	}
}

func evaluateComposite(req Requirement, stats []AtomStat) Progress {
	details := make(map[string]Progress, len(req.Requirements))
	subProgress := make([]Progress, len(req.Requirements))
	for i, sub := range req.Requirements {
		p := Evaluate(sub, stats)
		subProgress[i] = p
		details[fmt.Sprintf("%d:%s", i, sub.Kind)] = p
	}

	var percent float64
	switch req.PassingMode {
	case core.PassingAll:
		percent = 100
		for _, p := range subProgress {
			if p.PercentComplete < percent {
				percent = p.PercentComplete
			}
		}
	case core.PassingAny:
		percent = 0
		for _, p := range subProgress {
			if p.PercentComplete > percent {
				percent = p.PercentComplete
			}
		}
	case core.PassingWeighted:
		passedWeight := 0.0
		for i, p := range subProgress {
			if p.Status == core.StatusPassed {
				passedWeight += req.Weights[i]
			}
		}
		if req.Threshold > 0 {
			percent = clampPercent(passedWeight / req.Threshold * 100)
		}
	}

	return Progress{
		Status:          statusFor(clampPercent(percent)),
		CurrentValue:    clampPercent(percent),
		RequiredValue:   100,
		PercentComplete: clampPercent(percent),
		Description:     req.Description,
		Details:         details,
	}
}

// MasteryGateParams are the tunable thresholds behind the per-atom
// mastery gate. The zero value is not usable; start from
// DefaultMasteryGateParams and override.
type MasteryGateParams struct {
	AccuracyThreshold float64
	MinAttempts       int
	MinStreak         int
	XPReward          int
}

// DefaultMasteryGateParams returns the built-in mastery thresholds:
// accuracy>=0.80, volume>=5, streak>=3, 100 XP.
func DefaultMasteryGateParams() MasteryGateParams {
	return MasteryGateParams{
		AccuracyThreshold: 0.80,
		MinAttempts:       5,
		MinStreak:         3,
		XPReward:          100,
	}
}

// Gate builds the composite-all mastery gate for one atom from the
// parameter set.
func (p MasteryGateParams) Gate(id core.GateID, atomID core.AtomID) Gate {
	atomSet := map[core.AtomID]struct{}{atomID: {}}
	return Gate{
		ID:          id,
		Name:        "Atom Mastery",
		Description: fmt.Sprintf("Master atom %s", atomID),
		AtomIDs:     atomSet,
		XPReward:    p.XPReward,
		Requirement: Requirement{
			Kind: KindComposite,
			Description: fmt.Sprintf("%.0f%% accuracy, %d+ attempts, %d+ streak",
				p.AccuracyThreshold*100, p.MinAttempts, p.MinStreak),
			PassingMode: core.PassingAll,
			Requirements: []Requirement{
				{Kind: KindAccuracy, Description: fmt.Sprintf("Accuracy >= %.0f%%", p.AccuracyThreshold*100), Threshold: p.AccuracyThreshold, MinAttempts: p.MinAttempts, AtomIDs: atomSet},
				{Kind: KindVolume, Description: fmt.Sprintf("Attempts >= %d", p.MinAttempts), Threshold: float64(p.MinAttempts), AtomIDs: atomSet},
				{Kind: KindStreak, Description: fmt.Sprintf("Streak >= %d", p.MinStreak), Threshold: float64(p.MinStreak), AtomIDs: atomSet},
			},
		},
	}
}

// DefaultMasteryGate returns the per-atom mastery gate at the built-in
// thresholds.
func DefaultMasteryGate(id core.GateID, atomID core.AtomID) Gate {
	return DefaultMasteryGateParams().Gate(id, atomID)
}
