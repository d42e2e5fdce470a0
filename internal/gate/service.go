package gate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/theagilepilot/gmat-wiz-sub001/internal/core"
	"github.com/theagilepilot/gmat-wiz-sub001/internal/repo"
)

// Service composes the pure requirement evaluator with the mastery and
// attempt repositories, exposing the evaluate_gate and gate_summary
// operations. Gate definitions are read-only; evaluations are derived
// on demand and never persisted.
type Service struct {
	Gates    map[core.GateID]Gate
	Mastery  repo.MasteryRepo
	Attempts repo.AttemptRepo

	// MasteryParams sets the thresholds used when synthesizing a
	// per-atom mastery gate; the zero value falls back to the built-in
	// thresholds.
	MasteryParams MasteryGateParams
}

// NewService constructs a Service over a fixed gate registry.
func NewService(gates map[core.GateID]Gate, mastery repo.MasteryRepo, attempts repo.AttemptRepo) *Service {
	if gates == nil {
		gates = make(map[core.GateID]Gate)
	}
	return &Service{Gates: gates, Mastery: mastery, Attempts: attempts}
}

// Resolve looks up a gate definition. IDs of the form "mastery:<atom>"
// resolve to the default per-atom mastery gate when no explicit
// definition overrides them, matching how the attempt pipeline names
// the gates it evaluates on mastery transitions.
func (s *Service) Resolve(id core.GateID) (Gate, error) {
	if g, ok := s.Gates[id]; ok {
		return g, nil
	}
	if atom, ok := strings.CutPrefix(string(id), "mastery:"); ok && atom != "" {
		params := s.MasteryParams
		if params == (MasteryGateParams{}) {
			params = DefaultMasteryGateParams()
		}
		return params.Gate(id, core.AtomID(atom)), nil
	}
	return Gate{}, fmt.Errorf("gate %s: %w", id, core.ErrNotFound)
}

// Evaluation is the result of evaluating one gate for one user.
type Evaluation struct {
	Gate     Gate
	Progress Progress
}

// EvaluateGate loads the per-atom stats a gate's requirement tree needs
// and evaluates it for a user.
func (s *Service) EvaluateGate(ctx context.Context, userID string, id core.GateID) (Evaluation, error) {
	g, err := s.Resolve(id)
	if err != nil {
		return Evaluation{}, err
	}

	stats, err := s.statsFor(ctx, userID, g)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{Gate: g, Progress: Evaluate(g.Requirement, stats)}, nil
}

// Summary aggregates the evaluation of several gates for one user (the
// gate_summary operation).
type Summary struct {
	Total       int
	Passed      int
	InProgress  int
	Locked      int
	XPAvailable int // reward total of not-yet-passed gates
	Results     map[core.GateID]Evaluation
}

// GateSummary evaluates each gate in ids and aggregates statuses.
func (s *Service) GateSummary(ctx context.Context, userID string, ids []core.GateID) (Summary, error) {
	out := Summary{Results: make(map[core.GateID]Evaluation, len(ids))}
	for _, id := range ids {
		ev, err := s.EvaluateGate(ctx, userID, id)
		if err != nil {
			return Summary{}, err
		}
		out.Results[id] = ev
		out.Total++
		switch ev.Progress.Status {
		case core.StatusPassed:
			out.Passed++
		case core.StatusInProgress:
			out.InProgress++
			out.XPAvailable += ev.Gate.XPReward
		default:
			out.Locked++
			out.XPAvailable += ev.Gate.XPReward
		}
	}
	return out, nil
}

// statsFor builds AtomStat projections for a gate's atom set (or every
// atom the user has touched when the gate binds no atoms), joining the
// timing samples the Timing requirement needs from recent attempts.
func (s *Service) statsFor(ctx context.Context, userID string, g Gate) ([]AtomStat, error) {
	var records []core.AtomMastery
	if g.AtomIDs == nil {
		all, err := s.Mastery.ListByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list mastery: %w", err)
		}
		records = all
	} else {
		for atomID := range g.AtomIDs {
			m, err := s.Mastery.Get(ctx, userID, atomID)
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load mastery %s: %w", atomID, err)
			}
			records = append(records, m)
		}
	}

	stats := make([]AtomStat, 0, len(records))
	for _, m := range records {
		stat := AtomStat{
			AtomID:          m.AtomID,
			AttemptsTotal:   m.AttemptsTotal,
			AttemptsCorrect: m.AttemptsCorrect,
			RecentResults:   m.RecentAttempts,
		}
		if s.Attempts != nil {
			if samples, err := s.Attempts.RecentByAtom(ctx, userID, m.AtomID, core.RecentWindow); err == nil {
				for i := len(samples) - 1; i >= 0; i-- {
					a := samples[i]
					if a.IsCorrect {
						stat.Timings = append(stat.Timings, TimingSample{SpentSec: a.TimeSpentSec, BudgetSec: a.TimeBudgetSec})
					}
				}
			}
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
