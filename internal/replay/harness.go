package replay

import (
	"fmt"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/bifurcation"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/eval"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region types

// Result captures the outcome of replaying one observation through the
// full pipeline.
type Result struct {
	ObservationID string
	Action        string // "commit" | "reject" | "eval_fail"
	Reason        string
	Affected      []string
	Version       int64
	Wellbeing     float64
	EvalQuality   float64
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total         int
	Commits       int
	Rejects       int
	EvalFailures  int
	FinalState    *twin.TwinState
	TippingPoints []bifurcation.TippingPoint
}

// #endregion types

// #region replay

// Replay runs the fixture's observations through gate, filter and eval in
// order, entirely in memory. The clock is pinned just after each
// observation's timestamp, so a recorded stream replays identically
// regardless of wall time.
func Replay(f *Fixture) ([]Result, Summary, error) {
	cfg := service.DefaultConfig()
	cfg.Measure = f.Config.Measure
	cfg.Gate = f.Config.Gate

	svc := service.New(service.NewMemoryRepository(cfg.HistoryCap), logger.NewNop(), cfg)
	harness := eval.NewHarness(f.Config.Eval)

	results := make([]Result, 0, len(f.Observations))
	summary := Summary{Total: len(f.Observations)}

	// The replay clock sits just after the newest observation seen so far
	// and never runs backwards, so backdated entries age the way they did
	// when recorded.
	var clock time.Time
	for _, obs := range f.Observations {
		if c := obs.Timestamp.Add(time.Minute); c.After(clock) {
			clock = c
		}
		at := clock
		svc.SetClock(func() time.Time { return at })

		applied, err := svc.ApplyObservation(f.SubjectID, obs)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("apply %s: %w", obs.ID, err)
		}

		r := Result{
			ObservationID: obs.ID,
			Affected:      applied.Affected,
			Version:       applied.Version,
			Wellbeing:     applied.Wellbeing,
		}
		if applied.Decision.Vetoed {
			r.Action = "reject"
			r.Reason = applied.Decision.Reason
			summary.Rejects++
			results = append(results, r)
			continue
		}

		st, err := svc.GetState(f.SubjectID)
		if err != nil {
			return nil, Summary{}, fmt.Errorf("get state after %s: %w", obs.ID, err)
		}
		ev := harness.Run(st)
		r.EvalQuality = ev.Quality
		if !ev.Passed {
			r.Action = "eval_fail"
			r.Reason = ev.Reason
			summary.EvalFailures++
		} else {
			r.Action = "commit"
			summary.Commits++
		}
		results = append(results, r)
	}

	final, err := svc.GetState(f.SubjectID)
	if err == nil {
		summary.FinalState = final
		if points, err := svc.DetectTippingPoints(f.SubjectID); err == nil {
			summary.TippingPoints = points
		}
	}
	return results, summary, nil
}

// #endregion replay

// #region verify

// Verify compares replay results against the fixture's expectations and
// returns one message per mismatch.
func Verify(f *Fixture, results []Result) []string {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.ObservationID] = r
	}

	var mismatches []string
	for _, want := range f.ExpectedResults {
		got, ok := byID[want.ObservationID]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("%s: no result", want.ObservationID))
			continue
		}
		if got.Action != want.Action {
			mismatches = append(mismatches,
				fmt.Sprintf("%s: action %s, want %s (%s)", want.ObservationID, got.Action, want.Action, got.Reason))
		}
	}
	return mismatches
}

// #endregion verify
