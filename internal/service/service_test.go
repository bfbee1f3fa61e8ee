package service

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/bifurcation"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService() *Service {
	cfg := DefaultConfig()
	cfg.Ensemble.Rand = rand.New(rand.NewSource(7))
	s := New(NewMemoryRepository(cfg.HistoryCap), logger.NewNop(), cfg)
	s.SetClock(func() time.Time { return testNow })
	return s
}

func surveyObs(id string, ts time.Time, features map[string]float64) twin.Observation {
	return twin.Observation{
		ID:        id,
		Source:    "ema_survey",
		Timestamp: ts,
		Value:     0.5,
		Features:  features,
		Quality:   0.9,
	}
}

func TestApplyObservationRaisesWellbeing(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.9})

	res, err := s.ApplyObservation("subj-1", obs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Decision.Vetoed {
		t.Fatalf("clean observation rejected: %s", res.Decision.Reason)
	}
	if len(res.Affected) != 1 || res.Affected[0] != "emotion_joy" {
		t.Fatalf("affected = %v, want [emotion_joy]", res.Affected)
	}
	if res.Wellbeing <= 0.5 {
		t.Fatalf("wellbeing = %v after high joy, want > 0.5", res.Wellbeing)
	}

	st, err := s.GetState("subj-1")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if st.Version != res.Version {
		t.Fatalf("stored version %d != result version %d", st.Version, res.Version)
	}
	joy := st.Variables["emotion_joy"]
	if joy.Value <= 0.5 {
		t.Fatalf("joy estimate %v did not move toward 0.9", joy.Value)
	}
}

func TestApplyObservationUnknownSourceIsNoOp(t *testing.T) {
	s := newTestService()
	obs := twin.Observation{
		ID:        "obs-x",
		Source:    "smart_fridge",
		Timestamp: testNow.Add(-time.Hour),
		Value:     0.5,
		Quality:   0.9,
	}
	res, err := s.ApplyObservation("subj-1", obs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if res.Decision.Vetoed {
		t.Fatalf("unknown source should be admitted then ignored, got veto %s", res.Decision.Reason)
	}
	if len(res.Affected) != 0 {
		t.Fatalf("affected = %v, want none", res.Affected)
	}
}

func TestApplyObservationRejectedDoesNotCreateTwin(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-bad", testNow.Add(-time.Hour), nil)
	obs.Value = math.NaN()

	res, err := s.ApplyObservation("subj-1", obs)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Decision.Vetoed {
		t.Fatal("NaN observation admitted")
	}
	if _, err := s.GetState("subj-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("twin created by rejected observation: %v", err)
	}
}

func TestApplyBatchEmptyErrors(t *testing.T) {
	s := newTestService()
	if _, err := s.ApplyBatch("subj-1", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestApplyBatchSortsAndSnapshotsOnce(t *testing.T) {
	s := newTestService()
	// Deliberately out of order; the later observation carries the higher
	// joy reading, so sorted application should leave joy above midline.
	batch := []twin.Observation{
		surveyObs("obs-2", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.9}),
		surveyObs("obs-1", testNow.Add(-3*time.Hour), map[string]float64{"emotion_joy": 0.2}),
	}
	res, err := s.ApplyBatch("subj-1", batch)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Applied != 2 || res.Rejected != 0 {
		t.Fatalf("applied=%d rejected=%d, want 2/0", res.Applied, res.Rejected)
	}
	if len(res.Affected) != 1 || res.Affected[0] != "emotion_joy" {
		t.Fatalf("affected = %v", res.Affected)
	}

	hist, err := s.GetHistory("subj-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("batch appended %d snapshots, want 1", len(hist))
	}

	st, _ := s.GetState("subj-1")
	if st.Variables["emotion_joy"].Value <= 0.5 {
		t.Fatalf("joy = %v, ordering not respected", st.Variables["emotion_joy"].Value)
	}
}

func TestApplyBatchCountsRejections(t *testing.T) {
	s := newTestService()
	bad := surveyObs("obs-bad", testNow.Add(-time.Hour), nil)
	bad.Quality = 0.0
	batch := []twin.Observation{
		surveyObs("obs-ok", testNow.Add(-2*time.Hour), map[string]float64{"emotion_joy": 0.7}),
		bad,
	}
	res, err := s.ApplyBatch("subj-1", batch)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Applied != 1 || res.Rejected != 1 {
		t.Fatalf("applied=%d rejected=%d, want 1/1", res.Applied, res.Rejected)
	}
}

func TestGetStateUnknownSubject(t *testing.T) {
	s := newTestService()
	if _, err := s.GetState("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestEstimateKalmanGrowsStaleVariance(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.7})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before, _ := s.GetState("subj-1")

	// A week passes with no data.
	later := testNow.Add(7 * 24 * time.Hour)
	s.SetClock(func() time.Time { return later })

	st, err := s.EstimateState("subj-1", MethodKalman)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	vb := before.Variables["emotion_joy"]
	va := st.Variables["emotion_joy"]
	if va.Variance <= vb.Variance {
		t.Fatalf("variance %v did not grow from %v over idle week", va.Variance, vb.Variance)
	}
	if va.Value != vb.Value {
		t.Fatalf("random-walk prediction moved the estimate: %v -> %v", vb.Value, va.Value)
	}
	if st.Version <= before.Version {
		t.Fatalf("version %d not advanced past %d", st.Version, before.Version)
	}
}

func TestEstimateEnsembleStaysFinite(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.9, "stress_level": 0.8})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}

	st, err := s.EstimateState("subj-1", MethodEnsemble)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	for id, v := range st.Variables {
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			t.Fatalf("%s estimate is not finite: %v", id, v.Value)
		}
		if v.Variance < twin.DefaultVarianceFloor {
			t.Fatalf("%s variance %v below floor", id, v.Variance)
		}
	}
}

func TestEstimateBayesianWithoutProfileLeavesEstimates(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.8})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}
	before, _ := s.GetState("subj-1")

	st, err := s.EstimateState("subj-1", MethodBayesian)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if got, want := st.Variables["emotion_joy"].Value, before.Variables["emotion_joy"].Value; got != want {
		t.Fatalf("no-profile bayesian moved estimate %v -> %v", want, got)
	}
}

func TestEstimateBayesianShrinksVarianceWithProfile(t *testing.T) {
	s := newTestService()
	// Build enough history for the learner.
	for i := 0; i < 10; i++ {
		ts := testNow.Add(time.Duration(i-10) * 24 * time.Hour)
		s.SetClock(func() time.Time { return ts })
		obs := surveyObs("obs", ts.Add(-time.Hour), map[string]float64{"emotion_joy": 0.6 + 0.02*float64(i)})
		if _, err := s.ApplyObservation("subj-1", obs); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	s.SetClock(func() time.Time { return testNow })

	p, err := s.LearnPersonalization("subj-1")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if !p.Learned {
		t.Fatalf("profile not learned from %d snapshots", p.Snapshots)
	}

	before, _ := s.GetState("subj-1")
	st, err := s.EstimateState("subj-1", MethodBayesian)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	vb := before.Variables["emotion_joy"].Variance
	va := st.Variables["emotion_joy"].Variance
	if va > vb {
		t.Fatalf("conjugate fusion increased variance: %v -> %v", vb, va)
	}
}

func TestEstimateUnknownMethod(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.7})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := s.EstimateState("subj-1", Method(99)); err == nil {
		t.Fatal("unknown method accepted")
	}
}

func TestLearnPersonalizationBelowThreshold(t *testing.T) {
	s := newTestService()
	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.7})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}
	p, err := s.LearnPersonalization("subj-1")
	if err != nil {
		t.Fatalf("learn: %v", err)
	}
	if p.Learned {
		t.Fatalf("learned from %d snapshots, want unlearned below threshold", p.Snapshots)
	}
}

func TestParseMethodRoundTrip(t *testing.T) {
	for _, m := range []Method{MethodKalman, MethodEnsemble, MethodBayesian} {
		got, err := ParseMethod(m.String())
		if err != nil {
			t.Fatalf("parse %q: %v", m.String(), err)
		}
		if got != m {
			t.Fatalf("round trip %v -> %v", m, got)
		}
	}
	if _, err := ParseMethod("oracle"); err == nil {
		t.Fatal("unknown wire name accepted")
	}
}

func TestRisingAnxietyFlowsThroughToWarning(t *testing.T) {
	s := newTestService()
	// Two weeks of daily check-ins with anxiety climbing toward its
	// critical level, applied at each day's clock so every observation is
	// fresh when gated.
	for day := 0; day < 14; day++ {
		ts := testNow.Add(time.Duration(day-14) * 24 * time.Hour)
		s.SetClock(func() time.Time { return ts })
		obs := surveyObs("obs", ts.Add(-time.Hour), map[string]float64{
			"emotion_anxiety": 0.30 + 0.04*float64(day),
		})
		res, err := s.ApplyObservation("subj-1", obs)
		if err != nil {
			t.Fatalf("apply day %d: %v", day, err)
		}
		if res.Decision.Vetoed {
			t.Fatalf("day %d rejected: %s", day, res.Decision.Reason)
		}
	}
	s.SetClock(func() time.Time { return testNow })

	hist, err := s.GetHistory("subj-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 14 {
		t.Fatalf("retained %d snapshots, want 14", len(hist))
	}

	points, err := s.DetectTippingPoints("subj-1")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	var anx *bifurcation.TippingPoint
	for i := range points {
		if points[i].VariableID == "emotion_anxiety" {
			anx = &points[i]
		}
	}
	if anx == nil {
		t.Fatalf("no anxiety tipping point in %+v", points)
	}
	if !anx.Approaching || anx.Attractor != "crisis" {
		t.Fatalf("approaching=%v attractor=%s", anx.Approaching, anx.Attractor)
	}
	if anx.Score < 0.35 {
		t.Fatalf("score = %v after a two-week climb", anx.Score)
	}
	if anx.Urgency == bifurcation.UrgencyLow {
		t.Fatalf("urgency = %s at distance %v", anx.Urgency, anx.Distance)
	}
	if anx.EstimatedDays < 1 || anx.EstimatedDays > 365 {
		t.Fatalf("estimated days %v outside [1,365]", anx.EstimatedDays)
	}
	if anx.EarliestDays > anx.EstimatedDays || anx.LatestDays < anx.EstimatedDays {
		t.Fatalf("confidence band [%v,%v] does not bracket %v",
			anx.EarliestDays, anx.LatestDays, anx.EstimatedDays)
	}

	rep, err := s.GetBeliefReport("subj-1")
	if err != nil {
		t.Fatalf("belief report: %v", err)
	}
	if len(rep.State.Dimensions) == 0 {
		t.Fatal("belief state carries no dimensions")
	}
	if rep.NextType == "" {
		t.Fatal("no next observation type suggested")
	}
}

func TestApplyObservationRefreshesBeliefs(t *testing.T) {
	s := newTestService()
	if _, err := s.GetBeliefReport("subj-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound before any observation", err)
	}

	obs := surveyObs("obs-1", testNow.Add(-time.Hour), map[string]float64{"emotion_joy": 0.9})
	if _, err := s.ApplyObservation("subj-1", obs); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rep, err := s.GetBeliefReport("subj-1")
	if err != nil {
		t.Fatalf("belief report: %v", err)
	}
	if rep.State.SubjectID != "subj-1" {
		t.Fatalf("subject = %s", rep.State.SubjectID)
	}
	db, ok := rep.State.Dimensions[belief.DimValence]
	if !ok || db.Observations == 0 {
		t.Fatalf("valence belief missing or unobserved: %+v", db)
	}

	// A second cycle folds into the same persisted state.
	obs2 := surveyObs("obs-2", testNow.Add(-30*time.Minute), map[string]float64{"emotion_joy": 0.8})
	if _, err := s.ApplyObservation("subj-1", obs2); err != nil {
		t.Fatalf("apply: %v", err)
	}
	rep2, err := s.GetBeliefReport("subj-1")
	if err != nil {
		t.Fatalf("belief report: %v", err)
	}
	if rep2.State.Dimensions[belief.DimValence].Observations <= db.Observations {
		t.Fatalf("observation count %d did not advance past %d",
			rep2.State.Dimensions[belief.DimValence].Observations, db.Observations)
	}
}

func TestGetHistoryWindow(t *testing.T) {
	s := newTestService()
	for i := 0; i < 5; i++ {
		ts := testNow.Add(time.Duration(i-5) * 24 * time.Hour)
		s.SetClock(func() time.Time { return ts })
		obs := surveyObs("obs", ts.Add(-time.Hour), map[string]float64{"emotion_joy": 0.6})
		if _, err := s.ApplyObservation("subj-1", obs); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}
	all, err := s.GetHistory("subj-1", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("retained %d snapshots, want 5", len(all))
	}
	recent, err := s.GetHistory("subj-1", 2)
	if err != nil {
		t.Fatalf("history window: %v", err)
	}
	if len(recent) >= len(all) {
		t.Fatalf("window did not narrow history: %d vs %d", len(recent), len(all))
	}
}
