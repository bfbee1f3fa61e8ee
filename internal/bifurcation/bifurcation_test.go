package bifurcation

import (
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var detectNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

// makeHistory builds daily snapshots where each listed variable's value at
// day i comes from its generator.
func makeHistory(days int, vars map[string]func(i int) float64) []*twin.TwinState {
	out := make([]*twin.TwinState, 0, days)
	start := detectNow.Add(-time.Duration(days) * 24 * time.Hour)
	for i := 0; i < days; i++ {
		snap := &twin.TwinState{
			SubjectID: "subj-1",
			UpdatedAt: start.Add(time.Duration(i) * 24 * time.Hour),
			Variables: map[string]*twin.StateVariable{},
		}
		for id, gen := range vars {
			snap.Variables[id] = &twin.StateVariable{ID: id, Value: gen(i)}
		}
		snap.Composites.OverallWellbeing = 0.5
		out = append(out, snap)
	}
	return out
}

func TestDetectRequiresMinimumHistory(t *testing.T) {
	d := NewDetector(DefaultConfig())
	hist := makeHistory(5, map[string]func(i int) float64{
		"emotion_anxiety": func(i int) float64 { return 0.3 + 0.1*float64(i) },
	})
	if got := d.Detect(hist, detectNow); got != nil {
		t.Fatalf("detected from %d snapshots: %v", len(hist), got)
	}
}

func TestDetectRisingAnxiety(t *testing.T) {
	d := NewDetector(DefaultConfig())
	// Steady climb from 0.30 to 0.82, past the 0.75 threshold.
	hist := makeHistory(14, map[string]func(i int) float64{
		"emotion_anxiety": func(i int) float64 { return 0.30 + 0.04*float64(i) },
	})
	points := d.Detect(hist, detectNow)
	if len(points) != 1 {
		t.Fatalf("got %d tipping points, want 1", len(points))
	}
	p := points[0]
	if p.VariableID != "emotion_anxiety" {
		t.Fatalf("variable = %s", p.VariableID)
	}
	if p.Attractor != "crisis" {
		t.Fatalf("attractor = %s, want crisis", p.Attractor)
	}
	if !p.Approaching {
		t.Fatal("rising anxiety not marked approaching")
	}
	if p.Score < 0.3 {
		t.Fatalf("score = %v, want the steady climb to register", p.Score)
	}
	if p.Indicators.Lag1Autocorr < DefaultConfig().WarningAutocorr {
		t.Fatalf("lag-1 autocorr = %v below the warning level", p.Indicators.Lag1Autocorr)
	}
	if math.Abs(p.RecoveryLevel-0.55) > 1e-9 {
		t.Fatalf("recovery level = %v, want 0.55", p.RecoveryLevel)
	}
	if p.EstimatedDays < 1 || p.EstimatedDays > 365 {
		t.Fatalf("estimated days %v outside [1,365]", p.EstimatedDays)
	}
	if p.EarliestDays > p.EstimatedDays || p.LatestDays < p.EstimatedDays {
		t.Fatalf("confidence band [%v,%v] does not bracket %v",
			p.EarliestDays, p.LatestDays, p.EstimatedDays)
	}
	if len(p.Recommendations) == 0 {
		t.Fatal("no recommendations attached")
	}
	if p.Urgency == UrgencyLow {
		t.Fatalf("urgency = %s at distance %v", p.Urgency, p.Distance)
	}
}

func TestDetectStableSeriesIsQuiet(t *testing.T) {
	d := NewDetector(DefaultConfig())
	hist := makeHistory(20, map[string]func(i int) float64{
		"emotion_anxiety": func(i int) float64 { return 0.30 + 0.01*math.Sin(float64(i)) },
		"sleep_quality":   func(i int) float64 { return 0.70 + 0.01*math.Cos(float64(i)) },
	})
	if points := d.Detect(hist, detectNow); len(points) != 0 {
		t.Fatalf("stable history produced %d tipping points: %+v", len(points), points)
	}
}

func TestDetectSortsBySoonest(t *testing.T) {
	d := NewDetector(DefaultConfig())
	hist := makeHistory(14, map[string]func(i int) float64{
		// Fast approach of the anxiety threshold, slower decay of sleep.
		"emotion_anxiety": func(i int) float64 { return 0.30 + 0.04*float64(i) },
		"sleep_quality":   func(i int) float64 { return 0.60 - 0.018*float64(i) },
	})
	points := d.Detect(hist, detectNow)
	if len(points) < 2 {
		t.Fatalf("got %d tipping points, want 2", len(points))
	}
	for i := 1; i < len(points); i++ {
		if points[i].EstimatedDays < points[i-1].EstimatedDays {
			t.Fatalf("points not sorted by estimated days: %v then %v",
				points[i-1].EstimatedDays, points[i].EstimatedDays)
		}
	}
}

func TestScoreScalesWithClinicalWeight(t *testing.T) {
	d := NewDetector(DefaultConfig())
	// Identical climbs past both thresholds; only the clinical weight of
	// the two variables differs.
	gen := func(i int) float64 { return 0.30 + 0.04*float64(i) }
	hist := makeHistory(14, map[string]func(i int) float64{
		"emotion_anxiety": gen,
		"rumination":      gen,
	})
	points := d.Detect(hist, detectNow)
	byID := map[string]TippingPoint{}
	for _, p := range points {
		byID[p.VariableID] = p
	}
	anx, ok := byID["emotion_anxiety"]
	if !ok {
		t.Fatal("anxiety not detected")
	}
	rum, ok := byID["rumination"]
	if !ok {
		t.Fatal("rumination not detected")
	}
	if anx.Score <= rum.Score {
		t.Fatalf("anxiety score %v not above rumination score %v", anx.Score, rum.Score)
	}
}

func TestApproachRateFitsLogDistanceSlope(t *testing.T) {
	cv := criticalVar{id: "x", rising: true, threshold: 0.75}
	days := make([]float64, 10)
	closing := make([]float64, 10)
	for i := range closing {
		days[i] = float64(i)
		// Distance shrinks exponentially at rate 0.2 per day.
		closing[i] = cv.threshold - 0.4*math.Exp(-0.2*float64(i))
	}
	if r := approachRate(cv, closing, days); math.Abs(r-0.2) > 1e-9 {
		t.Fatalf("approach rate = %v, want 0.2", r)
	}

	receding := make([]float64, 10)
	for i := range receding {
		receding[i] = 0.60 - 0.02*float64(i)
	}
	if r := approachRate(cv, receding, days); r > 0 {
		t.Fatalf("receding series gave positive approach rate %v", r)
	}
}

func TestBandPositionInsideUnstableBand(t *testing.T) {
	rising := criticalVar{rising: true, threshold: 0.75, recovery: 0.55}
	if b := bandPosition(rising, 0.55); b != 0 {
		t.Fatalf("at recovery level band position = %v, want 0", b)
	}
	if b := bandPosition(rising, 0.75); b != 1 {
		t.Fatalf("at threshold band position = %v, want 1", b)
	}
	if b := bandPosition(rising, 0.65); math.Abs(b-0.5) > 1e-9 {
		t.Fatalf("mid-band position = %v, want 0.5", b)
	}
	falling := criticalVar{rising: false, threshold: 0.30, recovery: 0.45}
	if b := bandPosition(falling, 0.45); b != 0 {
		t.Fatalf("falling at recovery level band position = %v, want 0", b)
	}
	if b := bandPosition(falling, 0.30); b != 1 {
		t.Fatalf("falling at threshold band position = %v, want 1", b)
	}
}

func TestRecoveryRateDistinguishesSlowingDown(t *testing.T) {
	// Excursions that snap back immediately.
	fast := []float64{0.5, 0.8, 0.5, 0.5, 0.2, 0.5, 0.5, 0.8, 0.5}
	// Excursion that lingers.
	slow := []float64{0.5, 0.5, 0.5, 0.8, 0.8, 0.79, 0.8, 0.81, 0.8}
	rf := recoveryRate(fast, 0.1)
	rs := recoveryRate(slow, 0.1)
	if rf <= rs {
		t.Fatalf("fast recovery %v not above slow recovery %v", rf, rs)
	}
}

func TestDFAExponentOrdering(t *testing.T) {
	trend := make([]float64, 32)
	alternating := make([]float64, 32)
	for i := range trend {
		trend[i] = 0.02 * float64(i)
		alternating[i] = float64(i%2) * 0.4
	}
	if dt, da := dfaExponent(trend), dfaExponent(alternating); dt <= da {
		t.Fatalf("trend exponent %v not above anti-persistent exponent %v", dt, da)
	}
}

func TestFlickeringRequiresBothSignals(t *testing.T) {
	bistable := make([]float64, 24)
	for i := range bistable {
		if i%3 < 2 {
			bistable[i] = 0.2
		} else {
			bistable[i] = 0.8
		}
	}
	flat := make([]float64, 24)
	for i := range flat {
		flat[i] = 0.5 + 0.001*float64(i%2)
	}
	if fb, ff := flickering(bistable), flickering(flat); fb <= ff {
		t.Fatalf("bistable flickering %v not above flat %v", fb, ff)
	}
}

func TestFlickeringNeedsBimodalDistribution(t *testing.T) {
	// Single-peaked spread around 0.5: wide enough to pass the amplitude
	// gate and crossing the mean every step, but the histogram has one
	// hump, so no flickering.
	mags := []float64{0.025, 0.075, 0.025, 0.125, 0.025, 0.075, 0.175, 0.025, 0.075, 0.125, 0.025, 0.075}
	humped := make([]float64, 2*len(mags))
	for i := range humped {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		humped[i] = 0.5 + sign*mags[i/2]
	}
	if f := flickering(humped); f != 0 {
		t.Fatalf("unimodal series flickering = %v, want 0", f)
	}
}

func TestPeriodicityNeedsRepeatedCrossings(t *testing.T) {
	ramp := make([]float64, 14)
	for i := range ramp {
		ramp[i] = 0.30 + 0.03*float64(i)
	}
	if p := periodicity(ramp); p != 0 {
		t.Fatalf("monotone ramp periodicity = %v, want 0", p)
	}
}

func TestPeriodicityFindsOscillation(t *testing.T) {
	wave := make([]float64, 32)
	for i := range wave {
		wave[i] = 0.5 + 0.2*math.Sin(2*math.Pi*float64(i)/8)
	}
	if p := periodicity(wave); p < 0.3 {
		t.Fatalf("sine periodicity %v below 0.3", p)
	}
}

func TestSkewnessSign(t *testing.T) {
	rightTail := []float64{0.4, 0.4, 0.4, 0.41, 0.4, 0.9, 0.4, 0.42}
	if s := skewness(rightTail); s <= 0 {
		t.Fatalf("right-tailed skewness = %v, want positive", s)
	}
	leftTail := []float64{0.6, 0.6, 0.6, 0.59, 0.6, 0.1, 0.6, 0.58}
	if s := skewness(leftTail); s >= 0 {
		t.Fatalf("left-tailed skewness = %v, want negative", s)
	}
}

func TestThresholdDistanceDirections(t *testing.T) {
	rising := criticalVar{id: "x", rising: true, threshold: 0.75}
	if d := thresholdDistance(rising, 0.55); math.Abs(d-0.20) > 1e-9 {
		t.Fatalf("rising distance = %v, want 0.20", d)
	}
	if d := thresholdDistance(rising, 0.90); d != 0 {
		t.Fatalf("crossed threshold distance = %v, want 0", d)
	}
	falling := criticalVar{id: "y", rising: false, threshold: 0.30}
	if d := thresholdDistance(falling, 0.45); math.Abs(d-0.15) > 1e-9 {
		t.Fatalf("falling distance = %v, want 0.15", d)
	}
}
