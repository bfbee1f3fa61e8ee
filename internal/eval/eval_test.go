package eval

import (
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var evalNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestHealthyTwinPasses(t *testing.T) {
	h := NewHarness(DefaultEvalConfig())
	tw := twin.NewTwinState("subj-1", evalNow)

	res := h.Run(tw)
	if !res.Passed {
		t.Fatalf("fresh twin failed eval: %s", res.Reason)
	}
	if res.Quality < 0.99 {
		t.Fatalf("quality = %v, want near 1", res.Quality)
	}
	if len(res.Metrics) == 0 {
		t.Fatal("no metrics reported")
	}
}

func TestNaNValueFails(t *testing.T) {
	h := NewHarness(DefaultEvalConfig())
	tw := twin.NewTwinState("subj-1", evalNow)
	tw.Variables["emotion_joy"].Value = math.NaN()

	res := h.Run(tw)
	if res.Passed {
		t.Fatal("NaN estimate passed eval")
	}
	if res.Quality >= 1 {
		t.Fatalf("quality = %v with a failing check", res.Quality)
	}
}

func TestCollapsedVarianceFails(t *testing.T) {
	h := NewHarness(DefaultEvalConfig())
	tw := twin.NewTwinState("subj-1", evalNow)
	tw.Variables["stress_level"].Variance = 0

	res := h.Run(tw)
	if res.Passed {
		t.Fatal("zero variance passed eval")
	}
}

func TestBrokenBeliefFails(t *testing.T) {
	h := NewHarness(DefaultEvalConfig())
	tw := twin.NewTwinState("subj-1", evalNow)
	tw.RegimeBelief[twin.RegimeHealthy] = 0.9
	tw.RegimeBelief[twin.RegimeStressed] = 0.9
	tw.RegimeBelief[twin.RegimeCrisis] = 0.9

	res := h.Run(tw)
	if res.Passed {
		t.Fatal("non-normalized belief passed eval")
	}
}

func TestEntropyIsInformationalOnly(t *testing.T) {
	cfg := DefaultEvalConfig()
	cfg.MaxEntropy = 0 // every entropy "fails" the informational check
	h := NewHarness(cfg)
	tw := twin.NewTwinState("subj-1", evalNow)

	res := h.Run(tw)
	if !res.Passed {
		t.Fatalf("entropy check blocked commit: %s", res.Reason)
	}
}
