package features

import (
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var ts = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestUnknownSourceIgnored(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	obs := twin.Observation{Source: "carrier_pigeon", Timestamp: ts, Value: 0.5, Quality: 1}
	if got := e.Extract(obs, 1); got != nil {
		t.Fatalf("unmapped source produced measurements: %v", got)
	}
}

func TestRawValueFansOutToAllTargets(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	obs := twin.Observation{Source: "sleep_tracker", Timestamp: ts, Value: 0.8, Quality: 1}
	ms := e.Extract(obs, 1)
	if len(ms) != len(twin.TargetsFor("sleep_tracker")) {
		t.Fatalf("expected %d measurements, got %d", len(twin.TargetsFor("sleep_tracker")), len(ms))
	}
	for _, m := range ms {
		if m.Value != 0.8 {
			t.Fatalf("raw value not propagated: %f", m.Value)
		}
	}
}

func TestFeaturesSelectVariables(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	obs := twin.Observation{
		Source:    "ema_survey",
		Timestamp: ts,
		Quality:   1,
		Features:  map[string]float64{"emotion_joy": 0.9, "not_a_variable": 0.1},
	}
	ms := e.Extract(obs, 1)
	if len(ms) != 1 {
		t.Fatalf("expected only the mapped feature, got %v", ms)
	}
	if ms[0].VariableID != "emotion_joy" || ms[0].Value != 0.9 {
		t.Fatalf("wrong measurement: %+v", ms[0])
	}
}

func TestReliabilityCombines(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	obs := twin.Observation{Source: "ema_survey", Timestamp: ts, Value: 0.5, Quality: 0.5}
	full := e.Extract(obs, 1)[0].Reliability
	attenuated := e.Extract(obs, 0.5)[0].Reliability
	if attenuated >= full {
		t.Fatalf("attenuation did not lower reliability: %f >= %f", attenuated, full)
	}
	want := twin.ReliabilityFor("ema_survey") * 0.5
	if full != want {
		t.Fatalf("reliability %f, want %f", full, want)
	}
}

func TestValuesClamped(t *testing.T) {
	e := NewExtractor(DefaultExtractorConfig())
	obs := twin.Observation{Source: "wearable_hrv", Timestamp: ts, Value: 1.4, Quality: 1}
	for _, m := range e.Extract(obs, 1) {
		if m.Value != 1 {
			t.Fatalf("value not clamped: %f", m.Value)
		}
	}
}
