package replay

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var replayNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func sampleFixture() *Fixture {
	bad := twin.Observation{
		ID: "obs-2", Source: "ema_survey",
		Timestamp: replayNow.Add(time.Hour), Value: math.NaN(), Quality: 0.9,
	}
	return &Fixture{
		Description: "joy then a broken reading",
		SubjectID:   "subj-1",
		Config:      DefaultFixtureConfig(),
		Observations: []twin.Observation{
			{
				ID: "obs-1", Source: "ema_survey", Timestamp: replayNow,
				Value: 0.5, Features: map[string]float64{"emotion_joy": 0.9}, Quality: 0.9,
			},
			bad,
		},
		ExpectedResults: []FixtureExpectedResult{
			{ObservationID: "obs-1", Action: "commit"},
			{ObservationID: "obs-2", Action: "reject"},
		},
	}
}

func TestReplayMatchesExpectations(t *testing.T) {
	f := sampleFixture()
	results, summary, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if summary.Commits != 1 || summary.Rejects != 1 || summary.EvalFailures != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if mismatches := Verify(f, results); len(mismatches) != 0 {
		t.Fatalf("mismatches: %v", mismatches)
	}
	if summary.FinalState == nil || summary.FinalState.Variables["emotion_joy"].Value <= 0.5 {
		t.Fatal("final state did not absorb the joy observation")
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	f := sampleFixture()
	first, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	second, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("result counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Action != second[i].Action || first[i].Wellbeing != second[i].Wellbeing {
			t.Fatalf("run diverged at %d: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestVerifyReportsMismatch(t *testing.T) {
	f := sampleFixture()
	f.ExpectedResults[1].Action = "commit" // wrong on purpose
	results, _, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if mismatches := Verify(f, results); len(mismatches) != 1 {
		t.Fatalf("mismatches = %v, want exactly one", mismatches)
	}
}

func TestFixtureRoundTrip(t *testing.T) {
	f := sampleFixture()
	// NaN does not survive JSON; swap the broken reading for a stale one,
	// which the gate rejects just the same.
	f.Observations[1].Value = 0.4
	f.Observations[1].Timestamp = replayNow.Add(-90 * 24 * time.Hour)

	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.SubjectID != "subj-1" || len(got.Observations) != 2 {
		t.Fatalf("fixture = %+v", got)
	}

	results, summary, err := Replay(got)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if summary.Rejects != 1 {
		t.Fatalf("stale observation not rejected: %+v results=%v", summary, results)
	}
}

func TestLoadFixtureRequiresSubject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := SaveFixture(path, &Fixture{Description: "no subject"}); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("fixture without subject accepted")
	}
}
