package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/belief"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logging"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

var storeNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func tempStore(t *testing.T, cap int) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "test.db"), cap)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTwin(version int64, at time.Time) *twin.TwinState {
	tw := twin.NewTwinState("subj-1", at)
	tw.Version = version
	tw.VersionID = "v-test"
	tw.UpdatedAt = at
	tw.Variables["emotion_joy"].Value = 0.1 * float64(version)
	return tw
}

func TestPutGetTwinRoundTrip(t *testing.T) {
	s := tempStore(t, 10)

	if _, ok, err := s.GetTwin("subj-1"); err != nil || ok {
		t.Fatalf("empty store returned ok=%v err=%v", ok, err)
	}

	tw := sampleTwin(3, storeNow)
	if err := s.PutTwin(tw); err != nil {
		t.Fatalf("PutTwin: %v", err)
	}

	got, ok, err := s.GetTwin("subj-1")
	if err != nil || !ok {
		t.Fatalf("GetTwin: ok=%v err=%v", ok, err)
	}
	if got.Version != 3 {
		t.Fatalf("version = %d, want 3", got.Version)
	}
	if got.Variables["emotion_joy"].Value != 0.3 {
		t.Fatalf("joy = %v, want 0.3", got.Variables["emotion_joy"].Value)
	}

	// Upsert replaces.
	tw.Version = 4
	if err := s.PutTwin(tw); err != nil {
		t.Fatalf("PutTwin upsert: %v", err)
	}
	got, _, _ = s.GetTwin("subj-1")
	if got.Version != 4 {
		t.Fatalf("upsert version = %d, want 4", got.Version)
	}
}

func TestSnapshotHistoryAndEviction(t *testing.T) {
	s := tempStore(t, 3)

	for i := int64(1); i <= 5; i++ {
		tw := sampleTwin(i, storeNow.Add(time.Duration(i)*time.Hour))
		if err := s.AppendSnapshot(tw); err != nil {
			t.Fatalf("AppendSnapshot %d: %v", i, err)
		}
	}

	hist, err := s.History("subj-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("retained %d snapshots, want 3", len(hist))
	}
	if hist[0].Version != 3 || hist[2].Version != 5 {
		t.Fatalf("retained versions %d..%d, want 3..5", hist[0].Version, hist[2].Version)
	}
}

func TestHistoryWindow(t *testing.T) {
	s := tempStore(t, 10)
	for i := int64(0); i < 4; i++ {
		tw := sampleTwin(i+1, storeNow.Add(time.Duration(i)*24*time.Hour))
		if err := s.AppendSnapshot(tw); err != nil {
			t.Fatalf("AppendSnapshot: %v", err)
		}
	}
	recent, err := s.History("subj-1", 24*time.Hour)
	if err != nil {
		t.Fatalf("History window: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("window kept %d snapshots, want 2", len(recent))
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := tempStore(t, 10)

	if _, ok, err := s.GetProfile("subj-1"); err != nil || ok {
		t.Fatalf("empty profile returned ok=%v err=%v", ok, err)
	}

	p := twin.Personalization{
		SubjectID: "subj-1",
		Learned:   true,
		LearnedAt: storeNow,
		Snapshots: 12,
		Variables: map[string]twin.VariableProfile{
			"emotion_joy": {MeanReversionRate: 0.2, Volatility: 0.05, PriorMean: 0.6, PriorVariance: 0.02},
		},
	}
	if err := s.PutProfile(p); err != nil {
		t.Fatalf("PutProfile: %v", err)
	}
	got, ok, err := s.GetProfile("subj-1")
	if err != nil || !ok {
		t.Fatalf("GetProfile: ok=%v err=%v", ok, err)
	}
	if got.Variables["emotion_joy"].MeanReversionRate != 0.2 {
		t.Fatalf("profile round trip lost data: %+v", got.Variables["emotion_joy"])
	}
}

func TestVariableSeriesFromBlobs(t *testing.T) {
	s := tempStore(t, 10)
	for i := int64(1); i <= 3; i++ {
		if err := s.AppendSnapshot(sampleTwin(i, storeNow.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AppendSnapshot: %v", err)
		}
	}
	series, err := s.VariableSeries("subj-1", "emotion_joy")
	if err != nil {
		t.Fatalf("VariableSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("series length %d, want 3", len(series))
	}
	for i, want := range []float64{0.1, 0.2, 0.3} {
		if diff := series[i] - want; diff > 1e-6 || diff < -1e-6 {
			t.Fatalf("series[%d] = %v, want %v", i, series[i], want)
		}
	}
	if _, err := s.VariableSeries("subj-1", "shoe_size"); err == nil {
		t.Fatal("unknown variable accepted")
	}
}

func TestListSubjects(t *testing.T) {
	s := tempStore(t, 10)
	tw := sampleTwin(1, storeNow)
	if err := s.PutTwin(tw); err != nil {
		t.Fatalf("PutTwin: %v", err)
	}
	tw2 := twin.NewTwinState("subj-2", storeNow)
	if err := s.PutTwin(tw2); err != nil {
		t.Fatalf("PutTwin: %v", err)
	}
	subjects, err := s.ListSubjects()
	if err != nil {
		t.Fatalf("ListSubjects: %v", err)
	}
	if len(subjects) != 2 || subjects[0] != "subj-1" || subjects[1] != "subj-2" {
		t.Fatalf("subjects = %v", subjects)
	}
}

func TestBeliefStateRoundTrip(t *testing.T) {
	s := tempStore(t, 10)

	if _, ok, err := s.GetBeliefs("subj-1"); err != nil || ok {
		t.Fatalf("empty store returned ok=%v err=%v", ok, err)
	}

	eng := belief.NewEngine(belief.DefaultConfig())
	b := eng.NewState("subj-1", storeNow)
	eng.Update(b, belief.Evidence{
		Dimension: belief.DimValence, Value: 0.7, Reliability: 0.9,
		Type: "ema_survey", Timestamp: storeNow,
	}, storeNow)
	if err := s.PutBeliefs(b); err != nil {
		t.Fatalf("PutBeliefs: %v", err)
	}

	got, ok, err := s.GetBeliefs("subj-1")
	if err != nil || !ok {
		t.Fatalf("GetBeliefs: ok=%v err=%v", ok, err)
	}
	db := got.Dimensions[belief.DimValence]
	if db == nil || db.Observations != 1 {
		t.Fatalf("valence belief lost in round trip: %+v", db)
	}
	if db.Mean != b.Dimensions[belief.DimValence].Mean {
		t.Fatalf("mean %v != stored %v", db.Mean, b.Dimensions[belief.DimValence].Mean)
	}

	// Upsert replaces.
	eng.Update(b, belief.Evidence{
		Dimension: belief.DimValence, Value: 0.6, Reliability: 0.9,
		Type: "ema_survey", Timestamp: storeNow,
	}, storeNow)
	if err := s.PutBeliefs(b); err != nil {
		t.Fatalf("PutBeliefs upsert: %v", err)
	}
	got, _, _ = s.GetBeliefs("subj-1")
	if got.Dimensions[belief.DimValence].Observations != 2 {
		t.Fatalf("upsert kept observation count %d, want 2",
			got.Dimensions[belief.DimValence].Observations)
	}
}

func TestEstimationLogRoundTrip(t *testing.T) {
	s := tempStore(t, 10)
	entry := logging.EstimationEntry{
		SubjectID: "subj-1",
		VersionID: "v-1",
		Trigger:   "observation",
		Source:    "ema_survey",
		Decision:  "commit",
		CreatedAt: storeNow,
	}
	if err := logging.LogEstimation(s.DB(), entry); err != nil {
		t.Fatalf("LogEstimation: %v", err)
	}
	entry.VersionID = "v-2"
	entry.Decision = "reject"
	entry.Reason = "non_finite_value"
	if err := logging.LogEstimation(s.DB(), entry); err != nil {
		t.Fatalf("LogEstimation: %v", err)
	}

	got, err := logging.ListRecent(s.DB(), "subj-1", 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].VersionID != "v-2" || got[0].Reason != "non_finite_value" {
		t.Fatalf("newest entry = %+v", got[0])
	}
	if got[1].Decision != "commit" {
		t.Fatalf("oldest entry = %+v", got[1])
	}
}
