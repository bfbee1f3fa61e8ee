package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/store"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/twin"
)

// #region main
func main() {
	dbPath := flag.String("db", "twin_state.db", "path to twin_state.db")
	subjects := flag.Int("subjects", 3, "number of synthetic subjects")
	days := flag.Int("days", 14, "days of history to generate")
	seed := flag.Int64("seed", 42, "rng seed (same seed, same stream)")
	flag.Parse()

	st, err := store.NewStore(*dbPath, 0)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	svc := service.New(st, logger.NewNop(), service.DefaultConfig())

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().UTC().AddDate(0, 0, -*days).Truncate(24 * time.Hour)

	fmt.Printf("seeding %d subjects x %d days into %s\n", *subjects, *days, *dbPath)

	totalApplied, totalRejected := 0, 0
	for i := 0; i < *subjects; i++ {
		subjectID := fmt.Sprintf("subject-%03d", i+1)
		applied, rejected, err := seedSubject(svc, rng, subjectID, start, *days)
		if err != nil {
			log.Fatalf("seed %s: %v", subjectID, err)
		}
		fmt.Printf("  %s: %d applied, %d rejected\n", subjectID, applied, rejected)
		totalApplied += applied
		totalRejected += rejected
	}

	fmt.Printf("done: %d observations applied, %d rejected\n", totalApplied, totalRejected)
}

// #endregion main

// #region generator

// seedSubject generates a plausible daily observation stream: a morning
// sleep reading, midday wearable samples and an evening survey. Each
// subject gets its own phase so the streams don't move in lockstep.
func seedSubject(svc *service.Service, rng *rand.Rand, subjectID string, start time.Time, days int) (applied, rejected int, err error) {
	phase := rng.Float64() * 2 * math.Pi
	drift := (rng.Float64() - 0.5) * 0.01 // slow per-day trend

	var batch []twin.Observation
	seq := 0
	for day := 0; day < days; day++ {
		base := start.AddDate(0, 0, day)
		cycle := 0.1 * math.Sin(2*math.Pi*float64(day)/7+phase) // weekly rhythm
		trend := drift * float64(day)

		// Morning sleep tracker reading.
		seq++
		batch = append(batch, twin.Observation{
			ID:        fmt.Sprintf("%s-obs-%04d", subjectID, seq),
			Source:    "sleep_tracker",
			Timestamp: base.Add(7 * time.Hour),
			Value:     clamp(0.55 + cycle + trend + noise(rng, 0.05)),
			Quality:   0.8 + rng.Float64()*0.2,
		})

		// Midday HRV sample.
		seq++
		batch = append(batch, twin.Observation{
			ID:        fmt.Sprintf("%s-obs-%04d", subjectID, seq),
			Source:    "wearable_hrv",
			Timestamp: base.Add(13 * time.Hour),
			Value:     clamp(0.45 - cycle + noise(rng, 0.06)),
			Quality:   0.7 + rng.Float64()*0.3,
		})

		// Evening survey with per-variable features.
		seq++
		valence := clamp(0.5 + cycle + trend + noise(rng, 0.04))
		batch = append(batch, twin.Observation{
			ID:        fmt.Sprintf("%s-obs-%04d", subjectID, seq),
			Source:    "ema_survey",
			Timestamp: base.Add(20 * time.Hour),
			Quality:   0.9,
			Features: map[string]float64{
				"emotion_valence": valence,
				"emotion_joy":     clamp(valence + noise(rng, 0.05)),
				"emotion_anxiety": clamp(0.35 - cycle + noise(rng, 0.05)),
				"stress_level":    clamp(0.4 - cycle - trend + noise(rng, 0.06)),
			},
		})
	}

	res, err := svc.ApplyBatch(subjectID, batch)
	if err != nil {
		return 0, 0, err
	}
	return res.Applied, res.Rejected, nil
}

func noise(rng *rand.Rand, sd float64) float64 {
	return rng.NormFloat64() * sd
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion generator
