package twin

import (
	"math"
	"time"
)

// minPersonalizationSnapshots is the history size below which learning
// returns zeroed defaults instead of failing.
const minPersonalizationSnapshots = 7

// #region profile-types
// VariableProfile is the learned per-variable dynamics of one subject.
type VariableProfile struct {
	MeanReversionRate float64 `json:"mean_reversion_rate"` // 1 − lag-1 autocorrelation
	Volatility        float64 `json:"volatility"`          // std dev of first differences
	PriorMean         float64 `json:"prior_mean"`
	PriorVariance     float64 `json:"prior_variance"`
}

// Personalization is a subject's learned dynamics profile.
type Personalization struct {
	SubjectID string                     `json:"subject_id"`
	Learned   bool                       `json:"learned"` // false below the snapshot threshold
	LearnedAt time.Time                  `json:"learned_at"`
	Snapshots int                        `json:"snapshots"`
	Variables map[string]VariableProfile `json:"variables"`
	// WeekdayPattern holds the day-of-week averaged value per variable,
	// indexed Sunday=0 per time.Weekday.
	WeekdayPattern map[string][7]float64 `json:"weekday_pattern"`
}

// #endregion profile-types

// #region learn
// LearnPersonalization estimates per-variable mean-reversion, volatility and
// Gaussian priors from history snapshots, plus a day-of-week pattern. Below
// minPersonalizationSnapshots it returns a zeroed default profile.
func LearnPersonalization(subjectID string, history []*TwinState, now time.Time) Personalization {
	p := Personalization{
		SubjectID:      subjectID,
		LearnedAt:      now,
		Snapshots:      len(history),
		Variables:      make(map[string]VariableProfile),
		WeekdayPattern: make(map[string][7]float64),
	}
	if len(history) < minPersonalizationSnapshots {
		return p
	}
	p.Learned = true

	for _, id := range VariableIDs() {
		series := make([]float64, 0, len(history))
		times := make([]time.Time, 0, len(history))
		for _, snap := range history {
			if v, ok := snap.Variables[id]; ok {
				series = append(series, v.Value)
				times = append(times, snap.UpdatedAt)
			}
		}
		if len(series) < minPersonalizationSnapshots {
			continue
		}

		mean := meanOf(series)
		variance := varianceOf(series)

		// Mean reversion from lag-1 autocorrelation of the demeaned series.
		demeaned := make([]float64, len(series))
		for i, x := range series {
			demeaned[i] = x - mean
		}
		reversion := 1 - Lag1Autocorrelation(demeaned)
		if reversion < 0 {
			reversion = 0
		}
		if reversion > 2 {
			reversion = 2
		}

		// Volatility from first differences.
		diffs := make([]float64, 0, len(series)-1)
		for i := 1; i < len(series); i++ {
			diffs = append(diffs, series[i]-series[i-1])
		}
		volatility := math.Sqrt(varianceOf(diffs))

		p.Variables[id] = VariableProfile{
			MeanReversionRate: reversion,
			Volatility:        volatility,
			PriorMean:         mean,
			PriorVariance:     math.Max(variance, DefaultVarianceFloor),
		}

		// Day-of-week averages.
		var sums, counts [7]float64
		for i, ts := range times {
			d := int(ts.Weekday())
			sums[d] += series[i]
			counts[d]++
		}
		var pattern [7]float64
		for d := 0; d < 7; d++ {
			if counts[d] > 0 {
				pattern[d] = sums[d] / counts[d]
			} else {
				pattern[d] = mean
			}
		}
		p.WeekdayPattern[id] = pattern
	}
	return p
}

// #endregion learn
