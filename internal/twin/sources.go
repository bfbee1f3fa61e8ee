package twin

// #region source-table
// SourceTargets is the static source→variables dispatch table. An
// observation only informs the variables its source is mapped to; an
// unmapped source informs nothing and is silently skipped. New sources get
// a table entry, not an error path.
var SourceTargets = map[string][]string{
	"ema_survey": {
		"emotion_valence", "emotion_arousal", "emotion_joy",
		"emotion_anxiety", "emotion_sadness", "stress_level",
	},
	"journal_text":   {"emotion_valence", "emotion_sadness", "rumination"},
	"chat_sentiment": {"emotion_valence", "emotion_joy", "emotion_anxiety"},
	"wearable_hrv":   {"emotion_arousal", "stress_level"},
	"sleep_tracker":  {"sleep_quality", "energy_level"},
	"activity_log":   {"energy_level", "social_connection"},
	"therapy_checkin": {
		"self_efficacy", "coping_ability", "social_connection",
	},
}

// SourceReliability weights measurement trust per source. Missing sources
// default to moderate reliability.
var SourceReliability = map[string]float64{
	"ema_survey":      0.9,
	"journal_text":    0.6,
	"chat_sentiment":  0.5,
	"wearable_hrv":    0.8,
	"sleep_tracker":   0.8,
	"activity_log":    0.7,
	"therapy_checkin": 0.95,
}

// defaultSourceReliability applies to sources present in SourceTargets but
// absent from the reliability table.
const defaultSourceReliability = 0.5

// ReliabilityFor returns the reliability weight for a source tag.
func ReliabilityFor(source string) float64 {
	if r, ok := SourceReliability[source]; ok {
		return r
	}
	return defaultSourceReliability
}

// TargetsFor returns the variable ids a source informs (nil for unmapped
// sources).
func TargetsFor(source string) []string {
	return SourceTargets[source]
}

// #endregion source-table
