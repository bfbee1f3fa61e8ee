package features

// #region extractor-config
// ExtractorConfig controls measurement normalization.
type ExtractorConfig struct {
	// ClampValues restricts extracted measurement values to [0,1]. Raw
	// sensor units must be normalized upstream; this only guards against
	// small excursions.
	ClampValues bool

	// MinReliability floors the combined reliability weight so an admitted
	// observation always carries some evidence.
	MinReliability float64
}

// DefaultExtractorConfig returns the standard normalization settings.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		ClampValues:    true,
		MinReliability: 0.05,
	}
}

// #endregion extractor-config
