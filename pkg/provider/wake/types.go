package wake

// Detection is the result of scanning a stretch of audio for wake phrases.
type Detection struct {
	// Hit reports whether a phrase was spotted.
	Hit bool

	// PhraseID identifies which configured phrase matched, e.g. the keyword
	// model's base name. Empty when Hit is false.
	PhraseID string

	// Confidence is the engine's score for the match in [0.0, 1.0]. Engines
	// that only report binary hits use their configured sensitivity here so
	// downstream thresholds still have something meaningful to compare.
	Confidence float64
}
