package apura

// DetectionScore carries a detector's raw probabilities.
// It is a curated view of the internal detector result for use in extension
// interfaces. No internal package imports, safe to use from outside the module.
type DetectionScore struct {
	// VideoFakeProb is the visual model's manipulation probability in [0, 1].
	VideoFakeProb float64
	// AudioFakeProb is the audio model's probability, nil when the video has
	// no scoreable speech track.
	AudioFakeProb *float64
	// AudioStatus explains a nil AudioFakeProb, e.g. "no_audio".
	AudioStatus string
}

// NewsArticle is one candidate result from a NewsSource.
type NewsArticle struct {
	Source      string
	Title       string
	URL         string
	Description string
}
