// Package traits implements the pure trait model of a collectible: a six
// component bounded vector, deterministic derivation from uniqueness inputs,
// signal-driven evolution with a per-cycle drift cap, and breeding. The
// package does no I/O and holds no shared state beyond the engine's own
// random source.
package traits

// Vector is the six-component trait state of one item. Every component is
// kept inside its declared bounds by all operations in this package.
type Vector struct {
	Luminosity              float64 `json:"luminosity"`
	ArchitecturalComplexity float64 `json:"architectural_complexity"`
	EtherealQuality         float64 `json:"ethereal_quality"`
	EvolutionSpeed          float64 `json:"evolution_speed"`
	StyleIntensity          float64 `json:"style_intensity"`
	TemporalResonance       float64 `json:"temporal_resonance"`
}

// NumComponents is the number of trait components in a Vector.
const NumComponents = 6

// Component order used by Components, FromComponents and ComponentBounds.
const (
	idxLuminosity = iota
	idxComplexity
	idxEthereal
	idxSpeed
	idxIntensity
	idxResonance
)

// componentNames follows the fixed component order.
var componentNames = [NumComponents]string{
	"luminosity",
	"architectural_complexity",
	"ethereal_quality",
	"evolution_speed",
	"style_intensity",
	"temporal_resonance",
}

// Bounds is the closed valid range of one component.
type Bounds struct {
	Lo float64
	Hi float64
}

func (b Bounds) clamp(x float64) float64 {
	if x < b.Lo {
		return b.Lo
	}
	if x > b.Hi {
		return b.Hi
	}
	return x
}

// bounds follows the fixed component order. Evolution speed is the one
// component that never reaches the extremes.
var bounds = [NumComponents]Bounds{
	{0, 1},
	{0, 1},
	{0, 1},
	{0.1, 0.9},
	{0, 1},
	{0, 1},
}

// ComponentBounds returns the valid range of component i.
func ComponentBounds(i int) Bounds { return bounds[i] }

// ComponentName returns the canonical name of component i.
func ComponentName(i int) string { return componentNames[i] }

// Components returns the vector as an array in the fixed component order.
func (v Vector) Components() [NumComponents]float64 {
	return [NumComponents]float64{
		v.Luminosity,
		v.ArchitecturalComplexity,
		v.EtherealQuality,
		v.EvolutionSpeed,
		v.StyleIntensity,
		v.TemporalResonance,
	}
}

// FromComponents builds a Vector from an array in the fixed component order.
func FromComponents(c [NumComponents]float64) Vector {
	return Vector{
		Luminosity:              c[idxLuminosity],
		ArchitecturalComplexity: c[idxComplexity],
		EtherealQuality:         c[idxEthereal],
		EvolutionSpeed:          c[idxSpeed],
		StyleIntensity:          c[idxIntensity],
		TemporalResonance:       c[idxResonance],
	}
}

// InBounds reports whether every component lies inside its declared range.
func (v Vector) InBounds() bool {
	c := v.Components()
	for i := range c {
		if c[i] < bounds[i].Lo || c[i] > bounds[i].Hi {
			return false
		}
	}
	return true
}

// UniquenessInputs are the signals an item's initial traits and image seed
// are derived from. BiometricHash is optional and treated as empty when
// absent.
type UniquenessInputs struct {
	LocationHash  string `json:"location_hash"`
	TimestampSeed string `json:"timestamp_seed"`
	WalletEntropy string `json:"wallet_entropy"`
	BiometricHash string `json:"biometric_hash,omitempty"`
}

// SignalSummary aggregates external activity over an evolution window.
// A nil summary, or one carrying no datapoints, makes evolution fall back
// to bounded random drift.
type SignalSummary struct {
	// MeanSentiment is the average sentiment in [-1, 1] over
	// SentimentCount datapoints.
	MeanSentiment  float64 `json:"mean_sentiment"`
	SentimentCount int     `json:"sentiment_count"`
	// Engagement is the summed interaction volume over the window.
	Engagement float64 `json:"engagement"`
	// Frequency is posts per day over the window.
	Frequency float64 `json:"frequency"`
	// KeywordMatches is the total count of tracked keyword hits.
	KeywordMatches float64 `json:"keyword_matches"`
}

// HasData reports whether the summary carries anything to evolve from.
func (s *SignalSummary) HasData() bool {
	if s == nil {
		return false
	}
	return s.SentimentCount > 0 || s.Engagement > 0 || s.Frequency > 0 || s.KeywordMatches > 0
}

// Normalization caps. Activity beyond these saturates at 1.0.
const (
	maxEngagement = 10000
	maxFrequency  = 50
	maxKeywords   = 20
)

// sentimentNorm maps mean sentiment from [-1, 1] to [0, 1]; without
// sentiment datapoints it is neutral 0.5.
func (s *SignalSummary) sentimentNorm() float64 {
	if s.SentimentCount == 0 {
		return 0.5
	}
	return (s.MeanSentiment + 1) / 2
}

func (s *SignalSummary) engagementNorm() float64 {
	return min(1, s.Engagement/maxEngagement)
}

func (s *SignalSummary) frequencyNorm() float64 {
	return min(1, s.Frequency/maxFrequency)
}

func (s *SignalSummary) keywordNorm() float64 {
	return min(1, s.KeywordMatches/maxKeywords)
}
