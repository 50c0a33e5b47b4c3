package traits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrejs2008/evomint/internal/common"
)

func testEngine() *Engine {
	return NewEngineSeeded(DefaultConfig(), 42)
}

func testInputs() UniquenessInputs {
	return UniquenessInputs{
		LocationHash:  "geo:56.9496,24.1052",
		TimestampSeed: "1724200000",
		WalletEntropy: "rdmx6-jaaaa-aaaaa-aaadq-cai",
		BiometricHash: "b10c4a",
	}
}

func TestGenerateInitial_Deterministic(t *testing.T) {
	e := testEngine()
	u := testInputs()

	v1 := e.GenerateInitial(u)
	v2 := e.GenerateInitial(u)

	assert.Equal(t, v1, v2, "identical inputs must yield bit-identical vectors")
}

func TestGenerateInitial_DifferentInputsDiffer(t *testing.T) {
	e := testEngine()

	u1 := testInputs()
	u2 := testInputs()
	u2.WalletEntropy = "other-wallet"

	assert.NotEqual(t, e.GenerateInitial(u1), e.GenerateInitial(u2))
}

func TestGenerateInitial_OptionalBiometric(t *testing.T) {
	e := testEngine()

	u := testInputs()
	u.BiometricHash = ""
	v := e.GenerateInitial(u)

	assert.True(t, v.InBounds())
}

func TestGenerateInitial_InBounds(t *testing.T) {
	e := testEngine()

	inputs := []UniquenessInputs{
		testInputs(),
		{LocationHash: "x", TimestampSeed: "y", WalletEntropy: "z"},
		{},
	}
	for _, u := range inputs {
		v := e.GenerateInitial(u)
		assert.True(t, v.InBounds(), "vector out of bounds for %+v", u)
	}
}

func TestImageSeed_DeterministicAndInRange(t *testing.T) {
	e := testEngine()
	u := testInputs()

	s1 := e.ImageSeed(u)
	s2 := e.ImageSeed(u)

	assert.Equal(t, s1, s2)
	assert.GreaterOrEqual(t, s1, int64(0))
	assert.Less(t, s1, int64(1<<31-1))
}

func maxAbsDelta(a, b Vector) float64 {
	ac, bc := a.Components(), b.Components()
	max := 0.0
	for i := range ac {
		if d := math.Abs(ac[i] - bc[i]); d > max {
			max = d
		}
	}
	return max
}

func TestEvolve_NoSignals_BoundedDrift(t *testing.T) {
	e := testEngine()
	v := e.GenerateInitial(testInputs())

	for i := 0; i < 100; i++ {
		next := e.Evolve(v, nil)
		require.True(t, next.InBounds())
		require.LessOrEqual(t, maxAbsDelta(v, next), DefaultConfig().MaxDeltaPerCycle+1e-12)
		v = next
	}
}

func TestEvolve_EmptySummaryFallsBackToDrift(t *testing.T) {
	e := testEngine()
	v := e.GenerateInitial(testInputs())

	next := e.Evolve(v, &SignalSummary{})
	assert.True(t, next.InBounds())
	assert.LessOrEqual(t, maxAbsDelta(v, next), DefaultConfig().MaxDeltaPerCycle+1e-12)
}

func TestEvolve_WithSignals_AppliesGains(t *testing.T) {
	e := testEngine()
	v := Vector{
		Luminosity:              0.5,
		ArchitecturalComplexity: 0.5,
		EtherealQuality:         0.5,
		EvolutionSpeed:          0.5,
		StyleIntensity:          0.5,
		TemporalResonance:       0.5,
	}

	s := &SignalSummary{
		MeanSentiment:  1.0, // fully positive
		SentimentCount: 10,
		Engagement:     10000, // saturates
		Frequency:      50,    // saturates
		KeywordMatches: 20,    // saturates
	}

	out := e.Evolve(v, s)

	assert.InDelta(t, 0.55, out.EtherealQuality, 1e-9)
	assert.InDelta(t, 0.53, out.Luminosity, 1e-9)
	assert.InDelta(t, 0.54, out.ArchitecturalComplexity, 1e-9)
	assert.InDelta(t, 0.52, out.EvolutionSpeed, 1e-9)
	assert.InDelta(t, 0.53, out.StyleIntensity, 1e-9)
	assert.InDelta(t, 0.5, out.TemporalResonance, 1e-9, "resonance has no signal mapping")
}

func TestEvolve_NegativeSentimentReducesLuminosity(t *testing.T) {
	e := testEngine()
	v := Vector{Luminosity: 0.5, ArchitecturalComplexity: 0.5, EtherealQuality: 0.5,
		EvolutionSpeed: 0.5, StyleIntensity: 0.5, TemporalResonance: 0.5}

	out := e.Evolve(v, &SignalSummary{MeanSentiment: -1.0, SentimentCount: 3})

	assert.Less(t, out.Luminosity, v.Luminosity)
	assert.Less(t, out.EtherealQuality, v.EtherealQuality)
}

func TestEvolve_DeltaCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SentimentEtherealGain = 5.0 // force a huge requested delta
	e := NewEngineSeeded(cfg, 1)

	v := Vector{Luminosity: 0.5, ArchitecturalComplexity: 0.5, EtherealQuality: 0.5,
		EvolutionSpeed: 0.5, StyleIntensity: 0.5, TemporalResonance: 0.5}

	out := e.Evolve(v, &SignalSummary{MeanSentiment: 1.0, SentimentCount: 1})

	assert.InDelta(t, 0.5+cfg.MaxDeltaPerCycle, out.EtherealQuality, 1e-9,
		"delta must cap at MaxDeltaPerCycle before clamping")
	assert.True(t, out.InBounds())
}

func TestEvolve_CumulativeDriftTwoCycles(t *testing.T) {
	e := testEngine()
	v0 := e.GenerateInitial(testInputs())

	v1 := e.Evolve(v0, nil)
	v2 := e.Evolve(v1, nil)

	limit := 2*DefaultConfig().MaxDeltaPerCycle + 1e-12
	assert.LessOrEqual(t, maxAbsDelta(v0, v2), limit)
}

func TestBreed_RequiresTwoParents(t *testing.T) {
	e := testEngine()

	_, err := e.Breed(nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = e.Breed([]Vector{e.GenerateInitial(testInputs())})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestBreed_MeanPlusJitter(t *testing.T) {
	e := testEngine()

	p1 := Vector{Luminosity: 0.2, ArchitecturalComplexity: 0.2, EtherealQuality: 0.2,
		EvolutionSpeed: 0.2, StyleIntensity: 0.2, TemporalResonance: 0.2}
	p2 := Vector{Luminosity: 0.8, ArchitecturalComplexity: 0.8, EtherealQuality: 0.8,
		EvolutionSpeed: 0.8, StyleIntensity: 0.8, TemporalResonance: 0.8}

	child, err := e.Breed([]Vector{p1, p2})
	require.NoError(t, err)
	require.True(t, child.InBounds())

	cc := child.Components()
	for i := range cc {
		assert.InDelta(t, 0.5, cc[i], DefaultConfig().BreedJitter/2+1e-12,
			"component %s should sit near the parent mean", ComponentName(i))
	}
}

func TestSignalSummary_HasData(t *testing.T) {
	var nilSummary *SignalSummary
	assert.False(t, nilSummary.HasData())
	assert.False(t, (&SignalSummary{}).HasData())
	assert.True(t, (&SignalSummary{SentimentCount: 1}).HasData())
	assert.True(t, (&SignalSummary{Engagement: 5}).HasData())
}

func TestVector_ComponentsRoundTrip(t *testing.T) {
	v := Vector{Luminosity: 0.1, ArchitecturalComplexity: 0.2, EtherealQuality: 0.3,
		EvolutionSpeed: 0.4, StyleIntensity: 0.5, TemporalResonance: 0.6}

	assert.Equal(t, v, FromComponents(v.Components()))
}
