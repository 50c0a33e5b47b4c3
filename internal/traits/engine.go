package traits

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/andrejs2008/evomint/internal/common"
)

// Config holds the evolution sensitivities. Gains map a normalized signal
// (0..1 shaped) onto a trait delta; MaxDeltaPerCycle caps the magnitude of
// any single component's change in one evolution step, before bounds
// clamping.
type Config struct {
	MaxDeltaPerCycle float64
	// DriftStrength scales the random walk used when no signal data is
	// available. The walk spans ±DriftStrength.
	DriftStrength float64
	// BreedJitter spans the ±BreedJitter/2 mutation around the parent mean.
	BreedJitter float64

	SentimentEtherealGain    float64
	SentimentLuminosityGain  float64
	EngagementComplexityGain float64
	FrequencySpeedGain       float64
	KeywordIntensityGain     float64
}

// DefaultConfig returns the production evolution parameters.
func DefaultConfig() Config {
	return Config{
		MaxDeltaPerCycle:         0.1,
		DriftStrength:            0.1,
		BreedJitter:              0.05,
		SentimentEtherealGain:    0.05,
		SentimentLuminosityGain:  0.03,
		EngagementComplexityGain: 0.04,
		FrequencySpeedGain:       0.02,
		KeywordIntensityGain:     0.03,
	}
}

// Engine derives, evolves and breeds trait vectors. Safe for concurrent use;
// the random source is guarded by a mutex.
type Engine struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewEngine returns an Engine with a time-seeded random source.
func NewEngine(cfg Config) *Engine {
	return NewEngineSeeded(cfg, time.Now().UnixNano())
}

// NewEngineSeeded returns an Engine with a fixed seed. Only the stochastic
// paths (drift fallback, breeding jitter) depend on the seed.
func NewEngineSeeded(cfg Config, seed int64) *Engine {
	return &Engine{cfg: cfg, rnd: rand.New(rand.NewSource(seed))}
}

func (e *Engine) float64() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rnd.Float64()
}

// digest concatenates the uniqueness inputs and hashes them. Both the
// initial traits and the image seed read from this one digest, so identical
// inputs reproduce both exactly.
func digest(u UniquenessInputs) string {
	combined := u.LocationHash + u.TimestampSeed + u.WalletEntropy + u.BiometricHash
	sum := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(sum[:])
}

// maxSegment is the largest value an 8-hex-char digest slice can hold.
const maxSegment = float64(0xFFFFFFFF)

// GenerateInitial derives the initial trait vector from the uniqueness
// inputs. Component i reads its own 8-character digest slice, normalizes it
// to [0, 1] and maps it into the component's bounds. Deterministic.
func (e *Engine) GenerateInitial(u UniquenessInputs) Vector {
	d := digest(u)

	var c [NumComponents]float64
	for i := range c {
		seg := d[i*8 : (i+1)*8]
		val, err := strconv.ParseUint(seg, 16, 64)
		if err != nil {
			// digest is always valid hex; keep the component neutral if not
			c[i] = bounds[i].Lo + 0.5*(bounds[i].Hi-bounds[i].Lo)
			continue
		}
		normalized := float64(val) / maxSegment
		c[i] = bounds[i].Lo + normalized*(bounds[i].Hi-bounds[i].Lo)
	}

	return FromComponents(c)
}

// ImageSeed derives the deterministic synthesis seed from the same digest as
// GenerateInitial, folded into the 31-bit range image backends accept.
func (e *Engine) ImageSeed(u UniquenessInputs) int64 {
	d := digest(u)
	val, err := strconv.ParseUint(d[:8], 16, 64)
	if err != nil {
		return 0
	}
	return int64(val % (1<<31 - 1))
}

// Evolve computes the next trait vector. With signal data, each mapped
// component moves by its gain times the normalized signal; without it, every
// component takes a bounded random walk. In both cases the per-component
// delta magnitude is capped to MaxDeltaPerCycle and the result clamped to
// bounds.
func (e *Engine) Evolve(v Vector, s *SignalSummary) Vector {
	in := v.Components()
	out := in

	if s.HasData() {
		sentiment := s.sentimentNorm()
		out[idxEthereal] += e.cfg.SentimentEtherealGain * (sentiment - 0.5) * 2
		out[idxLuminosity] -= e.cfg.SentimentLuminosityGain * (0.5 - sentiment) * 2
		out[idxComplexity] += e.cfg.EngagementComplexityGain * s.engagementNorm()
		out[idxSpeed] += e.cfg.FrequencySpeedGain * s.frequencyNorm()
		out[idxIntensity] += e.cfg.KeywordIntensityGain * s.keywordNorm()
	} else {
		for i := range out {
			out[i] += (e.float64() - 0.5) * e.cfg.DriftStrength * 2
		}
	}

	for i := range out {
		delta := out[i] - in[i]
		if delta > e.cfg.MaxDeltaPerCycle {
			delta = e.cfg.MaxDeltaPerCycle
		} else if delta < -e.cfg.MaxDeltaPerCycle {
			delta = -e.cfg.MaxDeltaPerCycle
		}
		out[i] = bounds[i].clamp(in[i] + delta)
	}

	return FromComponents(out)
}

// Breed combines two or more parents into offspring traits: componentwise
// mean plus a small symmetric jitter, clamped to bounds.
func (e *Engine) Breed(parents []Vector) (Vector, error) {
	if len(parents) < 2 {
		return Vector{}, fmt.Errorf("%w: breeding requires at least two parents, got %d", common.ErrValidation, len(parents))
	}

	var c [NumComponents]float64
	for _, p := range parents {
		pc := p.Components()
		for i := range c {
			c[i] += pc[i]
		}
	}
	for i := range c {
		mean := c[i] / float64(len(parents))
		jitter := (e.float64() - 0.5) * e.cfg.BreedJitter
		c[i] = bounds[i].clamp(mean + jitter)
	}

	return FromComponents(c), nil
}
