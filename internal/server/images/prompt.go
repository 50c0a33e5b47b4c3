// Package images builds artwork prompts, calls the image-synthesis API and
// stores the produced artifacts.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/andrejs2008/evomint/internal/common"
	"github.com/andrejs2008/evomint/internal/server/models"
	"github.com/andrejs2008/evomint/internal/traits"
)

type artistStyle struct {
	styleModifiers    []string
	signatureElements []string
}

// artistStyles drives the per-creator flavor of generated prompts.
// Unknown creators fall back to neutral phrasing.
var artistStyles = map[string]artistStyle{
	"Da Vinci": {
		styleModifiers:    []string{"Renaissance precision", "anatomical detail", "sfumato technique"},
		signatureElements: []string{"flying machines", "architectural sketches", "human studies"},
	},
	"Van Gogh": {
		styleModifiers:    []string{"swirling brushstrokes", "vibrant colors", "emotional intensity"},
		signatureElements: []string{"starry skies", "cypress trees", "wheat fields"},
	},
	"Picasso": {
		styleModifiers:    []string{"cubist fragmentation", "geometric forms", "multiple perspectives"},
		signatureElements: []string{"abstract faces", "bull imagery", "guitar motifs"},
	},
	"Monet": {
		styleModifiers:    []string{"impressionist light", "color harmony", "atmospheric effects"},
		signatureElements: []string{"water lilies", "cathedral series", "garden scenes"},
	},
	"Dali": {
		styleModifiers:    []string{"surrealist imagery", "melting forms", "dream-like quality"},
		signatureElements: []string{"melting clocks", "elephants on stilts", "desert landscapes"},
	},
}

var fallbackArtist = artistStyle{
	styleModifiers:    []string{"artistic style"},
	signatureElements: []string{"artistic elements"},
}

// categoryScenes seeds the base motif per category.
var categoryScenes = map[string][]string{
	"architecture": {"floating city", "crystal palace", "organic building", "sky fortress"},
	"nature":       {"enchanted forest", "mountain peak", "ocean depths", "desert oasis"},
	"portrait":     {"ethereal figure", "cosmic being", "time traveler", "dimensional guardian"},
	"abstract":     {"geometric harmony", "color symphony", "form in motion", "dimensional rift"},
	"cosmic":       {"nebula formation", "galactic center", "black hole", "stellar nursery"},
	"urban":        {"neon cityscape", "industrial complex", "street art", "urban jungle"},
	"fantasy":      {"magical realm", "dragon's lair", "enchanted castle", "fairy kingdom"},
	"historical":   {"ancient temple", "medieval castle", "renaissance palace", "baroque cathedral"},
}

var locationContexts = []string{
	"at the intersection of dimensions",
	"where time flows differently",
	"in a pocket of altered reality",
	"at the convergence of energies",
	"in a place of ancient power",
}

var signatureContexts = []string{
	"marked by cosmic signature",
	"sealed with dimensional energy",
	"infused with personal essence",
	"bonded to creator's spirit",
	"attuned to owner's frequency",
}

// BuildPrompt renders the synthesis prompt for an item. Prompt mode wraps
// the user's own text with personal context; every other mode derives the
// whole scene deterministically from the uniqueness inputs, so the same
// item always re-renders the same base motif while trait adjectives shift
// with evolution.
func BuildPrompt(mode, creator, category, userPrompt string, unique traits.UniquenessInputs, tv traits.Vector) (string, error) {
	switch mode {
	case models.ModePrompt:
		if strings.TrimSpace(userPrompt) == "" {
			return "", fmt.Errorf("%w: prompt mode requires a user prompt", common.ErrValidation)
		}
		return customPrompt(userPrompt, creator, unique, tv), nil
	case models.ModeSelection, models.ModeEvolution, models.ModeBreeding:
		return selectionPrompt(creator, category, unique, tv), nil
	default:
		return "", fmt.Errorf("%w: unknown generation mode %q", common.ErrValidation, mode)
	}
}

func selectionPrompt(creator, category string, unique traits.UniquenessInputs, tv traits.Vector) string {
	scenes, ok := categoryScenes[category]
	if !ok {
		scenes = categoryScenes["abstract"]
	}
	scene := scenes[hashPick(unique.LocationHash, len(scenes))]

	artist := artistFor(creator)
	style := artist.styleModifiers[hashPick(unique.WalletEntropy, len(artist.styleModifiers))]

	prompt := fmt.Sprintf("%s in %s style with %s, %s", scene, creator, style, uniqueContext(unique))
	if tc := traitContext(tv); tc != "" {
		prompt += ", " + tc
	}
	return prompt
}

func customPrompt(userPrompt, creator string, unique traits.UniquenessInputs, tv traits.Vector) string {
	artist := artistFor(creator)
	element := artist.signatureElements[hashPick(unique.WalletEntropy, len(artist.signatureElements))]

	prompt := fmt.Sprintf("%s, infused with geographical essence, anchored in this moment of creation, featuring %s",
		strings.TrimSpace(userPrompt), element)
	if tc := traitContext(tv); tc != "" {
		prompt += ", " + tc
	}
	return prompt
}

func artistFor(creator string) artistStyle {
	if a, ok := artistStyles[creator]; ok {
		return a
	}
	return fallbackArtist
}

// uniqueContext folds location, mint time and wallet signature into three
// fixed phrases so the scene stays tied to the mint moment.
func uniqueContext(unique traits.UniquenessInputs) string {
	location := locationContexts[hexPick(unique.LocationHash, len(locationContexts))]

	var timeContext string
	timestamp, _ := strconv.ParseInt(unique.TimestampSeed, 10, 64)
	switch hour := (timestamp % 86400) / 3600; {
	case hour >= 5 && hour < 12:
		timeContext = "bathed in dawn light"
	case hour >= 12 && hour < 17:
		timeContext = "under the midday sun"
	case hour >= 17 && hour < 20:
		timeContext = "in golden hour glow"
	case hour >= 20 && hour < 24:
		timeContext = "under twilight skies"
	default:
		timeContext = "in the depth of night"
	}

	wallet := signatureContexts[hashPick(unique.WalletEntropy, len(signatureContexts))]

	return fmt.Sprintf("%s, %s, %s", location, timeContext, wallet)
}

// traitContext turns pronounced trait components into prompt adjectives.
// Components in the middle band contribute nothing.
func traitContext(tv traits.Vector) string {
	var phrases []string
	add := func(v float64, high, low string) {
		switch {
		case v > 0.75:
			phrases = append(phrases, high)
		case v < 0.25:
			phrases = append(phrases, low)
		}
	}
	add(tv.Luminosity, "vibrantly luminous", "subtly shadowed")
	add(tv.ArchitecturalComplexity, "with intricate architectural forms", "with minimalist structures")
	add(tv.EtherealQuality, "possessing an otherworldly aura", "grounded and tangible")
	add(tv.EvolutionSpeed, "dynamic and evolving rapidly", "stable and unchanging")
	add(tv.StyleIntensity, "with intense artistic expression", "with gentle and soft styling")
	add(tv.TemporalResonance, "echoing through time", "rooted in the present moment")
	return strings.Join(phrases, " and ")
}

// hashPick indexes into a table by the sha256 of the input, so picks are
// deterministic but well spread.
func hashPick(input string, n int) int {
	sum := sha256.Sum256([]byte(input))
	v, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:8], 16, 64)
	return int(v % uint64(n))
}

// hexPick indexes by the input's own leading hex digits, falling back to 0
// for non-hex input.
func hexPick(input string, n int) int {
	if len(input) < 8 {
		return 0
	}
	v, err := strconv.ParseUint(input[:8], 16, 64)
	if err != nil {
		return 0
	}
	return int(v % uint64(n))
}
