package social

import "strings"

// Small valence lexicon standing in for a full sentiment model. Scores
// land in [-1, 1]; text without any hits is neutral 0.
var positiveWords = []string{
	"love", "great", "amazing", "beautiful", "excited", "awesome",
	"happy", "wonderful", "best", "incredible", "stunning", "brilliant",
}

var negativeWords = []string{
	"hate", "terrible", "awful", "sad", "angry", "worst",
	"disappointing", "ugly", "broken", "horrible", "bad", "boring",
}

func scoreSentiment(text string) float64 {
	lower := strings.ToLower(text)

	var pos, neg float64
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}

	if pos+neg == 0 {
		return 0
	}
	return (pos - neg) / (pos + neg)
}
