package wellness

import (
	"math"
	"strings"
	"unicode"
)

const (
	Positive = "POSITIVE"
	Negative = "NEGATIVE"

	CounselorAdvice = "Consider speaking with a counselor or practicing relaxation."
	PositiveAdvice  = "Keep up the positive mindset!"
)

var lexicon = map[string]float64{
	"sad": -0.5, "unhappy": -0.6, "depressed": -0.8, "miserable": -1.0, "lonely": -0.5,
	"anxious": -0.5, "worried": -0.4, "stressed": -0.5, "scared": -0.6, "afraid": -0.6,
	"angry": -0.5, "upset": -0.4, "tired": -0.4, "exhausted": -0.6, "hopeless": -0.8,
	"bad": -0.7, "terrible": -1.0, "awful": -1.0, "horrible": -1.0, "worse": -0.4, "worst": -1.0,
	"hate": -0.8, "hurt": -0.5, "cry": -0.5, "crying": -0.5, "overwhelmed": -0.6, "lost": -0.3,
	"happy": 0.8, "glad": 0.5, "great": 0.8, "good": 0.7, "fine": 0.4, "okay": 0.3, "ok": 0.3,
	"excited": 0.5, "hopeful": 0.6, "calm": 0.3, "relaxed": 0.4, "grateful": 0.7, "love": 0.5,
	"wonderful": 1.0, "amazing": 0.6, "better": 0.5, "best": 1.0, "proud": 0.8, "joy": 0.8,
}

var intensifiers = map[string]float64{
	"very": 1.3, "really": 1.2, "so": 1.3, "extremely": 1.5, "too": 1.2, "quite": 1.1,
}

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "don't": true, "isn't": true, "aren't": true,
	"wasn't": true, "can't": true, "cannot": true, "didn't": true, "doesn't": true, "won't": true,
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

// Polarity scores text in [-1, 1] by averaging the lexicon words it contains.
// A preceding negation flips and halves a word; an intensifier scales it.
// Text with no lexicon words scores 0.
func Polarity(text string) float64 {
	words := tokenize(text)
	var sum float64
	var n int
	for i, w := range words {
		score, ok := lexicon[w]
		if !ok {
			continue
		}
		for j := i - 1; j >= 0 && j >= i-2; j-- {
			if f, ok := intensifiers[words[j]]; ok {
				score *= f
			}
			if negations[words[j]] {
				score *= -0.5
				break
			}
		}
		sum += score
		n++
	}
	if n == 0 {
		return 0
	}
	avg := math.Max(-1, math.Min(1, sum/float64(n)))
	return math.Round(avg*1000) / 1000
}

func Label(score float64) string {
	if score < 0 {
		return Negative
	}
	return Positive
}

func Advice(score float64) string {
	if score < 0 {
		return CounselorAdvice
	}
	return PositiveAdvice
}
