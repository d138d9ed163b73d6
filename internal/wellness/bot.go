// Package wellness is the supportive chat bot behind the wellness endpoints
// and a small lexicon sentiment scorer.
package wellness

import (
	"math/rand/v2"
	"strings"
	"sync"
)

const ClosingRemark = "Remember, I'm here if you want to talk more."

// followUpChance is the probability a reply ends with another check-in question.
const followUpChance = 0.7

var Greetings = []string{
	"Hello there! I'm here to listen. How are you doing today?",
	"Hi! It's good to connect. What's on your mind?",
	"Hey! I hope you're having an okay day. Want to talk about anything?",
	"Greetings! I'm your friendly support bot. How can I help you feel a bit better today?",
}

var WellnessChecks = []string{
	"How are you feeling today, really?",
	"Is there anything on your mind that you'd like to share?",
	"What kind of thoughts have you been having lately?",
	"On a scale of 1 to 10, how would you rate your current mood?",
	"Remember, I'm here to listen without judgment. What's up?",
}

type keywordResponse struct {
	Keyword  string
	Response string
}

// EmpatheticResponses are checked in order; the first keyword found wins.
var EmpatheticResponses = []keywordResponse{
	{"sad", "I'm sorry to hear you're feeling sad. Remember it's okay to feel this way, and you're not alone."},
	{"stressed", "It sounds like you're going through a lot. Take a deep breath; we can explore ways to manage this stress if you like."},
	{"anxious", "Anxiety can be really tough. I'm here for you. Sometimes just talking about it can help."},
	{"lonely", "Feeling lonely is a difficult emotion. Thank you for sharing that with me. I'm here to keep you company."},
	{"happy", "That's wonderful to hear you're feeling happy! What's bringing you joy?"},
	{"angry", "It's understandable to feel angry sometimes. What's causing this feeling for you?"},
	{"tired", "Feeling tired can make everything seem harder. Make sure you're giving yourself time to rest."},
}

var DefaultResponses = []string{
	"Thank you for sharing that with me. It takes courage to open up.",
	"I'm here to listen. Tell me more if you feel comfortable.",
	"That sounds important. How is it affecting you?",
	"I understand. Sometimes just expressing our feelings can make a difference.",
	"Remember to be kind to yourself.",
}

// Bot picks its lines at random. It is safe for concurrent use.
type Bot struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewBot() *Bot {
	return &Bot{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededBot is deterministic for a given seed.
func NewSeededBot(seed uint64) *Bot {
	return &Bot{rng: rand.New(rand.NewPCG(seed, seed))}
}

func (b *Bot) pick(lines []string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lines[b.rng.IntN(len(lines))]
}

func (b *Bot) chance(p float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng.Float64() < p
}

func (b *Bot) Greeting() string {
	return b.pick(Greetings)
}

func (b *Bot) WellnessCheck() string {
	return b.pick(WellnessChecks)
}

func (b *Bot) EmpatheticResponse(input string) string {
	lower := strings.ToLower(input)
	for _, kr := range EmpatheticResponses {
		if strings.Contains(lower, kr.Keyword) {
			return kr.Response
		}
	}
	return b.pick(DefaultResponses)
}

// Opening starts a conversation with a greeting and a check-in question.
func (b *Bot) Opening() string {
	return b.Greeting() + " " + b.WellnessCheck()
}

// Reply answers one user message, usually followed by another question.
func (b *Bot) Reply(input string) string {
	response := b.EmpatheticResponse(input)
	if b.chance(followUpChance) {
		return response + " " + b.WellnessCheck()
	}
	return response + " " + ClosingRemark
}
