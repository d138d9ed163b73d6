package wellness

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGreetingAndCheckComeFromTheirLists(t *testing.T) {
	b := NewSeededBot(7)
	for i := 0; i < 20; i++ {
		assert.Contains(t, Greetings, b.Greeting())
		assert.Contains(t, WellnessChecks, b.WellnessCheck())
	}
}

func TestEmpatheticResponse(t *testing.T) {
	b := NewSeededBot(1)

	assert.Equal(t, EmpatheticResponses[0].Response, b.EmpatheticResponse("I'm feeling sad today."))
	assert.Equal(t, EmpatheticResponses[1].Response, b.EmpatheticResponse("I am so STRESSED with work."))
	assert.Contains(t, DefaultResponses, b.EmpatheticResponse("The weather is nice."))
}

func TestEmpatheticResponseUsesFirstKeyword(t *testing.T) {
	b := NewSeededBot(1)
	assert.Equal(t, EmpatheticResponses[0].Response, b.EmpatheticResponse("tired and sad"))
}

func TestOpening(t *testing.T) {
	b := NewSeededBot(3)
	got := b.Opening()

	var greeting, check bool
	for _, g := range Greetings {
		greeting = greeting || strings.HasPrefix(got, g+" ")
	}
	for _, c := range WellnessChecks {
		check = check || strings.HasSuffix(got, " "+c)
	}
	assert.True(t, greeting, got)
	assert.True(t, check, got)
}

func TestReplyEndsWithQuestionOrRemark(t *testing.T) {
	b := NewSeededBot(42)
	followUps, closings := 0, 0
	for i := 0; i < 500; i++ {
		got := b.Reply("I'm feeling a bit anxious.")
		assert.True(t, strings.HasPrefix(got, EmpatheticResponses[2].Response+" "))
		if strings.HasSuffix(got, ClosingRemark) {
			closings++
		} else {
			followUps++
		}
	}
	assert.Greater(t, followUps, closings)
	assert.Greater(t, closings, 0)
}

func TestBotConcurrentUse(t *testing.T) {
	b := NewBot()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.Reply("hello")
			}
		}()
	}
	wg.Wait()
}

func TestPolarity(t *testing.T) {
	cases := []struct {
		text string
		sign int
	}{
		{"I am sad", -1},
		{"I feel happy and grateful", 1},
		{"I am not happy", -1},
		{"not bad at all", 1},
		{"The sky is blue.", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := Polarity(tc.text)
		switch tc.sign {
		case -1:
			assert.Less(t, got, 0.0, tc.text)
		case 1:
			assert.Greater(t, got, 0.0, tc.text)
		default:
			assert.Zero(t, got, tc.text)
		}
		assert.GreaterOrEqual(t, got, -1.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestPolarityIntensifierStaysInRange(t *testing.T) {
	assert.Equal(t, -1.0, Polarity("extremely terrible"))
	assert.Less(t, Polarity("very sad"), Polarity("sad"))
}

func TestAdviceAndLabel(t *testing.T) {
	assert.Equal(t, CounselorAdvice, Advice(-0.1))
	assert.Equal(t, PositiveAdvice, Advice(0))
	assert.Equal(t, Negative, Label(-0.5))
	assert.Equal(t, Positive, Label(0))
}
