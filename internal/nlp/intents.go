// Package nlp holds the keyword intent matcher and the phrasebook translator
// used by the chat and translation endpoints.
package nlp

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

const samplesPrefix = "samples_"

//go:embed intents.json
var defaultIntents []byte

// Intent is one named intent with sample phrases keyed by language code.
type Intent struct {
	Name    string
	Samples map[string][]string
}

func (i *Intent) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	name, ok := raw["name"]
	if !ok {
		return fmt.Errorf("intent without name")
	}
	if err := json.Unmarshal(name, &i.Name); err != nil {
		return fmt.Errorf("intent name: %w", err)
	}
	i.Samples = make(map[string][]string)
	for key, value := range raw {
		lang, ok := strings.CutPrefix(key, samplesPrefix)
		if !ok {
			continue
		}
		var phrases []string
		if err := json.Unmarshal(value, &phrases); err != nil {
			return fmt.Errorf("intent %s %s: %w", i.Name, key, err)
		}
		i.Samples[lang] = phrases
	}
	return nil
}

type Intents struct {
	Intents []Intent `json:"intents"`
}

func DefaultIntents() *Intents {
	in, err := ReadIntents(bytes.NewReader(defaultIntents))
	if err != nil {
		panic(err)
	}
	return in
}

func ReadIntents(r io.Reader) (*Intents, error) {
	var in Intents
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	return &in, nil
}

// LoadIntents reads an intents file from disk.
func LoadIntents(path string) (*Intents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadIntents(f)
}

// ParseIntent returns the first intent with a sample phrase for lang that
// occurs in text, ignoring case. The second result is false when nothing
// matches or lang has no samples.
func (in *Intents) ParseIntent(text, lang string) (string, bool) {
	if in == nil {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, intent := range in.Intents {
		for _, phrase := range intent.Samples[lang] {
			if strings.Contains(lower, strings.ToLower(phrase)) {
				return intent.Name, true
			}
		}
	}
	return "", false
}

func (in *Intents) Names() []string {
	names := make([]string, 0, len(in.Intents))
	for _, intent := range in.Intents {
		names = append(names, intent.Name)
	}
	return names
}
