package nlp

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

type phrase struct {
	text   string
	target language.Base
}

// Translator is a phrasebook stand-in for a translation service.
type Translator struct {
	phrases map[phrase]string
	names   map[string]language.Tag
}

var supported = []language.Tag{
	language.English, language.Spanish, language.French, language.German,
	language.Portuguese, language.Italian, language.Chinese, language.Arabic,
	language.Hindi, language.Russian, language.Vietnamese, language.Korean,
}

func NewTranslator() *Translator {
	t := &Translator{
		phrases: make(map[phrase]string),
		names:   make(map[string]language.Tag),
	}
	t.Add("hello", language.Spanish, "hola (translated)")
	t.Add("hola", language.English, "hello (translated)")

	english := display.English.Tags()
	for _, tag := range supported {
		t.names[strings.ToLower(english.Name(tag))] = tag
		t.names[strings.ToLower(display.Self.Name(tag))] = tag
	}
	return t
}

func (t *Translator) Add(text string, target language.Tag, translation string) {
	base, _ := target.Base()
	t.phrases[phrase{text: strings.ToLower(text), target: base}] = translation
}

// Resolve maps a BCP 47 code or a language name ("Spanish", "español") to a
// canonical tag.
func (t *Translator) Resolve(lang string) (language.Tag, bool) {
	lang = strings.TrimSpace(lang)
	if lang == "" {
		return language.Und, false
	}
	if tag, ok := t.names[strings.ToLower(lang)]; ok {
		return tag, true
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

func (t *Translator) lookup(text, target string) (string, bool) {
	tag, ok := t.Resolve(target)
	if !ok {
		return "", false
	}
	base, _ := tag.Base()
	out, ok := t.phrases[phrase{text: strings.ToLower(text), target: base}]
	return out, ok
}

// Translate simulates translating text from source into target.
func (t *Translator) Translate(text, target, source string) string {
	if out, ok := t.lookup(text, target); ok {
		return out
	}
	return fmt.Sprintf("%s (simulated translation to %s)", text, t.code(target))
}

// TranslateFor answers the translation endpoint, which labels unknown
// phrases with the language exactly as requested.
func (t *Translator) TranslateFor(text, target string) string {
	if out, ok := t.lookup(text, target); ok {
		return out
	}
	return fmt.Sprintf("%s (translated to %s)", text, target)
}

func (t *Translator) code(lang string) string {
	if tag, ok := t.Resolve(lang); ok {
		return tag.String()
	}
	return lang
}

// DisplayName is the English name of lang, or "" when it cannot be resolved.
func (t *Translator) DisplayName(lang string) string {
	tag, ok := t.Resolve(lang)
	if !ok {
		return ""
	}
	return display.English.Tags().Name(tag)
}

// IsEnglish reports whether lang is empty or any English variant.
func (t *Translator) IsEnglish(lang string) bool {
	if strings.TrimSpace(lang) == "" {
		return true
	}
	tag, ok := t.Resolve(lang)
	if !ok {
		return false
	}
	base, _ := tag.Base()
	en, _ := language.English.Base()
	return base == en
}

type Language struct {
	Code string
	Name string
}

// Languages lists the languages the page offers, English first.
func (t *Translator) Languages() []Language {
	english := display.English.Tags()
	out := make([]Language, 0, len(supported))
	for _, tag := range supported {
		out = append(out, Language{Code: tag.String(), Name: english.Name(tag)})
	}
	return out
}
