// Package lawflow answers visa procedure questions from a static catalog:
// visa types per country, stages per visa type, the documents each stage
// needs, and reference details for individual documents.
package lawflow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const InvalidStageMessage = "Invalid current stage or no further stages defined."

var ErrDocumentNotFound = errors.New("document details not found")

//go:embed catalog.yaml
var defaultCatalog []byte

type Document struct {
	Name    string `yaml:"name" json:"name"`
	Purpose string `yaml:"purpose" json:"purpose"`
	Link    string `yaml:"link,omitempty" json:"link,omitempty"`
	Notes   string `yaml:"notes,omitempty" json:"notes,omitempty"`
}

type stageDocuments struct {
	VisaType string   `yaml:"visa_type"`
	Stage    string   `yaml:"stage"`
	Items    []string `yaml:"items"`
}

type Catalog struct {
	Countries map[string][]string `yaml:"countries"`
	Stages    map[string][]string `yaml:"stages"`
	Documents []stageDocuments    `yaml:"documents"`
	Details   map[string]Document `yaml:"details"`
}

// Default returns the embedded catalog. It panics if the embedded file is
// malformed, which only a broken build can cause.
func Default() *Catalog {
	c, err := Parse(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(r io.Reader) (*Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode visa catalog: %w", err)
	}
	for _, d := range c.Documents {
		if _, ok := c.Stages[d.VisaType]; !ok {
			return nil, fmt.Errorf("documents reference unknown visa type %q", d.VisaType)
		}
	}
	return &c, nil
}

func (c *Catalog) CountryCodes() []string {
	codes := make([]string, 0, len(c.Countries))
	for code := range c.Countries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// VisaTypes looks up a country code case-insensitively.
func (c *Catalog) VisaTypes(country string) []string {
	return cloneOrEmpty(c.Countries[strings.ToUpper(strings.TrimSpace(country))])
}

func (c *Catalog) VisaStages(visaType string) []string {
	return cloneOrEmpty(c.Stages[visaType])
}

func (c *Catalog) RequiredDocuments(visaType, stage string) []string {
	for _, d := range c.Documents {
		if d.VisaType == visaType && d.Stage == stage {
			return cloneOrEmpty(d.Items)
		}
	}
	return []string{}
}

// NextSteps lists the stages after the current one. The last stage yields an
// empty list; an unknown visa type or stage yields InvalidStageMessage.
func (c *Catalog) NextSteps(visaType, currentStage string) []string {
	stages := c.Stages[visaType]
	i := slices.Index(stages, currentStage)
	if i < 0 {
		return []string{InvalidStageMessage}
	}
	return cloneOrEmpty(stages[i+1:])
}

func (c *Catalog) DocumentDetails(name string) (Document, error) {
	d, ok := c.Details[name]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return d, nil
}

func cloneOrEmpty(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	return slices.Clone(in)
}
