// Package schema validates API request bodies against embedded JSON Schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type Kind string

const (
	Immigration Kind = "immigration"
	FillForm    Kind = "fill_form"
	Wellness    Kind = "wellness"
	Translate   Kind = "translate"
	Chat        Kind = "chat"
	Timeline    Kind = "timeline"
)

const baseURL = "https://navigator.local/schemas/"

//go:embed schemas/*.json
var files embed.FS

var ErrUnknownKind = errors.New("unknown schema kind")

// Error lists every failed constraint.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return strings.Join(e.Problems, "; ")
}

type Registry struct {
	schemas map[Kind]*jsonschema.Schema
}

// Load compiles every embedded schema.
func Load() (*Registry, error) {
	entries, err := files.ReadDir("schemas")
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true

	var kinds []Kind
	for _, entry := range entries {
		raw, err := files.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(baseURL+entry.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
		kinds = append(kinds, Kind(strings.TrimSuffix(entry.Name(), ".json")))
	}

	r := &Registry{schemas: make(map[Kind]*jsonschema.Schema, len(kinds))}
	for _, kind := range kinds {
		compiled, err := c.Compile(baseURL + string(kind) + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", kind, err)
		}
		r.schemas[kind] = compiled
	}
	return r, nil
}

func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.schemas))
	for k := range r.schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate decodes body and checks it against the schema for kind. The
// decoded document is returned so callers do not parse twice.
func (r *Registry) Validate(kind Kind, body []byte) (any, error) {
	s, ok := r.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Problems: []string{"body must be valid JSON"}}
	}
	if err := s.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return nil, &Error{Problems: leafMessages(ve)}
		}
		return nil, err
	}
	return doc, nil
}

func leafMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, cause := range ve.Causes {
		out = append(out, leafMessages(cause)...)
	}
	return out
}
