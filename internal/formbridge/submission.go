package formbridge

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
)

// Submission is the field name to value mapping collected from one form.
// A repeated name keeps its first position and its last value.
type Submission struct {
	keys   []string
	values map[string]string
}

func NewSubmission() *Submission {
	return &Submission{values: map[string]string{}}
}

// SubmissionFromValues builds a submission from posted form values, taking
// the last value of each repeated name.
func SubmissionFromValues(values url.Values, order []string) *Submission {
	s := NewSubmission()
	seen := map[string]bool{}
	for _, name := range order {
		if vs, ok := values[name]; ok && len(vs) > 0 && !seen[name] {
			s.Set(name, vs[len(vs)-1])
			seen[name] = true
		}
	}
	var rest []string
	for name, vs := range values {
		if !seen[name] && len(vs) > 0 {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		vs := values[name]
		s.Set(name, vs[len(vs)-1])
	}
	return s
}

func (s *Submission) Set(name, value string) {
	if _, ok := s.values[name]; !ok {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

func (s *Submission) Get(name string) (string, bool) {
	v, ok := s.values[name]
	return v, ok
}

// Keys returns field names in the order they appear in the encoded body.
func (s *Submission) Keys() []string {
	return orderPropertyKeys(s.keys)
}

func (s *Submission) Len() int {
	return len(s.keys)
}

// Map returns a copy of the fields.
func (s *Submission) Map() map[string]string {
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

func (s *Submission) MarshalJSON() ([]byte, error) {
	obj := jsValue{kind: jsObject, fields: map[string]jsValue{}}
	for _, k := range s.keys {
		obj.set(k, jsValue{kind: jsString, s: s.values[k]})
	}
	out, _ := obj.stringify("")
	return []byte(out), nil
}

func (s *Submission) UnmarshalJSON(data []byte) error {
	v, err := parseJSON(data)
	if err != nil {
		return err
	}
	if v.kind != jsObject {
		return fmt.Errorf("submission must be a JSON object")
	}
	s.keys = nil
	s.values = map[string]string{}
	for _, k := range v.keys {
		field := v.fields[k]
		if field.kind != jsString {
			return fmt.Errorf("field %q is not a string", k)
		}
		s.Set(k, field.s)
	}
	return nil
}

func (s *Submission) encode() (*bytes.Reader, error) {
	raw, err := s.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}
