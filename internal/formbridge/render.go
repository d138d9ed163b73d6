package formbridge

import (
	"errors"
	"net/http"
)

// RenderFunc turns a decoded response into the change made to a render
// target.
type RenderFunc func(resp Response) (Patch, error)

// Response is a decoded JSON response body.
type Response struct {
	value jsValue
}

// ParseResponse decodes a JSON body, keeping property order.
func ParseResponse(body []byte) (Response, error) {
	v, err := parseJSON(body)
	if err != nil {
		return Response{}, err
	}
	return Response{value: v}, nil
}

// Indent renders the whole response as JSON indented by two spaces.
func (r Response) Indent() string {
	out, ok := r.value.stringify("  ")
	if !ok {
		return "undefined"
	}
	return out
}

// Field returns the named top-level property as display text. A missing
// property reads as "undefined".
func (r Response) Field(name string) (string, error) {
	v, err := r.field(name)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func (r Response) field(name string) (jsValue, error) {
	switch r.value.kind {
	case jsNull, jsUndefined:
		return undefined, errors.New("cannot read properties of null (reading '" + name + "')")
	}
	return r.value.get(name), nil
}

type Kind int

const (
	Submit Kind = iota
	Click
)

func (k Kind) String() string {
	if k == Click {
		return "click"
	}
	return "submit"
}

// Binding ties one trigger element to one request and one render target.
type Binding struct {
	Trigger  string
	Kind     Kind
	Method   string
	Endpoint string
	Target   string
	Render   RenderFunc
}

// RenderIndented writes the whole response, indented, as the target text.
func RenderIndented() RenderFunc {
	return func(resp Response) (Patch, error) {
		return TextPatch(resp.Indent()), nil
	}
}

// RenderField writes one top-level property as the target text.
func RenderField(name string) RenderFunc {
	return func(resp Response) (Patch, error) {
		v, err := resp.field(name)
		if err != nil {
			return Patch{}, err
		}
		return TextPatch(v.textValue()), nil
	}
}

// RenderIndentedField writes one top-level property, indented, as the
// target text.
func RenderIndentedField(name string) RenderFunc {
	return func(resp Response) (Patch, error) {
		v, err := resp.field(name)
		if err != nil {
			return Patch{}, err
		}
		out, ok := v.stringify("  ")
		if !ok {
			out = "undefined"
		}
		return TextPatch(out), nil
	}
}

// RenderDataLink points the target's href at prefix+field and shows it.
func RenderDataLink(prefix, name, display string) RenderFunc {
	return func(resp Response) (Patch, error) {
		v, err := resp.field(name)
		if err != nil {
			return Patch{}, err
		}
		return Patch{}.WithAttr("href", prefix+v.String()).WithStyle("display", display), nil
	}
}

// DefaultBindings is the navigator page's trigger table.
func DefaultBindings() []Binding {
	return []Binding{
		{
			Trigger:  "immigration-form",
			Kind:     Submit,
			Method:   http.MethodPost,
			Endpoint: "/api/immigration",
			Target:   "immigration-result",
			Render:   RenderIndented(),
		},
		{
			Trigger:  "form-fill",
			Kind:     Submit,
			Method:   http.MethodPost,
			Endpoint: "/api/fill_form",
			Target:   "pdf-link",
			Render:   RenderDataLink("data:application/pdf;base64,", "pdf_base64", "inline"),
		},
		{
			Trigger:  "wellness-form",
			Kind:     Submit,
			Method:   http.MethodPost,
			Endpoint: "/api/wellness",
			Target:   "wellness-result",
			Render:   RenderIndented(),
		},
		{
			Trigger:  "translate-form",
			Kind:     Submit,
			Method:   http.MethodPost,
			Endpoint: "/api/translate",
			Target:   "translate-result",
			Render:   RenderField("translation"),
		},
		{
			Trigger:  "load-timeline",
			Kind:     Click,
			Method:   http.MethodGet,
			Endpoint: "/api/timeline",
			Target:   "timeline",
			Render:   RenderIndentedField("events"),
		},
	}
}
