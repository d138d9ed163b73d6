package formbridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrorElementID is the element that shows the last bridge failure.
const ErrorElementID = "bridge-error"

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Event is the DOM event that started a submit.
type Event interface {
	PreventDefault()
}

// SubmitEvent is a cancellable submit event.
type SubmitEvent struct {
	prevented int
}

func (e *SubmitEvent) PreventDefault() { e.prevented++ }

func (e *SubmitEvent) DefaultPrevented() bool { return e.prevented > 0 }

// Bridge dispatches trigger events to the backend and renders the replies
// into a Page. Element handles are resolved once, in New.
type Bridge struct {
	baseURL  string
	client   Doer
	logger   *slog.Logger
	header   http.Header
	errorEl  *Element
	bindings map[string]*boundTrigger
	order    []string
}

type boundTrigger struct {
	Binding
	trigger *Element
	target  *Element
}

type Option func(*Bridge)

func WithHTTPClient(client Doer) Option {
	return func(b *Bridge) { b.client = client }
}

func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(b *Bridge) { b.header.Add(key, value) }
}

func New(page *Page, baseURL string, bindings []Binding, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 8 * time.Second},
		logger:   slog.Default(),
		header:   http.Header{},
		bindings: make(map[string]*boundTrigger, len(bindings)),
	}
	for _, opt := range opts {
		opt(b)
	}

	for _, binding := range bindings {
		if binding.Render == nil {
			return nil, fmt.Errorf("binding %s: missing render step", binding.Trigger)
		}
		if _, dup := b.bindings[binding.Trigger]; dup {
			return nil, fmt.Errorf("binding %s: duplicate trigger", binding.Trigger)
		}
		trigger, err := page.Element(binding.Trigger)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", binding.Trigger, err)
		}
		if binding.Kind == Submit && trigger.Tag() != "form" {
			return nil, fmt.Errorf("binding %s: %w", binding.Trigger, ErrNotForm)
		}
		target, err := page.Element(binding.Target)
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", binding.Trigger, err)
		}
		if binding.Method == "" {
			binding.Method = http.MethodPost
			if binding.Kind == Click {
				binding.Method = http.MethodGet
			}
		}
		b.bindings[binding.Trigger] = &boundTrigger{Binding: binding, trigger: trigger, target: target}
		b.order = append(b.order, binding.Trigger)
	}

	if el, err := page.Element(ErrorElementID); err == nil {
		b.errorEl = el
	}
	return b, nil
}

// Triggers lists the bound trigger ids in binding order.
func (b *Bridge) Triggers() []string {
	return append([]string(nil), b.order...)
}

// Binding returns the binding for a trigger.
func (b *Bridge) Binding(trigger string) (Binding, bool) {
	bt, ok := b.bindings[trigger]
	if !ok {
		return Binding{}, false
	}
	return bt.Binding, true
}

// Form returns the form element of a submit trigger.
func (b *Bridge) Form(trigger string) (*Element, error) {
	bt, ok := b.bindings[trigger]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
	if bt.Kind != Submit {
		return nil, fmt.Errorf("%w: %s is a %s trigger", ErrWrongKind, trigger, bt.Kind)
	}
	return bt.trigger, nil
}

// Submit handles a submit event on a form trigger: the default action is
// prevented, the form's fields are sent as JSON and the reply is rendered.
func (b *Bridge) Submit(ctx context.Context, trigger string, ev Event) error {
	if ev != nil {
		ev.PreventDefault()
	}
	bt, ok := b.bindings[trigger]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
	if bt.Kind != Submit {
		return fmt.Errorf("%w: %s is a %s trigger", ErrWrongKind, trigger, bt.Kind)
	}

	sub, err := bt.trigger.FormValues()
	if err != nil {
		return b.fail(bt, err)
	}
	body, err := sub.encode()
	if err != nil {
		return b.fail(bt, err)
	}
	return b.roundTrip(ctx, bt, body)
}

// Load handles a click trigger: a body-less request whose reply is rendered.
func (b *Bridge) Load(ctx context.Context, trigger string) error {
	bt, ok := b.bindings[trigger]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
	if bt.Kind != Click {
		return fmt.Errorf("%w: %s is a %s trigger", ErrWrongKind, trigger, bt.Kind)
	}
	return b.roundTrip(ctx, bt, nil)
}

// Dispatch routes an event to Submit or Load by the trigger's kind.
func (b *Bridge) Dispatch(ctx context.Context, trigger string, ev Event) error {
	bt, ok := b.bindings[trigger]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrigger, trigger)
	}
	if bt.Kind == Click {
		return b.Load(ctx, trigger)
	}
	return b.Submit(ctx, trigger, ev)
}

func (b *Bridge) roundTrip(ctx context.Context, bt *boundTrigger, body io.Reader) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, bt.Method, b.baseURL+bt.Endpoint, body)
	if err != nil {
		return b.fail(bt, &RequestError{Method: bt.Method, Endpoint: bt.Endpoint, Err: err})
	}
	for key, values := range b.header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return b.fail(bt, &RequestError{Method: bt.Method, Endpoint: bt.Endpoint, Err: err})
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return b.fail(bt, &RequestError{Method: bt.Method, Endpoint: bt.Endpoint, Err: err})
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return b.fail(bt, &StatusError{
			Method:     bt.Method,
			Endpoint:   bt.Endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		})
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		return b.fail(bt, &DecodeError{Method: bt.Method, Endpoint: bt.Endpoint, Err: err})
	}
	patch, err := bt.Render(parsed)
	if err != nil {
		return b.fail(bt, &RenderError{Trigger: bt.Trigger, Err: err})
	}

	bt.target.Apply(patch)
	b.clearError()
	b.logger.Debug("bridge rendered",
		"trigger", bt.Trigger,
		"endpoint", bt.Endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)
	return nil
}

func (b *Bridge) fail(bt *boundTrigger, err error) error {
	b.logger.Warn("bridge request failed", "trigger", bt.Trigger, "endpoint", bt.Endpoint, "error", err)
	if b.errorEl != nil {
		b.errorEl.Apply(TextPatch(err.Error()).
			WithAttr("data-trigger", bt.Trigger).
			WithAttr("role", "alert").
			WithoutAttr("hidden"))
	}
	return err
}

func (b *Bridge) clearError() {
	if b.errorEl == nil {
		return
	}
	b.errorEl.Apply(TextPatch("").WithAttr("hidden", "").WithoutAttr("data-trigger"))
}
