package domain

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// Envelope is one state-change notification. It is built once when a
// mutation commits and is never modified afterwards.
type Envelope struct {
	eventType  EventType
	message    string
	skipNotify bool
	link       string
	kind       NotificationKind
}

// EnvelopeOption overrides a default of the event definition.
type EnvelopeOption func(*Envelope)

// WithMessage sets the human-readable message.
func WithMessage(message string) EnvelopeOption {
	return func(e *Envelope) { e.message = message }
}

// WithLink sets the deep link.
func WithLink(link string) EnvelopeOption {
	return func(e *Envelope) { e.link = link }
}

// WithKind overrides the default notification kind.
func WithKind(kind NotificationKind) EnvelopeOption {
	return func(e *Envelope) { e.kind = kind }
}

// WithSkipNotify overrides the default toast suppression.
func WithSkipNotify(skip bool) EnvelopeOption {
	return func(e *Envelope) { e.skipNotify = skip }
}

// NewEnvelope builds an envelope for a declared event type, applying the
// type's defaults first. It panics on an undeclared type or kind.
func NewEnvelope(t EventType, opts ...EnvelopeOption) Envelope {
	def, ok := definitions[t]
	if !ok {
		panic(fmt.Sprintf("domain: envelope for undeclared event type %q", t))
	}

	e := Envelope{
		eventType:  t,
		skipNotify: def.SkipNotify,
		kind:       def.Kind,
	}
	for _, opt := range opts {
		opt(&e)
	}

	if !e.kind.IsValid() {
		panic(fmt.Sprintf("domain: envelope %s with invalid notification kind %q", t, e.kind))
	}
	return e
}

func (e Envelope) Type() EventType                    { return e.eventType }
func (e Envelope) Message() string                    { return e.message }
func (e Envelope) SkipNotify() bool                   { return e.skipNotify }
func (e Envelope) Link() string                       { return e.link }
func (e Envelope) NotificationKind() NotificationKind { return e.kind }

// Definition returns the static definition of the envelope's type.
func (e Envelope) Definition() Definition {
	def, _ := DefinitionOf(e.eventType)
	return def
}

// wireEnvelope is the transport-agnostic JSON shape.
type wireEnvelope struct {
	Type             string `json:"type"`
	Message          string `json:"message,omitempty"`
	SkipNotify       bool   `json:"skipNotify,omitempty"`
	Link             string `json:"link,omitempty"`
	NotificationKind string `json:"notificationKind,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.eventType == "" {
		return nil, fmt.Errorf("%w: empty envelope", apperrors.ErrUnknownEventType)
	}
	return json.Marshal(wireEnvelope{
		Type:             string(e.eventType),
		Message:          e.message,
		SkipNotify:       e.skipNotify,
		Link:             e.link,
		NotificationKind: string(e.kind),
	})
}

// UnmarshalJSON implements json.Unmarshaler. Unknown types fail with
// ErrUnknownEventType so receivers can ignore them.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t, err := ParseEventType(w.Type)
	if err != nil {
		return err
	}

	kind := NotificationKind(w.NotificationKind)
	if kind == "" {
		kind = definitions[t].Kind
	}
	if !kind.IsValid() {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidNotification, w.NotificationKind)
	}

	*e = Envelope{
		eventType:  t,
		message:    w.Message,
		skipNotify: w.SkipNotify,
		link:       w.Link,
		kind:       kind,
	}
	return nil
}

// DecodeEnvelope parses a wire envelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}
