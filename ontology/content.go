// Package ontology provides the content-element registry and marshalling
// contract used by the ACL message layer: a named registry mapping an action
// key to a content-element schema, and a ContentManager that fills and
// extracts typed payloads from ACL message bodies.
//
// The marshal format is a self-describing, key-ordered text format (JSON);
// the wire format itself is irrelevant to protocol correctness as long as
// it round-trips a tagged ontology/action/fields triple.
package ontology

import (
	"encoding/json"
	"fmt"

	"github.com/portstack/yardctl/acl"
)

// ContentElement is a typed ACL message payload. Every registered schema
// produces values satisfying this marker interface.
type ContentElement interface {
	Key() string
}

// Builder constructs a ContentElement from its decoded field map. Numeric
// fields arrive as float64 (the JSON decoder's representation for any bare
// number landing in a map[string]any) and are coerced by fieldInt so schemas
// can declare integer fields without caring how the wire decoded them.
type Builder func(fields map[string]any) (ContentElement, error)

// Ontology is a named registry mapping an action key to a content-element
// factory: a registry keyed by string tag to a factory closure returning a
// tagged content element.
type Ontology struct {
	name     string
	builders map[string]Builder
}

// New creates an empty ontology with the given name.
func New(name string) *Ontology {
	return &Ontology{name: name, builders: make(map[string]Builder)}
}

// Name returns the ontology's registered name.
func (o *Ontology) Name() string { return o.name }

// Add registers a builder for an action key. Registering the same key twice
// is a programmer error and panics at init time.
func (o *Ontology) Add(key string, build Builder) {
	if _, exists := o.builders[key]; exists {
		panic(fmt.Sprintf("ontology %s: action %q already registered", o.name, key))
	}
	o.builders[key] = build
}

// Build decodes fields into the ContentElement registered for key.
func (o *Ontology) Build(key string, fields map[string]any) (ContentElement, error) {
	build, ok := o.builders[key]
	if !ok {
		return nil, ErrUnknownAction{Ontology: o.name, Action: key}
	}
	return build(fields)
}

// ErrUnknownOntology is returned when extract cannot resolve the message's
// ontology tag.
type ErrUnknownOntology struct{ Ontology string }

func (e ErrUnknownOntology) Error() string {
	return fmt.Sprintf("unknown ontology %q", e.Ontology)
}

// ErrUnknownAction is returned when extract cannot resolve the action tag
// within a known ontology.
type ErrUnknownAction struct{ Ontology, Action string }

func (e ErrUnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q in ontology %q", e.Action, e.Ontology)
}

// ErrMalformedContent wraps any decode failure while extracting content.
type ErrMalformedContent struct{ Cause error }

func (e ErrMalformedContent) Error() string {
	return fmt.Sprintf("malformed content: %v", e.Cause)
}
func (e ErrMalformedContent) Unwrap() error { return e.Cause }

// ContentManager owns a set of ontologies and fills/extracts typed content
// element payloads on ACL messages.
type ContentManager struct {
	ontologies map[string]*Ontology
}

// NewContentManager creates an empty content manager.
func NewContentManager() *ContentManager {
	return &ContentManager{ontologies: make(map[string]*Ontology)}
}

// Register adds an ontology so Fill/Extract can address it by name.
func (c *ContentManager) Register(o *Ontology) {
	c.ontologies[o.Name()] = o
}

// Fill marshals a typed content element into msg's body and sets its
// language, ontology, and action tags.
func (c *ContentManager) Fill(ontologyName string, msg *acl.Message, element ContentElement) error {
	body, err := json.Marshal(element)
	if err != nil {
		return ErrMalformedContent{Cause: err}
	}
	msg.Language = "json"
	msg.Ontology = ontologyName
	msg.Action = element.Key()
	msg.Body = string(body)
	return nil
}

// Extract looks up the ontology by the message's ontology tag, the action
// type by its action tag, deserializes the body, and returns a typed
// element.
func (c *ContentManager) Extract(msg *acl.Message) (ContentElement, error) {
	o, ok := c.ontologies[msg.Ontology]
	if !ok {
		return nil, ErrUnknownOntology{Ontology: msg.Ontology}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(msg.Body), &fields); err != nil {
		return nil, ErrMalformedContent{Cause: err}
	}

	element, err := o.Build(msg.Action, fields)
	if err != nil {
		return nil, err
	}
	return element, nil
}

// fieldInt reads an integer field out of a decoded field map, tolerating
// the float64 representation JSON numbers take on once boxed in any.
func fieldInt(fields map[string]any, key string) (int, bool) {
	switch v := fields[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

// fieldString reads a string field out of a decoded field map.
func fieldString(fields map[string]any, key string) (string, bool) {
	s, ok := fields[key].(string)
	return s, ok
}

// fieldMap reads a nested object field out of a decoded field map.
func fieldMap(fields map[string]any, key string) (map[string]any, bool) {
	m, ok := fields[key].(map[string]any)
	return m, ok
}

// fieldStringSlice reads a string-list field, tolerating a single bare
// string the way XML/JSON serializers sometimes collapse one-element lists.
func fieldStringSlice(fields map[string]any, key string) []string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil
	}
	if items, ok := raw.([]any); ok {
		out := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	if s, ok := raw.(string); ok {
		return []string{s}
	}
	return nil
}
