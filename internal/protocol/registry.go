// Package protocol holds the frame message schema table and validates
// incoming envelopes against it.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Harshitk-cp/switchboard/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrInvalidEnvelope    = errors.New("invalid message envelope")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrInvalidPayload     = errors.New("payload does not match schema")
	ErrUnknownModuleKind  = errors.New("unknown module kind")
)

const schemaBaseURL = "https://switchboard.schemas.local/frames"

// Registry is the compiled schema table. It is read-only after NewRegistry.
type Registry struct {
	schemas map[domain.ModuleKind]map[domain.MessageType]*jsonschema.Schema
}

// NewRegistry compiles every payload schema. A compile failure is a startup error.
func NewRegistry() (*Registry, error) {
	return compile(definitions())
}

func compile(defs map[domain.ModuleKind]map[domain.MessageType]string) (*Registry, error) {
	r := &Registry{schemas: make(map[domain.ModuleKind]map[domain.MessageType]*jsonschema.Schema, len(defs))}

	for kind, types := range defs {
		compiled := make(map[domain.MessageType]*jsonschema.Schema, len(types))
		for msgType, src := range types {
			c := jsonschema.NewCompiler()
			c.Draft = jsonschema.Draft2020
			url := fmt.Sprintf("%s/%s/%s.schema.json", schemaBaseURL, kind, msgType)
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				return nil, fmt.Errorf("load schema %s/%s: %w", kind, msgType, err)
			}
			s, err := c.Compile(url)
			if err != nil {
				return nil, fmt.Errorf("compile schema %s/%s: %w", kind, msgType, err)
			}
			compiled[msgType] = s
		}
		r.schemas[kind] = compiled
	}
	return r, nil
}

// Knows reports whether kind declares msgType.
func (r *Registry) Knows(kind domain.ModuleKind, msgType domain.MessageType) bool {
	_, ok := r.schemas[kind][msgType]
	return ok
}

// Types lists the message types kind declares, sorted.
func (r *Registry) Types(kind domain.ModuleKind) []domain.MessageType {
	out := make([]domain.MessageType, 0, len(r.schemas[kind]))
	for t := range r.schemas[kind] {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses body as a frame message envelope for kind and validates the
// payload against the schema registered for its type. Returned errors never
// quote the body.
func (r *Registry) Decode(kind domain.ModuleKind, body []byte) (domain.FrameMessage, error) {
	types, ok := r.schemas[kind]
	if !ok {
		return domain.FrameMessage{}, fmt.Errorf("%w: %s", ErrUnknownModuleKind, kind)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return domain.FrameMessage{}, ErrInvalidEnvelope
	}
	if env.Type == "" {
		return domain.FrameMessage{}, fmt.Errorf("%w: missing type", ErrInvalidEnvelope)
	}

	msgType := domain.MessageType(env.Type)
	schema, ok := types[msgType]
	if !ok {
		return domain.FrameMessage{}, ErrUnknownMessageType
	}

	payload := env.Payload
	if len(bytes.TrimSpace(payload)) == 0 || bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = json.RawMessage("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return domain.FrameMessage{}, ErrInvalidPayload
	}
	if err := schema.Validate(doc); err != nil {
		return domain.FrameMessage{}, fmt.Errorf("%w: %s", ErrInvalidPayload, msgType)
	}

	return domain.FrameMessage{Type: msgType, Payload: payload}, nil
}

// PeekType returns the declared type of body only when it is a type kind
// declares, so diagnostics never echo attacker-chosen strings.
func (r *Registry) PeekType(kind domain.ModuleKind, body []byte) domain.MessageType {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	t := domain.MessageType(env.Type)
	if !r.Knows(kind, t) {
		return ""
	}
	return t
}
