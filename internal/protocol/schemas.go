package protocol

import "github.com/Harshitk-cp/switchboard/internal/domain"

// Payload schemas module teams implement against. Every payload is a JSON
// object; additional properties are rejected so protocol drift fails loudly.
const (
	readySchema = `{
		"type": "object",
		"properties": {
			"version": {"type": "string", "maxLength": 64}
		},
		"additionalProperties": false
	}`

	navigateSchema = `{
		"type": "object",
		"required": ["path"],
		"properties": {
			"path": {"type": "string", "pattern": "^/(?:[^/\\\\]|$)", "maxLength": 2048},
			"replace": {"type": "boolean"}
		},
		"additionalProperties": false
	}`

	resizeSchema = `{
		"type": "object",
		"required": ["height"],
		"properties": {
			"height": {"type": "integer", "minimum": 0, "maximum": 10000},
			"width": {"type": "integer", "minimum": 0, "maximum": 10000}
		},
		"additionalProperties": false
	}`

	stateChangeSchema = `{
		"type": "object",
		"required": ["key"],
		"properties": {
			"key": {"type": "string", "minLength": 1, "maxLength": 128},
			"value": {}
		},
		"additionalProperties": false
	}`

	actionTriggeredSchema = `{
		"type": "object",
		"required": ["actionId"],
		"properties": {
			"actionId": {"type": "string", "minLength": 1, "maxLength": 128},
			"label": {"type": "string", "maxLength": 256}
		},
		"additionalProperties": false
	}`
)

var commonTypes = map[domain.MessageType]string{
	domain.MessageTypeReady:    readySchema,
	domain.MessageTypeNavigate: navigateSchema,
	domain.MessageTypeResize:   resizeSchema,
}

// definitions is the schema table: per module kind, the closed set of message
// types it may send and the payload schema for each.
func definitions() map[domain.ModuleKind]map[domain.MessageType]string {
	with := func(extra map[domain.MessageType]string) map[domain.MessageType]string {
		out := make(map[domain.MessageType]string, len(commonTypes)+len(extra))
		for t, s := range commonTypes {
			out[t] = s
		}
		for t, s := range extra {
			out[t] = s
		}
		return out
	}

	return map[domain.ModuleKind]map[domain.MessageType]string{
		domain.ModuleKindPolicy: with(map[domain.MessageType]string{
			domain.MessageTypeStateChange: stateChangeSchema,
		}),
		domain.ModuleKindQuickActions: with(map[domain.MessageType]string{
			domain.MessageTypeActionTriggered: actionTriggeredSchema,
		}),
		domain.ModuleKindKPI: with(map[domain.MessageType]string{
			domain.MessageTypeStateChange: stateChangeSchema,
		}),
	}
}
