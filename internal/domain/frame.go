package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType is the declared type of a frame message.
type MessageType string

const (
	MessageTypeReady           MessageType = "ready"
	MessageTypeNavigate        MessageType = "navigate"
	MessageTypeResize          MessageType = "resize"
	MessageTypeStateChange     MessageType = "state-change"
	MessageTypeActionTriggered MessageType = "action-triggered"
)

// FrameMessage is the unit a module frame sends to the dashboard.
// Origin is filled from the transport and is never read from the body.
type FrameMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Origin  string          `json:"-"`
}

// Delivery is what a dashboard-side subscriber receives for an accepted message.
type Delivery struct {
	InstanceID uuid.UUID       `json:"instance_id"`
	ModuleKind ModuleKind      `json:"module_kind"`
	Type       MessageType     `json:"type"`
	Payload    json.RawMessage `json:"payload"`
}

type RejectReason string

const (
	ReasonOriginRejected         RejectReason = "origin_rejected"
	ReasonSchemaValidationFailed RejectReason = "schema_validation_failed"
	ReasonSubscriberFailure      RejectReason = "subscriber_failure"
)

// Diagnostic records a rejected message or a failed subscriber call.
// It never carries payload content.
type Diagnostic struct {
	ID            uuid.UUID    `json:"id"`
	InstanceID    uuid.UUID    `json:"instance_id"`
	TenantID      string       `json:"tenant_id"`
	ModuleKind    ModuleKind   `json:"module_kind"`
	Origin        string       `json:"origin"`
	AttemptedType MessageType  `json:"attempted_type,omitempty"`
	Reason        RejectReason `json:"reason"`
	Detail        string       `json:"detail,omitempty"`
	OccurredAt    time.Time    `json:"occurred_at"`
}
