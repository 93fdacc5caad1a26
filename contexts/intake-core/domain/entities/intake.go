package entities

import (
	"net/url"
	"strings"
	"time"

	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

// DestinationKind enumerates where a finalized submission is delivered.
type DestinationKind string

const (
	DestinationWebhook  DestinationKind = "webhook"
	DestinationCallback DestinationKind = "callback"
	DestinationQueue    DestinationKind = "queue"
)

// Destination configures the Delivery Engine's terminal outbound step.
type Destination struct {
	Kind  DestinationKind
	URL   string // required for webhook/callback
	Topic string // required for queue
}

// DeliveryPolicy parameterizes the Delivery Engine's exponential backoff
// schedule. Zero-value fields fall back to the documented defaults
// (5 attempts / 1s initial delay / x2 multiplier / 60s cap).
type DeliveryPolicy struct {
	MaxAttempts       int
	InitialDelayMs    int64
	BackoffMultiplier float64
	MaxDelayMs        int64
}

// Resolved fills in the documented defaults for any zero field.
func (p DeliveryPolicy) Resolved() DeliveryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 5
	}
	if p.InitialDelayMs <= 0 {
		p.InitialDelayMs = 1000
	}
	if p.BackoffMultiplier <= 0 {
		p.BackoffMultiplier = 2
	}
	if p.MaxDelayMs <= 0 {
		p.MaxDelayMs = 60000
	}
	return p
}

// ApproveOperator enumerates the comparison an ApprovalGate's predicate applies.
type ApproveOperator string

const (
	OpEquals      ApproveOperator = "equals"
	OpNotEquals   ApproveOperator = "not_equals"
	OpLessThan    ApproveOperator = "less_than"
	OpGreaterThan ApproveOperator = "greater_than"
	OpAlways      ApproveOperator = "always" // gate never auto-approves
)

// ApprovalGate is a named checkpoint that forces submitted -> needs_review
// unless its AutoApproveIf predicate matches the submission's field map.
type ApprovalGate struct {
	Name          string
	FieldPath     string
	Operator      ApproveOperator
	Value         any
	AutoApproveIf bool // when false, the gate always forces needs_review regardless of Operator
}

// SchemaField describes one declared field of an intake's schema, enough for
// the Validator (domain/services/validator.go) to evaluate constraints and
// file-typed fields.
type SchemaField struct {
	Path     string
	Type     string // string, number, boolean, email, file
	Required bool
	MinLen   int
	MaxLen   int
	Accept   []string // for Type == "file"
	MaxBytes int64    // for Type == "file"
}

// Schema is the opaque-to-the-rest-of-the-system field constraint set an
// intake definition carries; the Validator is the only component that reads it.
type Schema struct {
	Fields []SchemaField
}

func (s Schema) Field(path string) (SchemaField, bool) {
	for _, f := range s.Fields {
		if f.Path == path {
			return f, true
		}
	}
	return SchemaField{}, false
}

// IntakeDefinition is read-only after registration (the registry calls
// Validate on it at registration time).
type IntakeDefinition struct {
	ID            string
	Version       int
	Name          string
	Schema        Schema
	ApprovalGates []ApprovalGate
	TTL           time.Duration
	Destination   Destination
	Delivery      DeliveryPolicy
}

// Validate enforces the registration-time requirements for an intake definition.
func (d IntakeDefinition) Validate() error {
	if strings.TrimSpace(d.ID) == "" || d.Version <= 0 || strings.TrimSpace(d.Name) == "" {
		return domainerrors.ErrInvalidIntakeDef
	}
	switch d.Destination.Kind {
	case DestinationWebhook, DestinationCallback:
		if _, err := url.ParseRequestURI(d.Destination.URL); err != nil {
			return domainerrors.ErrInvalidIntakeDef
		}
	case DestinationQueue:
		if strings.TrimSpace(d.Destination.Topic) == "" {
			return domainerrors.ErrInvalidIntakeDef
		}
	default:
		return domainerrors.ErrInvalidIntakeDef
	}
	seen := make(map[string]struct{}, len(d.ApprovalGates))
	for _, gate := range d.ApprovalGates {
		name := strings.TrimSpace(gate.Name)
		if name == "" {
			return domainerrors.ErrInvalidIntakeDef
		}
		if _, dup := seen[name]; dup {
			return domainerrors.ErrInvalidIntakeDef
		}
		seen[name] = struct{}{}
	}
	if d.TTL < 0 {
		return domainerrors.ErrInvalidIntakeDef
	}
	return nil
}
