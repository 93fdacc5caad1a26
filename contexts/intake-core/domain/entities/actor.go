package entities

import (
	"strings"

	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

// ActorKind enumerates who can hold write authority over a submission.
type ActorKind string

const (
	ActorKindAgent  ActorKind = "agent"
	ActorKindHuman  ActorKind = "human"
	ActorKindSystem ActorKind = "system"
)

// Actor appears on every event and every field attribution. Immutable per operation.
type Actor struct {
	Kind     ActorKind
	ID       string
	Name     string
	Metadata map[string]string
}

func (a ActorKind) Valid() bool {
	switch a {
	case ActorKindAgent, ActorKindHuman, ActorKindSystem:
		return true
	default:
		return false
	}
}

// NewActor validates and normalizes an actor reference.
func NewActor(kind ActorKind, id, name string) (Actor, error) {
	id = strings.TrimSpace(id)
	if !kind.Valid() {
		return Actor{}, domainerrors.ErrInvalidActor
	}
	if id == "" {
		return Actor{}, domainerrors.ErrInvalidActor
	}
	return Actor{Kind: kind, ID: id, Name: strings.TrimSpace(name)}, nil
}
