package memory

import (
	"context"
	"sync"

	"formbridge/contexts/intake-core/domain/entities"
	domainerrors "formbridge/contexts/intake-core/domain/errors"
)

// RegistryStore is the in-memory Intake Registry (component C2): a pure
// lookup over registered, read-only-after-registration intake definitions.
type RegistryStore struct {
	mu      sync.RWMutex
	intakes map[string]entities.IntakeDefinition
}

func NewRegistryStore() *RegistryStore {
	return &RegistryStore{intakes: make(map[string]entities.IntakeDefinition)}
}

func (r *RegistryStore) Register(_ context.Context, def entities.IntakeDefinition, allowOverwrite bool) error {
	if err := def.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.intakes[def.ID]; exists && !allowOverwrite {
		return domainerrors.ErrIntakeAlreadyExists
	}
	r.intakes[def.ID] = def
	return nil
}

func (r *RegistryStore) GetIntake(_ context.Context, intakeID string) (entities.IntakeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.intakes[intakeID]
	if !ok {
		return entities.IntakeDefinition{}, domainerrors.ErrIntakeNotFound
	}
	return def, nil
}

func (r *RegistryStore) ListIntakes(_ context.Context) ([]entities.IntakeDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entities.IntakeDefinition, 0, len(r.intakes))
	for _, def := range r.intakes {
		out = append(out, def)
	}
	return out, nil
}
