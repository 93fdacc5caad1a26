package queries

import (
	"context"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

// GetIntakeQuery is a pure passthrough onto the IntakeRegistry (component C2).
type GetIntakeQuery struct {
	Registry ports.IntakeRegistry
}

func (q GetIntakeQuery) Execute(ctx context.Context, intakeID string) (entities.IntakeDefinition, error) {
	return q.Registry.GetIntake(ctx, intakeID)
}

type ListIntakesQuery struct {
	Registry ports.IntakeRegistry
}

func (q ListIntakesQuery) Execute(ctx context.Context) ([]entities.IntakeDefinition, error) {
	return q.Registry.ListIntakes(ctx)
}
