// Package registryfile loads intake definitions from a YAML file on disk at
// startup and registers each with a ports.IntakeRegistry, so deployments can
// declare their intakes in version-controlled config instead of an API call.
package registryfile

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

type fileDefinition struct {
	ID            string `yaml:"id"`
	Version       int    `yaml:"version"`
	Name          string `yaml:"name"`
	TTLSeconds    int64  `yaml:"ttl_seconds"`
	Schema        []fileSchemaField `yaml:"schema"`
	ApprovalGates []fileApprovalGate `yaml:"approval_gates"`
	Destination   fileDestination `yaml:"destination"`
	Delivery      fileDeliveryPolicy `yaml:"delivery"`
}

type fileSchemaField struct {
	Path     string   `yaml:"path"`
	Type     string   `yaml:"type"`
	Required bool     `yaml:"required"`
	MinLen   int      `yaml:"min_len"`
	MaxLen   int      `yaml:"max_len"`
	Accept   []string `yaml:"accept"`
	MaxBytes int64    `yaml:"max_bytes"`
}

type fileApprovalGate struct {
	Name          string `yaml:"name"`
	FieldPath     string `yaml:"field_path"`
	Operator      string `yaml:"operator"`
	Value         any    `yaml:"value"`
	AutoApproveIf bool   `yaml:"auto_approve_if"`
}

type fileDestination struct {
	Kind  string `yaml:"kind"`
	URL   string `yaml:"url"`
	Topic string `yaml:"topic"`
}

type fileDeliveryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int64   `yaml:"initial_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxDelayMs        int64   `yaml:"max_delay_ms"`
}

type fileRegistry struct {
	Intakes []fileDefinition `yaml:"intakes"`
}

// LoadAndRegister parses path as YAML and registers every listed intake
// definition with registry. allowOverwrite is forwarded to Register as-is,
// so a second load of the same file is idempotent only when the caller asks
// for it.
func LoadAndRegister(ctx context.Context, path string, registry ports.IntakeRegistry, allowOverwrite bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("registryfile: read %s: %w", path, err)
	}

	var parsed fileRegistry
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("registryfile: parse %s: %w", path, err)
	}

	for _, fd := range parsed.Intakes {
		def := toIntakeDefinition(fd)
		if err := registry.Register(ctx, def, allowOverwrite); err != nil {
			return fmt.Errorf("registryfile: register %s: %w", def.ID, err)
		}
	}
	return nil
}

func toIntakeDefinition(fd fileDefinition) entities.IntakeDefinition {
	fields := make([]entities.SchemaField, 0, len(fd.Schema))
	for _, f := range fd.Schema {
		fields = append(fields, entities.SchemaField{
			Path: f.Path, Type: f.Type, Required: f.Required,
			MinLen: f.MinLen, MaxLen: f.MaxLen, Accept: f.Accept, MaxBytes: f.MaxBytes,
		})
	}

	gates := make([]entities.ApprovalGate, 0, len(fd.ApprovalGates))
	for _, g := range fd.ApprovalGates {
		gates = append(gates, entities.ApprovalGate{
			Name: g.Name, FieldPath: g.FieldPath,
			Operator: entities.ApproveOperator(g.Operator), Value: g.Value, AutoApproveIf: g.AutoApproveIf,
		})
	}

	return entities.IntakeDefinition{
		ID: fd.ID, Version: fd.Version, Name: fd.Name,
		Schema:        entities.Schema{Fields: fields},
		ApprovalGates: gates,
		TTL:           time.Duration(fd.TTLSeconds) * time.Second,
		Destination: entities.Destination{
			Kind: entities.DestinationKind(fd.Destination.Kind), URL: fd.Destination.URL, Topic: fd.Destination.Topic,
		},
		Delivery: entities.DeliveryPolicy{
			MaxAttempts: fd.Delivery.MaxAttempts, InitialDelayMs: fd.Delivery.InitialDelayMs,
			BackoffMultiplier: fd.Delivery.BackoffMultiplier, MaxDelayMs: fd.Delivery.MaxDelayMs,
		},
	}
}
