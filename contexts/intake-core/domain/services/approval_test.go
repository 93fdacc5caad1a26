package services

import (
	"testing"

	"formbridge/contexts/intake-core/domain/entities"
)

func TestEvaluateApprovalGatesNoGatesAutoApproves(t *testing.T) {
	autoApprove, gate := EvaluateApprovalGates(nil, map[string]any{})
	if !autoApprove || gate != "" {
		t.Fatalf("expected auto-approve with no gates, got %v %q", autoApprove, gate)
	}
}

func TestEvaluateApprovalGatesAlwaysForcesReview(t *testing.T) {
	gates := []entities.ApprovalGate{{Name: "manual-review", AutoApproveIf: false}}
	autoApprove, gate := EvaluateApprovalGates(gates, map[string]any{})
	if autoApprove || gate != "manual-review" {
		t.Fatalf("expected needs_review for a gate with AutoApproveIf=false, got %v %q", autoApprove, gate)
	}
}

func TestEvaluateApprovalGatesPredicateMatch(t *testing.T) {
	gates := []entities.ApprovalGate{{
		Name: "low-value", FieldPath: "amount", Operator: entities.OpLessThan, Value: 100.0, AutoApproveIf: true,
	}}
	autoApprove, _ := EvaluateApprovalGates(gates, map[string]any{"amount": 50.0})
	if !autoApprove {
		t.Fatalf("expected auto-approve when predicate matches")
	}
	autoApprove, gate := EvaluateApprovalGates(gates, map[string]any{"amount": 500.0})
	if autoApprove || gate != "low-value" {
		t.Fatalf("expected needs_review when predicate does not match, got %v %q", autoApprove, gate)
	}
}

func TestEvaluateApprovalGatesMissingFieldDoesNotMatch(t *testing.T) {
	gates := []entities.ApprovalGate{{
		Name: "flagged", FieldPath: "flag", Operator: entities.OpEquals, Value: "yes", AutoApproveIf: true,
	}}
	autoApprove, gate := EvaluateApprovalGates(gates, map[string]any{})
	if autoApprove || gate != "flagged" {
		t.Fatalf("expected needs_review when the predicate field is absent, got %v %q", autoApprove, gate)
	}
}
