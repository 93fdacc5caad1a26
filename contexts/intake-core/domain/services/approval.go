package services

import "formbridge/contexts/intake-core/domain/entities"

// EvaluateApprovalGates decides whether a submitted payload may proceed
// straight to finalization or must stop at needs_review.
// A gate "applies" unconditionally by being declared on the intake; it
// auto-approves only when AutoApproveIf is true and its predicate matches.
func EvaluateApprovalGates(gates []entities.ApprovalGate, fields map[string]any) (autoApprove bool, matchedGate string) {
	if len(gates) == 0 {
		return true, ""
	}
	for _, gate := range gates {
		if !gate.AutoApproveIf {
			return false, gate.Name
		}
		if !gatePredicateMatches(gate, fields) {
			return false, gate.Name
		}
	}
	return true, ""
}

func gatePredicateMatches(gate entities.ApprovalGate, fields map[string]any) bool {
	if gate.Operator == entities.OpAlways {
		return false
	}
	actual, present := fields[gate.FieldPath]
	switch gate.Operator {
	case entities.OpEquals:
		return present && actual == gate.Value
	case entities.OpNotEquals:
		return present && actual != gate.Value
	case entities.OpLessThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(gate.Value)
		return present && aok && bok && a < b
	case entities.OpGreaterThan:
		a, aok := toFloat(actual)
		b, bok := toFloat(gate.Value)
		return present && aok && bok && a > b
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
