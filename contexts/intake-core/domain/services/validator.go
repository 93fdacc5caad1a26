package services

import (
	"fmt"
	"regexp"
	"strings"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/domain/valueobjects"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationResult is the Validator component's output:
// either {ok:true, normalized} or {ok:false, errors, nextActions}.
type ValidationResult struct {
	OK          bool
	Normalized  map[string]any
	Errors      []valueobjects.FieldError
	NextActions []valueobjects.NextAction
}

// EvaluateFields validates a candidate fields map against an intake schema.
// When partial is true (in-progress submissions, setFields), missing
// required fields are reported as next-actions rather than failures; a
// present-but-invalid field always fails, partial or not.
func EvaluateFields(schema entities.Schema, fields map[string]any, uploads map[string]entities.UploadRecord, partial bool) ValidationResult {
	result := ValidationResult{OK: true, Normalized: make(map[string]any, len(fields))}

	for path, value := range fields {
		if entities.IsReservedFieldPath(path) {
			result.OK = false
			result.Errors = append(result.Errors, valueobjects.FieldError{
				Path: path, Code: valueobjects.FieldErrInvalidValue, Message: "field path is reserved",
			})
			continue
		}
		result.Normalized[path] = value
	}

	for _, field := range schema.Fields {
		if field.Type == "file" {
			evaluateFileField(&result, field, uploads, partial)
			continue
		}
		value, present := fields[field.Path]
		if !present || value == nil {
			if !field.Required {
				continue
			}
			if partial {
				result.NextActions = append(result.NextActions, valueobjects.NextAction{
					Kind: valueobjects.NextActionCollectField, Field: field.Path,
				})
				continue
			}
			result.OK = false
			result.Errors = append(result.Errors, valueobjects.FieldError{
				Path: field.Path, Code: valueobjects.FieldErrRequired, Message: "field is required",
			})
			result.NextActions = append(result.NextActions, valueobjects.NextAction{
				Kind: valueobjects.NextActionCollectField, Field: field.Path,
			})
			continue
		}
		if fieldErr := checkScalarField(field, value); fieldErr != nil {
			result.OK = false
			result.Errors = append(result.Errors, *fieldErr)
		}
	}
	return result
}

func evaluateFileField(result *ValidationResult, field entities.SchemaField, uploads map[string]entities.UploadRecord, partial bool) {
	var completed *entities.UploadRecord
	for _, u := range uploads {
		if u.FieldPath != field.Path {
			continue
		}
		if u.Status == entities.UploadCompleted {
			uCopy := u
			completed = &uCopy
			break
		}
	}
	if completed != nil {
		return
	}
	if !field.Required {
		return
	}
	result.NextActions = append(result.NextActions, valueobjects.NextAction{
		Kind: valueobjects.NextActionRequestUpload, Field: field.Path, Accept: field.Accept, MaxBytes: field.MaxBytes,
	})
	if partial {
		return
	}
	result.OK = false
	result.Errors = append(result.Errors, valueobjects.FieldError{
		Path: field.Path, Code: valueobjects.FieldErrFileRequired, Message: "file upload is required",
	})
}

func checkScalarField(field entities.SchemaField, value any) *valueobjects.FieldError {
	switch field.Type {
	case "string", "email", "":
		s, ok := value.(string)
		if !ok {
			return &valueobjects.FieldError{
				Path: field.Path, Code: valueobjects.FieldErrInvalidType, Message: "expected a string",
				Expected: "string", Received: fmt.Sprintf("%T", value),
			}
		}
		if field.Type == "email" && !emailPattern.MatchString(s) {
			return &valueobjects.FieldError{Path: field.Path, Code: valueobjects.FieldErrInvalidFormat, Message: "expected a valid email address"}
		}
		if field.MinLen > 0 && len(s) < field.MinLen {
			return &valueobjects.FieldError{Path: field.Path, Code: valueobjects.FieldErrTooShort, Message: "value is shorter than the minimum length"}
		}
		if field.MaxLen > 0 && len(s) > field.MaxLen {
			return &valueobjects.FieldError{Path: field.Path, Code: valueobjects.FieldErrTooLong, Message: "value exceeds the maximum length"}
		}
	case "number":
		switch value.(type) {
		case float64, float32, int, int32, int64:
		default:
			return &valueobjects.FieldError{
				Path: field.Path, Code: valueobjects.FieldErrInvalidType, Message: "expected a number",
				Expected: "number", Received: fmt.Sprintf("%T", value),
			}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &valueobjects.FieldError{
				Path: field.Path, Code: valueobjects.FieldErrInvalidType, Message: "expected a boolean",
				Expected: "boolean", Received: fmt.Sprintf("%T", value),
			}
		}
	default:
		return &valueobjects.FieldError{Path: field.Path, Code: valueobjects.FieldErrCustom, Message: "unsupported field type: " + strings.TrimSpace(field.Type)}
	}
	return nil
}
