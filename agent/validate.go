package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	minder "github.com/hollowlog/minder"
)

// Validation failure reasons.
const (
	ReasonMalformedJSON        = "malformed_json"
	ReasonMissingRequiredField = "missing_required_field"
	ReasonEmptyResponse        = "empty_response"
)

// ValidationError describes why model output could not be accepted.
type ValidationError struct {
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

var fenceReplacer = strings.NewReplacer("```json\n", "", "```json", "", "```\n", "", "```", "")

// stripFences removes markdown code-fence markers the model may wrap JSON in.
func stripFences(raw string) string {
	return strings.TrimSpace(fenceReplacer.Replace(raw))
}

// ParseOperation validates raw model output for a todo mutation. It strips
// code fences, parses the JSON, and requires the type and localStorageCommand
// fields. Field values are deliberately not checked — the client executes the
// storage command and is the final authority on what it accepts.
func ParseOperation(raw string) (*minder.TodoOperation, *ValidationError) {
	clean := stripFences(raw)

	var op minder.TodoOperation
	if err := json.Unmarshal([]byte(clean), &op); err != nil {
		return nil, &ValidationError{Reason: ReasonMalformedJSON, Detail: err.Error()}
	}

	if op.Kind == "" {
		return nil, &ValidationError{Reason: ReasonMissingRequiredField, Detail: "type"}
	}
	if op.StorageCommand == "" {
		return nil, &ValidationError{Reason: ReasonMissingRequiredField, Detail: "localStorageCommand"}
	}

	return &op, nil
}

// ParseAnswer validates raw model output for a query. Any non-empty text is
// the answer; whitespace-only output is an empty response.
func ParseAnswer(raw string) (string, *ValidationError) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Reason: ReasonEmptyResponse}
	}
	return raw, nil
}
