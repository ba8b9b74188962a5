package supervisor

import (
	"encoding/json"
	"fmt"

	"github.com/meshcrew/groupchat/groupchat"
)

// WorkflowSchemaBlock renders the Workflow JSON Schema as a fenced block
// suitable for appending to the workflow-planning supervisor prompt, so the
// instructions the model conditions on are derived from the Go struct
// itself. The supervisor's reply is not validated against this schema.
func WorkflowSchemaBlock() (string, error) {
	schema := groupchat.WorkflowJSONSchema()
	body, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling workflow schema: %w", err)
	}
	return "```json\n" + string(body) + "\n```", nil
}
