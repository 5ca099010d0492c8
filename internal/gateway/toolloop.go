package gateway

import (
	"encoding/json"
	"strings"
)

// toolCall is the structure the model emits when it wants a tool run.
type toolCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

// extractToolCalls parses JSON tool calls out of assistant content.
// Supports a bare object {"name":...,"args":{...}}, an array of such
// objects, and either form inside a fenced code block.
func extractToolCalls(content string) []toolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.Contains(content, "```") {
		start := strings.Index(content, "```json")
		if start == -1 {
			start = strings.Index(content, "```")
		}
		if start != -1 {
			end := strings.Index(content[start+3:], "```")
			if end != -1 {
				content = strings.TrimSpace(content[start+3 : start+3+end])
				content = strings.TrimPrefix(content, "json")
				content = strings.TrimSpace(content)
			}
		}
	}

	var calls []toolCall
	if strings.HasPrefix(content, "[") {
		if err := json.Unmarshal([]byte(content), &calls); err == nil {
			return calls
		}
	}
	var single toolCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && single.Name != "" {
		return []toolCall{single}
	}
	return nil
}
