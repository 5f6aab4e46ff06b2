package llm

import (
	"encoding/json"
	"strings"
)

// Message roles used on the wire
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a generation transcript. Tool-result messages carry
// the ToolCallID of the call they answer.
type Message struct {
	Role       string     `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// HasToolCalls reports whether the message requests tool invocations.
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// ToolCall is a single tool invocation request from the model.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// ToolSpec describes one named tool offered to the model.
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Segment is one part of a multi-part generation output.
type Segment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Content holds message content that may arrive as a plain string or as a
// list of typed segments. Both shapes decode into the same value so callers
// never branch on the wire shape.
type Content struct {
	Text     string
	Segments []Segment
}

// TextContent builds plain-string content.
func TextContent(s string) Content { return Content{Text: s} }

// String concatenates the textual parts of the content.
func (c Content) String() string {
	if len(c.Segments) == 0 {
		return c.Text
	}
	var parts []string
	for _, seg := range c.Segments {
		if seg.Type == "" || seg.Type == "text" {
			if seg.Text != "" {
				parts = append(parts, seg.Text)
			}
		}
	}
	return strings.Join(parts, "\n")
}

func (c Content) MarshalJSON() ([]byte, error) {
	if len(c.Segments) > 0 {
		return json.Marshal(c.Segments)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Segments = nil
		return nil
	}
	var segs []Segment
	if err := json.Unmarshal(data, &segs); err == nil {
		c.Segments = segs
		c.Text = ""
		return nil
	}
	// Unknown shape: keep the raw text so nothing is silently lost.
	c.Text = strings.Trim(string(data), `"`)
	return nil
}

// Tool output shapes. Tool results arrive as free-form JSON: a string, one
// structured item, or a list of items. The union is decoded once at the task
// boundary; everything downstream switches on Kind.
type ToolOutputKind int

const (
	ToolOutputText ToolOutputKind = iota
	ToolOutputItem
	ToolOutputList
)

// ToolOutput is the decoded form of one tool result.
type ToolOutput struct {
	Kind  ToolOutputKind
	Text  string
	Item  map[string]interface{}
	Items []map[string]interface{}
}

// DecodeToolOutput classifies a raw tool result value.
func DecodeToolOutput(v interface{}) ToolOutput {
	switch val := v.(type) {
	case nil:
		return ToolOutput{Kind: ToolOutputText}
	case string:
		// A string may itself be JSON-encoded structure.
		trimmed := strings.TrimSpace(val)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return DecodeToolOutput(decoded)
			}
		}
		return ToolOutput{Kind: ToolOutputText, Text: val}
	case map[string]interface{}:
		return ToolOutput{Kind: ToolOutputItem, Item: val}
	case []interface{}:
		items := make([]map[string]interface{}, 0, len(val))
		for _, item := range val {
			if m, ok := item.(map[string]interface{}); ok {
				items = append(items, m)
			}
		}
		if len(items) > 0 {
			return ToolOutput{Kind: ToolOutputList, Items: items}
		}
		return ToolOutput{Kind: ToolOutputText, Text: stringifyList(val)}
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ToolOutput{Kind: ToolOutputText}
		}
		return ToolOutput{Kind: ToolOutputText, Text: string(b)}
	}
}

func stringifyList(items []interface{}) string {
	var parts []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}
