package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentDecodesBothShapes(t *testing.T) {
	t.Run("plain string", func(t *testing.T) {
		var m Message
		require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":"hello"}`), &m))
		assert.Equal(t, "hello", m.Content.String())
	})

	t.Run("segment list concatenates text parts", func(t *testing.T) {
		raw := `{"role":"assistant","content":[{"type":"text","text":"part one"},{"type":"image"},{"type":"text","text":"part two"}]}`
		var m Message
		require.NoError(t, json.Unmarshal([]byte(raw), &m))
		assert.Equal(t, "part one\npart two", m.Content.String())
	})

	t.Run("round trip preserves shape", func(t *testing.T) {
		m := Message{Role: RoleAssistant, Content: TextContent("hi")}
		b, err := json.Marshal(m)
		require.NoError(t, err)
		assert.Contains(t, string(b), `"content":"hi"`)
	})
}

func TestDecodeToolOutput(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		kind ToolOutputKind
	}{
		{"plain string", "some text", ToolOutputText},
		{"structured item", map[string]interface{}{"url": "https://x"}, ToolOutputItem},
		{"list of items", []interface{}{map[string]interface{}{"url": "https://x"}}, ToolOutputList},
		{"nil", nil, ToolOutputText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := DecodeToolOutput(tt.in)
			assert.Equal(t, tt.kind, out.Kind)
		})
	}

	t.Run("json encoded string decodes to structure", func(t *testing.T) {
		out := DecodeToolOutput(`[{"url":"https://x","title":"a"},{"url":"https://y"}]`)
		require.Equal(t, ToolOutputList, out.Kind)
		assert.Len(t, out.Items, 2)
	})

	t.Run("json encoded object decodes to item", func(t *testing.T) {
		out := DecodeToolOutput(`{"url":"https://x"}`)
		require.Equal(t, ToolOutputItem, out.Kind)
		assert.Equal(t, "https://x", out.Item["url"])
	})
}
