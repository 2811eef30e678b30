package session

// Message is a single turn in the conversation. Messages are immutable once
// appended to a History.
type Message struct {
	Role      string     `json:"role"` // "system", "user", "assistant" or "tool"
	Content   string     `json:"content"`
	Name      string     `json:"name,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Results carries the structured tool results for a tool-role message so
	// provider clients can split them per originating call when their wire
	// protocol requires it. Content always holds the serialized JSON array.
	Results []ToolCallResult `json:"-"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"arguments"`
}

// ToolCallResult pairs a tool call with the value its execution produced.
// It lives exactly long enough to be serialized into one tool message.
type ToolCallResult struct {
	Call    ToolCall `json:"function_call"`
	Content any      `json:"content"`
}

// History is the append-only conversation record for one process run.
// It is owned by a single llm client and never accessed concurrently.
type History struct {
	messages []Message
}

// SeedSystem places the system prompt as the first message. Calling it again
// replaces the previous system message.
func (h *History) SeedSystem(prompt string) {
	msg := Message{Role: "system", Content: prompt}
	if len(h.messages) > 0 && h.messages[0].Role == "system" {
		h.messages[0] = msg
		return
	}
	h.messages = append([]Message{msg}, h.messages...)
}

// Append adds a message to the end of the history.
func (h *History) Append(msg Message) {
	h.messages = append(h.messages, msg)
}

// Messages returns the recorded messages in order. The returned slice must
// not be mutated.
func (h *History) Messages() []Message {
	return h.messages
}

// Len reports the number of recorded messages.
func (h *History) Len() int {
	return len(h.messages)
}
