package provider

import (
	"encoding/json"
	"maps"
)

// DoneSentinel is the terminal marker of a streamed completion. It is both
// the data of the final server-sent event and the last value handed to a
// ProgressFunc.
const DoneSentinel = "[DONE]"

// ProgressFunc receives streamed reply fragments.
type ProgressFunc func(fragment string)

// MessageRole identifies the sender of a message in a conversation.
type MessageRole string

// MessageRole constants for conversation messages.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ChatPayload is the body of a chat completion request. Model and Stream
// are interpreted by the adapter; Messages and Params are forwarded as-is.
type ChatPayload struct {
	Model    string
	Stream   bool
	Messages []Message

	// Params holds every other top-level field (max_tokens, temperature, ...)
	// verbatim. Keys that collide with model, stream or messages are ignored.
	Params map[string]json.RawMessage
}

// reserved lists the payload keys owned by the typed fields.
var reserved = []string{"model", "stream", "messages"}

// MarshalJSON flattens Params next to the typed fields.
func (p ChatPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Params)+3)
	for k, v := range p.Params {
		out[k] = v
	}
	out["model"] = p.Model
	out["stream"] = p.Stream
	if p.Messages != nil {
		out["messages"] = p.Messages
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the typed fields and keeps unknown fields in Params.
func (p *ChatPayload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var decoded ChatPayload
	if v, ok := raw["model"]; ok {
		if err := json.Unmarshal(v, &decoded.Model); err != nil {
			return err
		}
	}
	if v, ok := raw["stream"]; ok {
		if err := json.Unmarshal(v, &decoded.Stream); err != nil {
			return err
		}
	}
	if v, ok := raw["messages"]; ok {
		if err := json.Unmarshal(v, &decoded.Messages); err != nil {
			return err
		}
	}

	for _, k := range reserved {
		delete(raw, k)
	}
	if len(raw) > 0 {
		decoded.Params = maps.Clone(raw)
	}

	*p = decoded
	return nil
}
