package llm

import (
	"context"
	"time"
)

// Role represents the role of the message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single message exchanged with a model.
type Message struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	ImageURLs []string       `json:"image_urls,omitempty"` // vision-capable providers only
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewMessage creates a message with the given role and content.
func NewMessage(role Role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// Client is the seam between the pipeline and a language model provider.
// Implementations live under contrib/provider. The pipeline treats every call
// as a pure function from messages to one assistant message; structured output
// is parsed and validated by the caller.
type Client interface {
	Complete(ctx context.Context, messages []*Message) (*Message, error)

	// SetTemperature updates the sampling temperature for generation.
	SetTemperature(temp float64)

	// SetMaxTokens updates the completion token limit.
	SetMaxTokens(max int64)

	// SetModel updates the model used for generation.
	SetModel(model string)
}
