// Package llm is the transport to the language model. The session core only
// sees Client; provider details (auth, endpoints, SDKs) stay here.
package llm

import (
	"context"
	"fmt"
)

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 消息结构
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	JSONMode    bool
}

// Client LLM 客户端接口
type Client interface {
	// Send returns the reply text, or a *TransportError / *APIError.
	Send(ctx context.Context, req Request) (string, error)
}

// TransportError means the request never produced a model response.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a failure reported by the model provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm api error (status %d): %s", e.StatusCode, e.Message)
	}
	return "llm api error: " + e.Message
}
