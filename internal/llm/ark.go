package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// jsonModeHint is appended to the system message since the ark transport
// does not expose a response format switch.
const jsonModeHint = "\n\n请只输出一个合法的 JSON 对象，不要输出任何额外文字或 Markdown 代码块。"

// ArkClient sends requests through an eino chat model.
type ArkClient struct {
	chatModel model.ChatModel
}

// NewArkClient wraps an eino chat model.
func NewArkClient(chatModel model.ChatModel) *ArkClient {
	return &ArkClient{chatModel: chatModel}
}

func (c *ArkClient) Send(ctx context.Context, req Request) (string, error) {
	if c.chatModel == nil {
		return "", &TransportError{Err: errors.New("chat model is not configured")}
	}

	resp, err := c.chatModel.Generate(ctx, toSchemaMessages(req.Messages, req.JSONMode),
		model.WithTemperature(float32(req.Temperature)),
		model.WithModel(req.Model),
	)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	if resp == nil {
		return "", &APIError{Message: "empty response"}
	}
	return resp.Content, nil
}

func toSchemaMessages(messages []Message, jsonMode bool) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages)+1)
	hinted := !jsonMode
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			content := msg.Content
			if !hinted {
				content += jsonModeHint
				hinted = true
			}
			out = append(out, schema.SystemMessage(content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		default:
			out = append(out, schema.UserMessage(msg.Content))
		}
	}
	if !hinted {
		out = append([]*schema.Message{schema.SystemMessage(strings.TrimSpace(jsonModeHint))}, out...)
	}
	return out
}
