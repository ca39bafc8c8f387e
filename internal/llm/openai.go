package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient talks to any OpenAI-compatible Chat Completions endpoint.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client; an empty baseURL keeps the SDK default.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) *OpenAIClient {
	config := openai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		config.BaseURL = baseURL
	}
	if timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(config)}
}

func (c *OpenAIClient) Send(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	completion := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode {
		completion.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, completion)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &APIError{Message: "no choices in response"}
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := reqErr.Error()
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return &APIError{StatusCode: reqErr.HTTPStatusCode, Message: message}
	}
	return &TransportError{Err: err}
}
