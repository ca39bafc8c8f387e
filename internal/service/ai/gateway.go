package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/llm"
	"github.com/zhouzirui/z-tavern-rpg/backend/internal/model/module"
)

// ErrModuleDisabled is the cause when a disabled module is invoked.
var ErrModuleDisabled = errors.New("module is disabled")

// GatewayError wraps any failure of a module invocation.
type GatewayError struct {
	Module module.Name
	Cause  error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s module: %v", e.Module, e.Cause)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// Request is one module invocation. History is placed between the module's
// system prompt and Text, which becomes the final user message.
type Request struct {
	Module  module.Name
	History []*schema.Message
	Text    string
}

// moduleTemplate lays out every module request.
var moduleTemplate = prompt.FromMessages(
	schema.FString,
	schema.SystemMessage("{system}"),
	schema.MessagesPlaceholder("history", true),
	schema.UserMessage("{query}"),
)

// Gateway builds module requests and sends them through the LLM client.
// It never retries.
type Gateway struct {
	client      llm.Client
	model       string
	temperature float64
	modules     module.Set
}

// NewGateway binds a client to the session's model and module settings.
func NewGateway(client llm.Client, modelName string, temperature float64, modules module.Set) *Gateway {
	return &Gateway{
		client:      client,
		model:       modelName,
		temperature: temperature,
		modules:     modules.Normalized(),
	}
}

// Enabled reports whether the module may be invoked.
func (g *Gateway) Enabled(name module.Name) bool {
	return g.modules.Enabled(name)
}

// JSONMode reports the output format configured for the module.
func (g *Gateway) JSONMode(name module.Name) bool {
	return g.modules[name].JSONMode
}

// Render formats the request for the module as transport messages.
func (g *Gateway) Render(ctx context.Context, req Request) ([]llm.Message, error) {
	msgs, err := moduleTemplate.Format(ctx, map[string]any{
		"system":  g.modules[req.Module].SystemPrompt,
		"history": req.History,
		"query":   req.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("format %s prompt: %w", req.Module, err)
	}

	messages := make([]llm.Message, 0, len(msgs))
	for _, msg := range msgs {
		messages = append(messages, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}
	return messages, nil
}

// Invoke renders the request behind the module's system prompt and returns
// the raw reply text.
func (g *Gateway) Invoke(ctx context.Context, req Request) (string, error) {
	if !g.modules.Enabled(req.Module) {
		return "", &GatewayError{Module: req.Module, Cause: ErrModuleDisabled}
	}
	settings := g.modules[req.Module]

	messages, err := g.Render(ctx, req)
	if err != nil {
		return "", &GatewayError{Module: req.Module, Cause: err}
	}

	start := time.Now()
	reply, err := g.client.Send(ctx, llm.Request{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		JSONMode:    settings.JSONMode,
	})
	if err != nil {
		log.Error().Err(err).
			Str("component", "gateway").
			Str("module", string(req.Module)).
			Dur("latency", time.Since(start)).
			Msg("module invocation failed")
		return "", &GatewayError{Module: req.Module, Cause: err}
	}

	log.Debug().
		Str("component", "gateway").
		Str("module", string(req.Module)).
		Int("messages", len(messages)).
		Int("reply_length", len(reply)).
		Dur("latency", time.Since(start)).
		Msg("module invocation finished")
	return reply, nil
}
