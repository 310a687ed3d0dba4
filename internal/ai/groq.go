// Package ai provides the conversational fallback responder used when
// a known lead writes outside the flow: an LLM answers in persona
// instead of restarting the funnel.
package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/zapflowhq/zapflow/pkg/domain"
)

const (
	// DefaultBaseURL points at Groq's OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the chat model used for fallback replies.
	DefaultModel = "llama3-8b-8192"

	maxHistoryTurns = 6
	maxReplyTokens  = 300
	temperature     = 0.7
)

const systemPrompt = "Você é a Celina, atendente virtual simpática e prestativa. " +
	"Responda sempre em português do Brasil, de forma curta, educada e natural. " +
	"Ajude o cliente com dúvidas gerais e, quando não souber algo, oriente a " +
	"aguardar o atendimento humano. Nunca invente preços ou prazos."

// Responder answers free-form messages through a Groq-hosted chat model.
type Responder struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// Option configures the Responder.
type Option func(*Responder)

// WithModel overrides the chat model.
func WithModel(model string) Option {
	return func(r *Responder) {
		if model != "" {
			r.model = model
		}
	}
}

// NewResponder creates a responder against the given endpoint. An empty
// baseURL selects Groq's public endpoint.
func NewResponder(apiKey, baseURL string, logger *slog.Logger, opts ...Option) *Responder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	r := &Responder{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		model:  DefaultModel,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reply generates an in-persona answer to the message, conditioned on
// the most recent turns of the chat history.
func (r *Responder) Reply(ctx context.Context, chatID, message string, history []domain.ChatTurn) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
	}

	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	for _, turn := range history {
		if turn.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(turn.Content))
		} else {
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}
	messages = append(messages, openai.UserMessage(message))

	completion, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       r.model,
		Messages:    messages,
		Temperature: openai.Float(temperature),
		MaxTokens:   openai.Int(maxReplyTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	reply := completion.Choices[0].Message.Content
	r.logger.Info("generated fallback reply", "chat", chatID, "model", r.model)
	return reply, nil
}
