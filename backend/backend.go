package backend

import (
	"context"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/mempirate/delver/log"
	"github.com/mempirate/delver/metrics"
)

// Backend is the LLM interface the pipeline stages prompt against.
type Backend interface {
	// Complete sends a system + user prompt pair and returns the model's text
	// response.
	Complete(ctx context.Context, system, user string) (string, error)
}

// OpenAI is a Backend backed by the OpenAI chat completions API.
type OpenAI struct {
	log zerolog.Logger

	client *openai.Client
	model  openai.ChatModel
}

func NewOpenAI(apiKey string, model openai.ChatModel) *OpenAI {
	log := log.NewLogger("backend")

	log.Info().Str("model", string(model)).Msg("Initializing OpenAI client")
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	)

	return &OpenAI{
		log:    log,
		client: client,
		model:  model,
	}
}

// Complete prompts the model with temperature 0. An empty system prompt
// sends the user message alone.
func (b *OpenAI) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(user))

	completion, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    openai.F(messages),
		Model:       openai.F(b.model),
		Temperature: openai.F(0.0),
	})

	if err != nil {
		metrics.IncLLMRequest(metrics.OutcomeError)
		return "", errors.Wrap(err, "chat completion failed")
	}

	metrics.IncLLMRequest(metrics.OutcomeSuccess)
	metrics.AddLLMTokens(completion.Usage.PromptTokens, completion.Usage.CompletionTokens)

	if len(completion.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	choice := completion.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", errors.Errorf("chat completion returned empty content (finish reason: %s)", choice.FinishReason)
	}

	b.log.Debug().
		Dur("duration", time.Since(start)).
		Int64("prompt_tokens", completion.Usage.PromptTokens).
		Int64("completion_tokens", completion.Usage.CompletionTokens).
		Msg("Completion finished")

	return content, nil
}
