package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/raphaelgruber/victor/internal/config"
	"github.com/raphaelgruber/victor/internal/models"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangChain wraps a langchaingo model for chat streaming and completion.
type LangChain struct {
	llm       llms.Model
	modelName string
}

// NewLangChain creates a langchaingo backed chat model based on configuration.
func NewLangChain(cfg config.Config) (*LangChain, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.ChatModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.ChatModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.ChatModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewLangChainFromModel(model, cfg.ChatModel), nil
}

// NewLangChainFromModel wraps an existing langchaingo model.
func NewLangChainFromModel(model llms.Model, name string) *LangChain {
	return &LangChain{llm: model, modelName: name}
}

// Model returns the LLM model name.
func (m *LangChain) Model() string {
	return m.modelName
}

// Complete generates a whole response.
func (m *LangChain) Complete(ctx context.Context, req Request) (string, error) {
	response, err := m.llm.GenerateContent(ctx, messageContent(req))
	if err != nil {
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}
	text := strings.TrimSpace(response.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Stream generates a response and yields it chunk by chunk. The
// langchaingo streaming callback is bridged onto a pull sequence; stopping
// the iteration early cancels the underlying request.
func (m *LangChain) Stream(ctx context.Context, req Request) iter.Seq[models.Fragment] {
	return func(yield func(models.Fragment) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		chunks := make(chan string)
		done := make(chan error, 1)

		go func() {
			defer close(chunks)
			_, err := m.llm.GenerateContent(ctx, messageContent(req),
				llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
					select {
					case chunks <- string(chunk):
						return nil
					case <-ctx.Done():
						return ctx.Err()
					}
				}),
			)
			done <- err
		}()

		for chunk := range chunks {
			if chunk == "" {
				continue
			}
			if !yield(models.Fragment{Text: chunk}) {
				cancel()
				for range chunks {
				}
				<-done
				return
			}
		}

		if err := <-done; err != nil {
			yield(models.Fragment{Err: streamError(err)})
		}
	}
}

func messageContent(req Request) []llms.MessageContent {
	var msgs []llms.MessageContent
	if req.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	for _, t := range turns(req) {
		role := llms.ChatMessageTypeHuman
		if t.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		msgs = append(msgs, llms.TextParts(role, t.Content))
	}
	return msgs
}
