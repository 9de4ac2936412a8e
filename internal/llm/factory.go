package llm

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/victor/internal/config"
)

// NewChat builds the chat backend selected by cfg.LLMProvider.
func NewChat(ctx context.Context, cfg config.Config) (Chat, error) {
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.ChatModel,
			Search: true,
		})
	case config.ProviderMock:
		return NewMock(), nil
	default:
		return NewLangChain(cfg)
	}
}

// NewImageGenerator builds the image backend selected by cfg.ImageProvider.
// It returns nil when image generation is disabled.
func NewImageGenerator(ctx context.Context, cfg config.Config) (ImageGenerator, error) {
	switch cfg.ImageProvider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderGemini:
		return NewGemini(ctx, GeminiOptions{
			APIKey:     cfg.GeminiAPIKey,
			ImageModel: cfg.ImageModel,
		})
	case config.ProviderBedrock:
		return NewBedrockImages(ctx, cfg.AWSRegion, cfg.ImageModel)
	case config.ProviderMock:
		return MockImages{}, nil
	default:
		return nil, fmt.Errorf("unsupported image provider: %s", cfg.ImageProvider)
	}
}
