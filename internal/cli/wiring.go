package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/victor/internal/archive"
	"github.com/raphaelgruber/victor/internal/commands"
	"github.com/raphaelgruber/victor/internal/config"
	"github.com/raphaelgruber/victor/internal/executor"
	"github.com/raphaelgruber/victor/internal/llm"
	"github.com/raphaelgruber/victor/internal/metrics"
	"github.com/raphaelgruber/victor/internal/service"
)

// sessionOptions builds the collaborators shared by every session.
func sessionOptions(ctx context.Context, cfg config.Config, log *slog.Logger, m *metrics.Collector) (service.Options, error) {
	chat, err := llm.NewChat(ctx, cfg)
	if err != nil {
		return service.Options{}, fmt.Errorf("init chat model: %w", err)
	}
	images, err := llm.NewImageGenerator(ctx, cfg)
	if err != nil {
		return service.Options{}, fmt.Errorf("init image generator: %w", err)
	}
	exec, err := executor.New(cfg)
	if err != nil {
		return service.Options{}, fmt.Errorf("init executor: %w", err)
	}
	matcher, err := loadCommands(cfg)
	if err != nil {
		return service.Options{}, err
	}

	log.Debug("session collaborators ready",
		"llm_provider", cfg.LLMProvider,
		"chat_model", cfg.ChatModel,
		"image_provider", cfg.ImageProvider,
		"executor", cfg.Executor,
	)

	return service.Options{
		Chat:          chat,
		Images:        images,
		Executor:      exec,
		Commands:      matcher,
		Metrics:       m,
		Logger:        log,
		TeardownDelay: cfg.TeardownDelay,
		GuessAttempts: cfg.GuessAttempts,
		AutoSpeak:     cfg.AutoSpeak,
		OperatorName:  cfg.OperatorName,
		CodeLanguage:  codeLanguage(cfg.Executor),
	}, nil
}

func loadCommands(cfg config.Config) (*commands.Matcher, error) {
	if cfg.CommandsFile == "" {
		return commands.Default()
	}
	m, err := commands.Load(cfg.CommandsFile)
	if err != nil {
		return nil, fmt.Errorf("load commands: %w", err)
	}
	return m, nil
}

// codeLanguage is the script language the model is told to use.
func codeLanguage(e config.Executor) string {
	switch e {
	case config.ExecutorHTTP:
		return "python"
	case config.ExecutorYaegi:
		return "go"
	default:
		return ""
	}
}

// openArchive connects to the transcript archive. It returns nil when no
// archive is configured.
func openArchive(ctx context.Context, cfg config.Config, log *slog.Logger) (*archive.Store, func(), error) {
	if cfg.ArchiveURL == "" {
		return nil, func() {}, nil
	}
	store, err := archive.Open(ctx, archive.Config{
		URL:       cfg.ArchiveURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, log)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := store.Close(context.Background()); err != nil {
			log.Warn("close archive", "error", err)
		}
	}
	return store, closer, nil
}
