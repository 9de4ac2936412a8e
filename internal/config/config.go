package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names a generative model backend.
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderAnthropic Provider = "anthropic"
	ProviderBedrock   Provider = "bedrock"
	ProviderMock      Provider = "mock"
	ProviderNone      Provider = "none"
)

// Executor names a code execution backend.
type Executor string

const (
	ExecutorHTTP  Executor = "http"
	ExecutorYaegi Executor = "yaegi"
	ExecutorNone  Executor = "none"
)

// Config holds all configuration values.
type Config struct {
	// Chat model
	LLMProvider     Provider
	ChatModel       string
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string

	// Image generation
	ImageProvider Provider
	ImageModel    string
	AWSRegion     string

	// Code execution
	Executor       Executor
	ExecuteURL     string
	ExecuteTimeout time.Duration

	// Speech
	AutoSpeak  bool
	TTSCommand string

	// Session behaviour
	OperatorName  string
	CommandsFile  string
	TeardownDelay time.Duration
	GuessAttempts int

	// Server
	ServerPort string
	ServerURL  string

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Transcript archive (SurrealDB); empty URL disables it
	ArchiveURL         string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string
}

// Load reads configuration from environment variables.
func Load() Config {
	provider := Provider(strings.ToLower(getEnv("VICTOR_LLM_PROVIDER", string(ProviderGemini))))

	return Config{
		LLMProvider:     provider,
		ChatModel:       getEnv("VICTOR_CHAT_MODEL", defaultChatModel(provider)),
		GeminiAPIKey:    firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		ImageProvider: Provider(strings.ToLower(getEnv("VICTOR_IMAGE_PROVIDER", string(ProviderGemini)))),
		ImageModel:    getEnv("VICTOR_IMAGE_MODEL", ""),
		AWSRegion:     getEnv("AWS_REGION", "us-east-1"),

		Executor:       Executor(strings.ToLower(getEnv("VICTOR_EXECUTOR", string(ExecutorHTTP)))),
		ExecuteURL:     getEnv("VICTOR_EXECUTE_URL", "http://localhost:5000/execute"),
		ExecuteTimeout: getDuration("VICTOR_EXECUTE_TIMEOUT", 30*time.Second),

		AutoSpeak:  getBool("VICTOR_AUTO_SPEAK", true),
		TTSCommand: getEnv("VICTOR_TTS_COMMAND", ""),

		OperatorName:  getEnv("VICTOR_OPERATOR_NAME", "Operator"),
		CommandsFile:  getEnv("VICTOR_COMMANDS_FILE", ""),
		TeardownDelay: getDuration("VICTOR_GAME_TEARDOWN_DELAY", 3*time.Second),
		GuessAttempts: getInt("VICTOR_GUESS_ATTEMPTS", 6),

		ServerPort: getEnv("VICTOR_SERVER_PORT", "8484"),
		ServerURL:  getEnv("VICTOR_SERVER_URL", "ws://localhost:8484/ws"),

		LogFile:  getEnv("VICTOR_LOG_FILE", "/tmp/victor.log"),
		LogLevel: parseLogLevel(getEnv("VICTOR_LOG_LEVEL", "INFO")),

		ArchiveURL:         getEnv("VICTOR_ARCHIVE_URL", ""),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "victor"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "transcripts"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),
	}
}

func defaultChatModel(p Provider) string {
	switch p {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-haiku-latest"
	case ProviderOllama:
		return "llama3.2"
	default:
		return "gemini-2.5-flash"
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := os.Getenv(k); val != "" {
			return val
		}
	}
	return ""
}

func getBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getInt(key string, defaultVal int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
