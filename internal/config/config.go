package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ModelChoice is one entry of a model catalog ("name:value").
type ModelChoice struct {
	Name  string
	Value int
}

// ProviderConfig holds the per-provider knobs exposed to thread-creation commands.
type ProviderConfig struct {
	Models             []ModelChoice
	DefaultTemperature float64
	DefaultTopP        float64
	MaxContextWindow   int
	MaxTokens          int

	// output moderation policy: "record", "block" or "off"
	OutputModeration string
	InputModeration  bool
}

type Config struct {
	DiscordToken        string
	AuthorizedServerIDs []int64
	AdminUserIDs        []int64
	BotName             string
	MaxCharsPerResponse int

	GPT        ProviderConfig
	Claude     ProviderConfig
	ChatModels []ModelChoice

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	AnthropicBaseURL string
	ModerationModel  string

	DBDriver string
	DBDSN    string
	Timezone *time.Location

	PromptFile string
	Prompts    Prompts

	SessionBackend string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	SessionTTL     time.Duration

	RabbitURL   string
	RabbitQueue string

	HTTPAddr  string
	JWTSecret string

	LogFormat string
	LogFile   string
}

var ErrInvalidModelCatalog = errors.New("invalid model catalog")

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot_name", "comet")
	v.SetDefault("max_chars_per_response", 2000)

	v.SetDefault("gpt_models", "gpt-4o-mini:100,gpt-4o:101")
	v.SetDefault("chat_models", "gpt-4o-mini:100,gpt-4o:101")
	v.SetDefault("anthropic_models", "claude-3-5-sonnet-latest:200,claude-3-5-haiku-latest:201")

	v.SetDefault("openai_default_temperature", 1.0)
	v.SetDefault("openai_default_top_p", 1.0)
	v.SetDefault("gpt_max_context_window", 20)
	v.SetDefault("gpt_max_tokens", 1024)
	v.SetDefault("output_moderation", "record")
	v.SetDefault("gpt_input_moderation", true)

	v.SetDefault("anthropic_default_temperature", 1.0)
	v.SetDefault("anthropic_default_top_p", 1.0)
	v.SetDefault("anthropic_max_context_window", 20)
	v.SetDefault("anthropic_max_tokens", 1024)
	v.SetDefault("output_moderation_claude", "off")
	v.SetDefault("claude_input_moderation", false)

	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("anthropic_base_url", "https://api.anthropic.com/v1")
	v.SetDefault("moderation_model", "omni-moderation-latest")

	v.SetDefault("db_driver", "sqlite")
	v.SetDefault("sqlite_db_name", "comet.db")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("prompt_file", ".prompt.yml")

	v.SetDefault("session_backend", "memory")
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("session_ttl", "0s")

	v.SetDefault("rabbit_queue", "moderation_events")
	v.SetDefault("log_format", "text")
}

// Load reads .env (if present), then config.yaml from configDir (if present),
// with environment variables taking precedence.
func Load(configDir string) (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configDir == "" {
		configDir = "."
	}
	v.AddConfigPath(configDir)
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	servers, err := parseIDList(v.GetString("authorized_server_ids"))
	if err != nil {
		return nil, fmt.Errorf("AUTHORIZED_SERVER_IDS: %w", err)
	}
	admins, err := parseIDList(v.GetString("admin_user_ids"))
	if err != nil {
		return nil, fmt.Errorf("ADMIN_USER_IDS: %w", err)
	}

	gptModels, err := ParseModelChoices(v.GetString("gpt_models"))
	if err != nil {
		return nil, fmt.Errorf("GPT_MODELS: %w", err)
	}
	claudeModels, err := ParseModelChoices(v.GetString("anthropic_models"))
	if err != nil {
		return nil, fmt.Errorf("ANTHROPIC_MODELS: %w", err)
	}
	chatModels, err := ParseModelChoices(v.GetString("chat_models"))
	if err != nil {
		return nil, fmt.Errorf("CHAT_MODELS: %w", err)
	}

	loc, err := time.LoadLocation(v.GetString("timezone"))
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}

	maxChars := v.GetInt("max_chars_per_response")
	if maxChars <= 0 {
		return nil, fmt.Errorf("MAX_CHARS_PER_RESPONSE must be positive, got %d", maxChars)
	}

	dsn := v.GetString("db_dsn")
	if dsn == "" {
		dsn = v.GetString("sqlite_db_name")
	}

	gptPolicy, err := parsePolicy(v.GetString("output_moderation"))
	if err != nil {
		return nil, fmt.Errorf("OUTPUT_MODERATION: %w", err)
	}
	claudePolicy, err := parsePolicy(v.GetString("output_moderation_claude"))
	if err != nil {
		return nil, fmt.Errorf("OUTPUT_MODERATION_CLAUDE: %w", err)
	}

	httpAddr := v.GetString("http_addr")
	jwtSecret := v.GetString("jwt_secret")
	if httpAddr != "" && jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required when HTTP_ADDR is set")
	}

	promptFile := v.GetString("prompt_file")
	prompts, err := LoadPrompts(promptFile)
	if err != nil {
		return nil, err
	}

	return &Config{
		DiscordToken:        v.GetString("discord_bot_token"),
		AuthorizedServerIDs: servers,
		AdminUserIDs:        admins,
		BotName:             v.GetString("bot_name"),
		MaxCharsPerResponse: maxChars,

		GPT: ProviderConfig{
			Models:             gptModels,
			DefaultTemperature: v.GetFloat64("openai_default_temperature"),
			DefaultTopP:        v.GetFloat64("openai_default_top_p"),
			MaxContextWindow:   v.GetInt("gpt_max_context_window"),
			MaxTokens:          v.GetInt("gpt_max_tokens"),
			OutputModeration:   gptPolicy,
			InputModeration:    v.GetBool("gpt_input_moderation"),
		},
		Claude: ProviderConfig{
			Models:             claudeModels,
			DefaultTemperature: v.GetFloat64("anthropic_default_temperature"),
			DefaultTopP:        v.GetFloat64("anthropic_default_top_p"),
			MaxContextWindow:   v.GetInt("anthropic_max_context_window"),
			MaxTokens:          v.GetInt("anthropic_max_tokens"),
			OutputModeration:   claudePolicy,
			InputModeration:    v.GetBool("claude_input_moderation"),
		},
		ChatModels: chatModels,

		OpenAIAPIKey:     v.GetString("openai_api_key"),
		OpenAIBaseURL:    v.GetString("openai_base_url"),
		AnthropicAPIKey:  v.GetString("anthropic_api_key"),
		AnthropicBaseURL: v.GetString("anthropic_base_url"),
		ModerationModel:  v.GetString("moderation_model"),

		DBDriver: strings.ToLower(v.GetString("db_driver")),
		DBDSN:    dsn,
		Timezone: loc,

		PromptFile: promptFile,
		Prompts:    prompts,

		SessionBackend: strings.ToLower(v.GetString("session_backend")),
		RedisAddr:      v.GetString("redis_addr"),
		RedisPassword:  v.GetString("redis_password"),
		RedisDB:        v.GetInt("redis_db"),
		SessionTTL:     v.GetDuration("session_ttl"),

		RabbitURL:   v.GetString("rabbit_url"),
		RabbitQueue: v.GetString("rabbit_queue"),

		HTTPAddr:  httpAddr,
		JWTSecret: jwtSecret,

		LogFormat: strings.ToLower(v.GetString("log_format")),
		LogFile:   v.GetString("log_file"),
	}, nil
}

// ParseModelChoices parses "name:value,name:value". An empty string yields no choices;
// an empty entry or a malformed one is an error.
func ParseModelChoices(s string) ([]ModelChoice, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []ModelChoice
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, fmt.Errorf("%w: empty entry", ErrInvalidModelCatalog)
		}
		name, valueStr, ok := strings.Cut(entry, ":")
		if !ok || strings.Contains(valueStr, ":") || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidModelCatalog, entry)
		}
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidModelCatalog, entry)
		}
		out = append(out, ModelChoice{Name: strings.TrimSpace(name), Value: value})
	}
	return out, nil
}

// Lookup returns the catalog entry whose value matches.
func Lookup(choices []ModelChoice, value int) (ModelChoice, bool) {
	for _, c := range choices {
		if c.Value == value {
			return c, true
		}
	}
	return ModelChoice{}, false
}

func parseIDList(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func parsePolicy(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "record", "block", "off":
		return p, nil
	case "":
		return "record", nil
	default:
		return "", fmt.Errorf("unknown policy %q", s)
	}
}
