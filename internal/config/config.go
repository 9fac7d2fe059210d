package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"chatline/internal/model"
)

type Config struct {
	AppPort   int    `mapstructure:"APP_PORT" validate:"min=1,max=65535"`
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
	StaticDir string `mapstructure:"STATIC_DIR"`

	StoreDriver  string `mapstructure:"STORE_DRIVER" validate:"oneof=sqlite redis memory"`
	DatabasePath string `mapstructure:"DATABASE_PATH" validate:"required_if=StoreDriver sqlite"`
	RedisAddr    string `mapstructure:"REDIS_ADDR" validate:"required_if=StoreDriver redis"`

	APIBaseURL             string `mapstructure:"API_BASE_URL" validate:"required,url"`
	APIKey                 string `mapstructure:"API_KEY"`
	ModelsEndpoint         string `mapstructure:"MODELS_ENDPOINT" validate:"required,startswith=/"`
	ChatEndpoint           string `mapstructure:"CHAT_ENDPOINT" validate:"required,startswith=/"`
	AnonChatEndpoint       string `mapstructure:"ANON_CHAT_ENDPOINT" validate:"required,startswith=/"`
	FrontierModelsEndpoint string `mapstructure:"FRONTIER_MODELS_ENDPOINT" validate:"omitempty,startswith=/"`

	EnableLocalMode bool   `mapstructure:"ENABLE_LOCAL_MODE"`
	OllamaURL       string `mapstructure:"OLLAMA_URL" validate:"required_if=EnableLocalMode true,omitempty,url"`

	Authenticated    bool   `mapstructure:"AUTHENTICATED"`
	FrontierAccess   bool   `mapstructure:"FRONTIER_ACCESS"`
	Username         string `mapstructure:"USERNAME"`
	DefaultFreeModel string `mapstructure:"DEFAULT_FREE_MODEL"`
	DefaultPaidModel string `mapstructure:"DEFAULT_PAID_MODEL"`

	SaveDelay      time.Duration `mapstructure:"SAVE_DELAY" validate:"min=0"`
	RenderInterval time.Duration `mapstructure:"RENDER_INTERVAL" validate:"min=0"`
}

// Capabilities returns the flags injected into the chat engine.
func (c *Config) Capabilities() model.Capabilities {
	return model.Capabilities{
		Authenticated:    c.Authenticated,
		FrontierAccess:   c.FrontierAccess,
		LocalModeEnabled: c.EnableLocalMode,
		Username:         c.Username,
	}
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", 8000)
	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("STATIC_DIR", "./frontend/dist")
	v.SetDefault("STORE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PATH", "./data/chatline.db")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("API_BASE_URL", "http://localhost:8080")
	v.SetDefault("API_KEY", "")
	v.SetDefault("MODELS_ENDPOINT", "/models")
	v.SetDefault("CHAT_ENDPOINT", "/web/chat/completions")
	v.SetDefault("ANON_CHAT_ENDPOINT", "/anon/chat/completions")
	v.SetDefault("FRONTIER_MODELS_ENDPOINT", "/frontier_models")
	v.SetDefault("ENABLE_LOCAL_MODE", true)
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("AUTHENTICATED", false)
	v.SetDefault("FRONTIER_ACCESS", false)
	v.SetDefault("USERNAME", "")
	v.SetDefault("DEFAULT_FREE_MODEL", "")
	v.SetDefault("DEFAULT_PAID_MODEL", "gpt-4")
	v.SetDefault("SAVE_DELAY", "100ms")
	v.SetDefault("RENDER_INTERVAL", "0s")
}

// LoadConfig reads configuration from an optional .env file and the
// environment, on top of the defaults.
func LoadConfig() (*Config, error) {
	return Load(viper.GetViper())
}

// Load reads configuration through v. Flags bound to v take precedence over
// the environment.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration against its validation tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
