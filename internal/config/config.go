package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"chatstream/internal/core"
	"chatstream/internal/core/engine"
	"chatstream/internal/pkg/logger"
)

// EnvPrefix is prepended to every environment override, e.g. CHATSTREAM_SERVER_PORT
const EnvPrefix = "CHATSTREAM"

// Config is the application configuration
type Config struct {
	Server ServerConfig        `mapstructure:"server"`
	Log    logger.Options      `mapstructure:"log"`
	Engine engine.EngineConfig `mapstructure:"engine"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// defaultTokenEnv is consulted when a provider entry has no token_env
var defaultTokenEnv = map[core.ProviderKind]string{
	core.KindOpenAI:    "OPENAI_API_KEY",
	core.KindDeepSeek:  "DEEPSEEK_API_KEY",
	core.KindAnthropic: "ANTHROPIC_API_KEY",
	core.KindGemini:    "GEMINI_API_KEY",
	core.KindRelay:     "RELAY_API_KEY",
}

// Init 初始化配置，加载 .env 和 config.yaml
func Init(cfgFile string) error {
	// Load .env file (ignore if not exists)
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
}

// Load decodes the current viper state
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	for i, p := range cfg.Engine.Providers {
		cfg.Engine.Providers[i].Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	}
	return &cfg, nil
}

// Credentials returns a resolver reading, in order: the env var named by the
// provider's token_env (or the vendor's conventional variable), then
// providers.<kind>.api_key from viper.
func Credentials(cfg *engine.EngineConfig) core.CredentialResolver {
	tokenEnv := make(map[core.ProviderKind]string, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.Upstream.TokenEnv != "" {
			tokenEnv[core.ProviderKind(p.Kind)] = p.Upstream.TokenEnv
		}
	}

	return func(kind core.ProviderKind) (string, bool) {
		name, ok := tokenEnv[kind]
		if !ok {
			name = defaultTokenEnv[kind]
		}
		if name != "" {
			if v := strings.TrimSpace(os.Getenv(name)); v != "" {
				return v, true
			}
		}
		if v := strings.TrimSpace(viper.GetString("providers." + string(kind) + ".api_key")); v != "" {
			return v, true
		}
		return "", false
	}
}
