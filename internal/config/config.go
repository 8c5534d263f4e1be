package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"xchain-radar/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Radar    RadarConfig    `mapstructure:"radar"`
	Genai    GenaiConfig    `mapstructure:"genai"`
	Server   ServerConfig   `mapstructure:"server"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Attest   AttestConfig   `mapstructure:"attest"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the flow warehouse
// and the briefing table.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RadarConfig governs the briefing pipeline itself.
type RadarConfig struct {
	Chain           string        `mapstructure:"chain"`
	Timezone        string        `mapstructure:"timezone"`
	SendOnFallback  bool          `mapstructure:"send_on_fallback"`
	Interval        time.Duration `mapstructure:"interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// GenaiConfig covers the narrative model endpoint.
type GenaiConfig struct {
	Model       string        `mapstructure:"model"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds HTTP entrypoint settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 推送参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// AttestConfig covers on-chain attestation submission. Key and contract are
// validated by the publisher, not here: they are required for the attest path
// only.
type AttestConfig struct {
	RPCURL     string `mapstructure:"rpc_url"`
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int64  `mapstructure:"chain_id"`
	Contract   string `mapstructure:"contract"`
	GasLimit   uint64 `mapstructure:"gas_limit"`
	URI        string `mapstructure:"uri"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("XCHAINRADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// setDefaults registers every recognized key. Keys without a meaningful
// default get an empty value so viper still sees them during Unmarshal when
// they arrive via XCHAINRADAR_* environment variables only.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "xchain-radar")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.caller", false)
	v.SetDefault("logging.pretty", false)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("radar.chain", "ethereum")
	v.SetDefault("radar.timezone", "Asia/Tokyo")
	v.SetDefault("radar.send_on_fallback", false)
	v.SetDefault("radar.interval", "24h")
	v.SetDefault("radar.advisory_lock_key", int64(0x78726164))

	v.SetDefault("genai.model", "google/gemini-flash-1.5")
	v.SetDefault("genai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("genai.api_key", "")
	v.SetDefault("genai.temperature", 0.2)
	v.SetDefault("genai.max_tokens", 900)
	v.SetDefault("genai.timeout", "60s")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.bot_token", "")
	v.SetDefault("alerting.telegram.chat_id", "")
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("attest.rpc_url", "https://zetachain-athens-evm.blockpi.network/v1/rpc/public")
	v.SetDefault("attest.private_key", "")
	v.SetDefault("attest.chain_id", int64(7001))
	v.SetDefault("attest.contract", "")
	v.SetDefault("attest.gas_limit", uint64(200000))
	v.SetDefault("attest.uri", "")

	v.SetDefault("export.max_data_points", 100000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Radar.Timezone); err != nil {
		return fmt.Errorf("radar.timezone 不合法: %w", err)
	}
	if c.Radar.Chain == "" {
		return fmt.Errorf("radar.chain must not be empty")
	}
	if c.Radar.Interval <= 0 {
		return fmt.Errorf("radar.interval must be greater than zero")
	}
	if c.Genai.Temperature < 0 {
		return fmt.Errorf("genai.temperature cannot be negative")
	}
	if c.Genai.MaxTokens <= 0 {
		return fmt.Errorf("genai.max_tokens must be greater than zero")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

// Location resolves the configured local timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Radar.Timezone)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
