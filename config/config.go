package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config - вся конфигурация сервиса
type Config struct {
	Environment string         `mapstructure:"environment"`
	Server      ServerConfig   `mapstructure:"server"`
	DB          DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	Logging     LoggingConfig  `mapstructure:"logging"`
	Mail        MailConfig     `mapstructure:"mail"`
	Parser      ParserConfig   `mapstructure:"parser"`
	CRM         CRMConfig      `mapstructure:"crm"`
	Workflow    WorkflowConfig `mapstructure:"workflow"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	Cache       CacheConfig    `mapstructure:"cache"`
}

type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MailConfig - почтовый ящик, из которого забираются заявки
type MailConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	Mailbox       string `mapstructure:"mailbox"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ParserConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// CRMConfig - входящий вебхук Битрикс24
type CRMConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	WebhookURL    string        `mapstructure:"webhook_url"`
	StageID       string        `mapstructure:"stage_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

type WorkflowConfig struct {
	HotAfter      time.Duration `mapstructure:"hot_after"`
	MutationLease time.Duration `mapstructure:"mutation_lease"`
	EmailLockTTL  time.Duration `mapstructure:"email_lock_ttl"`
}

type WorkerConfig struct {
	MailInterval time.Duration `mapstructure:"mail_interval"`
	CRMInterval  time.Duration `mapstructure:"crm_interval"`
	CRMBatch     int           `mapstructure:"crm_batch"`
}

type CacheConfig struct {
	DashboardTTL time.Duration `mapstructure:"dashboard_ttl"`
}

// LoadConfig читает config.yaml из path (если есть) и переменные окружения MARKET_*
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("MARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Старые переменные окружения продолжают работать
	_ = v.BindEnv("database.dsn", "MARKET_DATABASE_DSN", "POSTGRES_CONN")
	_ = v.BindEnv("server.address", "MARKET_SERVER_ADDRESS", "SERVER_ADDRESS")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if cfg.DB.DSN == "" {
		return Config{}, fmt.Errorf("database dsn is not set (MARKET_DATABASE_DSN or POSTGRES_CONN)")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.migrate_on_start", true)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.mailbox", "INBOX")
	v.SetDefault("mail.subject_prefix", "ЗАЯВКА")

	v.SetDefault("parser.model", "gemini-2.0-flash")

	v.SetDefault("crm.enabled", false)
	v.SetDefault("crm.stage_id", "UC_CWYRMB")
	v.SetDefault("crm.timeout", "30s")

	v.SetDefault("workflow.hot_after", "72h")
	v.SetDefault("workflow.mutation_lease", "5s")
	v.SetDefault("workflow.email_lock_ttl", "15m")

	v.SetDefault("worker.mail_interval", "2m")
	v.SetDefault("worker.crm_interval", "5m")
	v.SetDefault("worker.crm_batch", 20)

	v.SetDefault("cache.dashboard_ttl", "1m")
}
