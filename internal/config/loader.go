package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logger  LoggerConfig  `mapstructure:"logger"`
	Storage StorageConfig `mapstructure:"storage"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Broker  BrokerConfig  `mapstructure:"broker"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggerConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// StorageConfig covers both the task store backend and the file areas.
// Driver "memory" keeps tasks in-process; "postgres" persists them.
type StorageConfig struct {
	Driver            string         `mapstructure:"driver"`
	Database          DatabaseConfig `mapstructure:"database"`
	UploadDir         string         `mapstructure:"upload_dir"`
	FixedDir          string         `mapstructure:"fixed_dir"`
	AllowedExtensions []string       `mapstructure:"allowed_extensions"`
	MaxFileSize       int64          `mapstructure:"max_file_size"`
	RetainTasks       int            `mapstructure:"retain_tasks"`
	CleanupInterval   time.Duration  `mapstructure:"cleanup_interval"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type BrokerConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	EvictInterval time.Duration `mapstructure:"evict_interval"`
	ReadDeadline  time.Duration `mapstructure:"read_deadline"`
}

type AuthConfig struct {
	AdminAPIKey    string   `mapstructure:"admin_api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetEnvPrefix("CODEFIX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "data/uploads"
	}
	if cfg.Storage.FixedDir == "" {
		cfg.Storage.FixedDir = "data/fixed"
	}
	if len(cfg.Storage.AllowedExtensions) == 0 {
		cfg.Storage.AllowedExtensions = []string{".py", ".go", ".js", ".ts", ".java", ".c", ".cpp", ".rs"}
	}
	if cfg.Storage.MaxFileSize == 0 {
		cfg.Storage.MaxFileSize = 2 << 20
	}
	if cfg.Storage.RetainTasks == 0 {
		cfg.Storage.RetainTasks = 100
	}
	if cfg.Storage.CleanupInterval == 0 {
		cfg.Storage.CleanupInterval = time.Hour
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "deepseek-chat"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.Broker.IdleTimeout == 0 {
		cfg.Broker.IdleTimeout = 5 * time.Minute
	}
	if cfg.Broker.EvictInterval == 0 {
		cfg.Broker.EvictInterval = time.Minute
	}
	if cfg.Broker.ReadDeadline == 0 {
		cfg.Broker.ReadDeadline = 60 * time.Second
	}
}
