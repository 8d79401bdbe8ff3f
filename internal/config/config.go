package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/mbeoliero/deskline/pkg/identity"
)

// EnvPrefix prefixes every environment override, e.g. DESKLINE_JWT_SECRET
const EnvPrefix = "DESKLINE"

// Config holds all configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	SQLite      SQLiteConfig      `mapstructure:"sqlite"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	ExternalJWT ExternalJWTConfig `mapstructure:"external_jwt"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Authz       AuthzConfig       `mapstructure:"authz"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	HTTPPort       int      `mapstructure:"http_port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MachineId      uint16   `mapstructure:"machine_id"` // sonyflake machine id, unique per instance
}

// DatabaseConfig selects the durable store
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"` // mysql or sqlite
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// MySQLConfig holds MySQL configuration
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Charset      string `mapstructure:"charset"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the MySQL data source name
func (c *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database, c.Charset)
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PresenceTTL time.Duration `mapstructure:"presence_ttl"`
}

// Addr returns the Redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	ExpireHours        int    `mapstructure:"expire_hours"`
	VisitorExpireHours int    `mapstructure:"visitor_expire_hours"`
}

// ExternalJWTConfig holds the external account system's token settings
type ExternalJWTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Secret      string `mapstructure:"secret"`
	DefaultRole string `mapstructure:"default_role"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	MaxConnNum       int64         `mapstructure:"max_conn_num"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
	WriteWait        time.Duration `mapstructure:"write_wait"`
	PongWait         time.Duration `mapstructure:"pong_wait"`
	PingPeriod       time.Duration `mapstructure:"ping_period"`
	WriteChannelSize int           `mapstructure:"write_channel_size"`
	CommandRate      float64       `mapstructure:"command_rate"`
	CommandBurst     int           `mapstructure:"command_burst"`
}

// CoordinatorConfig tunes the conversation coordinator
type CoordinatorConfig struct {
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	PreviewLength int           `mapstructure:"preview_length"`
	HistoryLimit  int           `mapstructure:"history_limit"`
}

// AuthzConfig restricts agents to sites. Agents not listed may act on every site.
type AuthzConfig struct {
	AgentSites map[string][]string `mapstructure:"agent_sites"` // agent id -> site ids
}

// Global config instance
var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.machine_id", 1)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "deskline")
	v.SetDefault("mysql.charset", "utf8mb4")
	v.SetDefault("mysql.max_open_conns", 100)
	v.SetDefault("mysql.max_idle_conns", 10)

	v.SetDefault("sqlite.path", "deskline.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "deskline:")
	v.SetDefault("redis.presence_ttl", 2*time.Minute)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expire_hours", 168) // 7 days
	v.SetDefault("jwt.visitor_expire_hours", 24)

	v.SetDefault("external_jwt.enabled", false)
	v.SetDefault("external_jwt.secret", "")
	v.SetDefault("external_jwt.default_role", "agent")

	v.SetDefault("websocket.max_conn_num", 10000)
	v.SetDefault("websocket.max_message_size", 51200)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.pong_wait", 30*time.Second)
	v.SetDefault("websocket.ping_period", 27*time.Second)
	v.SetDefault("websocket.write_channel_size", 256)
	v.SetDefault("websocket.command_rate", 20.0)
	v.SetDefault("websocket.command_burst", 40)

	v.SetDefault("coordinator.store_timeout", 5*time.Second)
	v.SetDefault("coordinator.preview_length", 100)
	v.SetDefault("coordinator.history_limit", 100)
}

// Load loads configuration from file, .env and DESKLINE_* environment variables.
// An empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	GlobalConfig = &cfg
	return &cfg, nil
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	switch c.Database.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.ExternalJWT.Enabled && c.ExternalJWT.Secret == "" {
		return errors.New("external_jwt.secret is required when external_jwt is enabled")
	}
	if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		c.WebSocket.PingPeriod = (c.WebSocket.PongWait * 9) / 10
	}
	for agentId := range c.Authz.AgentSites {
		if role, err := identity.RoleOf(agentId); err != nil || role != identity.RoleAgent {
			return fmt.Errorf("authz.agent_sites: %q is not an agent id", agentId)
		}
	}
	if c.Coordinator.HistoryLimit <= 0 || c.Coordinator.HistoryLimit > 100 {
		c.Coordinator.HistoryLimit = 100
	}
	return nil
}
