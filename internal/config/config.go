package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Auth      AuthConfig
	Assets    AssetsConfig
	WebSocket WebSocketConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Log       LogConfig
}

type ServerConfig struct {
	Port          int
	Env           string
	AllowedOrigin string `mapstructure:"allowed_origin"`
}

// IsProduction reports whether the server runs with production settings.
func (s ServerConfig) IsProduction() bool {
	return s.Env == "production"
}

type StoreConfig struct {
	Driver                 string
	URI                    string
	Database               string
	OpTimeout              time.Duration `mapstructure:"op_timeout"`
	ServerSelectionTimeout time.Duration `mapstructure:"server_selection_timeout"`
	SocketTimeout          time.Duration `mapstructure:"socket_timeout"`
	MaxPoolSize            uint64        `mapstructure:"max_pool_size"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	SessionTTL   time.Duration `mapstructure:"session_ttl"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type AssetsConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PublicURL       string `mapstructure:"public_url"`
	UsePathStyle    bool   `mapstructure:"use_path_style"`
}

// Enabled reports whether an object store is configured.
func (a AssetsConfig) Enabled() bool {
	return a.Bucket != ""
}

type WebSocketConfig struct {
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	VerifyHandshake bool          `mapstructure:"verify_handshake"`
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

type KafkaConfig struct {
	Brokers string
	Topic   string
}

// BrokerList splits the comma separated broker list.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type RateLimitConfig struct {
	GlobalPerWindow   int           `mapstructure:"global_per_window"`
	GlobalWindow      time.Duration `mapstructure:"global_window"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute"`
}

type LogConfig struct {
	Level  string
	Pretty bool
}

const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Load reads .env, an optional ./config/config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5001)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.allowed_origin", "http://localhost:5173")

	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.uri", "")
	v.SetDefault("store.database", "chatline")
	v.SetDefault("store.op_timeout", "10s")
	v.SetDefault("store.server_selection_timeout", "5s")
	v.SetDefault("store.socket_timeout", "45s")
	v.SetDefault("store.max_pool_size", 10)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.session_ttl", "168h")
	v.SetDefault("auth.cookie_secure", false)

	v.SetDefault("assets.endpoint", "")
	v.SetDefault("assets.region", "us-east-1")
	v.SetDefault("assets.bucket", "")
	v.SetDefault("assets.access_key_id", "")
	v.SetDefault("assets.secret_access_key", "")
	v.SetDefault("assets.public_url", "")
	v.SetDefault("assets.use_path_style", true)

	v.SetDefault("websocket.ping_interval", "25s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 4096)
	v.SetDefault("websocket.verify_handshake", true)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "chatline:presence")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "message-events")

	v.SetDefault("ratelimit.global_per_window", 100)
	v.SetDefault("ratelimit.global_window", "15m")
	v.SetDefault("ratelimit.messages_per_minute", 30)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.env", "APP_ENV", "NODE_ENV")
	_ = v.BindEnv("server.allowed_origin", "FRONTEND_URL")
	_ = v.BindEnv("store.driver", "STORE_DRIVER")
	_ = v.BindEnv("store.uri", "MONGODB_URI", "DATABASE_URL")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("auth.session_ttl", "JWT_EXPIRESIN")
	_ = v.BindEnv("assets.endpoint", "S3_ENDPOINT")
	_ = v.BindEnv("assets.bucket", "S3_BUCKET")
	_ = v.BindEnv("assets.access_key_id", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("assets.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	_ = v.BindEnv("assets.public_url", "S3_PUBLIC_URL")
	_ = v.BindEnv("redis.address", "REDIS_ADDRESS")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("kafka.topic", "KAFKA_TOPIC")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

// Validate checks the keys each store driver and the session layer need.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMongo, DriverPostgres:
		if c.Store.URI == "" {
			return fmt.Errorf("store.uri is required for the %s driver", c.Store.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Auth.SessionTTL <= 0 {
		return errors.New("auth.session_ttl must be positive")
	}
	if c.WebSocket.PingInterval >= c.WebSocket.PongWait {
		return errors.New("websocket.ping_interval must be shorter than websocket.pong_wait")
	}
	return nil
}
