package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type JWTConfig struct {
	Algorithm     string `mapstructure:"algorithm"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
	RoleClaim     string `mapstructure:"role_claim"`
}

type RoomConfig struct {
	InactiveTimeoutSeconds int `mapstructure:"inactive_timeout_seconds"`
	SweepIntervalSeconds   int `mapstructure:"sweep_interval_seconds"`
}

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBufferSize       int   `mapstructure:"send_buffer_size"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	TopicRoomEvents string   `mapstructure:"topic_room_events"`
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type ConsulConfig struct {
	Addr           string `mapstructure:"addr"`
	ServiceID      string `mapstructure:"service_id"`
	ServiceAddress string `mapstructure:"service_address"`
}

type EventsConfig struct {
	QueueSize                int    `mapstructure:"queue_size"`
	DeliveryTimeoutSeconds   int    `mapstructure:"delivery_timeout_seconds"`
	BreakerMaxFailures       uint32 `mapstructure:"breaker_max_failures"`
	BreakerOpenTimeoutSecond int    `mapstructure:"breaker_open_timeout_seconds"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Log     LogConfig     `mapstructure:"log"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Room    RoomConfig    `mapstructure:"room"`
	WS      WSConfig      `mapstructure:"ws"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Consul  ConsulConfig  `mapstructure:"consul"`
	Events  EventsConfig  `mapstructure:"events"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	// derived/timeouts
	RoomTimeout     time.Duration `mapstructure:"-"`
	SweepInterval   time.Duration `mapstructure:"-"`
	PingInterval    time.Duration `mapstructure:"-"`
	WriteDeadline   time.Duration `mapstructure:"-"`
	DeliveryTimeout time.Duration `mapstructure:"-"`
	BreakerTimeout  time.Duration `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "location-service")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.port", 8086)
	v.SetDefault("log.level", "info")

	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.hs_secret", "")
	v.SetDefault("jwt.public_key_path", "")
	v.SetDefault("jwt.issuer", "")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.role_claim", "role")

	v.SetDefault("room.inactive_timeout_seconds", 120)
	v.SetDefault("room.sweep_interval_seconds", 60)

	v.SetDefault("ws.ping_interval_seconds", 25)
	v.SetDefault("ws.write_deadline_seconds", 10)
	v.SetDefault("ws.max_message_size_bytes", 65536)
	v.SetDefault("ws.send_buffer_size", 256)
	v.SetDefault("ws.rate_limit_per_sec", 20)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "location")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_room_events", "location.room-events")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "location.rooms")

	v.SetDefault("consul.addr", "")
	v.SetDefault("consul.service_id", "")
	v.SetDefault("consul.service_address", "")

	v.SetDefault("events.queue_size", 1024)
	v.SetDefault("events.delivery_timeout_seconds", 5)
	v.SetDefault("events.breaker_max_failures", 5)
	v.SetDefault("events.breaker_open_timeout_seconds", 30)

	v.SetDefault("metrics.enabled", true)
}

// Load reads configuration from an optional YAML file at path, a local .env file
// and APP_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.normalize(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) normalize() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("invalid app.port: %d", c.App.Port)
	}
	c.JWT.Algorithm = strings.ToUpper(c.JWT.Algorithm)
	switch c.JWT.Algorithm {
	case "HS256":
		if c.JWT.HSSecret == "" {
			return errors.New("jwt.hs_secret is required for HS256")
		}
	case "RS256":
		if c.JWT.PublicKeyPath == "" {
			return errors.New("jwt.public_key_path is required for RS256")
		}
	default:
		return fmt.Errorf("unsupported jwt.algorithm: %s", c.JWT.Algorithm)
	}
	if c.Room.InactiveTimeoutSeconds <= 0 {
		c.Room.InactiveTimeoutSeconds = 120
	}
	if c.Room.SweepIntervalSeconds <= 0 {
		c.Room.SweepIntervalSeconds = 60
	}
	if c.WS.PingIntervalSeconds <= 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds <= 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes <= 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}
	if c.WS.SendBufferSize <= 0 {
		c.WS.SendBufferSize = 256
	}
	if c.Events.QueueSize <= 0 {
		c.Events.QueueSize = 1024
	}
	if c.Events.DeliveryTimeoutSeconds <= 0 {
		c.Events.DeliveryTimeoutSeconds = 5
	}
	if c.Events.BreakerMaxFailures == 0 {
		c.Events.BreakerMaxFailures = 5
	}
	if c.Events.BreakerOpenTimeoutSecond <= 0 {
		c.Events.BreakerOpenTimeoutSecond = 30
	}
	if c.Redis.Addr != "" && !strings.Contains(c.Redis.Addr, ":") {
		return fmt.Errorf("invalid redis.addr: %s (must be host:port)", c.Redis.Addr)
	}

	c.RoomTimeout = time.Duration(c.Room.InactiveTimeoutSeconds) * time.Second
	c.SweepInterval = time.Duration(c.Room.SweepIntervalSeconds) * time.Second
	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.DeliveryTimeout = time.Duration(c.Events.DeliveryTimeoutSeconds) * time.Second
	c.BreakerTimeout = time.Duration(c.Events.BreakerOpenTimeoutSecond) * time.Second
	return nil
}

func (c *Config) PortString() string {
	return fmt.Sprintf("%d", c.App.Port)
}

// Development reports whether the service runs outside production.
func (c *Config) Development() bool {
	return c.App.Env != "prod" && c.App.Env != "production"
}
