package config

import (
	"time"
)

const (
	FeedTransportWS   = "ws"
	FeedTransportNats = "nats"
)

type StoreConfig struct {
	BaseURL  string        `yaml:"base_url"` // Message Store API 根地址
	Timeout  time.Duration `yaml:"timeout"`  // 单次请求超时
	PageSize int           `yaml:"page_size"`
}

type NatsConfig struct {
	Servers       []string      `yaml:"servers"`
	Name          string        `yaml:"name"`
	User          string        `yaml:"user"`
	Password      string        `yaml:"password"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

type FeedConfig struct {
	Transport    string        `yaml:"transport"` // ws | nats
	URL          string        `yaml:"url"`
	TopicPrefix  string        `yaml:"topic_prefix"`
	PingInterval time.Duration `yaml:"ping_interval"`
	PongWait     time.Duration `yaml:"pong_wait"`
	WriteWait    time.Duration `yaml:"write_wait"`
	Nats         NatsConfig    `yaml:"nats"`
}

type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	PoolSize  int           `yaml:"pool_size"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"` // 选择记录的过期时间，0 不过期
}

// PostgresConfig is the alternative selection backend. Redis wins when both are enabled.
type PostgresConfig struct {
	Enabled bool          `yaml:"enabled"`
	DSN     string        `yaml:"dsn"`
	Table   string        `yaml:"table"`
	TTL     time.Duration `yaml:"ttl"`
}

type APIConfig struct {
	Addr string `yaml:"addr"`
	// Token protects the local API when set. Clients send Authorization: Bearer <token>.
	Token string `yaml:"token"`
}

type AppConfig struct {
	NodeID   int64  `yaml:"node_id"`
	LogLevel string `yaml:"log_level"`
	// UserID is the self-origin marker. Empty means "take it from the token subject".
	UserID string `yaml:"user_id"`
	Token  string `yaml:"token"`
	Resume bool   `yaml:"resume"` // 启动时恢复上次选择的频道

	Store StoreConfig `yaml:"store"`
	Feed  FeedConfig  `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	API      APIConfig      `yaml:"api"`
}

// Default returns the configuration used when nothing is overridden.
func Default() AppConfig {
	return AppConfig{
		NodeID:   1,
		LogLevel: "info",
		Resume:   true,
		Store: StoreConfig{
			BaseURL:  "http://127.0.0.1:8080/api",
			Timeout:  15 * time.Second,
			PageSize: 10,
		},
		Feed: FeedConfig{
			Transport:    FeedTransportWS,
			URL:          "ws://127.0.0.1:8080/ws",
			TopicPrefix:  "channel:",
			PingInterval: 25 * time.Second,
			PongWait:     60 * time.Second,
			WriteWait:    10 * time.Second,
			Nats: NatsConfig{
				Servers:       []string{"nats://127.0.0.1:4222"},
				Name:          "chatsync",
				SubjectPrefix: "chat.feed",
				Timeout:       3 * time.Second,
			},
		},
		Redis: RedisConfig{
			Addr:      "127.0.0.1:6379",
			KeyPrefix: "chatsync:",
		},
		Postgres: PostgresConfig{
			Table: "chatsync_selection",
		},
		API: APIConfig{
			Addr: "127.0.0.1:7070",
		},
	}
}

var Global = Default()
