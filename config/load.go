package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"ChatSync/logger"
	"ChatSync/tools/decode"
	"ChatSync/tools/security"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// envKeys maps environment variables onto config paths. They win over the YAML file.
var envKeys = map[string][]string{
	"CHATSYNC_NODE_ID":         {"node_id"},
	"CHATSYNC_LOG_LEVEL":       {"log_level"},
	"CHATSYNC_USER_ID":         {"user_id"},
	"CHATSYNC_TOKEN":           {"token"},
	"CHATSYNC_RESUME":          {"resume"},
	"CHATSYNC_STORE_URL":       {"store", "base_url"},
	"CHATSYNC_STORE_TIMEOUT":   {"store", "timeout"},
	"CHATSYNC_PAGE_SIZE":       {"store", "page_size"},
	"CHATSYNC_FEED_TRANSPORT":  {"feed", "transport"},
	"CHATSYNC_FEED_URL":        {"feed", "url"},
	"CHATSYNC_TOPIC_PREFIX":    {"feed", "topic_prefix"},
	"CHATSYNC_NATS_SERVERS":    {"feed", "nats", "servers"},
	"CHATSYNC_NATS_USER":       {"feed", "nats", "user"},
	"CHATSYNC_NATS_PASSWORD":   {"feed", "nats", "password"},
	"CHATSYNC_REDIS_ENABLED":   {"redis", "enabled"},
	"CHATSYNC_REDIS_ADDR":      {"redis", "addr"},
	"CHATSYNC_REDIS_PASSWORD":  {"redis", "password"},
	"CHATSYNC_REDIS_DB":        {"redis", "db"},
	"CHATSYNC_API_ADDR":        {"api", "addr"},
	"CHATSYNC_API_TOKEN":       {"api", "token"},
	"CHATSYNC_REDIS_KEYPREFIX": {"redis", "key_prefix"},
	"CHATSYNC_PG_ENABLED":      {"postgres", "enabled"},
	"CHATSYNC_PG_DSN":          {"postgres", "dsn"},
}

// Load builds the configuration: defaults, then the YAML file (optional), then .env and
// the process environment. The result is also stored in Global.
func Load(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnf("[config] .env not loaded: %v", err)
	}

	doc := make(map[string]any)
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	}
	applyEnv(doc, os.LookupEnv)

	cfg := Default()
	if err := decode.DecodeInto(doc, &cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.resolveUser(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	Global = cfg
	return &cfg, nil
}

func applyEnv(doc map[string]any, lookup func(string) (string, bool)) {
	for env, path := range envKeys {
		if v, ok := lookup(env); ok && v != "" {
			decode.SetPath(doc, path, v)
		}
	}
}

func (c *AppConfig) resolveUser() error {
	if c.UserID != "" || c.Token == "" {
		return nil
	}
	sub, err := security.SubjectUnverified(c.Token)
	if err != nil {
		return errors.Wrap(err, "user_id not set and token subject unreadable")
	}
	c.UserID = sub
	return nil
}

func (c *AppConfig) Validate() error {
	if c.UserID == "" {
		return errors.New("user_id (or a token with a subject) is required")
	}
	if _, err := url.ParseRequestURI(c.Store.BaseURL); err != nil {
		return errors.Wrapf(err, "store.base_url %q", c.Store.BaseURL)
	}
	if c.Store.PageSize <= 0 {
		return fmt.Errorf("store.page_size must be > 0, got %d", c.Store.PageSize)
	}
	switch strings.ToLower(c.Feed.Transport) {
	case FeedTransportWS:
		if _, err := url.ParseRequestURI(c.Feed.URL); err != nil {
			return errors.Wrapf(err, "feed.url %q", c.Feed.URL)
		}
	case FeedTransportNats:
		if len(c.Feed.Nats.Servers) == 0 {
			return errors.New("feed.nats.servers is empty")
		}
	default:
		return fmt.Errorf("feed.transport must be %q or %q, got %q", FeedTransportWS, FeedTransportNats, c.Feed.Transport)
	}
	if c.Postgres.Enabled && !c.Redis.Enabled && c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required when postgres is enabled")
	}
	return nil
}
