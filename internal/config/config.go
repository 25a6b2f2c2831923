package config

import (
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr string `yaml:"addr"` // ":8080"
	} `yaml:"http"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	// Timeout bounds each conversation service call.
	Timeout time.Duration `yaml:"timeout"`

	Twilio struct {
		AccountSID       string `yaml:"account_sid"`
		AuthToken        string `yaml:"auth_token"` // also signs callback tokens
		Region           string `yaml:"region"`
		ConversationsURL string `yaml:"conversations_url,omitempty"` // replaces the API host
	} `yaml:"twilio"`

	// DomainName is the public host the bot calls back on.
	DomainName string `yaml:"domain_name"`

	Bot struct {
		ID              string        `yaml:"id"`
		URL             string        `yaml:"url"` // "{botId}" is substituted
		Timeout         time.Duration `yaml:"timeout"`
		HandoffTarget   string        `yaml:"handoff_target"`
		MaxParticipants int           `yaml:"max_participants"`
	} `yaml:"bot"`

	Routes struct {
		Incoming string `yaml:"incoming"`
		Callback string `yaml:"callback"`
	} `yaml:"routes"`

	Breaker struct {
		Enabled   bool          `yaml:"enabled"`
		Threshold int           `yaml:"threshold"`
		Window    time.Duration `yaml:"window"`
		OpenFor   time.Duration `yaml:"open_for"`
	} `yaml:"breaker"`

	Dedupe struct {
		Enabled bool          `yaml:"enabled"`
		TTL     time.Duration `yaml:"ttl"`
	} `yaml:"dedupe"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		Database int    `yaml:"database"`
	} `yaml:"redis"`

	RocketMQ struct {
		Enabled       bool   `yaml:"enabled"`
		NameServer    string `yaml:"name_server"`
		Topic         string `yaml:"topic"`
		Tag           string `yaml:"tag,omitempty"`
		ProducerGroup string `yaml:"producer_group"`
		AccessKey     string `yaml:"access_key,omitempty"`
		SecretKey     string `yaml:"secret_key,omitempty"`
	} `yaml:"rocketmq"`
}

// env holds the process options recognized from the environment; set values
// override the files.
type env struct {
	AccountSID string `envconfig:"ACCOUNT_SID"`
	AuthToken  string `envconfig:"AUTH_TOKEN"`
	BotID      string `envconfig:"BOT_ID"`
	DomainName string `envconfig:"DOMAIN_NAME"`
	Region     string `envconfig:"TWILIO_REGION"`
}

// Load supports comma-separated config files: "-c common.yml,bot-relay.yml".
// Later files override earlier ones; the environment overrides both. An empty
// list loads from the environment only.
func Load(pathList string) (*Config, error) {
	var c Config
	for _, p := range strings.Split(pathList, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, err
	}
	overlay(&c.Twilio.AccountSID, e.AccountSID)
	overlay(&c.Twilio.AuthToken, e.AuthToken)
	overlay(&c.Bot.ID, e.BotID)
	overlay(&c.DomainName, e.DomainName)
	overlay(&c.Twilio.Region, e.Region)

	c.applyDefaults()
	return &c, nil
}

func overlay(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":2112"
	}
	if c.Timeout == 0 {
		c.Timeout = 3 * time.Second
	}
	if c.Bot.Timeout == 0 {
		c.Bot.Timeout = 10 * time.Second
	}
	if c.Bot.HandoffTarget == "" {
		c.Bot.HandoffTarget = "studio"
	}
	if c.Bot.MaxParticipants <= 0 {
		c.Bot.MaxParticipants = 1
	}
	if c.Routes.Incoming == "" {
		c.Routes.Incoming = "/bot/incoming-conversation"
	}
	if c.Routes.Callback == "" {
		c.Routes.Callback = "/channels/conversations/response"
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = 5
	}
	if c.Breaker.Window == 0 {
		c.Breaker.Window = 10 * time.Second
	}
	if c.Breaker.OpenFor == 0 {
		c.Breaker.OpenFor = 30 * time.Second
	}
	if c.Dedupe.TTL == 0 {
		c.Dedupe.TTL = 24 * time.Hour
	}
	c.DomainName = strings.TrimSuffix(strings.TrimPrefix(c.DomainName, "https://"), "/")
}

// Missing lists the credentials a forward attempt cannot do without.
func (c *Config) Missing() []string {
	var out []string
	if c.Twilio.AccountSID == "" {
		out = append(out, "ACCOUNT_SID")
	}
	if c.Twilio.AuthToken == "" {
		out = append(out, "AUTH_TOKEN")
	}
	if c.DomainName == "" {
		out = append(out, "DOMAIN_NAME")
	}
	return out
}
