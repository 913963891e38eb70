package config

import (
	"errors"
	"strings"
	"time"

	libconfig "evcharge/libs/config"
)

// Config holds everything the bot process needs. Storage backend selection is
// made once here: Postgres when a DSN is set, bbolt when a data file is set,
// in-memory otherwise.
type Config struct {
	Telegram struct {
		Token   string `yaml:"token" env:"BOT_TOKEN"`
		OwnerID int64  `yaml:"ownerId" env:"OWNER_CHAT_ID"`
	} `yaml:"telegram"`
	Storage struct {
		PostgresDSN string `yaml:"postgresDsn" env:"POSTGRES_DSN"`
		BoltPath    string `yaml:"boltPath" env:"BOLT_PATH"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
		Password string        `yaml:"password" env:"REDIS_PASSWORD"`
		TTL      time.Duration `yaml:"ttl" env:"REDIS_TTL" default:"24h"`
	} `yaml:"redis"`
	OCR struct {
		GeminiAPIKey  string        `yaml:"geminiApiKey" env:"GEMINI_API_KEY"`
		GeminiModel   string        `yaml:"geminiModel" env:"GEMINI_MODEL" default:"gemini-2.5-pro"`
		AzureEndpoint string        `yaml:"azureEndpoint" env:"AZURE_VISION_ENDPOINT"`
		AzureKey      string        `yaml:"azureKey" env:"AZURE_VISION_KEY"`
		Timeout       time.Duration `yaml:"timeout" env:"OCR_TIMEOUT" default:"30s"`
	} `yaml:"ocr"`
	Billing struct {
		// AllowedPhones is a comma separated E.164 allow list for neighbors.
		AllowedPhones string `yaml:"allowedPhones" env:"ALLOWED_PHONES"`
	} `yaml:"billing"`
}

// Load reads configuration via the shared helper and validates the minimum.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return nil, errors.New("config: telegram token required")
	}
	if cfg.Telegram.OwnerID == 0 {
		return nil, errors.New("config: owner chat id required")
	}
	if cfg.OCR.Timeout <= 0 {
		cfg.OCR.Timeout = 30 * time.Second
	}
	return cfg, nil
}

// AllowedPhoneList splits the configured allow list, dropping empty entries.
func (c *Config) AllowedPhoneList() []string {
	parts := strings.Split(c.Billing.AllowedPhones, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
