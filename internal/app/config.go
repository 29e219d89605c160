package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/chatshop-io/chatshop/internal/domain/promo"
)

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (SHOP_API_KEY_PEPPER)" flag:"api-key-pepper"`
	RateLimit    RateLimitConfig
	Discounts    DiscountConfig
	Notify       NotifyConfig
	Graceful     GracefulConfig
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// DiscountConfig controls discount behaviour.
type DiscountConfig struct {
	// Tiers lists automatic discount tiers as "min_subtotal:percent" pairs,
	// e.g. "50000:5,100000:10". Empty keeps the built-in table.
	Tiers     string `default:"" usage:"Automatic discount tiers as min:percent pairs" flag:"discount-tiers"`
	Stackable bool   `default:"true" usage:"Whether promo and automatic discounts combine"`
}

// NotifyConfig controls order event notifications.
type NotifyConfig struct {
	// AdminIDs lists chat IDs that receive new-order notifications.
	AdminIDs []int64 `usage:"Admin chat IDs for new-order notifications" flag:"admin-ids"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/chatshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	}
	if _, err := cfg.Discounts.ParseTiers(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT to the SHOP_-prefixed
// configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// ParseTiers parses the tier table. An empty setting returns nil, which keeps
// the discount service defaults.
func (d DiscountConfig) ParseTiers() ([]promo.Tier, error) {
	s := strings.TrimSpace(d.Tiers)
	if s == "" {
		return nil, nil
	}

	var tiers []promo.Tier
	for _, pair := range strings.Split(s, ",") {
		min, percent, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, errors.Errorf("malformed discount tier %q: want min:percent", pair)
		}
		minSubtotal, err := decimal.NewFromString(strings.TrimSpace(min))
		if err != nil {
			return nil, errors.Wrapf(err, "parse tier min %q", min)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(percent))
		if err != nil {
			return nil, errors.Wrapf(err, "parse tier percent %q", percent)
		}
		if pct <= 0 || pct >= 100 {
			return nil, errors.Errorf("tier percent %d out of range (0, 100)", pct)
		}
		tiers = append(tiers, promo.Tier{
			MinSubtotal: minSubtotal,
			Percent:     decimal.NewFromInt(int64(pct)),
		})
	}
	return tiers, nil
}
