package spacetraveling

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/eringen/spacetraveling/content"
)

// SiteConfig holds all configuration for a spacetraveling site.
type SiteConfig struct {
	Name        string `mapstructure:"SITE_NAME"`        // Site name (default "spacetraveling")
	URL         string `mapstructure:"SITE_URL"`         // Canonical URL (default "http://localhost:3000")
	Description string `mapstructure:"SITE_DESCRIPTION"` // Site description for RSS and meta tags
	Author      string `mapstructure:"SITE_AUTHOR"`

	Addr         string `mapstructure:"ADDR"`          // Listen address (default ":3000")
	DatabasePath string `mapstructure:"DATABASE_PATH"` // Generated page store (default "data/pages.db")

	PrismicEndpoint    string `mapstructure:"PRISMIC_ENDPOINT"` // Required, e.g. https://repo.cdn.prismic.io/api/v2
	PrismicAccessToken string `mapstructure:"PRISMIC_ACCESS_TOKEN"`
	PageSize           int    `mapstructure:"PAGE_SIZE"` // Posts per listing page (default 20)

	PrismicTimeout time.Duration `mapstructure:"PRISMIC_TIMEOUT"` // Per-request HTTP timeout (default 15s)
	PrismicRefTTL  time.Duration `mapstructure:"PRISMIC_REF_TTL"` // How long the master ref is reused (default 1m)

	RevalidateInterval time.Duration `mapstructure:"REVALIDATE_INTERVAL"` // Listing refresh (default 30m)
	LoadMorePerMinute  int           `mapstructure:"LOAD_MORE_PER_MINUTE"`
	MissesPerMinute    int           `mapstructure:"MISSES_PER_MINUTE"` // Requests per IP for posts not generated yet
	ViewTTL            time.Duration `mapstructure:"VIEW_TTL"` // Idle page views are dropped after this
	RevalidateSecret   string        `mapstructure:"REVALIDATE_SECRET"` // Enables POST /api/revalidate when set

	LogLevel     string `mapstructure:"LOG_LEVEL"`
	Environment  string `mapstructure:"ENVIRONMENT"`   // "development" turns on Echo debug; "production" forces secure cookies
	CookieSecure bool   `mapstructure:"COOKIE_SECURE"` // Set true for HTTPS
}

func (c *SiteConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "spacetraveling"
	}
	if c.URL == "" {
		c.URL = "http://localhost:3000"
	}
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "data/pages.db"
	}
	if c.PageSize <= 0 {
		c.PageSize = 20
	}
	if c.RevalidateInterval <= 0 {
		c.RevalidateInterval = 30 * time.Minute
	}
	if c.PrismicTimeout <= 0 {
		c.PrismicTimeout = 15 * time.Second
	}
	if c.PrismicRefTTL <= 0 {
		c.PrismicRefTTL = time.Minute
	}
	if c.LoadMorePerMinute <= 0 {
		c.LoadMorePerMinute = 30
	}
	if c.MissesPerMinute <= 0 {
		c.MissesPerMinute = 20
	}
	if c.ViewTTL <= 0 {
		c.ViewTTL = 30 * time.Minute
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.IsProduction() {
		c.CookieSecure = true
	}
}

// IsProduction reports whether the site runs with ENVIRONMENT=production.
func (c SiteConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment reports whether the site runs with ENVIRONMENT=development.
func (c SiteConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c SiteConfig) validate() error {
	if c.PrismicEndpoint == "" {
		return errors.New("PRISMIC_ENDPOINT is required")
	}
	u, err := url.Parse(c.PrismicEndpoint)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("PRISMIC_ENDPOINT %q must be an absolute url", c.PrismicEndpoint)
	}
	return nil
}

// LoadConfig reads configuration from the environment, after loading a .env
// file when one exists.
func LoadConfig() (SiteConfig, error) {
	// A missing .env is fine; the environment alone may configure the site.
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("SITE_NAME", "spacetraveling")
	v.SetDefault("SITE_URL", "http://localhost:3000")
	v.SetDefault("SITE_DESCRIPTION", "")
	v.SetDefault("SITE_AUTHOR", "")
	v.SetDefault("ADDR", ":3000")
	v.SetDefault("DATABASE_PATH", "data/pages.db")
	v.SetDefault("PRISMIC_ENDPOINT", "")
	v.SetDefault("PRISMIC_ACCESS_TOKEN", "")
	v.SetDefault("PAGE_SIZE", 20)
	v.SetDefault("PRISMIC_TIMEOUT", "15s")
	v.SetDefault("PRISMIC_REF_TTL", "1m")
	v.SetDefault("REVALIDATE_INTERVAL", "30m")
	v.SetDefault("LOAD_MORE_PER_MINUTE", 30)
	v.SetDefault("MISSES_PER_MINUTE", 20)
	v.SetDefault("VIEW_TTL", "30m")
	v.SetDefault("REVALIDATE_SECRET", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("COOKIE_SECURE", false)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg SiteConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SiteConfig{}, fmt.Errorf("spacetraveling: unmarshal config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return SiteConfig{}, fmt.Errorf("spacetraveling: %w", err)
	}
	return cfg, nil
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App before the server starts.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithStaticDir sets the directory for user-owned static assets (default "public").
func WithStaticDir(dir string) Option {
	return func(a *App) {
		a.staticDir = dir
	}
}

// WithSource replaces the Prismic client built from the config.
func WithSource(src content.Source) Option {
	return func(a *App) {
		a.Source = src
	}
}

// WithStore uses an already opened page store instead of DatabasePath.
func WithStore(s *Store) Option {
	return func(a *App) {
		a.Store = s
	}
}
