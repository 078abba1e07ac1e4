package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds engine configuration. Every API key is optional; an empty key
// disables the source that needs it.
type Config struct {
	GoogleBooksURL  string
	OpenLibraryURL  string
	CoversURL       string
	ISBNdbURL       string
	LibraryThingURL string
	HardcoverURL    string
	ArchiveURL      string

	GoogleBooksAPIKey  string
	ISBNdbAPIKey       string
	LibraryThingAPIKey string
	HardcoverAPIKey    string

	RequestTimeout    time.Duration
	ScraperTimeout    time.Duration
	ValidationTimeout time.Duration

	CacheTTL  time.Duration
	CacheSize int

	StrictPlaceholderBytes  int
	LenientPlaceholderBytes int

	RequestsPerSecond float64
	SearchPages       int
	Parallelism       int

	UserAgent        string
	RespectRobotsTxt bool
	MetricsAddr      string
	DatabasePath     string
	Verbose          bool
}

// DefaultConfig returns defaults pointing at the public upstreams.
func DefaultConfig() *Config {
	return &Config{
		GoogleBooksURL:          "https://www.googleapis.com/books/v1",
		OpenLibraryURL:          "https://openlibrary.org",
		CoversURL:               "https://covers.openlibrary.org",
		ISBNdbURL:               "https://api2.isbndb.com",
		LibraryThingURL:         "https://covers.librarything.com",
		HardcoverURL:            "https://api.hardcover.app/v1/graphql",
		ArchiveURL:              "https://archive.org",
		RequestTimeout:          8 * time.Second,
		ScraperTimeout:          5 * time.Second,
		ValidationTimeout:       3 * time.Second,
		CacheTTL:                24 * time.Hour,
		CacheSize:               1024,
		StrictPlaceholderBytes:  5000,
		LenientPlaceholderBytes: 2000,
		RequestsPerSecond:       0,
		SearchPages:             2,
		Parallelism:             4,
		UserAgent:               "go-bookmeta/1.0 (+https://github.com/aluiziolira/go-bookmeta)",
		RespectRobotsTxt:        false,
	}
}

// Load layers defaults, an optional config file and BOOKMETA_* environment
// variables, then validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix("BOOKMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	cfg := &Config{
		GoogleBooksURL:          v.GetString("google_books_url"),
		OpenLibraryURL:          v.GetString("openlibrary_url"),
		CoversURL:               v.GetString("covers_url"),
		ISBNdbURL:               v.GetString("isbndb_url"),
		LibraryThingURL:         v.GetString("librarything_url"),
		HardcoverURL:            v.GetString("hardcover_url"),
		ArchiveURL:              v.GetString("archive_url"),
		GoogleBooksAPIKey:       v.GetString("google_books_api_key"),
		ISBNdbAPIKey:            v.GetString("isbndb_api_key"),
		LibraryThingAPIKey:      v.GetString("librarything_api_key"),
		HardcoverAPIKey:         v.GetString("hardcover_api_key"),
		RequestTimeout:          v.GetDuration("request_timeout"),
		ScraperTimeout:          v.GetDuration("scraper_timeout"),
		ValidationTimeout:       v.GetDuration("validation_timeout"),
		CacheTTL:                v.GetDuration("cache_ttl"),
		CacheSize:               v.GetInt("cache_size"),
		StrictPlaceholderBytes:  v.GetInt("strict_placeholder_bytes"),
		LenientPlaceholderBytes: v.GetInt("lenient_placeholder_bytes"),
		RequestsPerSecond:       v.GetFloat64("requests_per_second"),
		SearchPages:             v.GetInt("search_pages"),
		Parallelism:             v.GetInt("parallelism"),
		UserAgent:               v.GetString("user_agent"),
		RespectRobotsTxt:        v.GetBool("respect_robots_txt"),
		MetricsAddr:             v.GetString("metrics_addr"),
		DatabasePath:            v.GetString("database_path"),
		Verbose:                 v.GetBool("verbose"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("google_books_url", d.GoogleBooksURL)
	v.SetDefault("openlibrary_url", d.OpenLibraryURL)
	v.SetDefault("covers_url", d.CoversURL)
	v.SetDefault("isbndb_url", d.ISBNdbURL)
	v.SetDefault("librarything_url", d.LibraryThingURL)
	v.SetDefault("hardcover_url", d.HardcoverURL)
	v.SetDefault("archive_url", d.ArchiveURL)
	// Keys have no default but must be registered so AutomaticEnv picks them up.
	v.SetDefault("google_books_api_key", "")
	v.SetDefault("isbndb_api_key", "")
	v.SetDefault("librarything_api_key", "")
	v.SetDefault("hardcover_api_key", "")
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("scraper_timeout", d.ScraperTimeout)
	v.SetDefault("validation_timeout", d.ValidationTimeout)
	v.SetDefault("cache_ttl", d.CacheTTL)
	v.SetDefault("cache_size", d.CacheSize)
	v.SetDefault("strict_placeholder_bytes", d.StrictPlaceholderBytes)
	v.SetDefault("lenient_placeholder_bytes", d.LenientPlaceholderBytes)
	v.SetDefault("requests_per_second", d.RequestsPerSecond)
	v.SetDefault("search_pages", d.SearchPages)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("respect_robots_txt", d.RespectRobotsTxt)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("database_path", "")
	v.SetDefault("verbose", false)
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	endpoints := []struct {
		name  string
		value string
	}{
		{"google books URL", c.GoogleBooksURL},
		{"open library URL", c.OpenLibraryURL},
		{"covers URL", c.CoversURL},
		{"isbndb URL", c.ISBNdbURL},
		{"librarything URL", c.LibraryThingURL},
		{"hardcover URL", c.HardcoverURL},
		{"archive URL", c.ArchiveURL},
	}
	for _, ep := range endpoints {
		if err := validateURL(ep.name, ep.value); err != nil {
			return err
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive")
	}
	if c.ScraperTimeout <= 0 {
		return fmt.Errorf("scraper timeout must be positive")
	}
	if c.ValidationTimeout <= 0 {
		return fmt.Errorf("validation timeout must be positive")
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache size cannot be negative")
	}
	if c.StrictPlaceholderBytes <= 0 || c.LenientPlaceholderBytes <= 0 {
		return fmt.Errorf("placeholder thresholds must be positive")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests per second cannot be negative")
	}
	if c.SearchPages <= 0 {
		return fmt.Errorf("search pages must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}
