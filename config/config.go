package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	Risk     RiskConfig     `json:"risk" yaml:"risk"`
	Accounts AccountsConfig `json:"accounts" yaml:"accounts"`
	Quotes   QuotesConfig   `json:"quotes" yaml:"quotes"`
	Server   ServerConfig   `json:"server" yaml:"server"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
}

// StoreConfig selects the order store
type StoreConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "sqlite3", "sqlite" or "memory"
	Path   string `json:"path,omitempty" yaml:"path,omitempty"`
}

// EngineConfig contains scheduling and execution parameters. Durations
// are Go duration strings, e.g. "1s", "30s", "2m".
type EngineConfig struct {
	Interval          string           `json:"interval" yaml:"interval"`
	ExpiryInterval    string           `json:"expiry_interval" yaml:"expiry_interval"`
	ValuationInterval string           `json:"valuation_interval" yaml:"valuation_interval"`
	ErrorBackoff      string           `json:"error_backoff" yaml:"error_backoff"`
	MaxBackoff        string           `json:"max_backoff" yaml:"max_backoff"`
	QuoteTimeout      string           `json:"quote_timeout" yaml:"quote_timeout"`
	QuoteMaxAge       string           `json:"quote_max_age" yaml:"quote_max_age"`
	SettlementDays    int              `json:"settlement_days" yaml:"settlement_days"`
	Commission        CommissionConfig `json:"commission" yaml:"commission"`
}

// CommissionConfig amounts are decimal strings, e.g. "0.01".
type CommissionConfig struct {
	Rate    string `json:"rate" yaml:"rate"`       // per share
	Minimum string `json:"minimum" yaml:"minimum"` // per trade
}

// Timings is EngineConfig with every duration parsed.
type Timings struct {
	Interval          time.Duration
	ExpiryInterval    time.Duration
	ValuationInterval time.Duration
	ErrorBackoff      time.Duration
	MaxBackoff        time.Duration
	QuoteTimeout      time.Duration
	QuoteMaxAge       time.Duration
}

// Timings parses the duration strings
func (e EngineConfig) Timings() (Timings, error) {
	var t Timings
	for _, f := range []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"engine.interval", e.Interval, &t.Interval},
		{"engine.expiry_interval", e.ExpiryInterval, &t.ExpiryInterval},
		{"engine.valuation_interval", e.ValuationInterval, &t.ValuationInterval},
		{"engine.error_backoff", e.ErrorBackoff, &t.ErrorBackoff},
		{"engine.max_backoff", e.MaxBackoff, &t.MaxBackoff},
		{"engine.quote_timeout", e.QuoteTimeout, &t.QuoteTimeout},
		{"engine.quote_max_age", e.QuoteMaxAge, &t.QuoteMaxAge},
	} {
		if f.val == "" {
			continue
		}
		d, err := time.ParseDuration(f.val)
		if err != nil {
			return Timings{}, fmt.Errorf("%s: %w", f.key, err)
		}
		if d < 0 {
			return Timings{}, fmt.Errorf("%s must not be negative", f.key)
		}
		*f.dst = d
	}
	return t, nil
}

type RiskConfig struct {
	MaxOrderQuantity int64 `json:"max_order_quantity" yaml:"max_order_quantity"`
}

// AccountsConfig sets the cash balance every owner starts with. Amounts
// are decimal strings.
type AccountsConfig struct {
	DefaultCash string            `json:"default_cash" yaml:"default_cash"`
	Cash        map[string]string `json:"cash,omitempty" yaml:"cash,omitempty"`
}

// QuotesConfig selects the market data source
type QuotesConfig struct {
	Source        string            `json:"source" yaml:"source"` // "http", "alpaca" or "static"
	URL           string            `json:"url,omitempty" yaml:"url,omitempty"`
	RatePerSecond float64           `json:"rate_per_second,omitempty" yaml:"rate_per_second,omitempty"`
	AlpacaKey     string            `json:"alpaca_key,omitempty" yaml:"alpaca_key,omitempty"`
	AlpacaSecret  string            `json:"alpaca_secret,omitempty" yaml:"alpaca_secret,omitempty"`
	AlpacaDataURL string            `json:"alpaca_data_url,omitempty" yaml:"alpaca_data_url,omitempty"`
	Static        map[string]string `json:"static,omitempty" yaml:"static,omitempty"`
}

// Money is every monetary setting parsed to a decimal.
type Money struct {
	CommissionRate    decimal.Decimal
	CommissionMinimum decimal.Decimal
	DefaultCash       decimal.Decimal
	Cash              map[string]decimal.Decimal
	Static            map[string]decimal.Decimal
}

// Money parses the decimal strings. Empty amounts are zero; none may be
// negative.
func (c *Config) Money() (Money, error) {
	m := Money{
		Cash:   make(map[string]decimal.Decimal, len(c.Accounts.Cash)),
		Static: make(map[string]decimal.Decimal, len(c.Quotes.Static)),
	}
	for _, f := range []struct {
		key string
		val string
		dst *decimal.Decimal
	}{
		{"engine.commission.rate", c.Engine.Commission.Rate, &m.CommissionRate},
		{"engine.commission.minimum", c.Engine.Commission.Minimum, &m.CommissionMinimum},
		{"accounts.default_cash", c.Accounts.DefaultCash, &m.DefaultCash},
	} {
		d, err := parseAmount(f.key, f.val)
		if err != nil {
			return Money{}, err
		}
		*f.dst = d
	}
	for owner, v := range c.Accounts.Cash {
		d, err := parseAmount("accounts.cash."+owner, v)
		if err != nil {
			return Money{}, err
		}
		m.Cash[owner] = d
	}
	for sym, v := range c.Quotes.Static {
		d, err := parseAmount("quotes.static."+sym, v)
		if err != nil {
			return Money{}, err
		}
		if !d.IsPositive() {
			return Money{}, fmt.Errorf("quotes.static.%s must be positive", sym)
		}
		m.Static[sym] = d
	}
	return m, nil
}

func parseAmount(key, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %q is not a decimal amount", key, s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

type ServerConfig struct {
	Addr          string  `json:"addr" yaml:"addr"`
	JWTSecret     string  `json:"jwt_secret,omitempty" yaml:"jwt_secret,omitempty"`
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "json" or "text"
}

// Load reads .env files if present, the config file at path (defaults
// when path is empty), then applies environment overrides and validates.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a file (JSON or YAML). Keys the
// file leaves out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// decode tries YAML first and falls back to JSON
func decode(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	return nil
}

// SaveToFile saves configuration to a file (YAML for .yaml/.yml, else JSON)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides settings from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for _, o := range []struct {
		key string
		dst *string
	}{
		{"OMS_STORE_PATH", &c.Store.Path},
		{"OMS_QUOTES_URL", &c.Quotes.URL},
		{"OMS_JWT_SECRET", &c.Server.JWTSecret},
		{"APCA_API_KEY_ID", &c.Quotes.AlpacaKey},
		{"APCA_API_SECRET_KEY", &c.Quotes.AlpacaSecret},
		{"OMS_LOG_LEVEL", &c.Logging.Level},
		{"OMS_SERVER_ADDR", &c.Server.Addr},
	} {
		if v, ok := lookup(o.key); ok && v != "" {
			*o.dst = v
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory":
	case "sqlite3", "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path required for %s driver", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver must be 'sqlite3', 'sqlite' or 'memory'")
	}

	t, err := c.Engine.Timings()
	if err != nil {
		return err
	}
	if t.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive")
	}
	if c.Engine.SettlementDays < 0 {
		return fmt.Errorf("engine.settlement_days must not be negative")
	}
	if _, err := c.Money(); err != nil {
		return err
	}
	if c.Risk.MaxOrderQuantity < 0 {
		return fmt.Errorf("risk.max_order_quantity must not be negative")
	}

	switch c.Quotes.Source {
	case "http":
		if c.Quotes.URL == "" {
			return fmt.Errorf("quotes.url required for http source")
		}
	case "alpaca":
		if c.Quotes.AlpacaKey == "" || c.Quotes.AlpacaSecret == "" {
			return fmt.Errorf("quotes alpaca_key and alpaca_secret required for alpaca source")
		}
	case "static":
	default:
		return fmt.Errorf("quotes.source must be 'http', 'alpaca' or 'static'")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.RatePerSecond < 0 {
		return fmt.Errorf("server.rate_per_second must not be negative")
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}
	return nil
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite3",
			Path:   "./oms.sqlite",
		},
		Engine: EngineConfig{
			Interval:          "1s",
			ExpiryInterval:    "1s",
			ValuationInterval: "30s",
			ErrorBackoff:      "1s",
			MaxBackoff:        "30s",
			QuoteTimeout:      "2s",
			QuoteMaxAge:       "5s",
			SettlementDays:    2,
			Commission:        CommissionConfig{Rate: "0.01", Minimum: "1.00"},
		},
		Risk:     RiskConfig{MaxOrderQuantity: 10000},
		Accounts: AccountsConfig{DefaultCash: "10000"},
		Quotes: QuotesConfig{
			Source:        "http",
			URL:           "http://localhost:8003",
			RatePerSecond: 20,
			AlpacaDataURL: "https://data.alpaca.markets",
		},
		Server: ServerConfig{
			Addr:          ":8002",
			RatePerSecond: 10,
			Burst:         20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
