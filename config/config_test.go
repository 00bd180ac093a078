package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotNil(t, cfg)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "0.01", cfg.Engine.Commission.Rate)
	assert.Equal(t, "1.00", cfg.Engine.Commission.Minimum)
	assert.Equal(t, "10000", cfg.Accounts.DefaultCash)
	assert.EqualValues(t, 10000, cfg.Risk.MaxOrderQuantity)
	assert.NoError(t, cfg.Validate())

	tm, err := cfg.Engine.Timings()
	require.NoError(t, err)
	assert.Equal(t, time.Second, tm.Interval)
	assert.Equal(t, 30*time.Second, tm.ValuationInterval)
	assert.Equal(t, 2*time.Second, tm.QuoteTimeout)

	m, err := cfg.Money()
	require.NoError(t, err)
	assert.Equal(t, "0.01", m.CommissionRate.String())
	assert.Equal(t, "1", m.CommissionMinimum.String())
	assert.True(t, m.DefaultCash.Equal(decimal.NewFromInt(10000)))
}

func TestMoney_ExactDecimals(t *testing.T) {
	cfg := Default()
	cfg.Engine.Commission.Rate = "0.005"
	cfg.Accounts.DefaultCash = "0.1"
	cfg.Accounts.Cash = map[string]string{"alice": "1234567.89"}
	cfg.Quotes.Static = map[string]string{"AAPL": " 150.25 "}

	m, err := cfg.Money()
	require.NoError(t, err)
	assert.Equal(t, "0.005", m.CommissionRate.String())
	assert.Equal(t, "0.3", m.DefaultCash.Mul(decimal.NewFromInt(3)).String(), "no float rounding")
	assert.Equal(t, "1234567.89", m.Cash["alice"].String())
	assert.Equal(t, "150.25", m.Static["AAPL"].String())

	cfg.Engine.Commission.Minimum = ""
	m, err = cfg.Money()
	require.NoError(t, err)
	assert.True(t, m.CommissionMinimum.IsZero())
}

func TestLoadFromFile_MoneyAsYAMLNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "money.yaml")
	yml := `
store:
  driver: memory
engine:
  commission:
    rate: 0.02
    minimum: "2.50"
accounts:
  default_cash: 500.10
quotes:
  source: static
  static:
    AAPL: 150.25
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	m, err := cfg.Money()
	require.NoError(t, err)
	assert.Equal(t, "0.02", m.CommissionRate.String())
	assert.Equal(t, "2.5", m.CommissionMinimum.String())
	assert.Equal(t, "500.1", m.DefaultCash.String())
	assert.Equal(t, "150.25", m.Static["AAPL"].String())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:   "memory store needs no path",
			mutate: func(c *Config) { c.Store = StoreConfig{Driver: "memory"} },
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Store.Driver = "postgres" },
			wantErr: true,
			errMsg:  "store.driver must be",
		},
		{
			name:    "sqlite without path",
			mutate:  func(c *Config) { c.Store.Path = "" },
			wantErr: true,
			errMsg:  "store.path required",
		},
		{
			name:    "bad duration",
			mutate:  func(c *Config) { c.Engine.QuoteTimeout = "soon" },
			wantErr: true,
			errMsg:  "engine.quote_timeout",
		},
		{
			name:    "negative duration",
			mutate:  func(c *Config) { c.Engine.MaxBackoff = "-1s" },
			wantErr: true,
			errMsg:  "engine.max_backoff must not be negative",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Engine.Interval = "0s" },
			wantErr: true,
			errMsg:  "engine.interval must be positive",
		},
		{
			name:    "negative commission",
			mutate:  func(c *Config) { c.Engine.Commission.Minimum = "-1" },
			wantErr: true,
			errMsg:  "engine.commission.minimum must not be negative",
		},
		{
			name:    "commission not a number",
			mutate:  func(c *Config) { c.Engine.Commission.Rate = "a penny" },
			wantErr: true,
			errMsg:  "engine.commission.rate",
		},
		{
			name:    "bad owner cash",
			mutate:  func(c *Config) { c.Accounts.Cash = map[string]string{"alice": "lots"} },
			wantErr: true,
			errMsg:  "accounts.cash.alice",
		},
		{
			name:    "negative default cash",
			mutate:  func(c *Config) { c.Accounts.DefaultCash = "-5" },
			wantErr: true,
			errMsg:  "accounts.default_cash must not be negative",
		},
		{
			name:    "alpaca without keys",
			mutate:  func(c *Config) { c.Quotes.Source = "alpaca" },
			wantErr: true,
			errMsg:  "alpaca_key",
		},
		{
			name: "static with bad price",
			mutate: func(c *Config) {
				c.Quotes.Source = "static"
				c.Quotes.Static = map[string]string{"AAPL": "0"}
			},
			wantErr: true,
			errMsg:  "quotes.static.AAPL",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
			errMsg:  "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name string
		ext  string
	}{
		{"json format", ".json"},
		{"yaml format", ".yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Quotes.Static = map[string]string{"AAPL": "150.25"}
			path := filepath.Join(tmpDir, "test"+tt.ext)

			require.NoError(t, cfg.SaveToFile(path))
			_, err := os.Stat(path)
			require.NoError(t, err)

			loaded, err := LoadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestLoadFromFile_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  driver: memory\nengine:\n  interval: 250ms\n"), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "250ms", cfg.Engine.Interval)
	assert.Equal(t, "30s", cfg.Engine.ValuationInterval)
	assert.Equal(t, ":8002", cfg.Server.Addr)
}

func TestLoadInvalidFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path.yaml")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OMS_STORE_PATH":      "/var/lib/oms.db",
		"OMS_JWT_SECRET":      "secret",
		"APCA_API_KEY_ID":     "key",
		"APCA_API_SECRET_KEY": "shh",
		"OMS_LOG_LEVEL":       "",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "/var/lib/oms.db", cfg.Store.Path)
	assert.Equal(t, "secret", cfg.Server.JWTSecret)
	assert.Equal(t, "key", cfg.Quotes.AlpacaKey)
	assert.Equal(t, "shh", cfg.Quotes.AlpacaSecret)
	assert.Equal(t, "info", cfg.Logging.Level, "empty values are ignored")
}

func TestLoad(t *testing.T) {
	t.Setenv("OMS_SERVER_ADDR", ":9999")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}
