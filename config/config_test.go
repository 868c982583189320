package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "products.csv", cfg.Products.CSV)
	assert.Equal(t, 3*time.Second, cfg.Check.ProductDelay)
	assert.Equal(t, 15*time.Second, cfg.Check.FetchTimeout)
	assert.Equal(t, "http", cfg.Check.FetchMode)
	assert.True(t, cfg.Check.PriceMin.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Check.PriceMax.Equal(decimal.NewFromInt(1000000)))
	assert.False(t, cfg.Check.StrictThreshold)
	assert.Equal(t, "@every 1h0m0s", cfg.Schedule.ScheduleSpec())
	assert.Equal(t, "0.0.0.0:8080", cfg.API.Addr())
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.API.AllowedOrigins)
	assert.False(t, cfg.Telegram.Enabled())
	assert.False(t, cfg.Email.Enabled())
}

func TestNewConfig_LegacyTelegramNames(t *testing.T) {
	t.Setenv("TOKEN", "123:abc")
	t.Setenv("CHAT_ID", "42")

	cfg, err := NewConfig(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.True(t, cfg.Telegram.Enabled())
}

func TestNewConfig_CustomValues(t *testing.T) {
	t.Setenv("PRICE_MIN", "1.5")
	t.Setenv("PRICE_MAX", "5000")
	t.Setenv("PRODUCT_DELAY", "500ms")
	t.Setenv("CHECK_SCHEDULE", "0 */6 * * *")
	t.Setenv("ALERT_STRICT", "true")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("FETCH_MODE", "Browser")

	cfg, err := NewConfig(NewViper())
	require.NoError(t, err)

	assert.True(t, cfg.Check.PriceMin.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, cfg.Check.PriceMax.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, 500*time.Millisecond, cfg.Check.ProductDelay)
	assert.Equal(t, "0 */6 * * *", cfg.Schedule.ScheduleSpec())
	assert.True(t, cfg.Check.StrictThreshold)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
	assert.Equal(t, "browser", cfg.Check.FetchMode)
}

func TestNewConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad min":        {"PRICE_MIN": "ten"},
		"max below min":  {"PRICE_MIN": "100", "PRICE_MAX": "50"},
		"negative min":   {"PRICE_MIN": "-1"},
		"unknown mode":   {"FETCH_MODE": "carrier-pigeon"},
		"zero timeout":   {"FETCH_TIMEOUT": "0s"},
		"no product src": {"PRODUCTS_CSV": " "},
		"bad api port":   {"PORT": "70000"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := NewConfig(NewViper())
			require.Error(t, err)
		})
	}
}
