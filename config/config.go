package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config is the full runtime configuration, built once at startup and passed
// explicitly to every component.
type Config struct {
	LogLevel string

	Telegram TelegramConfig
	Email    EmailConfig
	Products ProductsConfig
	Schedule ScheduleConfig
	Check    CheckConfig
	API      APIConfig
}

// TelegramConfig holds the bot credentials used for alerts.
type TelegramConfig struct {
	Token   string
	ChatID  string
	BaseURL string `validate:"required,url"`
}

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host string
	Port int `validate:"min=1,max=65535"`
	User string
	Pass string
	From string
	To   string
}

// ProductsConfig tells where the product list lives.
type ProductsConfig struct {
	CSV         string
	DatabaseURL string
}

// ScheduleConfig controls the recurring service.
type ScheduleConfig struct {
	Cron     string
	Interval time.Duration `validate:"gt=0s"`
}

// CheckConfig controls a single verification pass.
type CheckConfig struct {
	ProductDelay    time.Duration `validate:"gte=0s"`
	FetchTimeout    time.Duration `validate:"gt=0s"`
	FetchMode       string        `validate:"oneof=http browser"`
	UserAgent       string        `validate:"required"`
	ChromeBin       string
	PriceMin        decimal.Decimal
	PriceMax        decimal.Decimal
	StrictThreshold bool
	CurrencySymbol  string
}

// Enabled reports whether bot credentials are present.
func (c TelegramConfig) Enabled() bool {
	return c.Token != "" && c.ChatID != ""
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (c EmailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && c.To != ""
}

// ScheduleSpec returns the cron expression for the recurring service.
// An explicit cron expression wins over the polling interval.
func (c ScheduleConfig) ScheduleSpec() string {
	if c.Cron != "" {
		return c.Cron
	}
	return "@every " + c.Interval.String()
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return NewConfig(NewViper())
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Older deployments used the bare TOKEN / CHAT_ID names.
	_ = v.BindEnv("TELEGRAM_TOKEN", "TELEGRAM_TOKEN", "TOKEN")
	_ = v.BindEnv("TELEGRAM_CHAT_ID", "TELEGRAM_CHAT_ID", "CHAT_ID")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("PRODUCTS_CSV", "products.csv")
	v.SetDefault("CHECK_INTERVAL", "1h")
	v.SetDefault("PRODUCT_DELAY", "3s")
	v.SetDefault("FETCH_TIMEOUT", "15s")
	v.SetDefault("FETCH_MODE", "http")
	v.SetDefault("USER_AGENT", defaultUserAgent)
	v.SetDefault("PRICE_MIN", "10")
	v.SetDefault("PRICE_MAX", "1000000")
	v.SetDefault("ALERT_STRICT", false)
	v.SetDefault("CURRENCY_SYMBOL", "R$")
	setAPIDefaults(v)

	return v
}

func NewConfig(v *viper.Viper) (*Config, error) {
	priceMin, err := decimal.NewFromString(strings.TrimSpace(v.GetString("PRICE_MIN")))
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_MIN %q: %w", v.GetString("PRICE_MIN"), err)
	}
	priceMax, err := decimal.NewFromString(strings.TrimSpace(v.GetString("PRICE_MAX")))
	if err != nil {
		return nil, fmt.Errorf("invalid PRICE_MAX %q: %w", v.GetString("PRICE_MAX"), err)
	}

	cfg := &Config{
		LogLevel: v.GetString("LOG_LEVEL"),
		Telegram: TelegramConfig{
			Token:   strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
			ChatID:  strings.TrimSpace(v.GetString("TELEGRAM_CHAT_ID")),
			BaseURL: strings.TrimRight(v.GetString("TELEGRAM_API_URL"), "/"),
		},
		Email: EmailConfig{
			Host: v.GetString("SMTP_HOST"),
			Port: v.GetInt("SMTP_PORT"),
			User: v.GetString("SMTP_USER"),
			Pass: v.GetString("SMTP_PASS"),
			From: v.GetString("SMTP_FROM"),
			To:   v.GetString("ALERT_EMAIL_TO"),
		},
		Products: ProductsConfig{
			CSV:         strings.TrimSpace(v.GetString("PRODUCTS_CSV")),
			DatabaseURL: strings.TrimSpace(v.GetString("DATABASE_URL")),
		},
		Schedule: ScheduleConfig{
			Cron:     strings.TrimSpace(v.GetString("CHECK_SCHEDULE")),
			Interval: v.GetDuration("CHECK_INTERVAL"),
		},
		Check: CheckConfig{
			ProductDelay:    v.GetDuration("PRODUCT_DELAY"),
			FetchTimeout:    v.GetDuration("FETCH_TIMEOUT"),
			FetchMode:       strings.ToLower(strings.TrimSpace(v.GetString("FETCH_MODE"))),
			UserAgent:       v.GetString("USER_AGENT"),
			ChromeBin:       v.GetString("CHROME_BIN"),
			PriceMin:        priceMin,
			PriceMax:        priceMax,
			StrictThreshold: v.GetBool("ALERT_STRICT"),
			CurrencySymbol:  v.GetString("CURRENCY_SYMBOL"),
		},
		API: newAPIConfig(v),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Check.PriceMin.IsNegative() {
		return nil, fmt.Errorf("invalid PRICE_MIN %s: must be >= 0", cfg.Check.PriceMin)
	}
	if !cfg.Check.PriceMax.GreaterThan(cfg.Check.PriceMin) {
		return nil, fmt.Errorf("invalid PRICE_MAX %s: must be greater than PRICE_MIN %s", cfg.Check.PriceMax, cfg.Check.PriceMin)
	}
	if cfg.Products.CSV == "" && cfg.Products.DatabaseURL == "" {
		return nil, fmt.Errorf("either PRODUCTS_CSV or DATABASE_URL is required")
	}

	return cfg, nil
}
