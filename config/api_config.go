package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// APIConfig holds the status API settings used by `serve`.
type APIConfig struct {
	Host           string
	Port           int `validate:"min=1,max=65535"`
	AllowedOrigins []string
	RateLimit      float64 `validate:"gt=0"` // requests per second per client
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func setAPIDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("API_RATE_LIMIT", 5)
}

func newAPIConfig(v *viper.Viper) APIConfig {
	var origins []string
	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return APIConfig{
		Host:           v.GetString("HOST"),
		Port:           v.GetInt("PORT"),
		AllowedOrigins: origins,
		RateLimit:      v.GetFloat64("API_RATE_LIMIT"),
	}
}
