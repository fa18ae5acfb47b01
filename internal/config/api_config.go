package config

import (
	"fmt"
	"net/url"
	"time"
)

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetUserAgent() string
}

type API struct {
	BaseURL   string        `yaml:"base_url" env:"API_BASE_URL" env-default:"https://localhost:5026" env-description:"identity and resource API base URL"`
	Timeout   time.Duration `yaml:"timeout" env:"API_TIMEOUT" env-default:"30s" env-description:"per-request timeout"`
	UserAgent string        `yaml:"user_agent" env:"API_USER_AGENT" env-default:"go-identity-client" env-description:"User-Agent header"`
}

var _ APIConfig = API{}

func (a API) GetBaseURL() string {
	return a.BaseURL
}

func (a API) GetRequestTimeout() time.Duration {
	return a.Timeout
}

func (a API) GetUserAgent() string {
	return a.UserAgent
}

func (a API) validate() error {
	u, err := url.Parse(a.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api base url %q must be an absolute http(s) url", a.BaseURL)
	}
	if a.Timeout < 0 {
		return fmt.Errorf("api timeout must not be negative")
	}
	return nil
}
