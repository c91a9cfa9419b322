package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformconfig "github.com/example/provider-gateway/internal/platform/config"
	"github.com/example/provider-gateway/services/provider-fetch/internal/endpoints"
)

const (
	ModeProxy     = "proxy"
	ModeExtension = "extension"
)

type Config struct {
	App platformconfig.AppConfig

	// FetcherMode selects the fetch adapter: proxy or extension.
	FetcherMode string

	Proxies      []string
	ProviderAPIs []string
	M3U8Proxies  []string
	// EndpointsFile, when set, overrides the env lists and is re-read on
	// EndpointsReloadSchedule.
	EndpointsFile           string
	EndpointsReloadSchedule string

	StoreDriver string
	StoreDSN    string

	NATSURL          string
	ExtensionSubject string
	ExtensionTimeout time.Duration
	// Circuit breaker around extension requests; off when the threshold is 0.
	CBFailureThreshold uint32
	CBTimeout          time.Duration

	UpstreamTimeout time.Duration
	JWTSecret       string
	RateLimitRPS    float64
	RateLimitBurst  int
	// EventsStream is the JetStream stream fetch events go to; empty disables events.
	EventsStream string
}

func Load() (Config, error) {
	app, err := platformconfig.Load()
	if err != nil {
		return Config{}, err
	}
	mode := strings.ToLower(strings.TrimSpace(os.Getenv("FETCHER_MODE")))
	if mode == "" {
		mode = ModeProxy
	}
	if mode != ModeProxy && mode != ModeExtension {
		return Config{}, fmt.Errorf("FETCHER_MODE must be %q or %q, got %q", ModeProxy, ModeExtension, mode)
	}
	natsURL := strings.TrimSpace(os.Getenv("NATS_URL"))
	if mode == ModeExtension && natsURL == "" {
		return Config{}, fmt.Errorf("NATS_URL is required when FETCHER_MODE=%s", ModeExtension)
	}
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	if driver == "" {
		driver = "memory"
	}
	dsn := strings.TrimSpace(os.Getenv("STORE_DSN"))
	if driver != "memory" && dsn == "" {
		return Config{}, fmt.Errorf("STORE_DSN is required for STORE_DRIVER=%s", driver)
	}
	subject := strings.TrimSpace(os.Getenv("EXTENSION_SUBJECT"))
	if subject == "" {
		subject = "extension.makeRequest"
	}
	schedule := strings.TrimSpace(os.Getenv("ENDPOINTS_RELOAD_SCHEDULE"))
	if schedule == "" {
		schedule = endpoints.DefaultSchedule
	}

	return Config{
		App:                     app,
		FetcherMode:             mode,
		Proxies:                 endpoints.ParseList(os.Getenv("PROXY_URLS")),
		ProviderAPIs:            endpoints.ParseList(os.Getenv("PROVIDER_API_URLS")),
		M3U8Proxies:             endpoints.ParseList(os.Getenv("M3U8_PROXY_URLS")),
		EndpointsFile:           strings.TrimSpace(os.Getenv("ENDPOINTS_FILE")),
		EndpointsReloadSchedule: schedule,
		StoreDriver:             driver,
		StoreDSN:                dsn,
		NATSURL:                 natsURL,
		ExtensionSubject:        subject,
		ExtensionTimeout:        envDuration("EXTENSION_TIMEOUT", 15*time.Second),
		CBFailureThreshold:      uint32(envInt("CB_FAILURE_THRESHOLD", 0)),
		CBTimeout:               envDuration("CB_TIMEOUT", 30*time.Second),
		UpstreamTimeout:         envDuration("UPSTREAM_TIMEOUT", 20*time.Second),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		RateLimitRPS:            envFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:          envInt("RATE_LIMIT_BURST", 40),
		EventsStream:            strings.TrimSpace(os.Getenv("EVENTS_STREAM")),
	}, nil
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
