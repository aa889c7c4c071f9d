package ratelimit

import "time"

// EndpointConfig is the budget for one route.
type EndpointConfig struct {
	Path      string // exact path, or a prefix when it ends with "/"
	Method    string
	PerMinute int // zero or less means unlimited
	Burst     int // defaults to PerMinute
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled          bool
	DefaultPerMinute int
	DefaultBurst     int
	CleanupInterval  time.Duration
	// IdleTTL is how long an unused client bucket is kept.
	IdleTTL   time.Duration
	Whitelist map[string]bool
	Endpoints []EndpointConfig
}

// SubmitEndpoints returns budgets for the routes that start model work.
func SubmitEndpoints(perMinute, burst int) []EndpointConfig {
	return []EndpointConfig{
		{Path: "/v1/tasks", Method: "POST", PerMinute: perMinute, Burst: burst},
		{Path: "/v1/tasks/batch", Method: "POST", PerMinute: perMinute, Burst: burst},
		{Path: "/v1/tasks/attach", Method: "POST", PerMinute: perMinute, Burst: burst},
		{Path: "/v1/tasks/", Method: "POST", PerMinute: perMinute, Burst: burst},
	}
}

// DefaultConfig returns an enabled config with the given budgets.
func DefaultConfig(submitPerMinute, submitBurst, defaultPerMinute, defaultBurst int) *Config {
	return &Config{
		Enabled:          true,
		DefaultPerMinute: defaultPerMinute,
		DefaultBurst:     defaultBurst,
		CleanupInterval:  5 * time.Minute,
		IdleTTL:          time.Hour,
		Whitelist:        map[string]bool{},
		Endpoints:        SubmitEndpoints(submitPerMinute, submitBurst),
	}
}
