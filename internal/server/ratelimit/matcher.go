package ratelimit

import (
	"strings"
)

// Reads that poll task state. They fall back to the default budget even
// though they are POST routes under a submit prefix.
var pollingRoutes = map[string]bool{
	"/v1/tasks/status": true,
	"/v1/jobs/status":  true,
}

// MatchEndpoint matches a request path and method to an endpoint configuration.
// Returns the matching EndpointConfig or nil if no match is found.
// Path matching supports prefix matching (e.g., "/v1/tasks/" matches "/v1/tasks/{id}/retry").
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	// Health checks are unlimited
	if path == "/health" && method == "GET" {
		return &EndpointConfig{}
	}
	if pollingRoutes[path] {
		return nil
	}

	for i := range configs {
		config := &configs[i]
		if config.Path == path && config.Method == method {
			return config
		}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method == method && strings.HasSuffix(config.Path, "/") {
			if strings.HasPrefix(path, config.Path) {
				return config
			}
		}
	}

	return nil
}
