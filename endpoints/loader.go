package endpoints

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader manages endpoint configuration from endpoints.yaml
 * Provides in-memory lookup for fast access
 */

// File represents the structure of endpoints.yaml
type File struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// EndpointConfig represents a single endpoint in the YAML file
type EndpointConfig struct {
	EndpointID           string `yaml:"endpoint_id"`
	URL                  string `yaml:"url"`
	Secret               string `yaml:"secret"`
	TimeoutSeconds       int    `yaml:"timeout_seconds"`        // Optional: override global default
	MaxRetries           int    `yaml:"max_retries"`            // Optional: override global default
	FailureWindowSeconds int    `yaml:"failure_window_seconds"` // Optional: override global default
	FailureThreshold     int    `yaml:"failure_threshold"`      // Optional: override global default
	CooldownSeconds      int    `yaml:"cooldown_seconds"`       // Optional: override global default
}

// Loader holds the loaded endpoints
type Loader struct {
	endpoints map[string]*Endpoint
}

// NewLoader creates a new endpoint loader
func NewLoader() *Loader {
	return &Loader{
		endpoints: make(map[string]*Endpoint),
	}
}

// Load reads and parses the endpoints.yaml file
func (l *Loader) Load(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading endpoints file: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing endpoints YAML: %w", err)
	}

	for _, ec := range file.Endpoints {
		endpoint := &Endpoint{
			ID:                   ec.EndpointID,
			URL:                  ec.URL,
			Secret:               ec.Secret,
			TimeoutSeconds:       ec.TimeoutSeconds,
			MaxRetries:           ec.MaxRetries,
			FailureWindowSeconds: ec.FailureWindowSeconds,
			FailureThreshold:     ec.FailureThreshold,
			CooldownSeconds:      ec.CooldownSeconds,
		}

		if err := endpoint.Validate(); err != nil {
			return fmt.Errorf("validating endpoint: %w", err)
		}

		l.endpoints[endpoint.ID] = endpoint
	}

	return nil
}

// Get retrieves an endpoint by its ID
func (l *Loader) Get(endpointID string) (*Endpoint, error) {
	endpoint, exists := l.endpoints[endpointID]
	if !exists {
		return nil, fmt.Errorf("endpoint not found: %s", endpointID)
	}
	return endpoint, nil
}

// List returns all loaded endpoints
func (l *Loader) List() []*Endpoint {
	endpoints := make([]*Endpoint, 0, len(l.endpoints))
	for _, endpoint := range l.endpoints {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints
}
