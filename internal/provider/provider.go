// Package provider is the registry of speech-to-text backends the daemon
// can stream to. It carries static metadata only; the live connection is
// internal/stream's job.
package provider

import (
	"errors"
	"fmt"
	"sort"
)

// ErrProviderNotConfigured is returned when a requested provider name has
// no registration.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Provider describes one streaming speech-to-text backend.
type Provider interface {
	Name() string
	DisplayName() string
	EnvVar() string
	Models() []Model
	DefaultModel() string
	Endpoint() EndpointConfig
}

var registry = make(map[string]Provider)

func init() {
	Register(&DeepgramProvider{})
}

// Register adds a provider to the registry.
func Register(p Provider) {
	registry[p.Name()] = p
}

// Get returns the registered provider for name.
func Get(name string) (Provider, error) {
	p, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasModel reports whether the named provider offers the given model id.
func HasModel(providerName, modelID string) bool {
	p, err := Get(providerName)
	if err != nil {
		return false
	}
	for _, m := range p.Models() {
		if m.ID == modelID {
			return true
		}
	}
	return false
}
