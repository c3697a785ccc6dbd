package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/picklr-io/lambdasync/pkg/funcapi"
	"github.com/picklr-io/lambdasync/providers/aws"
	"github.com/picklr-io/lambdasync/providers/memory"
)

// Settings carries provider construction options from the CLI.
type Settings struct {
	Region  string
	Profile string
}

// Registry manages the lifecycle of providers.
type Registry struct {
	mu        sync.RWMutex
	settings  Settings
	providers map[string]funcapi.Provider
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{
		settings:  settings,
		providers: make(map[string]funcapi.Provider),
	}
}

// LoadProvider initializes and registers a provider by name.
func (r *Registry) LoadProvider(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p funcapi.Provider
	switch name {
	case "aws", "":
		ap, err := aws.New(ctx, aws.Options{Region: r.settings.Region, Profile: r.settings.Profile})
		if err != nil {
			return fmt.Errorf("failed to initialize aws provider: %w", err)
		}
		p = ap
	case "memory":
		p = memory.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	r.providers[name] = p
	return nil
}

// Register adds an already constructed provider under name.
func (r *Registry) Register(name string, p funcapi.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (funcapi.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
