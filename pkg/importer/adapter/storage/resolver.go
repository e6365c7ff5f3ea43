package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	storageConfig "github.com/tigerroll/payroll-import/pkg/importer/adapter/storage/config"
	config "github.com/tigerroll/payroll-import/pkg/importer/core/config"
	"github.com/tigerroll/payroll-import/pkg/importer/support/util/configbinder"
)

// DecodeStorageConfig extracts and validates the named storage configuration.
func DecodeStorageConfig(cfg *config.Config, name string) (storageConfig.StorageConfig, error) {
	var sc storageConfig.StorageConfig
	if err := configbinder.BindNamed(cfg.Importer.Storage, name, &sc); err != nil {
		return sc, fmt.Errorf("storage '%s': %w", name, err)
	}
	return sc, sc.Validate()
}

// Resolver picks the provider matching the configured type of a named storage.
type Resolver struct {
	providers map[string]StorageProvider
	cfg       *config.Config
}

// ResolverParams collects every registered StorageProvider.
type ResolverParams struct {
	fx.In
	Providers []StorageProvider `group:"storage_providers"`
	Cfg       *config.Config
}

func NewResolver(p ResolverParams) *Resolver {
	providers := make(map[string]StorageProvider, len(p.Providers))
	for _, sp := range p.Providers {
		providers[sp.Type()] = sp
	}
	return &Resolver{providers: providers, cfg: p.Cfg}
}

func (r *Resolver) ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error) {
	sc, err := DecodeStorageConfig(r.cfg, name)
	if err != nil {
		return nil, err
	}
	provider, ok := r.providers[sc.Type]
	if !ok {
		return nil, fmt.Errorf("no storage provider found for type '%s' (connection '%s')", sc.Type, name)
	}
	return provider.GetConnection(name)
}

// CloseAll closes the connections of every provider.
func (r *Resolver) CloseAll() error {
	var lastErr error
	for _, p := range r.providers {
		if err := p.CloseAll(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
