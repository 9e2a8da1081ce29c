package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"

	"github.com/artpar/shopdeploy/internal/core/shop"
)

// ErrRegistryUnavailable is returned when the shop registry file cannot be read.
var ErrRegistryUnavailable = errors.New("shop registry unavailable")

// RegistryLoader loads the shop registry. It is called once per operation.
type RegistryLoader interface {
	Load(ctx context.Context) (*shop.Registry, error)
}

// FileRegistry reads the registry YAML from a file.
type FileRegistry struct {
	Fs        afero.Fs
	Path      string
	Delimiter string
}

// Load reads and parses the registry file.
func (r FileRegistry) Load(ctx context.Context) (*shop.Registry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fs := r.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	data, err := afero.ReadFile(fs, r.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}
	reg, err := shop.Parse(data, r.Delimiter)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.Path, err)
	}
	return reg, nil
}

// StaticRegistry returns an already-built registry.
type StaticRegistry struct {
	Registry *shop.Registry
}

// Load returns the wrapped registry.
func (r StaticRegistry) Load(context.Context) (*shop.Registry, error) {
	return r.Registry, nil
}
