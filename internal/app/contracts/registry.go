// Package contracts loads declarative endpoint contracts from disk and
// validates live API responses against them.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/buenobot/internal/domain/rules"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// ErrContractNotFound is returned when no contract matches a method and endpoint.
var ErrContractNotFound = errors.New("contract not found")

// Registry holds the contracts defined in a directory. It is constructed
// once by the application and shared; loading is lazy and idempotent, and
// concurrent first loads converge on a single contract set.
type Registry struct {
	dir      string
	validate *validator.Validate

	mu        sync.RWMutex
	loaded    bool
	contracts map[string]rules.EndpointContract

	logger *logger.Logger
	tracer trace.Tracer
}

// NewRegistry creates a registry over dir. Nothing is read until Load.
func NewRegistry(dir string, log *logger.Logger, tracer trace.Tracer) *Registry {
	return &Registry{
		dir:       dir,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		contracts: make(map[string]rules.EndpointContract),
		logger:    log.With("component", "contract_registry", "dir", dir),
		tracer:    tracer,
	}
}

// Dir returns the directory the registry reads from.
func (r *Registry) Dir() string { return r.dir }

// Load reads every contract file under the registry directory. A loaded
// registry is not read again unless reload is true, in which case the
// previous set is replaced entirely. Malformed files and invalid contracts
// are logged and skipped. Load returns the number of contracts held.
func (r *Registry) Load(ctx context.Context, reload bool) (int, error) {
	ctx, span := r.tracer.Start(ctx, "contract_registry.load",
		trace.WithAttributes(
			attribute.String("dir", r.dir),
			attribute.Bool("reload", reload),
		))
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded && !reload {
		span.AddEvent("already_loaded")
		return len(r.contracts), nil
	}

	info, err := os.Stat(r.dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "contract dir unavailable")
		return 0, fmt.Errorf("contract dir %s: %w", r.dir, err)
	}
	if !info.IsDir() {
		err := fmt.Errorf("contract dir %s: not a directory", r.dir)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	loaded := make(map[string]rules.EndpointContract)
	var files, skipped int
	walkErr := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn(ctx, "skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() || !isContractFile(path) {
			return nil
		}
		files++

		contracts, err := r.loadFile(path)
		if err != nil {
			skipped++
			r.logger.Warn(ctx, "skipping malformed contract file", "path", path, "error", err)
			return nil
		}
		for _, c := range contracts {
			if prev, dup := loaded[c.Key()]; dup {
				r.logger.Warn(ctx, "contract redefined, later definition wins",
					"key", c.Key(), "previous", prev.Name, "path", path)
			}
			loaded[c.Key()] = c
		}
		return nil
	})
	if walkErr != nil {
		span.RecordError(walkErr)
		span.SetStatus(codes.Error, "walking contract dir failed")
		return 0, fmt.Errorf("walking contract dir %s: %w", r.dir, walkErr)
	}

	r.contracts = loaded
	r.loaded = true

	span.SetAttributes(
		attribute.Int("files", files),
		attribute.Int("skipped_files", skipped),
		attribute.Int("contracts", len(loaded)),
	)
	r.logger.Info(ctx, "contracts loaded", "files", files, "skipped_files", skipped, "contracts", len(loaded))
	return len(loaded), nil
}

func (r *Registry) loadFile(path string) ([]rules.EndpointContract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	defs, err := decodeDefinitions(path, data)
	if err != nil {
		return nil, err
	}

	out := make([]rules.EndpointContract, 0, len(defs))
	for i, def := range defs {
		c, err := toContract(r.validate, def)
		if err != nil {
			r.logger.Warn(context.Background(), "skipping invalid contract",
				"path", path, "index", i, "endpoint", def.Endpoint, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Get returns the contract for method and endpoint.
func (r *Registry) Get(method, endpoint string) (rules.EndpointContract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[rules.ContractKey(method, endpoint)]
	if !ok {
		return rules.EndpointContract{}, fmt.Errorf("%w: %s", ErrContractNotFound, rules.ContractKey(method, endpoint))
	}
	return c, nil
}

// All returns every loaded contract ordered by key.
func (r *Registry) All() []rules.EndpointContract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.contracts))
	for k := range r.contracts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]rules.EndpointContract, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.contracts[k])
	}
	return out
}

// Len returns the number of loaded contracts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contracts)
}
