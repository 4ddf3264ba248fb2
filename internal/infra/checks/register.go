package checks

import (
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/buenobot/internal/app/contracts"
	appscanning "github.com/ahrav/buenobot/internal/app/scanning"
	"github.com/ahrav/buenobot/internal/domain/scanning"
	"github.com/ahrav/buenobot/pkg/common/logger"
)

// Check identifiers.
const (
	CheckAPIHealth          = "api_health"
	CheckContractValidation = "contract_validation"
	CheckHardcodedSecrets   = "hardcoded_secrets"
	CheckSQLInjection       = "sql_injection"
)

// Deps carries the collaborators the built-in checks need.
type Deps struct {
	HTTPClient *http.Client
	HealthPath string

	Contracts           *contracts.Registry
	Validator           *contracts.Validator
	ContractConcurrency int
	// ContractParams maps a contract key to the request parameters sent
	// when validating it.
	ContractParams map[string]map[string]any

	MaxFileBytes int64

	Logger *logger.Logger
	Tracer trace.Tracer
}

// RegisterDefaults adds the built-in checks to reg. The quick profile runs
// the health probe and contract validation; full adds the source scanners.
func RegisterDefaults(reg *appscanning.Registry, deps Deps) error {
	client := deps.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	maxBytes := deps.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	secrets, err := NewSecretsCheck(maxBytes, deps.Logger, deps.Tracer)
	if err != nil {
		return err
	}

	regs := []appscanning.Registration{{
		ID:       CheckAPIHealth,
		Name:     "API health",
		Category: scanning.CategoryHealth,
		Quick:    true,
		Factory: func() appscanning.Check {
			return NewHealthCheck(deps.HealthPath, client, deps.Logger, deps.Tracer)
		},
	}}
	if deps.Contracts != nil && deps.Validator != nil {
		regs = append(regs, appscanning.Registration{
			ID:       CheckContractValidation,
			Name:     "Contract validation",
			Category: scanning.CategoryContracts,
			Quick:    true,
			Factory: func() appscanning.Check {
				return NewContractCheck(deps.Contracts, deps.Validator, deps.ContractConcurrency,
					deps.ContractParams, deps.Logger, deps.Tracer)
			},
		})
	}
	regs = append(regs,
		appscanning.Registration{
			ID:       CheckHardcodedSecrets,
			Name:     "Hardcoded secrets",
			Category: scanning.CategorySecurity,
			Full:     true,
			Factory:  func() appscanning.Check { return secrets },
		},
		appscanning.Registration{
			ID:       CheckSQLInjection,
			Name:     "SQL injection patterns",
			Category: scanning.CategoryStaticAnalysis,
			Full:     true,
			Factory: func() appscanning.Check {
				return NewSQLInjectionCheck(maxBytes, deps.Logger, deps.Tracer)
			},
		},
	)

	for _, r := range regs {
		if err := reg.Register(r); err != nil {
			return err
		}
	}
	return nil
}
