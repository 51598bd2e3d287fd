package capabilities

import (
	"fmt"

	"github.com/finsightai/finsight/internal/agent"
)

// RegistryDeps carries the optional backends for the built-in capabilities.
// Nil fields select the built-in defaults or leave a capability in its
// not-enabled state.
type RegistryDeps struct {
	Quotes   QuoteSource
	Runner   Runner
	Provider agent.ModelProvider
	Model    string
}

// NewRegistry builds a capability registry with all built-ins registered.
func NewRegistry(deps RegistryDeps) *agent.CapabilityRegistry {
	registry := agent.NewCapabilityRegistry()
	for _, c := range []agent.Capability{
		NewFetchQuote(deps.Quotes),
		NewMarketReport(deps.Quotes),
		NewRunScript(deps.Runner),
		NewAnalystDebate(deps.Provider, deps.Model),
	} {
		if err := registry.Register(c); err != nil {
			// Built-in schemas are compile-time constants; a failure here
			// is a programming error.
			panic(fmt.Sprintf("register %s: %v", c.Name(), err))
		}
	}
	return registry
}
