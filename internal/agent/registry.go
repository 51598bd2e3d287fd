package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/finsightai/finsight/pkg/models"
)

// Capability is a named, independently invokable unit of work the model can
// request. Its internals are opaque to the runtime.
type Capability interface {
	// Name returns the capability name used in model function calling.
	Name() string

	// Description tells the model what the capability does.
	Description() string

	// Schema returns the JSON Schema for the capability's arguments:
	// types, required/optional, enums, defaults.
	Schema() json.RawMessage

	// Execute runs the capability. Args have already passed schema
	// validation. Errors are isolated by the executor; they never abort
	// sibling invocations.
	Execute(ctx context.Context, args json.RawMessage) (*CapabilityResult, error)
}

// CapabilityResult is the output of one capability execution.
type CapabilityResult struct {
	Content   string            `json:"content"`
	IsError   bool              `json:"is_error,omitempty"`
	Artifacts []models.Artifact `json:"artifacts,omitempty"`
}

// Capability limits to prevent resource exhaustion.
const (
	// MaxCapabilityNameLength is the maximum length of a capability name.
	MaxCapabilityNameLength = 256

	// MaxCapabilityArgsSize is the maximum size of argument JSON (10MB).
	MaxCapabilityArgsSize = 10 << 20
)

type registeredCapability struct {
	cap    Capability
	schema *jsonschema.Schema
}

// CapabilityRegistry manages available capabilities with thread-safe
// registration and lookup. Each capability's schema is compiled at
// registration and arguments are validated before dispatch.
type CapabilityRegistry struct {
	mu   sync.RWMutex
	caps map[string]registeredCapability
}

// NewCapabilityRegistry creates an empty registry.
func NewCapabilityRegistry() *CapabilityRegistry {
	return &CapabilityRegistry{
		caps: make(map[string]registeredCapability),
	}
}

// Register adds a capability, compiling its argument schema. A capability
// with the same name is replaced.
func (r *CapabilityRegistry) Register(cap Capability) error {
	schema, err := jsonschema.CompileString(cap.Name()+".json", string(cap.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for capability %s: %w", cap.Name(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[cap.Name()] = registeredCapability{cap: cap, schema: schema}
	return nil
}

// Unregister removes a capability by name.
func (r *CapabilityRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caps, name)
}

// Get returns a capability by name.
func (r *CapabilityRegistry) Get(name string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.caps[name]
	return reg.cap, ok
}

// Specs returns the caller-visible contracts of all registered capabilities,
// sorted by name for a stable prompt ordering.
func (r *CapabilityRegistry) Specs() []CapabilitySpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]CapabilitySpec, 0, len(r.caps))
	for _, reg := range r.caps {
		specs = append(specs, CapabilitySpec{
			Name:        reg.cap.Name(),
			Description: reg.cap.Description(),
			Schema:      reg.cap.Schema(),
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute runs a capability by name with the given JSON arguments.
// Lookup failures and schema violations become error-valued results rather
// than Go errors, so the model sees them and may self-correct.
func (r *CapabilityRegistry) Execute(ctx context.Context, name string, args json.RawMessage) (*CapabilityResult, error) {
	if len(name) > MaxCapabilityNameLength {
		return &CapabilityResult{
			Content: fmt.Sprintf("capability name exceeds maximum length of %d characters", MaxCapabilityNameLength),
			IsError: true,
		}, nil
	}
	if len(args) > MaxCapabilityArgsSize {
		return &CapabilityResult{
			Content: fmt.Sprintf("capability arguments exceed maximum size of %d bytes", MaxCapabilityArgsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	reg, ok := r.caps[name]
	r.mu.RUnlock()
	if !ok {
		return &CapabilityResult{
			Content: "capability not found: " + name,
			IsError: true,
		}, nil
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var decoded any
	if err := json.Unmarshal(args, &decoded); err == nil {
		if err := reg.schema.Validate(decoded); err != nil {
			return &CapabilityResult{
				Content: fmt.Sprintf("invalid arguments for %s: %v", name, err),
				IsError: true,
			}, nil
		}
	}

	return reg.cap.Execute(ctx, args)
}
