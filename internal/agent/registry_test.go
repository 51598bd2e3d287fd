package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestRegistryRegisterAndSpecs(t *testing.T) {
	registry := newTestRegistry(t,
		&stubCapability{name: "zeta", execute: okExecute},
		&stubCapability{name: "alpha", execute: okExecute},
	)

	specs := registry.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "alpha" || specs[1].Name != "zeta" {
		t.Errorf("specs not sorted by name: %s, %s", specs[0].Name, specs[1].Name)
	}
}

func TestRegistryRejectsInvalidSchema(t *testing.T) {
	registry := NewCapabilityRegistry()
	err := registry.Register(&stubCapability{
		name:    "broken",
		schema:  `{"type": 42}`,
		execute: okExecute,
	})
	if err == nil {
		t.Fatal("expected registration to fail for an invalid schema")
	}
}

func TestRegistryExecuteValidatesArgs(t *testing.T) {
	registry := newTestRegistry(t, &stubCapability{
		name:    "quote",
		schema:  `{"type":"object","properties":{"ticker":{"type":"string"}},"required":["ticker"]}`,
		execute: okExecute,
	})

	result, err := registry.Execute(context.Background(), "quote", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("schema violation should not be a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("missing required argument should produce an error result")
	}
	if !strings.Contains(result.Content, "quote") {
		t.Errorf("error result should name the capability: %q", result.Content)
	}

	result, err = registry.Execute(context.Background(), "quote", json.RawMessage(`{"ticker":"AAPL"}`))
	if err != nil || result.IsError {
		t.Fatalf("valid args rejected: err=%v result=%+v", err, result)
	}
}

func TestRegistryExecuteNotFound(t *testing.T) {
	registry := NewCapabilityRegistry()
	result, err := registry.Execute(context.Background(), "missing", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("lookup failure should not be a Go error: %v", err)
	}
	if !result.IsError || !strings.Contains(result.Content, "missing") {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRegistryExecuteOversizeName(t *testing.T) {
	registry := NewCapabilityRegistry()
	name := strings.Repeat("n", MaxCapabilityNameLength+1)
	result, err := registry.Execute(context.Background(), name, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("oversize name should not be a Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("oversize name should produce an error result")
	}
}

func okExecute(context.Context, json.RawMessage) (*CapabilityResult, error) {
	return &CapabilityResult{Content: "ok"}, nil
}
