// Package policy decides which events the bridge forwards, using an OPA Rego module.
//
// The module must declare package scout.bridge and may define a boolean rule
// forward. Input is {"category", "location_id", "event"}; event is the event document.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

const (
	policyPackage = "data.scout.bridge"
	decisionQuery = policyPackage + ".forward"
)

// DefaultPolicy forwards every event.
const DefaultPolicy = `package scout.bridge

default forward := true
`

// ErrNoPolicyPackage is returned for modules that do not declare package scout.bridge.
var ErrNoPolicyPackage = errors.New("policy: module must declare package scout.bridge")

// Filter evaluates the forward decision for records.
type Filter struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// NewFilter compiles module and prepares the forward query.
func NewFilter(ctx context.Context, module string, logger *slog.Logger) (*Filter, error) {
	compiler, err := ast.CompileModules(map[string]string{"bridge.rego": module})
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	found := false
	for _, m := range compiler.Modules {
		if m.Package.Path.String() == policyPackage {
			found = true
			break
		}
	}
	if !found {
		return nil, ErrNoPolicyPackage
	}
	query, err := rego.New(
		rego.Query(decisionQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare: %w", err)
	}
	return &Filter{query: query, logger: logging.OrDefault(logger)}, nil
}

// DefaultFilter returns a Filter running DefaultPolicy.
func DefaultFilter(ctx context.Context, logger *slog.Logger) (*Filter, error) {
	return NewFilter(ctx, DefaultPolicy, logger)
}

// LoadFilter reads a Rego module from path. An empty path selects DefaultPolicy.
func LoadFilter(ctx context.Context, path string, logger *slog.Logger) (*Filter, error) {
	if path == "" {
		return DefaultFilter(ctx, logger)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", path, err)
	}
	return NewFilter(ctx, string(raw), logger)
}

// Allow reports whether r should be forwarded. An undefined decision forwards.
// Evaluation failures are logged and forward as well; the error is returned for
// callers that want to count them.
func (f *Filter) Allow(ctx context.Context, r sink.Record) (bool, error) {
	input, err := buildInput(r)
	if err == nil {
		var allowed bool
		allowed, err = f.eval(ctx, input)
		if err == nil {
			return allowed, nil
		}
	}
	f.logger.Warn("policy: evaluation failed, forwarding", "record_id", r.ID, "category", r.Category, "error", err)
	return true, err
}

// HealthCheck evaluates the policy against a sample record.
func (f *Filter) HealthCheck(ctx context.Context) error {
	input, err := buildInput(sink.Record{Category: "hub", LocationID: "health", Payload: json.RawMessage(`{}`)})
	if err != nil {
		return err
	}
	_, err = f.eval(ctx, input)
	return err
}

func (f *Filter) eval(ctx context.Context, input map[string]interface{}) (bool, error) {
	rs, err := f.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return true, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("policy: forward must be boolean, got %T", rs[0].Expressions[0].Value)
	}
	return v, nil
}

func buildInput(r sink.Record) (map[string]interface{}, error) {
	var event interface{}
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &event); err != nil {
			return nil, fmt.Errorf("policy: decode event: %w", err)
		}
	}
	return map[string]interface{}{
		"category":    string(r.Category),
		"location_id": r.LocationID,
		"event":       event,
	}, nil
}
