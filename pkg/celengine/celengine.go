// Package celengine compiles and evaluates the boolean CEL rules campaigns use
// to auto-accept applications.
package celengine

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var Module = fx.Module("celengine", fx.Provide(New))

// Variables exposed to every rule.
const (
	VarApplication  = "application"
	VarProposedRate = "proposed_rate"
	VarCampaign     = "campaign"
)

// Engine caches compiled programs by expression text.
type Engine struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
	group    singleflight.Group
}

func New() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarApplication, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarProposedRate, cel.DoubleType),
		cel.Variable(VarCampaign, cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("build cel env: %w", err)
	}

	return &Engine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate compiles expr and checks it yields a bool.
func (e *Engine) Validate(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate runs expr against attrs. Missing variables default to empty values.
func (e *Engine) Evaluate(expr string, attrs map[string]any) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	vars := map[string]any{
		VarApplication:  map[string]any{},
		VarProposedRate: float64(0),
		VarCampaign:     map[string]any{},
	}
	for k, v := range attrs {
		vars[k] = v
	}

	out, _, err := prg.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate rule: %w", err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expected bool from expression, got %T (%v)", out.Value(), out.Value())
	}
	return b, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	v, err, _ := e.group.Do(expr, func() (any, error) {
		ast, issues := e.env.Compile(expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile rule: %w", issues.Err())
		}
		if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("rule must return bool, got %s", out)
		}
		prg, err := e.env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("build program: %w", err)
		}

		e.mu.Lock()
		e.programs[expr] = prg
		e.mu.Unlock()
		return prg, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(cel.Program), nil
}

// StructToMap flattens s through JSON so it can be bound as a CEL map.
func StructToMap(s any) map[string]any {
	if s == nil {
		return map[string]any{}
	}

	b, err := json.Marshal(s)
	if err != nil {
		zap.L().Debug("failed StructToMap Marshal", zap.Error(err))
		return map[string]any{}
	}

	var result map[string]any
	if err := json.Unmarshal(b, &result); err != nil {
		zap.L().Debug("failed StructToMap Unmarshal", zap.Error(err))
		return map[string]any{}
	}
	return result
}
