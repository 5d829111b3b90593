package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// HighStakesEvaluator evaluates a profile's high-stakes predicates over one
// request. Programs are compiled once and cached; evaluation is
// deterministic, cost-limited, and fail-closed: any compile or runtime error
// marks the request high-stakes.
type HighStakesEvaluator struct {
	env   *cel.Env
	rules []string

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// RequestFacts is the CEL input: a flat view of the request the predicates
// may inspect. Keys are stable; adding a key is backward compatible.
type RequestFacts struct {
	Question        string   `json:"question"`
	TopicTags       []string `json:"topic_tags"`
	Domains         []string `json:"domains"`
	ConfidenceRatio float64  `json:"confidence_ratio"`
	UserExpectsRepo bool     `json:"user_expects_repo"`
	StrictCertainty bool     `json:"strict_certainty"`
}

// NewHighStakesEvaluator compiles nothing up front; rules compile lazily on
// first evaluation and stay cached for the evaluator's lifetime.
func NewHighStakesEvaluator(rules []string) (*HighStakesEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("request", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	return &HighStakesEvaluator{
		env:   env,
		rules: rules,
		cache: make(map[string]cel.Program),
	}, nil
}

// Evaluate reports whether any rule classifies the request as high-stakes.
// Errors are returned alongside true so callers can log the broken rule
// while still failing closed.
func (e *HighStakesEvaluator) Evaluate(facts RequestFacts) (bool, error) {
	if len(e.rules) == 0 {
		return false, nil
	}
	input := map[string]any{
		"request": map[string]any{
			"question":          facts.Question,
			"topic_tags":        facts.TopicTags,
			"domains":           facts.Domains,
			"confidence_ratio":  facts.ConfidenceRatio,
			"user_expects_repo": facts.UserExpectsRepo,
			"strict_certainty":  facts.StrictCertainty,
		},
	}
	for _, rule := range e.rules {
		hit, err := e.evaluateExpr(rule, input)
		if err != nil {
			return true, fmt.Errorf("policy: high-stakes rule %q: %w", rule, err)
		}
		if hit {
			return true, nil
		}
	}
	return false, nil
}

func (e *HighStakesEvaluator) evaluateExpr(expr string, input map[string]any) (bool, error) {
	e.mu.RLock()
	prg, hit := e.cache[expr]
	e.mu.RUnlock()

	if !hit {
		e.mu.Lock()
		if prg, hit = e.cache[expr]; !hit {
			ast, issues := e.env.Compile(expr)
			if issues != nil && issues.Err() != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("compile: %w", issues.Err())
			}
			p, err := e.env.Program(ast,
				cel.InterruptCheckFrequency(100),
				cel.CostLimit(10000),
			)
			if err != nil {
				e.mu.Unlock()
				return false, fmt.Errorf("program: %w", err)
			}
			e.cache[expr] = p
			prg = p
		}
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(input)
	if err != nil {
		return false, fmt.Errorf("eval: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("result not bool")
	}
	return val, nil
}
