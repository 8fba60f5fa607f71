package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/policyprobe/policyprobe/pkg/catalog"
)

// FailureOverride instructs the invoker to fail a step with a simulated error.
type FailureOverride struct {
	// StatusCode is the simulated HTTP status code.
	StatusCode int

	// Code is the machine-readable error code.
	Code string

	// Message is the human-readable error message.
	Message string
}

// FailurePolicy decides whether an invocation must fail. A nil return means
// no override; the step runs normally. The runner never special-cases any
// combination; failure simulation lives entirely behind this hook.
type FailurePolicy func(combo catalog.Combination, step Step, env EnvironmentRole) *FailureOverride

// DefaultFailurePolicy fails payment_checkout for MV4/TOKIO_MARINE/COMPREHENSIVE
// in both environments.
func DefaultFailurePolicy() FailurePolicy {
	return func(combo catalog.Combination, step Step, env EnvironmentRole) *FailureOverride {
		if step != StepPaymentCheckout {
			return nil
		}
		if combo.Category != "MV4" || combo.ProductID != "TOKIO_MARINE" || combo.PlanID != "COMPREHENSIVE" {
			return nil
		}
		return &FailureOverride{
			StatusCode: 500,
			Code:       ErrCodeSimulatedFail,
			Message:    "payment gateway rejected the transaction",
		}
	}
}

// NoFailures never overrides an invocation.
func NoFailures() FailurePolicy {
	return func(catalog.Combination, Step, EnvironmentRole) *FailureOverride {
		return nil
	}
}

// compiledRule pairs a failure rule with its compiled expression.
type compiledRule struct {
	rule    catalog.FailureRule
	program *vm.Program
}

// NewRulePolicy compiles config failure rules into a policy. Rule expressions
// see category, product_id, plan_id, step, and environment as strings and
// must evaluate to a boolean.
func NewRulePolicy(rules []catalog.FailureRule) (FailurePolicy, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		program, err := expr.Compile(rule.When,
			expr.Env(ruleEnv{}),
			expr.AsBool(),
		)
		if err != nil {
			return nil, NewConfigError(
				fmt.Sprintf("failure rule %d: invalid expression %q", i, rule.When), err,
			).WithCode(ErrCodeValidation)
		}
		compiled = append(compiled, compiledRule{rule: rule, program: program})
	}

	return func(combo catalog.Combination, step Step, env EnvironmentRole) *FailureOverride {
		input := ruleEnv{
			Category:    combo.Category,
			ProductID:   combo.ProductID,
			PlanID:      combo.PlanID,
			Step:        string(step),
			Environment: string(env),
		}
		for _, cr := range compiled {
			out, err := expr.Run(cr.program, input)
			if err != nil {
				continue
			}
			matched, ok := out.(bool)
			if !ok || !matched {
				continue
			}

			override := &FailureOverride{
				StatusCode: cr.rule.StatusCode,
				Code:       ErrCodeSimulatedFail,
				Message:    cr.rule.Message,
			}
			if override.StatusCode == 0 {
				override.StatusCode = 500
			}
			if override.Message == "" {
				override.Message = fmt.Sprintf("simulated failure for %s on %s", combo, step)
			}
			return override
		}
		return nil
	}, nil
}

// ruleEnv is the expression environment for failure rules.
type ruleEnv struct {
	Category    string `expr:"category"`
	ProductID   string `expr:"product_id"`
	PlanID      string `expr:"plan_id"`
	Step        string `expr:"step"`
	Environment string `expr:"environment"`
}

// ChainPolicies returns a policy that applies the first matching override.
func ChainPolicies(policies ...FailurePolicy) FailurePolicy {
	return func(combo catalog.Combination, step Step, env EnvironmentRole) *FailureOverride {
		for _, p := range policies {
			if p == nil {
				continue
			}
			if override := p(combo, step, env); override != nil {
				return override
			}
		}
		return nil
	}
}
