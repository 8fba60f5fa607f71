package mockapi

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/policyprobe/policyprobe/pkg/engine"
	"github.com/policyprobe/policyprobe/pkg/telemetry"
)

// Invoker simulates the seven portal endpoints. It implements
// engine.StepInvoker and honors an injectable failure policy, so combinations
// can be forced to fail at a chosen step without touching the runner.
type Invoker struct {
	policy  engine.FailurePolicy
	logger  *telemetry.Logger
	latency time.Duration
}

var _ engine.StepInvoker = (*Invoker)(nil)

// Option configures an Invoker.
type Option func(*Invoker)

// WithFailurePolicy replaces the failure policy. Nil disables overrides.
func WithFailurePolicy(policy engine.FailurePolicy) Option {
	return func(inv *Invoker) {
		inv.policy = policy
	}
}

// WithLatency adds a fixed per-call latency to simulate network time.
func WithLatency(d time.Duration) Option {
	return func(inv *Invoker) {
		inv.latency = d
	}
}

// NewInvoker creates a simulated step invoker. The default failure policy
// fails payment_checkout for the designated failing combination.
func NewInvoker(tel *telemetry.Telemetry, opts ...Option) *Invoker {
	inv := &Invoker{
		policy: engine.DefaultFailurePolicy(),
		logger: tel.Logger.NewComponentLogger("mock-api"),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Endpoint returns the logical endpoint path for a step.
func Endpoint(step engine.Step) string {
	return "/api/v1/" + strings.ReplaceAll(string(step), "_", "-")
}

// Invoke simulates one endpoint call. Identifiers flow through the request's
// prior responses the way they would through a real purchase: the coupon and
// checkout calls reference the submitted application, the details calls
// reference a policy from the matching list call.
func (inv *Invoker) Invoke(ctx context.Context, req engine.StepRequest) (engine.StepResult, error) {
	start := time.Now()
	endpoint := Endpoint(req.Step)

	if inv.latency > 0 {
		select {
		case <-time.After(inv.latency):
		case <-ctx.Done():
			return engine.StepResult{}, ctx.Err()
		}
	}

	logger := inv.logger.WithExecutionID(req.ExecutionID).
		WithStep(string(req.Step), req.EnvironmentName)

	if inv.policy != nil {
		if override := inv.policy(req.Combination, req.Step, req.Environment); override != nil {
			logger.WithField("status_code", override.StatusCode).Debug("failure policy triggered")
			return engine.StepResult{
				Success:       false,
				StatusCode:    override.StatusCode,
				ErrorCode:     override.Code,
				ErrorMessage:  override.Message,
				ExecutionTime: time.Since(start),
				Endpoint:      endpoint,
			}, nil
		}
	}

	payload := inv.payloadFor(req)
	logger.WithField("payload_fields", len(payload)).Debug("calling endpoint")

	data, err := inv.responseFor(req)
	if err != nil {
		return engine.StepResult{
			Success:       false,
			StatusCode:    400,
			ErrorCode:     engine.ErrCodeValidation,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
			Endpoint:      endpoint,
		}, nil
	}

	return engine.StepResult{
		Success:       true,
		StatusCode:    200,
		Data:          data,
		ExecutionTime: time.Since(start),
		Endpoint:      endpoint,
	}, nil
}

func (inv *Invoker) payloadFor(req engine.StepRequest) map[string]interface{} {
	switch req.Step {
	case engine.StepApplicationSubmit:
		return applicationSubmitPayload(req.Combination)
	case engine.StepApplyCoupon:
		return applyCouponPayload(priorString(req, engine.StepApplicationSubmit, "application_id"))
	case engine.StepPaymentCheckout:
		return paymentCheckoutPayload(priorString(req, engine.StepApplicationSubmit, "application_id"))
	case engine.StepAdminPolicyList, engine.StepCustomerPolicyList:
		return policyListPayload()
	case engine.StepAdminPolicyDetails:
		return policyDetailsPayload(priorPolicyID(req, engine.StepAdminPolicyList))
	case engine.StepCustomerPolicyDetails:
		return policyDetailsPayload(priorPolicyID(req, engine.StepCustomerPolicyList))
	}
	return nil
}

func (inv *Invoker) responseFor(req engine.StepRequest) (map[string]interface{}, error) {
	combo := req.Combination

	switch req.Step {
	case engine.StepApplicationSubmit:
		return applicationSubmitResponse(combo.Category, combo.ProductID, combo.PlanID), nil

	case engine.StepApplyCoupon:
		applicationID := priorString(req, engine.StepApplicationSubmit, "application_id")
		if applicationID == "" {
			return nil, fmt.Errorf("no application to apply coupon to")
		}
		return applyCouponResponse(applicationID, defaultCouponCode), nil

	case engine.StepPaymentCheckout:
		applicationID := priorString(req, engine.StepApplicationSubmit, "application_id")
		if applicationID == "" {
			return nil, fmt.Errorf("no application to check out")
		}
		return paymentCheckoutResponse(applicationID, defaultPaymentMethod), nil

	case engine.StepAdminPolicyList:
		return adminPolicyListResponse(combo.Category, combo.ProductID, combo.PlanID), nil

	case engine.StepAdminPolicyDetails:
		policyID := priorPolicyID(req, engine.StepAdminPolicyList)
		if policyID == "" {
			return nil, fmt.Errorf("no policy to fetch details for")
		}
		return adminPolicyDetailsResponse(policyID, combo.Category, combo.ProductID, combo.PlanID), nil

	case engine.StepCustomerPolicyList:
		return customerPolicyListResponse(combo.Category, combo.ProductID, combo.PlanID), nil

	case engine.StepCustomerPolicyDetails:
		policyID := priorPolicyID(req, engine.StepCustomerPolicyList)
		if policyID == "" {
			return nil, fmt.Errorf("no policy to fetch details for")
		}
		return customerPolicyDetailsResponse(policyID, combo.Category, combo.ProductID, combo.PlanID), nil
	}

	return nil, fmt.Errorf("unknown step: %s", req.Step)
}

func priorString(req engine.StepRequest, step engine.Step, field string) string {
	response, ok := req.PriorResponses[step]
	if !ok {
		return ""
	}
	value, _ := response[field].(string)
	return value
}

func priorPolicyID(req engine.StepRequest, listStep engine.Step) string {
	response, ok := req.PriorResponses[listStep]
	if !ok {
		return ""
	}
	policies, _ := response["policies"].([]interface{})
	if len(policies) == 0 {
		return ""
	}
	first, _ := policies[0].(map[string]interface{})
	id, _ := first["policy_id"].(string)
	return id
}
