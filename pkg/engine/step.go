package engine

import "fmt"

// Step identifies one step of the purchase flow.
type Step string

const (
	// StepApplicationSubmit submits the insurance application.
	StepApplicationSubmit Step = "application_submit"

	// StepApplyCoupon applies a discount coupon to the application.
	StepApplyCoupon Step = "apply_coupon"

	// StepPaymentCheckout performs the payment checkout.
	StepPaymentCheckout Step = "payment_checkout"

	// StepAdminPolicyList lists issued policies through the admin portal.
	StepAdminPolicyList Step = "admin_policy_list"

	// StepAdminPolicyDetails fetches policy details through the admin portal.
	StepAdminPolicyDetails Step = "admin_policy_details"

	// StepCustomerPolicyList lists policies through the customer portal.
	StepCustomerPolicyList Step = "customer_policy_list"

	// StepCustomerPolicyDetails fetches policy details through the customer portal.
	StepCustomerPolicyDetails Step = "customer_policy_details"
)

// stepOrder is the fixed invocation order of the purchase flow.
var stepOrder = []Step{
	StepApplicationSubmit,
	StepApplyCoupon,
	StepPaymentCheckout,
	StepAdminPolicyList,
	StepAdminPolicyDetails,
	StepCustomerPolicyList,
	StepCustomerPolicyDetails,
}

// StepOrder returns the fixed invocation order of the purchase flow.
func StepOrder() []Step {
	order := make([]Step, len(stepOrder))
	copy(order, stepOrder)
	return order
}

// StepCount is the number of steps in the purchase flow.
const StepCount = 7

// TokenKind identifies which portal token a step requires.
type TokenKind string

const (
	// TokenNone means the step needs no portal token.
	TokenNone TokenKind = ""

	// TokenAdmin means the step needs the admin portal token.
	TokenAdmin TokenKind = "admin"

	// TokenCustomer means the step needs the customer portal token.
	TokenCustomer TokenKind = "customer"
)

// RequiredToken returns the portal token kind the step needs, if any.
func (s Step) RequiredToken() TokenKind {
	switch s {
	case StepAdminPolicyList, StepAdminPolicyDetails:
		return TokenAdmin
	case StepCustomerPolicyList, StepCustomerPolicyDetails:
		return TokenCustomer
	default:
		return TokenNone
	}
}

// Validate checks if the step is valid.
func (s Step) Validate() error {
	switch s {
	case StepApplicationSubmit, StepApplyCoupon, StepPaymentCheckout,
		StepAdminPolicyList, StepAdminPolicyDetails,
		StepCustomerPolicyList, StepCustomerPolicyDetails:
		return nil
	default:
		return fmt.Errorf("invalid step: %s", s)
	}
}
