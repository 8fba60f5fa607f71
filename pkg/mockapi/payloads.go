package mockapi

import "github.com/policyprobe/policyprobe/pkg/catalog"

// Request payload generators. The simulated endpoints do not parse these, but
// they are built and logged per call so the wire traffic of a real
// integration can be dropped in without changing the invoker.

const (
	defaultCouponCode    = "SAVE10"
	defaultPaymentMethod = "CREDIT_CARD"
)

func applicationSubmitPayload(combo catalog.Combination) map[string]interface{} {
	return map[string]interface{}{
		"category":   combo.Category,
		"product_id": combo.ProductID,
		"plan_id":    combo.PlanID,
		"customer_data": map[string]interface{}{
			"customer_name":  "John Doe",
			"customer_email": "john.doe@example.com",
			"customer_phone": "+60123456789",
			"date_of_birth":  "1990-01-01",
			"address": map[string]interface{}{
				"street":      "123 Main Street",
				"city":        "Kuala Lumpur",
				"state":       "Selangor",
				"postal_code": "50000",
				"country":     "Malaysia",
			},
		},
		"policy_start_date": "2026-02-01",
		"policy_end_date":   "2027-01-31",
		"sum_insured":       defaultSumInsured,
	}
}

func applyCouponPayload(applicationID string) map[string]interface{} {
	return map[string]interface{}{
		"application_id": applicationID,
		"coupon_code":    defaultCouponCode,
	}
}

func paymentCheckoutPayload(applicationID string) map[string]interface{} {
	return map[string]interface{}{
		"application_id": applicationID,
		"payment_method": defaultPaymentMethod,
		"amount":         defaultPremium,
		"currency":       currencyMYR,
	}
}

func policyListPayload() map[string]interface{} {
	return map[string]interface{}{
		"page":  1,
		"limit": 50,
	}
}

func policyDetailsPayload(policyID string) map[string]interface{} {
	return map[string]interface{}{
		"policy_id": policyID,
	}
}
