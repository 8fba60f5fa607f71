package mockapi

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Response body generators for the seven purchase-flow steps. Shapes mirror
// the portal endpoints closely enough for field-level comparison to be
// meaningful. Auth tokens are accepted by the invoker but never echoed into a
// response body, since bodies end up in the progress store.

const (
	defaultPremium    = 500.00
	discountedPremium = 450.00
	defaultSumInsured = 50000.00
	currencyMYR       = "MYR"
)

func hexID(prefix string, n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + hex[:n]
}

func policyNumber() string {
	return "POL" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func applicationSubmitResponse(category, productID, planID string) map[string]interface{} {
	return map[string]interface{}{
		"status":         "success",
		"application_id": hexID("app_", 12),
		"category":       category,
		"product_id":     productID,
		"plan_id":        planID,
		"premium":        defaultPremium,
		"currency":       currencyMYR,
		"next_step":      "apply_coupon",
		"message":        "Application submitted successfully",
	}
}

func applyCouponResponse(applicationID, couponCode string) map[string]interface{} {
	discount := 5
	if couponCode == defaultCouponCode {
		discount = 10
	}
	return map[string]interface{}{
		"status":           "success",
		"application_id":   applicationID,
		"coupon_code":      couponCode,
		"discount_percent": discount,
		"original_amount":  defaultPremium,
		"discount_amount":  defaultPremium - discountedPremium,
		"new_amount":       discountedPremium,
		"currency":         currencyMYR,
		"message":          fmt.Sprintf("Coupon applied successfully. You saved %d%%!", discount),
	}
}

func paymentCheckoutResponse(applicationID, paymentMethod string) map[string]interface{} {
	return map[string]interface{}{
		"status":          "success",
		"application_id":  applicationID,
		"payment_id":      hexID("pay_", 12),
		"transaction_ref": "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10]),
		"payment_method":  paymentMethod,
		"amount":          discountedPremium,
		"currency":        currencyMYR,
		"payment_status":  "completed",
		"policy_number":   policyNumber(),
		"message":         "Payment processed successfully",
	}
}

func adminPolicyListResponse(category, productID, planID string) map[string]interface{} {
	return map[string]interface{}{
		"status":         "success",
		"total_policies": 1,
		"page":           1,
		"limit":          50,
		"policies": []interface{}{
			map[string]interface{}{
				"policy_id":     hexID("policy_", 12),
				"policy_number": policyNumber(),
				"customer_name": "John Doe",
				"category":      category,
				"product_id":    productID,
				"plan_id":       planID,
				"premium":       discountedPremium,
				"policy_status": "active",
				"issue_date":    "2026-01-03",
			},
		},
	}
}

func adminPolicyDetailsResponse(policyID, category, productID, planID string) map[string]interface{} {
	return map[string]interface{}{
		"status":         "success",
		"policy_id":      policyID,
		"policy_number":  policyNumber(),
		"customer_name":  "John Doe",
		"customer_email": "john.doe@example.com",
		"category":       category,
		"product_id":     productID,
		"plan_id":        planID,
		"premium":        discountedPremium,
		"sum_insured":    defaultSumInsured,
		"currency":       currencyMYR,
		"policy_status":  "active",
		"coverage": map[string]interface{}{
			"vehicle_type":        "Car",
			"vehicle_make":        "Toyota",
			"vehicle_model":       "Camry",
			"vehicle_year":        "2022",
			"registration_number": "ABC1234",
		},
		"benefits": []interface{}{
			"Third Party Liability",
			"Own Damage",
			"Windscreen Coverage",
			"Legal Liability to Passengers",
		},
		"issue_date": "2026-01-03",
		"start_date": "2026-02-01",
		"end_date":   "2027-01-31",
	}
}

func customerPolicyListResponse(category, productID, planID string) map[string]interface{} {
	return map[string]interface{}{
		"status":         "success",
		"total_policies": 1,
		"page":           1,
		"limit":          50,
		"policies": []interface{}{
			map[string]interface{}{
				"policy_id":     hexID("policy_", 12),
				"policy_number": policyNumber(),
				"category":      category,
				"product_id":    productID,
				"plan_id":       planID,
				"premium":       discountedPremium,
				"policy_status": "active",
				"renewal_date":  "2027-01-31",
			},
		},
	}
}

func customerPolicyDetailsResponse(policyID, category, productID, planID string) map[string]interface{} {
	return map[string]interface{}{
		"status":        "success",
		"policy_id":     policyID,
		"policy_number": policyNumber(),
		"category":      category,
		"product_id":    productID,
		"plan_id":       planID,
		"premium":       discountedPremium,
		"sum_insured":   defaultSumInsured,
		"currency":      currencyMYR,
		"policy_status": "active",
		"start_date":    "2026-02-01",
		"end_date":      "2027-01-31",
		"benefits": []interface{}{
			"Third Party Liability",
			"Own Damage",
			"Windscreen Coverage",
			"Legal Liability to Passengers",
		},
		"exclusions": []interface{}{
			"Driving under influence",
			"Unauthorized driver",
			"Racing competitions",
		},
		"contact_support": map[string]interface{}{
			"phone": "+601800123456",
			"email": "support@insurance.com",
			"hours": "24/7",
		},
	}
}
