package model

// StripeSessionOutcome maps a checkout session's status pair.
func StripeSessionOutcome(status, paymentStatus string) Outcome {
	switch normalizeStatus(paymentStatus) {
	case "paid", "no_payment_required":
		return OutcomeSucceeded
	}
	if normalizeStatus(status) == "expired" {
		return OutcomeFailed
	}
	return OutcomePending
}
