package model

type BraintreeStatus string

const (
	BraintreeAuthorized             BraintreeStatus = "authorized"
	BraintreeSubmittedForSettlement BraintreeStatus = "submitted_for_settlement"
	BraintreeSettling               BraintreeStatus = "settling"
	BraintreeSettled                BraintreeStatus = "settled"
	BraintreeProcessorDeclined      BraintreeStatus = "processor_declined"
	BraintreeGatewayRejected        BraintreeStatus = "gateway_rejected"
	BraintreeFailed                 BraintreeStatus = "failed"
	BraintreeVoided                 BraintreeStatus = "voided"
	BraintreeSettlementDeclined     BraintreeStatus = "settlement_declined"
)

func (s BraintreeStatus) Outcome() Outcome {
	switch BraintreeStatus(normalizeStatus(string(s))) {
	case BraintreeAuthorized, BraintreeSubmittedForSettlement, BraintreeSettling, BraintreeSettled:
		return OutcomeSucceeded
	case BraintreeProcessorDeclined, BraintreeGatewayRejected, BraintreeFailed, BraintreeVoided, BraintreeSettlementDeclined:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}
