package model

import "encoding/json"

type QuoteRequest struct {
	InputMint   string `query:"inputMint" validate:"required"`
	OutputMint  string `query:"outputMint" validate:"required"`
	Amount      string `query:"amount" validate:"required,numeric"`
	SlippageBps int    `query:"slippageBps" validate:"gte=0,lte=10000"`
}

// Quote is the subset of the aggregator quote the dashboard renders; the rest is kept raw.
type Quote struct {
	InputMint            string          `json:"inputMint"`
	InAmount             string          `json:"inAmount"`
	OutputMint           string          `json:"outputMint"`
	OutAmount            string          `json:"outAmount"`
	OtherAmountThreshold string          `json:"otherAmountThreshold"`
	SwapMode             string          `json:"swapMode"`
	SlippageBps          int             `json:"slippageBps"`
	PriceImpactPct       string          `json:"priceImpactPct"`
	RoutePlan            json.RawMessage `json:"routePlan,omitempty"`
	ContextSlot          uint64          `json:"contextSlot,omitempty"`
	TimeTaken            float64         `json:"timeTaken,omitempty"`
}
