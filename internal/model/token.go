package model

import "github.com/shopspring/decimal"

// TokenTransferStatus follows the ledger's commitment levels.
type TokenTransferStatus string

const (
	TokenSubmitted TokenTransferStatus = "submitted"
	TokenProcessed TokenTransferStatus = "processed"
	TokenConfirmed TokenTransferStatus = "confirmed"
	TokenFinalized TokenTransferStatus = "finalized"
	TokenFailed    TokenTransferStatus = "failed"
)

func (s TokenTransferStatus) Outcome() Outcome {
	switch s {
	case TokenConfirmed, TokenFinalized:
		return OutcomeSucceeded
	case TokenFailed:
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

type ContractInfo struct {
	ProgramID     string `json:"program_id,omitempty"`
	TokenMint     string `json:"token_mint"`
	TokenAccount  string `json:"token_account"`
	Merchant      string `json:"merchant_wallet"`
	Signer        string `json:"signer_wallet"`
	TokenDecimals uint8  `json:"token_decimals"`
	Network       string `json:"network"`
}

type WalletBalances struct {
	Wallet       string          `json:"wallet"`
	SOLBalance   decimal.Decimal `json:"sol_balance"`
	TokenBalance decimal.Decimal `json:"token_balance"`
}

type TransferResult struct {
	Signature              string          `json:"signature"`
	FromAddress            string          `json:"from_address"`
	ToAddress              string          `json:"to_address"`
	Amount                 int64           `json:"amount"`
	Status                 string          `json:"status"`
	ExplorerURL            string          `json:"explorer_url"`
	RecipientBalanceBefore decimal.Decimal `json:"recipient_balance_before"`
	RecipientBalanceAfter  decimal.Decimal `json:"recipient_balance_after"`
}

type TokenInfo struct {
	Contract         *ContractInfo   `json:"contract"`
	TotalSupply      decimal.Decimal `json:"total_supply"`
	MerchantBalance  decimal.Decimal `json:"merchant_balance"`
	SignerConfigured bool            `json:"signer_configured"`
}

type TokenAccountInfo struct {
	Wallet       string `json:"wallet"`
	TokenAccount string `json:"token_account"`
	Exists       bool   `json:"exists"`
}

// UnsignedTransaction is a base64 wire transaction for a browser wallet to sign and send.
type UnsignedTransaction struct {
	Transaction  string `json:"transaction"`
	Payer        string `json:"payer"`
	Amount       int64  `json:"amount"`
	TokenAccount string `json:"merchant_token_account"`
}

type SignatureInfo struct {
	Signature   string              `json:"signature"`
	Status      TokenTransferStatus `json:"status"`
	Outcome     Outcome             `json:"outcome"`
	ExplorerURL string              `json:"explorer_url"`
}

type AirdropResult struct {
	Wallet    string          `json:"wallet"`
	Amount    decimal.Decimal `json:"amount"`
	Signature string          `json:"signature"`
}
