package client

import (
	"context"
	"fmt"
	"strings"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/price"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const tokenSymbol = "QTC"

type tokenClientImpl struct {
	ledger   SolanaClient
	decimals uint8
}

// NewTokenClient pays orders in QTC on the ledger, either signed by the server's key
// or by verifying a transaction a browser wallet already sent.
func NewTokenClient(ledger SolanaClient) GatewayClient {
	return &tokenClientImpl{ledger: ledger, decimals: ledger.ContractInfo().TokenDecimals}
}

func (c *tokenClientImpl) Provider() model.Provider { return model.ProviderToken }

func (c *tokenClientImpl) CreateOrder(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	if in.TokenAmount <= 0 {
		return nil, apperr.Validation("token amount must be positive")
	}
	if in.Metadata.TransactionSignature != "" {
		return c.verifyWalletPayment(ctx, in)
	}

	signer, ok := c.ledger.Signer()
	if !ok {
		return nil, apperr.Wrap(apperr.CodeConfiguration, ErrSignerNotConfigured, "token payments need a signer key or a wallet transaction signature")
	}
	if in.Metadata.PayerWallet != "" && in.Metadata.PayerWallet != signer.String() {
		return nil, apperr.Validation("payer wallet must sign its own transaction; build one via /api/token/transaction")
	}

	// optimistic check; the ledger still has the final word
	balance, err := c.ledger.TokenBalance(ctx, signer)
	if err != nil {
		return nil, fmt.Errorf("check payer balance: %w", err)
	}
	required := decimal.NewFromInt(in.TokenAmount)
	if balance.LessThan(required) {
		return nil, apperr.Validation("insufficient QTC balance").WithDetails(map[string]any{
			"balance":  balance.String(),
			"required": required.String(),
		})
	}

	tx, err := c.ledger.BuildPaymentTransaction(ctx, signer, in.TokenAmount)
	if err != nil {
		return nil, err
	}
	sig, err := c.ledger.SignAndSend(ctx, tx)
	if err != nil {
		return nil, err
	}

	status, err := c.ledger.WaitForConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	return c.toOrder(sig.String(), status, in), nil
}

func (c *tokenClientImpl) verifyWalletPayment(ctx context.Context, in *model.OrderRequest) (*model.Order, error) {
	sig, err := solana.SignatureFromBase58(in.Metadata.TransactionSignature)
	if err != nil {
		return nil, apperr.Validation("invalid transaction signature")
	}

	status, err := c.ledger.WaitForConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	if status.Outcome() == model.OutcomeSucceeded {
		if err := c.checkPaysMerchant(ctx, sig, in.TokenAmount); err != nil {
			return nil, err
		}
	}
	return c.toOrder(sig.String(), status, in), nil
}

func (c *tokenClientImpl) checkPaysMerchant(ctx context.Context, sig solana.Signature, tokens int64) error {
	transfers, err := c.ledger.FetchTransfers(ctx, sig)
	if err != nil {
		return err
	}
	merchant := c.ledger.ContractInfo().TokenAccount
	required := price.ToBaseUnits(tokens, c.decimals)

	var paid uint64
	for _, t := range transfers {
		if t.Destination.String() == merchant {
			paid += t.Amount
		}
	}
	if paid < required {
		return apperr.Validation("transaction does not pay the order amount to the merchant").WithDetails(map[string]any{
			"paid":     price.FromBaseUnits(paid, c.decimals).String(),
			"required": price.FromBaseUnits(required, c.decimals).String(),
		})
	}
	return nil
}

func (c *tokenClientImpl) GetStatus(ctx context.Context, signature string) (*model.Order, error) {
	if err := requireOrderID(c.Provider(), signature); err != nil {
		return nil, err
	}
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, apperr.Validation("invalid transaction signature")
	}
	status, err := c.ledger.SignatureStatus(ctx, sig)
	if err != nil {
		return nil, err
	}
	return c.toOrder(signature, status, nil), nil
}

func (c *tokenClientImpl) toOrder(sig string, status model.TokenTransferStatus, in *model.OrderRequest) *model.Order {
	completion := model.CompletionImmediate
	if !status.Outcome().Terminal() {
		completion = model.CompletionPoll
	}
	order := &model.Order{
		OrderID:     sig,
		Provider:    model.ProviderToken,
		Status:      string(status),
		Outcome:     status.Outcome(),
		Completion:  completion,
		PayCurrency: tokenSymbol,
		PayAddress:  c.ledger.ContractInfo().TokenAccount,
		RedirectURL: c.ledger.ExplorerURL(sig),
	}
	if in != nil {
		order.Reference = in.Reference
		order.PriceAmount = in.Amount
		order.PriceCurrency = strings.ToUpper(in.Currency)
		order.TokenAmount = in.TokenAmount
		order.PayAmount = decimal.NewNullDecimal(decimal.NewFromInt(in.TokenAmount))
	}
	return order
}
