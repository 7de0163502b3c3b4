package service

import (
	"context"
	"fmt"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// TokenService backs the token dashboard: raw ledger reads and server-signed transfers.
type TokenService interface {
	Info(ctx context.Context) (*model.TokenInfo, error)
	Balances(ctx context.Context, wallet string) (*model.WalletBalances, error)
	TokenAccount(ctx context.Context, wallet string) (*model.TokenAccountInfo, error)
	Transfer(ctx context.Context, recipient string, amount int64) (*model.TransferResult, error)
	BuildPaymentTransaction(ctx context.Context, payer string, amount int64) (*model.UnsignedTransaction, error)
	Confirm(ctx context.Context, signature string) (*model.SignatureInfo, error)
	Airdrop(ctx context.Context, wallet string, sol decimal.Decimal) (*model.AirdropResult, error)
}

type tokenServiceImpl struct {
	ledger client.SolanaClient
	log    *logger.Logger
}

func NewTokenService(ledger client.SolanaClient, log *logger.Logger) TokenService {
	if log == nil {
		log = logger.Nop()
	}
	return &tokenServiceImpl{ledger: ledger, log: log}
}

func parseWallet(field, value string) (solana.PublicKey, error) {
	if value == "" {
		return solana.PublicKey{}, apperr.Validation(field + " is required")
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, apperr.Validation(fmt.Sprintf("invalid %s: %s", field, value))
	}
	return key, nil
}

func (s *tokenServiceImpl) Info(ctx context.Context) (*model.TokenInfo, error) {
	supply, err := s.ledger.TokenSupply(ctx)
	if err != nil {
		return nil, fmt.Errorf("token supply: %w", err)
	}
	merchant, err := s.ledger.MerchantBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("merchant balance: %w", err)
	}
	_, hasSigner := s.ledger.Signer()
	return &model.TokenInfo{
		Contract:         s.ledger.ContractInfo(),
		TotalSupply:      supply,
		MerchantBalance:  merchant,
		SignerConfigured: hasSigner,
	}, nil
}

func (s *tokenServiceImpl) Balances(ctx context.Context, wallet string) (*model.WalletBalances, error) {
	key, err := parseWallet("wallet", wallet)
	if err != nil {
		return nil, err
	}
	sol, err := s.ledger.SOLBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("sol balance: %w", err)
	}
	tokens, err := s.ledger.TokenBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("token balance: %w", err)
	}
	return &model.WalletBalances{Wallet: key.String(), SOLBalance: sol, TokenBalance: tokens}, nil
}

func (s *tokenServiceImpl) TokenAccount(ctx context.Context, wallet string) (*model.TokenAccountInfo, error) {
	key, err := parseWallet("wallet", wallet)
	if err != nil {
		return nil, err
	}
	ata, exists, err := s.ledger.TokenAccountExists(ctx, key)
	if err != nil {
		return nil, err
	}
	return &model.TokenAccountInfo{Wallet: key.String(), TokenAccount: ata.String(), Exists: exists}, nil
}

// Transfer sends tokens from the signer and reports the recipient balance around it.
func (s *tokenServiceImpl) Transfer(ctx context.Context, recipient string, amount int64) (*model.TransferResult, error) {
	to, err := parseWallet("recipient", recipient)
	if err != nil {
		return nil, err
	}
	from, ok := s.ledger.Signer()
	if !ok {
		return nil, apperr.Wrap(apperr.CodeConfiguration, client.ErrSignerNotConfigured, "server-signed transfers are disabled")
	}
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	before, err := s.ledger.TokenBalance(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("recipient balance: %w", err)
	}
	tx, err := s.ledger.BuildTransferTransaction(ctx, to, amount)
	if err != nil {
		return nil, err
	}
	sig, err := s.ledger.SignAndSend(ctx, tx)
	if err != nil {
		return nil, err
	}

	ctx = s.log.WithFields(ctx, map[string]any{"signature": sig.String(), "recipient": to.String()})
	status, err := s.ledger.WaitForConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	after, err := s.ledger.TokenBalance(ctx, to)
	if err != nil {
		s.log.Error(ctx, "read recipient balance after transfer failed", err)
		after = before
	}
	s.log.Info(ctx, fmt.Sprintf("token transfer %s", status))

	return &model.TransferResult{
		Signature:              sig.String(),
		FromAddress:            from.String(),
		ToAddress:              to.String(),
		Amount:                 amount,
		Status:                 string(status),
		ExplorerURL:            s.ledger.ExplorerURL(sig.String()),
		RecipientBalanceBefore: before,
		RecipientBalanceAfter:  after,
	}, nil
}

func (s *tokenServiceImpl) BuildPaymentTransaction(ctx context.Context, payer string, amount int64) (*model.UnsignedTransaction, error) {
	key, err := parseWallet("payer", payer)
	if err != nil {
		return nil, err
	}
	tx, err := s.ledger.BuildPaymentTransaction(ctx, key, amount)
	if err != nil {
		return nil, err
	}
	encoded, err := client.EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	return &model.UnsignedTransaction{
		Transaction:  encoded,
		Payer:        key.String(),
		Amount:       amount,
		TokenAccount: s.ledger.ContractInfo().TokenAccount,
	}, nil
}

func (s *tokenServiceImpl) Confirm(ctx context.Context, signature string) (*model.SignatureInfo, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, apperr.Validation("invalid transaction signature")
	}
	status, err := s.ledger.WaitForConfirmation(ctx, sig)
	if err != nil {
		return nil, err
	}
	return &model.SignatureInfo{
		Signature:   signature,
		Status:      status,
		Outcome:     status.Outcome(),
		ExplorerURL: s.ledger.ExplorerURL(signature),
	}, nil
}

func (s *tokenServiceImpl) Airdrop(ctx context.Context, wallet string, sol decimal.Decimal) (*model.AirdropResult, error) {
	key, err := parseWallet("wallet", wallet)
	if err != nil {
		return nil, err
	}
	if sol.IsZero() {
		sol = decimal.NewFromInt(1)
	}
	sig, err := s.ledger.Airdrop(ctx, key, sol)
	if err != nil {
		return nil, err
	}
	return &model.AirdropResult{Wallet: key.String(), Amount: sol, Signature: sig}, nil
}
