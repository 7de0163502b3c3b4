package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"
	"qtc-marketplace/internal/price"

	binary "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
)

// SolanaRPC is the subset of *rpc.Client the ledger needs.
type SolanaRPC interface {
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenSupply(ctx context.Context, tokenMint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
	RequestAirdrop(ctx context.Context, account solana.PublicKey, lamports uint64, commitment rpc.CommitmentType) (solana.Signature, error)
}

var _ SolanaRPC = (*rpc.Client)(nil)

var (
	ErrSignerNotConfigured = errors.New("solana signer key not configured")
	errNotConfirmed        = errors.New("transaction not confirmed yet")
)

// TokenTransfer is an SPL transfer found in a transaction.
type TokenTransfer struct {
	Source      solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
	Amount      uint64
}

type SolanaClient interface {
	ContractInfo() *model.ContractInfo
	Signer() (solana.PublicKey, bool)
	TokenAccount(wallet solana.PublicKey) (solana.PublicKey, error)
	TokenAccountExists(ctx context.Context, wallet solana.PublicKey) (solana.PublicKey, bool, error)
	TokenBalance(ctx context.Context, wallet solana.PublicKey) (decimal.Decimal, error)
	MerchantBalance(ctx context.Context) (decimal.Decimal, error)
	SOLBalance(ctx context.Context, wallet solana.PublicKey) (decimal.Decimal, error)
	TokenSupply(ctx context.Context) (decimal.Decimal, error)
	Airdrop(ctx context.Context, wallet solana.PublicKey, sol decimal.Decimal) (string, error)
	BuildPaymentTransaction(ctx context.Context, payer solana.PublicKey, tokens int64) (*solana.Transaction, error)
	BuildTransferTransaction(ctx context.Context, recipient solana.PublicKey, tokens int64) (*solana.Transaction, error)
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	SignatureStatus(ctx context.Context, sig solana.Signature) (model.TokenTransferStatus, error)
	WaitForConfirmation(ctx context.Context, sig solana.Signature) (model.TokenTransferStatus, error)
	FetchTransfers(ctx context.Context, sig solana.Signature) ([]TokenTransfer, error)
	ExplorerURL(sig string) string
}

type solanaClientImpl struct {
	rpc          SolanaRPC
	mint         solana.PublicKey
	merchant     solana.PublicKey
	merchantAcct solana.PublicKey
	programID    string
	decimals     uint8
	cluster      string
	signer       *solana.PrivateKey

	confirmInterval time.Duration
	confirmTimeout  time.Duration
}

// NewSolanaClient validates the configured addresses; a missing signer only disables server-signed transfers.
func NewSolanaClient(cfg *config.Solana) (SolanaClient, error) {
	signer, err := LoadSigner(cfg)
	if err != nil {
		return nil, err
	}
	return newSolanaClient(rpc.New(cfg.RPCURL), cfg, signer)
}

func newSolanaClient(rpcClient SolanaRPC, cfg *config.Solana, signer *solana.PrivateKey) (*solanaClientImpl, error) {
	mint, err := solana.PublicKeyFromBase58(cfg.TokenMint)
	if err != nil {
		return nil, fmt.Errorf("parse token mint: %w", err)
	}
	merchant, err := solana.PublicKeyFromBase58(cfg.MerchantWallet)
	if err != nil {
		return nil, fmt.Errorf("parse merchant wallet: %w", err)
	}
	merchantAcct, err := solana.PublicKeyFromBase58(cfg.MerchantTokenAcct)
	if err != nil {
		return nil, fmt.Errorf("parse merchant token account: %w", err)
	}

	return &solanaClientImpl{
		rpc:             rpcClient,
		mint:            mint,
		merchant:        merchant,
		merchantAcct:    merchantAcct,
		programID:       cfg.ProgramID,
		decimals:        cfg.TokenDecimals,
		cluster:         cfg.Cluster,
		signer:          signer,
		confirmInterval: 2 * time.Second,
		confirmTimeout:  60 * time.Second,
	}, nil
}

// LoadSigner reads the base58 key first, then the keygen file. Nil means no signer.
func LoadSigner(cfg *config.Solana) (*solana.PrivateKey, error) {
	switch {
	case cfg.SignerKey != "":
		key, err := solana.PrivateKeyFromBase58(cfg.SignerKey)
		if err != nil {
			return nil, fmt.Errorf("parse signer key: %w", err)
		}
		return &key, nil
	case cfg.SignerKeyFile != "":
		key, err := solana.PrivateKeyFromSolanaKeygenFile(cfg.SignerKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load signer key file: %w", err)
		}
		return &key, nil
	}
	return nil, nil
}

func (c *solanaClientImpl) ContractInfo() *model.ContractInfo {
	info := &model.ContractInfo{
		ProgramID:     c.programID,
		TokenMint:     c.mint.String(),
		TokenAccount:  c.merchantAcct.String(),
		Merchant:      c.merchant.String(),
		TokenDecimals: c.decimals,
		Network:       c.cluster,
	}
	if pk, ok := c.Signer(); ok {
		info.Signer = pk.String()
	}
	return info
}

func (c *solanaClientImpl) Signer() (solana.PublicKey, bool) {
	if c.signer == nil {
		return solana.PublicKey{}, false
	}
	return c.signer.PublicKey(), true
}

func (c *solanaClientImpl) TokenAccount(wallet solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(wallet, c.mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return ata, nil
}

func (c *solanaClientImpl) accountExists(ctx context.Context, account solana.PublicKey) (bool, error) {
	_, err := c.rpc.GetAccountInfo(ctx, account)
	if errors.Is(err, rpc.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, rpcError(err, "get account info")
	}
	return true, nil
}

func (c *solanaClientImpl) TokenAccountExists(ctx context.Context, wallet solana.PublicKey) (solana.PublicKey, bool, error) {
	ata, err := c.TokenAccount(wallet)
	if err != nil {
		return ata, false, err
	}
	exists, err := c.accountExists(ctx, ata)
	return ata, exists, err
}

// tokenAccountBalance returns base units; an absent account holds zero.
func (c *solanaClientImpl) tokenAccountBalance(ctx context.Context, account solana.PublicKey) (uint64, error) {
	exists, err := c.accountExists(ctx, account)
	if err != nil || !exists {
		return 0, err
	}
	res, err := c.rpc.GetTokenAccountBalance(ctx, account, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, rpcError(err, "get token account balance")
	}
	if res == nil || res.Value == nil {
		return 0, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse token amount %q: %w", res.Value.Amount, err)
	}
	return amount, nil
}

func (c *solanaClientImpl) TokenBalance(ctx context.Context, wallet solana.PublicKey) (decimal.Decimal, error) {
	ata, err := c.TokenAccount(wallet)
	if err != nil {
		return decimal.Zero, err
	}
	amount, err := c.tokenAccountBalance(ctx, ata)
	if err != nil {
		return decimal.Zero, err
	}
	return price.FromBaseUnits(amount, c.decimals), nil
}

func (c *solanaClientImpl) MerchantBalance(ctx context.Context) (decimal.Decimal, error) {
	amount, err := c.tokenAccountBalance(ctx, c.merchantAcct)
	if err != nil {
		return decimal.Zero, err
	}
	return price.FromBaseUnits(amount, c.decimals), nil
}

func (c *solanaClientImpl) SOLBalance(ctx context.Context, wallet solana.PublicKey) (decimal.Decimal, error) {
	res, err := c.rpc.GetBalance(ctx, wallet, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, rpcError(err, "get balance")
	}
	return lamportsToSOL(res.Value), nil
}

func (c *solanaClientImpl) TokenSupply(ctx context.Context) (decimal.Decimal, error) {
	res, err := c.rpc.GetTokenSupply(ctx, c.mint, rpc.CommitmentConfirmed)
	if err != nil {
		return decimal.Zero, rpcError(err, "get token supply")
	}
	if res == nil || res.Value == nil {
		return decimal.Zero, nil
	}
	amount, err := strconv.ParseUint(res.Value.Amount, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse token supply %q: %w", res.Value.Amount, err)
	}
	return price.FromBaseUnits(amount, res.Value.Decimals), nil
}

func (c *solanaClientImpl) Airdrop(ctx context.Context, wallet solana.PublicKey, sol decimal.Decimal) (string, error) {
	if c.cluster == "mainnet-beta" || c.cluster == "mainnet" {
		return "", apperr.Validation("airdrops are only available on devnet and testnet")
	}
	if !sol.IsPositive() {
		return "", apperr.Validation("airdrop amount must be positive")
	}
	lamports := sol.Mul(decimal.NewFromInt(int64(solana.LAMPORTS_PER_SOL))).Round(0).IntPart()
	sig, err := c.rpc.RequestAirdrop(ctx, wallet, uint64(lamports), rpc.CommitmentFinalized)
	if err != nil {
		return "", rpcError(err, "request airdrop")
	}
	return sig.String(), nil
}

// buildTransfer moves baseUnits from owner's token account to destination after any extra instructions.
func (c *solanaClientImpl) buildTransfer(ctx context.Context, feePayer, owner, destination solana.PublicKey, baseUnits uint64, extra ...solana.Instruction) (*solana.Transaction, error) {
	source, err := c.TokenAccount(owner)
	if err != nil {
		return nil, err
	}

	instructions := append([]solana.Instruction{}, extra...)
	instructions = append(instructions,
		token.NewTransferInstruction(baseUnits, source, destination, owner, nil).Build(),
	)

	latest, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return nil, rpcError(err, "get latest blockhash")
	}

	tx, err := solana.NewTransaction(instructions, latest.Value.Blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return nil, fmt.Errorf("build transaction: %w", err)
	}
	return tx, nil
}

// BuildPaymentTransaction creates the unsigned wallet transaction paying tokens to the merchant.
func (c *solanaClientImpl) BuildPaymentTransaction(ctx context.Context, payer solana.PublicKey, tokens int64) (*solana.Transaction, error) {
	if tokens <= 0 {
		return nil, apperr.Validation("token amount must be positive")
	}
	_, exists, err := c.TokenAccountExists(ctx, payer)
	if err != nil {
		return nil, err
	}
	var extra []solana.Instruction
	if !exists {
		extra = append(extra, associatedtokenaccount.NewCreateInstruction(payer, payer, c.mint).Build())
	}
	return c.buildTransfer(ctx, payer, payer, c.merchantAcct, price.ToBaseUnits(tokens, c.decimals), extra...)
}

// BuildTransferTransaction sends tokens from the signer to recipient, creating the recipient's account if needed.
func (c *solanaClientImpl) BuildTransferTransaction(ctx context.Context, recipient solana.PublicKey, tokens int64) (*solana.Transaction, error) {
	signer, ok := c.Signer()
	if !ok {
		return nil, apperr.Wrap(apperr.CodeConfiguration, ErrSignerNotConfigured, "server-signed transfers are disabled")
	}
	if tokens <= 0 {
		return nil, apperr.Validation("token amount must be positive")
	}
	destination, exists, err := c.TokenAccountExists(ctx, recipient)
	if err != nil {
		return nil, err
	}
	var extra []solana.Instruction
	if !exists {
		extra = append(extra, associatedtokenaccount.NewCreateInstruction(signer, recipient, c.mint).Build())
	}
	return c.buildTransfer(ctx, signer, signer, destination, price.ToBaseUnits(tokens, c.decimals), extra...)
}

func (c *solanaClientImpl) SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if c.signer == nil {
		return solana.Signature{}, apperr.Wrap(apperr.CodeConfiguration, ErrSignerNotConfigured, "server-signed transfers are disabled")
	}
	signer := *c.signer
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(signer.PublicKey()) {
			return &signer
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, rpcError(err, "send transaction")
	}
	return sig, nil
}

func (c *solanaClientImpl) SignatureStatus(ctx context.Context, sig solana.Signature) (model.TokenTransferStatus, error) {
	res, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return "", rpcError(err, "get signature statuses")
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return model.TokenSubmitted, nil
	}
	status := res.Value[0]
	if status.Err != nil {
		return model.TokenFailed, nil
	}
	switch status.ConfirmationStatus {
	case rpc.ConfirmationStatusFinalized:
		return model.TokenFinalized, nil
	case rpc.ConfirmationStatusConfirmed:
		return model.TokenConfirmed, nil
	case rpc.ConfirmationStatusProcessed:
		return model.TokenProcessed, nil
	}
	return model.TokenSubmitted, nil
}

// WaitForConfirmation polls until the signature is confirmed, failed, or the wait times out.
// A timeout is not an error: the last seen status is returned.
func (c *solanaClientImpl) WaitForConfirmation(ctx context.Context, sig solana.Signature) (model.TokenTransferStatus, error) {
	last := model.TokenSubmitted
	backoff := retry.WithMaxDuration(c.confirmTimeout, retry.NewConstant(c.confirmInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		status, err := c.SignatureStatus(ctx, sig)
		if err != nil {
			if apperr.IsCode(err, apperr.CodeTransient) {
				return retry.RetryableError(err)
			}
			return err
		}
		last = status
		if status.Outcome().Terminal() {
			return nil
		}
		return retry.RetryableError(errNotConfirmed)
	})
	if err != nil && !errors.Is(err, errNotConfirmed) && !apperr.IsCode(err, apperr.CodeTransient) {
		return last, err
	}
	return last, nil
}

// FetchTransfers loads a landed transaction and decodes its SPL transfers.
func (c *solanaClientImpl) FetchTransfers(ctx context.Context, sig solana.Signature) ([]TokenTransfer, error) {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, apperr.NotFound("transaction not found")
	}
	if err != nil {
		return nil, rpcError(err, "get transaction")
	}
	if res == nil || res.Transaction == nil {
		return nil, apperr.NotFound("transaction not found")
	}
	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return DecodeTokenTransfers(tx)
}

func (c *solanaClientImpl) ExplorerURL(sig string) string {
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", sig, c.cluster)
}

// DecodeTokenTransfers returns every SPL Transfer/TransferChecked in tx.
func DecodeTokenTransfers(tx *solana.Transaction) ([]TokenTransfer, error) {
	var transfers []TokenTransfer
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(tx.Message.AccountKeys) {
			return nil, fmt.Errorf("program index %d out of range", inst.ProgramIDIndex)
		}
		prog := tx.Message.AccountKeys[inst.ProgramIDIndex]
		if !prog.Equals(solana.TokenProgramID) {
			continue
		}

		accountMetas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, accIdx := range inst.Accounts {
			pub := tx.Message.AccountKeys[accIdx]
			writable, err := tx.Message.IsWritable(pub)
			if err != nil {
				return nil, fmt.Errorf("resolve account %s: %w", pub, err)
			}
			accountMetas[i] = &solana.AccountMeta{
				PublicKey:  pub,
				IsSigner:   tx.Message.IsSigner(pub),
				IsWritable: writable,
			}
		}

		decoded, err := token.DecodeInstruction(accountMetas, inst.Data)
		if err != nil {
			continue
		}
		switch impl := decoded.Impl.(type) {
		case *token.Transfer:
			if impl.Amount == nil || len(accountMetas) < 3 {
				continue
			}
			transfers = append(transfers, TokenTransfer{
				Source:      accountMetas[0].PublicKey,
				Destination: accountMetas[1].PublicKey,
				Owner:       accountMetas[2].PublicKey,
				Amount:      *impl.Amount,
			})
		case *token.TransferChecked:
			if impl.Amount == nil || len(accountMetas) < 4 {
				continue
			}
			transfers = append(transfers, TokenTransfer{
				Source:      accountMetas[0].PublicKey,
				Destination: accountMetas[2].PublicKey,
				Owner:       accountMetas[3].PublicKey,
				Amount:      *impl.Amount,
			})
		}
	}
	return transfers, nil
}

// EncodeTransaction serializes tx for a browser wallet.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, apperr.Validation("invalid transaction base64")
	}
	tx, err := solana.TransactionFromDecoder(binary.NewBinDecoder(raw))
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid transaction: %v", err))
	}
	return tx, nil
}

func lamportsToSOL(lamports uint64) decimal.Decimal {
	return price.FromBaseUnits(lamports, 9)
}

func rpcError(err error, op string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return apperr.Wrap(apperr.CodeUpstream, err, "solana "+op).WithDetails(map[string]any{
			"rpc_code":    rpcErr.Code,
			"rpc_message": rpcErr.Message,
		})
	}
	return apperr.Transient(err, "solana "+op)
}
