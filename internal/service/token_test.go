package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/client"
	"qtc-marketplace/internal/logger"
	"qtc-marketplace/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerTransfer struct {
	from, to solana.PublicKey
	tokens   int64
}

// fakeLedger keeps whole-token balances per wallet and settles transfers on send.
type fakeLedger struct {
	mu       sync.Mutex
	signer   *solana.PublicKey
	merchant solana.PublicKey
	balances map[solana.PublicKey]int64
	pending  map[*solana.Transaction]ledgerTransfer
	sent     int
	status   model.TokenTransferStatus
	landed   []client.TokenTransfer
}

func newFakeLedger(withSigner bool) *fakeLedger {
	l := &fakeLedger{
		merchant: solana.NewWallet().PublicKey(),
		balances: make(map[solana.PublicKey]int64),
		pending:  make(map[*solana.Transaction]ledgerTransfer),
		status:   model.TokenConfirmed,
	}
	if withSigner {
		signer := solana.NewWallet().PublicKey()
		l.signer = &signer
	}
	return l
}

func (l *fakeLedger) ContractInfo() *model.ContractInfo {
	return &model.ContractInfo{
		TokenMint:     solana.NewWallet().PublicKey().String(),
		TokenAccount:  l.merchant.String(),
		Merchant:      l.merchant.String(),
		TokenDecimals: 6,
		Network:       "devnet",
	}
}

func (l *fakeLedger) Signer() (solana.PublicKey, bool) {
	if l.signer == nil {
		return solana.PublicKey{}, false
	}
	return *l.signer, true
}

func (l *fakeLedger) TokenAccount(wallet solana.PublicKey) (solana.PublicKey, error) {
	return wallet, nil
}

func (l *fakeLedger) TokenAccountExists(_ context.Context, wallet solana.PublicKey) (solana.PublicKey, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.balances[wallet]
	return wallet, ok, nil
}

func (l *fakeLedger) balance(wallet solana.PublicKey) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[wallet]
}

func (l *fakeLedger) TokenBalance(_ context.Context, wallet solana.PublicKey) (decimal.Decimal, error) {
	return decimal.NewFromInt(l.balance(wallet)), nil
}

func (l *fakeLedger) MerchantBalance(ctx context.Context) (decimal.Decimal, error) {
	return l.TokenBalance(ctx, l.merchant)
}

func (l *fakeLedger) SOLBalance(context.Context, solana.PublicKey) (decimal.Decimal, error) {
	return decimal.RequireFromString("1.5"), nil
}

func (l *fakeLedger) TokenSupply(context.Context) (decimal.Decimal, error) {
	return decimal.NewFromInt(1_000_000), nil
}

func (l *fakeLedger) Airdrop(_ context.Context, _ solana.PublicKey, _ decimal.Decimal) (string, error) {
	return solana.Signature{9}.String(), nil
}

func (l *fakeLedger) newTx(from, to solana.PublicKey, tokens int64) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(
		[]solana.Instruction{token.NewTransferInstruction(uint64(tokens), from, to, from, nil).Build()},
		solana.Hash{},
		solana.TransactionPayer(from),
	)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.pending[tx] = ledgerTransfer{from: from, to: to, tokens: tokens}
	l.mu.Unlock()
	return tx, nil
}

func (l *fakeLedger) BuildPaymentTransaction(_ context.Context, payer solana.PublicKey, tokens int64) (*solana.Transaction, error) {
	if tokens <= 0 {
		return nil, apperr.Validation("token amount must be positive")
	}
	return l.newTx(payer, l.merchant, tokens)
}

func (l *fakeLedger) BuildTransferTransaction(_ context.Context, recipient solana.PublicKey, tokens int64) (*solana.Transaction, error) {
	return l.newTx(*l.signer, recipient, tokens)
}

func (l *fakeLedger) SignAndSend(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.pending[tx]
	if !ok {
		return solana.Signature{}, fmt.Errorf("unknown transaction")
	}
	delete(l.pending, tx)
	if l.status.Outcome() == model.OutcomeSucceeded {
		l.balances[t.from] -= t.tokens
		l.balances[t.to] += t.tokens
	}
	l.sent++
	return solana.Signature{byte(l.sent)}, nil
}

func (l *fakeLedger) SignatureStatus(context.Context, solana.Signature) (model.TokenTransferStatus, error) {
	return l.status, nil
}

func (l *fakeLedger) WaitForConfirmation(context.Context, solana.Signature) (model.TokenTransferStatus, error) {
	return l.status, nil
}

func (l *fakeLedger) FetchTransfers(context.Context, solana.Signature) ([]client.TokenTransfer, error) {
	return l.landed, nil
}

func (l *fakeLedger) ExplorerURL(sig string) string {
	return "https://explorer.solana.com/tx/" + sig + "?cluster=devnet"
}

func (l *fakeLedger) sentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sent
}

func TestTokenCheckout_DebitsPayerAndClearsCartOnce(t *testing.T) {
	ledger := newFakeLedger(true)
	payer, _ := ledger.Signer()
	ledger.balances[payer] = 1000

	h := newHarness(t, testPoll, client.NewTokenClient(ledger))
	fillCart(t, h.carts, "cart-1")

	order, err := h.svc.Checkout(context.Background(), &CheckoutRequest{CartID: "cart-1", Method: model.ProviderToken})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, order.Outcome)
	assert.Equal(t, model.CompletionImmediate, order.Completion)
	assert.Equal(t, "QTC", order.PayCurrency)

	assert.Equal(t, int64(797), ledger.balance(payer))
	assert.Equal(t, int64(203), ledger.balance(ledger.merchant))
	assert.Equal(t, 0, cartLen(t, h.carts, "cart-1"))
	assert.Equal(t, 1, h.successCount())
}

func TestTokenCheckout_InsufficientBalanceSubmitsNothing(t *testing.T) {
	ledger := newFakeLedger(true)
	payer, _ := ledger.Signer()
	ledger.balances[payer] = 50

	h := newHarness(t, testPoll, client.NewTokenClient(ledger))
	fillCart(t, h.carts, "cart-1")

	_, err := h.svc.Checkout(context.Background(), &CheckoutRequest{CartID: "cart-1", Method: model.ProviderToken})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Equal(t, 0, ledger.sentCount())
	assert.Equal(t, int64(50), ledger.balance(payer))
	assert.Equal(t, 2, cartLen(t, h.carts, "cart-1"))
	assert.Equal(t, 0, h.successCount())
}

func TestTokenCheckout_FailedTransferKeepsCart(t *testing.T) {
	ledger := newFakeLedger(true)
	ledger.status = model.TokenFailed
	payer, _ := ledger.Signer()
	ledger.balances[payer] = 1000

	h := newHarness(t, testPoll, client.NewTokenClient(ledger))
	fillCart(t, h.carts, "cart-1")

	order, err := h.svc.Checkout(context.Background(), &CheckoutRequest{CartID: "cart-1", Method: model.ProviderToken})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeFailed, order.Outcome)
	assert.Equal(t, int64(1000), ledger.balance(payer))
	assert.Equal(t, 2, cartLen(t, h.carts, "cart-1"))
}

func TestTokenCheckout_WalletSignaturePaysOnlyOneOrder(t *testing.T) {
	ledger := newFakeLedger(false)
	payer := solana.NewWallet().PublicKey()
	ledger.landed = []client.TokenTransfer{{Source: payer, Destination: ledger.merchant, Owner: payer, Amount: 203_000_000}}

	h := newHarness(t, testPoll, client.NewTokenClient(ledger))
	fillCart(t, h.carts, "cart-1")
	fillCart(t, h.carts, "cart-2")
	signature := solana.Signature{7, 7, 7}.String()

	order, err := h.svc.Checkout(context.Background(), &CheckoutRequest{
		CartID:   "cart-1",
		Method:   model.ProviderToken,
		Metadata: model.Metadata{TransactionSignature: signature},
	})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, order.Outcome)
	assert.Equal(t, signature, order.OrderID)
	assert.Equal(t, 0, cartLen(t, h.carts, "cart-1"))

	replayed, err := h.svc.Checkout(context.Background(), &CheckoutRequest{
		CartID:   "cart-2",
		Method:   model.ProviderToken,
		Metadata: model.Metadata{TransactionSignature: signature},
	})
	require.Error(t, err)
	assert.Nil(t, replayed)
	assert.True(t, apperr.IsCode(err, apperr.CodeConflict))
	assert.Equal(t, 2, cartLen(t, h.carts, "cart-2"))
	assert.Equal(t, 1, h.successCount())
}

func TestTokenService_Transfer(t *testing.T) {
	ledger := newFakeLedger(true)
	signer, _ := ledger.Signer()
	ledger.balances[signer] = 100
	recipient := solana.NewWallet().PublicKey()

	svc := NewTokenService(ledger, logger.Nop())
	res, err := svc.Transfer(context.Background(), recipient.String(), 25)
	require.NoError(t, err)

	assert.Equal(t, signer.String(), res.FromAddress)
	assert.Equal(t, recipient.String(), res.ToAddress)
	assert.Equal(t, string(model.TokenConfirmed), res.Status)
	assert.True(t, res.RecipientBalanceBefore.IsZero())
	assert.True(t, res.RecipientBalanceAfter.Equal(decimal.NewFromInt(25)))
	assert.Contains(t, res.ExplorerURL, res.Signature)
	assert.Equal(t, int64(75), ledger.balance(signer))
}

func TestTokenService_TransferErrors(t *testing.T) {
	recipient := solana.NewWallet().PublicKey().String()

	_, err := NewTokenService(newFakeLedger(false), nil).Transfer(context.Background(), recipient, 5)
	assert.True(t, apperr.IsCode(err, apperr.CodeConfiguration))

	svc := NewTokenService(newFakeLedger(true), nil)
	_, err = svc.Transfer(context.Background(), "not-a-wallet", 5)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	_, err = svc.Transfer(context.Background(), recipient, 0)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestTokenService_BuildPaymentTransaction(t *testing.T) {
	ledger := newFakeLedger(false)
	payer := solana.NewWallet().PublicKey()

	res, err := NewTokenService(ledger, nil).BuildPaymentTransaction(context.Background(), payer.String(), 203)
	require.NoError(t, err)
	assert.Equal(t, payer.String(), res.Payer)
	assert.Equal(t, ledger.merchant.String(), res.TokenAccount)

	tx, err := client.DecodeTransaction(res.Transaction)
	require.NoError(t, err)
	transfers, err := client.DecodeTokenTransfers(tx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, uint64(203), transfers[0].Amount)
	assert.Equal(t, ledger.merchant, transfers[0].Destination)
}

func TestTokenService_InfoAndBalances(t *testing.T) {
	ledger := newFakeLedger(true)
	ledger.balances[ledger.merchant] = 42
	svc := NewTokenService(ledger, nil)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.True(t, info.SignerConfigured)
	assert.True(t, info.MerchantBalance.Equal(decimal.NewFromInt(42)))
	assert.Equal(t, uint8(6), info.Contract.TokenDecimals)

	wallet := solana.NewWallet().PublicKey()
	balances, err := svc.Balances(context.Background(), wallet.String())
	require.NoError(t, err)
	assert.True(t, balances.TokenBalance.IsZero())
	assert.Equal(t, "1.5", balances.SOLBalance.String())

	acct, err := svc.TokenAccount(context.Background(), wallet.String())
	require.NoError(t, err)
	assert.False(t, acct.Exists)

	airdrop, err := svc.Airdrop(context.Background(), wallet.String(), decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "1", airdrop.Amount.String())
}
