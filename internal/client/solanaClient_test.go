package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"qtc-marketplace/internal/apperr"
	"qtc-marketplace/internal/config"
	"qtc-marketplace/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC is an in-memory ledger: token accounts hold base units, sent transactions land as "confirmed"
// after pendingPolls status lookups.
type fakeRPC struct {
	mu           sync.Mutex
	accounts     map[solana.PublicKey]uint64
	lamports     uint64
	supply       uint64
	sent         []*solana.Transaction
	landed       map[solana.Signature]*solana.Transaction
	pendingPolls int
	statusCalls  int
	txErr        bool
	sendErr      error
	airdropped   uint64
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		accounts: map[solana.PublicKey]uint64{},
		landed:   map[solana.Signature]*solana.Transaction{},
	}
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{
		Blockhash:            solana.HashFromBytes(make([]byte, 32)),
		LastValidBlockHeight: 100,
	}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, errors.New("unsigned transaction")
	}
	f.sent = append(f.sent, tx)
	f.landed[tx.Signatures[0]] = tx
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(_ context.Context, _ bool, sigs ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	res := &rpc.GetSignatureStatusesResult{Value: make([]*rpc.SignatureStatusesResult, len(sigs))}
	for i, sig := range sigs {
		if _, ok := f.landed[sig]; !ok || f.statusCalls <= f.pendingPolls {
			continue
		}
		status := &rpc.SignatureStatusesResult{ConfirmationStatus: rpc.ConfirmationStatusConfirmed}
		if f.txErr {
			status.Err = map[string]any{"InstructionError": []any{0, "Custom"}}
		}
		res.Value[i] = status
	}
	return res, nil
}

func (f *fakeRPC) GetTransaction(_ context.Context, sig solana.Signature, _ *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error) {
	f.mu.Lock()
	tx, ok := f.landed[sig]
	f.mu.Unlock()
	if !ok {
		return nil, rpc.ErrNotFound
	}
	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return nil, err
	}
	var res rpc.GetTransactionResult
	body := fmt.Sprintf(`{"slot":42,"transaction":[%q,"base64"]}`, encoded)
	if err := json.Unmarshal([]byte(body), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[account]; !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(_ context.Context, account solana.PublicKey, _ rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.GetTokenAccountBalanceResult{Value: &rpc.UiTokenAmount{
		Amount:   strconv.FormatUint(f.accounts[account], 10),
		Decimals: 6,
	}}, nil
}

func (f *fakeRPC) GetBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.lamports}, nil
}

func (f *fakeRPC) GetTokenSupply(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error) {
	return &rpc.GetTokenSupplyResult{Value: &rpc.UiTokenAmount{
		Amount:   strconv.FormatUint(f.supply, 10),
		Decimals: 6,
	}}, nil
}

func (f *fakeRPC) RequestAirdrop(_ context.Context, _ solana.PublicKey, lamports uint64, _ rpc.CommitmentType) (solana.Signature, error) {
	f.airdropped = lamports
	return solana.Signature{1, 2, 3}, nil
}

func testSolanaConfig() *config.Solana {
	return &config.Solana{
		Cluster:           "devnet",
		TokenMint:         "97DBMXWBGAmF8fiWqcmNPuuqCu1MBeWSnpcdsz2vRQni",
		TokenDecimals:     6,
		MerchantWallet:    "QTCawiVYkAnxmkVHzXZNhD8bRdBD6QxENwvkv9oCxTF",
		MerchantTokenAcct: "Afzcj1swadnQZrcqTVX9bTNcLiyP7Tdk7K3MoCpvSyCc",
	}
}

func newTestLedger(t *testing.T, withSigner bool) (*solanaClientImpl, *fakeRPC, solana.PrivateKey) {
	t.Helper()
	fake := newFakeRPC()
	var signer *solana.PrivateKey
	key := solana.NewWallet().PrivateKey
	if withSigner {
		signer = &key
	}
	ledger, err := newSolanaClient(fake, testSolanaConfig(), signer)
	require.NoError(t, err)
	ledger.confirmInterval = time.Millisecond
	ledger.confirmTimeout = 200 * time.Millisecond
	return ledger, fake, key
}

func TestNewSolanaClientRejectsBadAddresses(t *testing.T) {
	cfg := testSolanaConfig()
	cfg.TokenMint = "not-a-key"
	_, err := newSolanaClient(newFakeRPC(), cfg, nil)
	assert.Error(t, err)

	cfg = testSolanaConfig()
	cfg.SignerKey = "garbage"
	_, err = NewSolanaClient(cfg)
	assert.Error(t, err)
}

func TestLoadSignerFromBase58(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	cfg := testSolanaConfig()

	signer, err := LoadSigner(cfg)
	require.NoError(t, err)
	assert.Nil(t, signer)

	cfg.SignerKey = key.String()
	signer, err = LoadSigner(cfg)
	require.NoError(t, err)
	require.NotNil(t, signer)
	assert.Equal(t, key.PublicKey(), signer.PublicKey())
}

func TestContractInfo(t *testing.T) {
	ledger, _, key := newTestLedger(t, true)
	info := ledger.ContractInfo()
	assert.Equal(t, "97DBMXWBGAmF8fiWqcmNPuuqCu1MBeWSnpcdsz2vRQni", info.TokenMint)
	assert.Equal(t, "Afzcj1swadnQZrcqTVX9bTNcLiyP7Tdk7K3MoCpvSyCc", info.TokenAccount)
	assert.Equal(t, key.PublicKey().String(), info.Signer)
	assert.Equal(t, uint8(6), info.TokenDecimals)

	unsigned, _, _ := newTestLedger(t, false)
	assert.Empty(t, unsigned.ContractInfo().Signer)
	assert.Contains(t, ledger.ExplorerURL("abc"), "cluster=devnet")
}

func TestBalancesAndSupply(t *testing.T) {
	ledger, fake, key := newTestLedger(t, true)
	ctx := context.Background()
	wallet := key.PublicKey()

	balance, err := ledger.TokenBalance(ctx, wallet)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	ata, err := ledger.TokenAccount(wallet)
	require.NoError(t, err)
	fake.accounts[ata] = 203_500_000
	balance, err = ledger.TokenBalance(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, "203.5", balance.String())

	fake.accounts[ledger.merchantAcct] = 1_000_000
	merchant, err := ledger.MerchantBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", merchant.String())

	fake.lamports = 1_500_000_000
	sol, err := ledger.SOLBalance(ctx, wallet)
	require.NoError(t, err)
	assert.Equal(t, "1.5", sol.String())

	fake.supply = 1_000_000_000_000
	supply, err := ledger.TokenSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1000000", supply.String())
}

func TestAirdrop(t *testing.T) {
	ledger, fake, key := newTestLedger(t, false)
	ctx := context.Background()

	sig, err := ledger.Airdrop(ctx, key.PublicKey(), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
	assert.Equal(t, uint64(500_000_000), fake.airdropped)

	_, err = ledger.Airdrop(ctx, key.PublicKey(), decimal.Zero)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	ledger.cluster = "mainnet-beta"
	_, err = ledger.Airdrop(ctx, key.PublicKey(), decimal.NewFromInt(1))
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestBuildTransferTransactionCreatesRecipientAccount(t *testing.T) {
	ledger, fake, key := newTestLedger(t, true)
	ctx := context.Background()
	recipient := solana.NewWallet().PublicKey()

	tx, err := ledger.BuildTransferTransaction(ctx, recipient, 5)
	require.NoError(t, err)
	require.Len(t, tx.Message.Instructions, 2)
	assert.Equal(t, key.PublicKey(), tx.Message.AccountKeys[0])

	transfers, err := DecodeTokenTransfers(tx)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	recipientATA, _ := ledger.TokenAccount(recipient)
	assert.Equal(t, recipientATA, transfers[0].Destination)
	assert.Equal(t, key.PublicKey(), transfers[0].Owner)
	assert.Equal(t, uint64(5_000_000), transfers[0].Amount)

	fake.accounts[recipientATA] = 0
	tx, err = ledger.BuildTransferTransaction(ctx, recipient, 5)
	require.NoError(t, err)
	assert.Len(t, tx.Message.Instructions, 1)

	_, err = ledger.BuildTransferTransaction(ctx, recipient, 0)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	unsigned, _, _ := newTestLedger(t, false)
	_, err = unsigned.BuildTransferTransaction(ctx, recipient, 5)
	assert.ErrorIs(t, err, ErrSignerNotConfigured)
	assert.True(t, apperr.IsCode(err, apperr.CodeConfiguration))
}

func TestBuildPaymentTransactionRoundTripsForWallets(t *testing.T) {
	ledger, _, _ := newTestLedger(t, false)
	payer := solana.NewWallet().PublicKey()

	tx, err := ledger.BuildPaymentTransaction(context.Background(), payer, 203)
	require.NoError(t, err)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)
	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)

	transfers, err := DecodeTokenTransfers(decoded)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, ledger.merchantAcct, transfers[0].Destination)
	assert.Equal(t, payer, transfers[0].Owner)
	assert.Equal(t, uint64(203_000_000), transfers[0].Amount)

	_, err = DecodeTransaction("%%%")
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestSignAndSendAndWait(t *testing.T) {
	ledger, fake, _ := newTestLedger(t, true)
	ctx := context.Background()
	fake.pendingPolls = 2

	tx, err := ledger.BuildTransferTransaction(ctx, solana.NewWallet().PublicKey(), 1)
	require.NoError(t, err)
	sig, err := ledger.SignAndSend(ctx, tx)
	require.NoError(t, err)
	require.Len(t, fake.sent, 1)
	require.NoError(t, fake.sent[0].VerifySignatures())

	status, err := ledger.WaitForConfirmation(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, model.TokenConfirmed, status)
	assert.Equal(t, 3, fake.statusCalls)
}

func TestWaitForConfirmationTimeoutKeepsLastStatus(t *testing.T) {
	ledger, fake, _ := newTestLedger(t, true)
	ledger.confirmTimeout = 20 * time.Millisecond
	fake.pendingPolls = 1 << 20

	status, err := ledger.WaitForConfirmation(context.Background(), solana.Signature{9})
	require.NoError(t, err)
	assert.Equal(t, model.TokenSubmitted, status)
}

func TestSignatureStatusFailed(t *testing.T) {
	ledger, fake, _ := newTestLedger(t, true)
	ctx := context.Background()
	fake.txErr = true

	tx, err := ledger.BuildTransferTransaction(ctx, solana.NewWallet().PublicKey(), 1)
	require.NoError(t, err)
	sig, err := ledger.SignAndSend(ctx, tx)
	require.NoError(t, err)

	status, err := ledger.SignatureStatus(ctx, sig)
	require.NoError(t, err)
	assert.Equal(t, model.TokenFailed, status)
	assert.Equal(t, model.OutcomeFailed, status.Outcome())
}

func TestSignAndSendWithoutSigner(t *testing.T) {
	ledger, _, _ := newTestLedger(t, false)
	_, err := ledger.SignAndSend(context.Background(), &solana.Transaction{})
	assert.ErrorIs(t, err, ErrSignerNotConfigured)
}

func TestRPCErrorClassification(t *testing.T) {
	err := rpcError(&jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed"}, "send transaction")
	assert.True(t, apperr.IsCode(err, apperr.CodeUpstream))

	err = rpcError(errors.New("dial tcp: connection refused"), "get balance")
	assert.True(t, apperr.IsCode(err, apperr.CodeTransient))

	assert.ErrorIs(t, rpcError(context.Canceled, "x"), context.Canceled)
}

func TestTokenClientServerSignedPayment(t *testing.T) {
	ledger, fake, key := newTestLedger(t, true)
	payerATA, _ := ledger.TokenAccount(key.PublicKey())
	fake.accounts[payerATA] = 500_000_000
	gw := NewTokenClient(ledger)

	req := orderRequest("qtc_order_t1")
	req.TokenAmount = 203
	order, err := gw.CreateOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, model.OutcomeSucceeded, order.Outcome)
	assert.Equal(t, model.CompletionImmediate, order.Completion)
	assert.Equal(t, int64(203), order.TokenAmount)
	assert.Equal(t, "QTC", order.PayCurrency)
	assert.Equal(t, "qtc_order_t1", order.Reference)
	require.Len(t, fake.sent, 1)

	status, err := gw.GetStatus(context.Background(), order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, status.Outcome)
}

func TestTokenClientInsufficientBalance(t *testing.T) {
	ledger, fake, key := newTestLedger(t, true)
	payerATA, _ := ledger.TokenAccount(key.PublicKey())
	fake.accounts[payerATA] = 100_000_000
	gw := NewTokenClient(ledger)

	req := orderRequest("qtc_order_t2")
	req.TokenAmount = 203
	_, err := gw.CreateOrder(context.Background(), req)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
	assert.Empty(t, fake.sent)
}

func TestTokenClientVerifiesWalletPayment(t *testing.T) {
	ledger, fake, _ := newTestLedger(t, false)
	ctx := context.Background()
	gw := NewTokenClient(ledger)

	payer := solana.NewWallet()
	send := func(tokens int64) string {
		tx, err := ledger.BuildPaymentTransaction(ctx, payer.PublicKey(), tokens)
		require.NoError(t, err)
		_, err = tx.Sign(func(k solana.PublicKey) *solana.PrivateKey {
			if k.Equals(payer.PublicKey()) {
				return &payer.PrivateKey
			}
			return nil
		})
		require.NoError(t, err)
		sig, err := fake.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{})
		require.NoError(t, err)
		return sig.String()
	}

	req := orderRequest("qtc_order_t3")
	req.TokenAmount = 203
	req.Metadata.TransactionSignature = send(203)
	order, err := gw.CreateOrder(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, order.Outcome)
	assert.Equal(t, req.Metadata.TransactionSignature, order.OrderID)

	short := orderRequest("qtc_order_t4")
	short.TokenAmount = 203
	short.Metadata.TransactionSignature = send(100)
	_, err = gw.CreateOrder(ctx, short)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))

	bad := orderRequest("qtc_order_t5")
	bad.TokenAmount = 1
	bad.Metadata.TransactionSignature = "not-a-signature"
	_, err = gw.CreateOrder(ctx, bad)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestTokenClientNeedsSignerOrSignature(t *testing.T) {
	ledger, _, _ := newTestLedger(t, false)
	gw := NewTokenClient(ledger)

	req := orderRequest("r")
	req.TokenAmount = 1
	_, err := gw.CreateOrder(context.Background(), req)
	assert.True(t, apperr.IsCode(err, apperr.CodeConfiguration))

	req.TokenAmount = 0
	_, err = gw.CreateOrder(context.Background(), req)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}
