package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPrivateKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	testUSDC       = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
)

// fakeEthClient is an in-memory EthClient for transfer tests
type fakeEthClient struct {
	sendErr    error
	receipt    *types.Receipt
	receiptErr error
	sentTx     *types.Transaction
	callResult []byte
}

func (f *fakeEthClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 7, nil
}

func (f *fakeEthClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (f *fakeEthClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 65_000, nil
}

func (f *fakeEthClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.sentTx = tx
	return f.sendErr
}

func (f *fakeEthClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func (f *fakeEthClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return f.callResult, nil
}

func (f *fakeEthClient) NetworkID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(PolygonChainID), nil
}

func (f *fakeEthClient) Close() {}

func newTestWallet(t *testing.T, client EthClient) *Wallet {
	t.Helper()
	w, err := New(Config{
		RPCURL:       "https://polygon-rpc.com",
		PrivateKey:   testPrivateKey,
		ChainID:      PolygonChainID,
		USDCContract: testUSDC,
	}, WithClient(client))
	require.NoError(t, err)
	return w
}

func TestTransfer(t *testing.T) {
	client := &fakeEthClient{}
	w := newTestWallet(t, client)

	result, err := w.Transfer(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), big.NewInt(53_500))
	require.NoError(t, err)

	assert.NotEmpty(t, result.TxHash)
	assert.Equal(t, "0.053500", result.Amount)
	assert.Equal(t, uint64(7), result.Nonce)
	require.NotNil(t, client.sentTx)
	assert.Equal(t, common.HexToAddress(testUSDC), *client.sentTx.To())
}

func TestTransfer_InvalidAmount(t *testing.T) {
	w := newTestWallet(t, &fakeEthClient{})

	_, err := w.Transfer(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), big.NewInt(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTransfer_UserRejected(t *testing.T) {
	client := &fakeEthClient{sendErr: errors.New("MetaMask Tx Signature: User denied transaction signature")}
	w := newTestWallet(t, client)

	_, err := w.Transfer(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), big.NewInt(1_000))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUserRejected)

	var terr *TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "send", terr.Op)
	assert.NotEmpty(t, terr.TxHash)
}

func TestTransfer_SendFailure(t *testing.T) {
	client := &fakeEthClient{sendErr: errors.New("insufficient funds for gas")}
	w := newTestWallet(t, client)

	_, err := w.Transfer(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), big.NewInt(1_000))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserRejected)
}

func TestWaitForConfirmation_Success(t *testing.T) {
	client := &fakeEthClient{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(123456),
			GasUsed:     60_000,
		},
	}
	w := newTestWallet(t, client)

	result, err := w.WaitForConfirmation(context.Background(), "0xdead", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), result.BlockNumber)
	assert.Equal(t, uint64(60_000), result.GasUsed)
}

func TestWaitForConfirmation_Reverted(t *testing.T) {
	client := &fakeEthClient{
		receipt: &types.Receipt{
			Status:      types.ReceiptStatusFailed,
			BlockNumber: big.NewInt(123456),
		},
	}
	w := newTestWallet(t, client)

	_, err := w.WaitForConfirmation(context.Background(), "0xdead", 10*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransactionReverted)
}

func TestWaitForConfirmation_Timeout(t *testing.T) {
	client := &fakeEthClient{receiptErr: errors.New("not found")}
	w := newTestWallet(t, client)

	_, err := w.WaitForConfirmation(context.Background(), "0xdead", 50*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"metamask denial", errors.New("MetaMask Tx Signature: User denied transaction signature"), true},
		{"generic rejection", errors.New("request rejected by user"), true},
		{"user rejected", errors.New("user rejected the request"), true},
		{"rpc failure", errors.New("connection refused"), false},
		{"insufficient funds", errors.New("insufficient funds for gas"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifySendError(tt.err)
			if tt.rejected {
				assert.ErrorIs(t, got, ErrUserRejected)
			} else {
				assert.Equal(t, tt.err, got)
			}
		})
	}
}

func TestTransferError(t *testing.T) {
	tests := []struct {
		name     string
		err      *TransferError
		contains string
	}{
		{
			name: "with tx hash",
			err: &TransferError{
				Op:     "send",
				TxHash: "0xabc123",
				Err:    errors.New("network error"),
			},
			contains: "0xabc123",
		},
		{
			name: "without tx hash",
			err: &TransferError{
				Op:  "nonce",
				Err: errors.New("failed to get nonce"),
			},
			contains: "nonce failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.err.Error(), tt.contains)
			assert.True(t, errors.Is(tt.err, tt.err.Err))
		})
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				RPCURL:       "https://polygon-rpc.com",
				PrivateKey:   testPrivateKey,
				ChainID:      PolygonChainID,
				USDCContract: testUSDC,
			},
			wantErr: false,
		},
		{
			name: "valid config with 0x prefix",
			cfg: Config{
				RPCURL:       "https://polygon-rpc.com",
				PrivateKey:   "0x" + testPrivateKey,
				ChainID:      PolygonChainID,
				USDCContract: testUSDC,
			},
			wantErr: false,
		},
		{
			name: "missing RPC URL",
			cfg: Config{
				PrivateKey:   testPrivateKey,
				ChainID:      PolygonChainID,
				USDCContract: testUSDC,
			},
			wantErr: true,
		},
		{
			name: "missing private key",
			cfg: Config{
				RPCURL:       "https://polygon-rpc.com",
				ChainID:      PolygonChainID,
				USDCContract: testUSDC,
			},
			wantErr: true,
		},
		{
			name: "invalid private key length",
			cfg: Config{
				RPCURL:       "https://polygon-rpc.com",
				PrivateKey:   "tooshort",
				ChainID:      PolygonChainID,
				USDCContract: testUSDC,
			},
			wantErr: true,
		},
		{
			name: "missing chain ID",
			cfg: Config{
				RPCURL:       "https://polygon-rpc.com",
				PrivateKey:   testPrivateKey,
				USDCContract: testUSDC,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
