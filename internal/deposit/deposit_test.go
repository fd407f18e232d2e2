package deposit

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const burnAddress = "0x000000000000000000000000000000000000dead"

func TestSimulateIssuesSignedReceipt(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	receipt, err := svc.Simulate(burnAddress, "pool-1", decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.True(t, receipt.Simulated)
	assert.True(t, strings.HasPrefix(receipt.TxHash, "0x"))
	assert.Len(t, receipt.TxHash, 66)
	assert.Equal(t, "pool-1", receipt.PoolID)
	assert.Equal(t, uint64(1), receipt.Nonce)
	assert.Equal(t, svc.Signer(), receipt.SignedBy)
	assert.False(t, receipt.CreatedAt.IsZero())

	// Hex().Hex round trips through the EIP-55 checksummed form
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", receipt.Wallet)

	ok, err := svc.Verify(receipt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimulateRejectsBadInput(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	_, err = svc.Simulate("not-an-address", "pool-1", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = svc.Simulate(burnAddress, "pool-1", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Simulate(burnAddress, "pool-1", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestNoncesMakeRepeatedDepositsDistinct(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	first, err := svc.Simulate(burnAddress, "pool-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	second, err := svc.Simulate(burnAddress, "pool-1", decimal.NewFromInt(100))
	require.NoError(t, err)

	assert.NotEqual(t, first.TxHash, second.TxHash)
	assert.Equal(t, first.Nonce+1, second.Nonce)
}

func TestVerifyRejectsTamperedReceipt(t *testing.T) {
	svc, err := NewService()
	require.NoError(t, err)

	receipt, err := svc.Simulate(burnAddress, "pool-1", decimal.NewFromInt(500))
	require.NoError(t, err)

	tampered := receipt
	tampered.Amount = decimal.NewFromInt(5000)
	ok, err := svc.Verify(tampered)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignSigner(t *testing.T) {
	issuer, err := NewService()
	require.NoError(t, err)
	other, err := NewService()
	require.NoError(t, err)

	receipt, err := issuer.Simulate(burnAddress, "pool-1", decimal.NewFromInt(500))
	require.NoError(t, err)

	ok, err := other.Verify(receipt)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestReceiptHashIsDeterministic(t *testing.T) {
	amount := decimal.NewFromInt(100)

	// Case of the input address must not change the preimage
	lower := receiptHash(common.HexToAddress(burnAddress), "pool-1", amount, 7)
	checksummed := receiptHash(common.HexToAddress("0x000000000000000000000000000000000000dEaD"), "pool-1", amount, 7)
	assert.Equal(t, lower, checksummed)

	assert.NotEqual(t, lower, receiptHash(common.HexToAddress(burnAddress), "pool-1", amount, 8))
	assert.NotEqual(t, lower, receiptHash(common.HexToAddress(burnAddress), "pool-2", amount, 7))
}
