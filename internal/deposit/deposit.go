// Package deposit issues signed receipts for simulated deposits.
// Nothing is ever broadcast to a chain: the receipt carries a
// deterministic fake transaction hash and an Ethereum-scheme signature
// from a key generated at startup, so clients can exercise their
// deposit flow end to end against data that looks real.
package deposit

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Validation errors for deposit requests
var (
	ErrInvalidAddress = errors.New("invalid wallet address")
	ErrInvalidAmount  = errors.New("amount must be positive")
)

// Receipt is the simulated confirmation returned for a deposit request
type Receipt struct {
	// TxHash is a deterministic Keccak256 of the deposit parameters,
	// formatted like a transaction hash. It does not exist on any chain.
	TxHash string `json:"tx_hash"`

	// Wallet is the EIP-55 checksummed form of the requested address
	Wallet string `json:"wallet"`

	PoolID string          `json:"pool_id"`
	Amount decimal.Decimal `json:"amount"`

	// Nonce makes repeated deposits with the same parameters distinct
	Nonce uint64 `json:"nonce"`

	// Signature is the Ethereum-scheme signature over the hash preimage,
	// SignedBy the uncompressed public key of the issuing service
	Signature string `json:"signature"`
	SignedBy  string `json:"signed_by"`

	// Simulated is always true
	Simulated bool `json:"simulated"`

	CreatedAt time.Time `json:"created_at"`
}

// Service signs simulated deposit receipts with a per-process key
type Service struct {
	key    *ecdsa.PrivateKey
	signer string

	mu    sync.Mutex
	nonce uint64
}

// NewService generates the signing key for this process
func NewService() (*Service, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate deposit signing key: %w", err)
	}

	signer := fmt.Sprintf("0x%x", crypto.FromECDSAPub(&key.PublicKey))
	logrus.Infof("Deposit signer initialized with public key: %s...", signer[:18])

	return &Service{key: key, signer: signer}, nil
}

// Simulate validates the request and issues a signed receipt
func (s *Service) Simulate(wallet, poolID string, amount decimal.Decimal) (Receipt, error) {
	if !common.IsHexAddress(wallet) {
		return Receipt{}, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}
	if !amount.IsPositive() {
		return Receipt{}, ErrInvalidAmount
	}

	addr := common.HexToAddress(wallet)
	nonce := s.nextNonce()

	hash := receiptHash(addr, poolID, amount, nonce)
	signature, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to sign receipt: %w", err)
	}

	receipt := Receipt{
		TxHash:    hash.Hex(),
		Wallet:    addr.Hex(),
		PoolID:    poolID,
		Amount:    amount,
		Nonce:     nonce,
		Signature: fmt.Sprintf("0x%x", signature),
		SignedBy:  s.signer,
		Simulated: true,
		CreatedAt: time.Now().UTC(),
	}

	logrus.WithFields(logrus.Fields{
		"wallet":  receipt.Wallet,
		"pool_id": poolID,
		"amount":  amount.String(),
		"tx_hash": receipt.TxHash,
	}).Info("Issued simulated deposit receipt")

	return receipt, nil
}

// Verify checks that a receipt was issued and signed by this service
func (s *Service) Verify(r Receipt) (bool, error) {
	if !common.IsHexAddress(r.Wallet) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAddress, r.Wallet)
	}

	hash := receiptHash(common.HexToAddress(r.Wallet), r.PoolID, r.Amount, r.Nonce)
	if hash.Hex() != r.TxHash {
		return false, errors.New("tx hash does not match receipt contents")
	}

	signature, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
	if err != nil {
		return false, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(signature) != crypto.SignatureLength {
		return false, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	pub, err := crypto.SigToPub(hash.Bytes(), signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != crypto.PubkeyToAddress(s.key.PublicKey) {
		return false, errors.New("receipt signed by unknown key")
	}

	return true, nil
}

// Signer returns the hex-encoded public key receipts are signed with
func (s *Service) Signer() string {
	return s.signer
}

func (s *Service) nextNonce() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonce++
	return s.nonce
}

// receiptHash is the deterministic preimage every receipt commits to.
// Lowercased address keeps checksummed and plain inputs equivalent.
func receiptHash(addr common.Address, poolID string, amount decimal.Decimal, nonce uint64) common.Hash {
	seed := fmt.Sprintf("%s|%s|%s|%d", strings.ToLower(addr.Hex()), poolID, amount.String(), nonce)
	return crypto.Keccak256Hash([]byte(seed))
}
