package verifier

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/learnchain/gatehouse/core"
)

// EthVerifier checks an EIP-191 personal-sign signature of the challenge
// message by recovering the signer and comparing it to the claimed address.
type EthVerifier struct{}

func NewEthVerifier() *EthVerifier {
	return &EthVerifier{}
}

func (v *EthVerifier) Verify(address, message, signature string) error {
	if !common.IsHexAddress(address) {
		return core.ErrInvalidAddress
	}

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != 65 {
		return fmt.Errorf("signature must be 65 bytes: %w", core.ErrInvalidSignature)
	}

	// Wallets emit V as 27/28, crypto.SigToPub wants 0/1.
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}

	if crypto.PubkeyToAddress(*pubKey) != common.HexToAddress(address) {
		return core.ErrInvalidSignature
	}
	return nil
}

// NopVerifier accepts every signature. For tests and deployments where proof
// of key control is handled upstream.
type NopVerifier struct{}

func (NopVerifier) Verify(address, message, signature string) error { return nil }
