package verifier

import (
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnchain/gatehouse/core"
)

func signMessage(t *testing.T, message string) (address, signature string) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)

	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hexutil.Encode(sig)
}

func TestEthVerifier_AcceptsValidSignature(t *testing.T) {
	message := "hello gatehouse"
	address, signature := signMessage(t, message)

	assert.NoError(t, NewEthVerifier().Verify(address, message, signature))
}

func TestEthVerifier_AcceptsLegacyRecoveryID(t *testing.T) {
	message := "hello gatehouse"
	address, signature := signMessage(t, message)

	// Browser wallets emit V as 27/28 rather than 0/1.
	sig, err := hexutil.Decode(signature)
	require.NoError(t, err)
	sig[64] += 27

	assert.NoError(t, NewEthVerifier().Verify(address, message, hexutil.Encode(sig)))
}

func TestEthVerifier_RejectsWrongSigner(t *testing.T) {
	message := "hello gatehouse"
	_, signature := signMessage(t, message)
	otherAddress, _ := signMessage(t, message)

	err := NewEthVerifier().Verify(otherAddress, message, signature)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestEthVerifier_RejectsTamperedMessage(t *testing.T) {
	address, signature := signMessage(t, "hello gatehouse")

	err := NewEthVerifier().Verify(address, "goodbye gatehouse", signature)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}

func TestEthVerifier_RejectsMalformedInput(t *testing.T) {
	address, signature := signMessage(t, "hello")

	err := NewEthVerifier().Verify("not-an-address", "hello", signature)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)

	err = NewEthVerifier().Verify(address, "hello", "not-hex")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	err = NewEthVerifier().Verify(address, "hello", "0xdeadbeef")
	assert.ErrorIs(t, err, core.ErrInvalidSignature)
}
