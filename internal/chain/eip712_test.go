package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sidebet/relayer/internal/domain"
)

func signAttestation(t *testing.T, chainID int64, market string, outcome domain.Outcome, nonce *big.Int) (string, string) {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer := ethcrypto.PubkeyToAddress(key.PublicKey).Hex()

	digest := attestationDigest(chainID, common.HexToAddress(market), outcome, nonce)
	sig, err := ethcrypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[64] += 27

	return "0x" + common.Bytes2Hex(sig), signer
}

func TestVerifyAttestationRoundTrip(t *testing.T) {
	const chainID = 8453
	const market = "0x1111111111111111111111111111111111111111"
	nonce := big.NewInt(42)

	sig, signer := signAttestation(t, chainID, market, domain.OutcomeYes, nonce)

	if !verifyAttestation(chainID, sig, signer, market, domain.OutcomeYes, nonce) {
		t.Fatal("expected valid attestation to verify")
	}
}

func TestVerifyAttestationRejectsWrongSigner(t *testing.T) {
	const chainID = 8453
	const market = "0x1111111111111111111111111111111111111111"
	nonce := big.NewInt(1)

	sig, _ := signAttestation(t, chainID, market, domain.OutcomeYes, nonce)
	otherKey, _ := ethcrypto.GenerateKey()
	otherSigner := ethcrypto.PubkeyToAddress(otherKey.PublicKey).Hex()

	if verifyAttestation(chainID, sig, otherSigner, market, domain.OutcomeYes, nonce) {
		t.Fatal("expected verification to fail for mismatched signer")
	}
}

func TestVerifyAttestationRejectsTamperedOutcome(t *testing.T) {
	const chainID = 8453
	const market = "0x1111111111111111111111111111111111111111"
	nonce := big.NewInt(7)

	sig, signer := signAttestation(t, chainID, market, domain.OutcomeYes, nonce)

	if verifyAttestation(chainID, sig, signer, market, domain.OutcomeNo, nonce) {
		t.Fatal("expected verification to fail when outcome is tampered")
	}
}

func TestVerifyAttestationRejectsMalformedSignature(t *testing.T) {
	const chainID = 8453
	const market = "0x1111111111111111111111111111111111111111"

	if verifyAttestation(chainID, "not-hex", "0xabc", market, domain.OutcomeYes, big.NewInt(1)) {
		t.Fatal("expected malformed signature to fail closed")
	}
	if verifyAttestation(chainID, "0x1234", "0xabc", market, domain.OutcomeYes, big.NewInt(1)) {
		t.Fatal("expected short signature to fail closed")
	}
	if verifyAttestation(chainID, "0xdead", "0xabc", market, domain.OutcomeYes, nil) {
		t.Fatal("expected nil nonce to fail closed")
	}
}

func TestVerifyAttestationDifferentChainIDsDiverge(t *testing.T) {
	const market = "0x1111111111111111111111111111111111111111"
	nonce := big.NewInt(3)

	sig, signer := signAttestation(t, 1, market, domain.OutcomeYes, nonce)

	if verifyAttestation(8453, sig, signer, market, domain.OutcomeYes, nonce) {
		t.Fatal("expected signature bound to one chain id to fail verification under another")
	}
}
