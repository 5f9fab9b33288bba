package chain

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/sidebet/relayer/internal/domain"
)

// Pre-computed keccak256 of the canonical EIP-712 type strings used by the
// Sidebet attestation domain (spec §6).
var (
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)
	attestationTypeHash = ethcrypto.Keccak256(
		[]byte("Attestation(address market,uint256 outcome,uint256 nonce)"),
	)
	domainNameHash    = ethcrypto.Keccak256([]byte("Sidebet"))
	domainVersionHash = ethcrypto.Keccak256([]byte("1"))
)

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash,
// versionHash, chainId, verifyingContract)) for the given chain and market.
func domainSeparator(chainID int64, market common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			domainNameHash,
			domainVersionHash,
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(market.Bytes(), 32),
		),
	)
}

// attestationStructHash returns keccak256(abi.encode(typeHash, market,
// outcome, nonce)).
func attestationStructHash(market common.Address, outcome domain.Outcome, nonce *big.Int) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			attestationTypeHash,
			common.LeftPadBytes(market.Bytes(), 32),
			bigIntTo32Bytes(big.NewInt(int64(outcome))),
			bigIntTo32Bytes(nonce),
		),
	)
}

// attestationDigest computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func attestationDigest(chainID int64, market common.Address, outcome domain.Outcome, nonce *big.Int) []byte {
	sep := domainSeparator(chainID, market)
	structHash := attestationStructHash(market, outcome, nonce)
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, sep, structHash))
}

// verifyAttestation recovers the signer of sig over the attestation digest
// and compares it case-insensitively to claimedSigner. Any malformed input
// (bad hex, wrong length, unrecoverable signature) yields false rather than
// an error, per spec §4.1's "any exception -> false".
func verifyAttestation(chainID int64, sig, claimedSigner, market string, outcome domain.Outcome, nonce *big.Int) bool {
	if nonce == nil {
		return false
	}

	sigBytes, err := decodeSignature(sig)
	if err != nil {
		return false
	}

	marketAddr := common.HexToAddress(market)
	digest := attestationDigest(chainID, marketAddr, outcome, nonce)

	pub, err := ethcrypto.SigToPub(digest, sigBytes)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)

	return strings.EqualFold(recovered.Hex(), claimedSigner)
}

// decodeSignature parses a 0x-prefixed 65-byte hex signature and normalizes
// its recovery byte to the {0,1} range ecrecover expects.
func decodeSignature(sig string) ([]byte, error) {
	sig = strings.TrimPrefix(sig, "0x")
	raw, err := decodeHex(sig)
	if err != nil {
		return nil, err
	}
	if len(raw) != 65 {
		return nil, errInvalidSignatureLength
	}
	out := make([]byte, 65)
	copy(out, raw)
	if out[64] >= 27 {
		out[64] -= 27
	}
	return out, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
