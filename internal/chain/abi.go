package chain

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// methodSelector returns the 4-byte function selector for a Solidity method
// signature, e.g. "getMarketInfo()".
func methodSelector(signature string) []byte {
	return ethcrypto.Keccak256([]byte(signature))[:4]
}

// mustType panics on a malformed ABI type string; all call sites here use
// literal, known-good type strings, so a panic would indicate a programming
// error caught immediately in development.
func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic("chain: bad abi type " + t + ": " + err.Error())
	}
	return typ
}

var (
	addressT   = mustType("address")
	uint256T   = mustType("uint256")
	uint8T     = mustType("uint8")
	stringT    = mustType("string")
	boolT      = mustType("bool")
	bytes32T   = mustType("bytes32")
	bytesT     = mustType("bytes")
	addressArr = mustType("address[]")
	uint256Arr = mustType("uint256[]")
	uint8Arr   = mustType("uint8[]")
	boolArr    = mustType("bool[]")
	bytesArr   = mustType("bytes[]")
)

// getMarketInfoArgs is the return tuple of MarketContract.getMarketInfo().
var getMarketInfoArgs = abi.Arguments{
	{Type: stringT},  // topic
	{Type: uint256T}, // thresholdPercent
	{Type: addressT}, // stakingToken
	{Type: uint256T}, // participantCount
	{Type: uint256T}, // totalStaked
	{Type: uint8T},   // status
	{Type: uint256T}, // createdAt
	{Type: uint256T}, // proposedAt
	{Type: uint256T}, // resolvedAt
}

// getProposalArgs is the return tuple of MarketContract.getProposal().
var getProposalArgs = abi.Arguments{
	{Type: addressT}, // proposer
	{Type: uint8T},   // outcome
	{Type: uint256T}, // disputeUntil
	{Type: bytes32T}, // evidenceHash
	{Type: uint256T}, // attestationCount
	{Type: boolT},    // isDisputed
	{Type: uint256T}, // createdAt
}

// getParticipantsArgs is the return tuple of MarketContract.getParticipants().
var getParticipantsArgs = abi.Arguments{
	{Type: addressArr}, // wallets
	{Type: uint256Arr}, // stakes
	{Type: uint8Arr},   // outcomes
	{Type: boolArr},    // hasAttested
}

// getAllMarketsArgs is the return tuple of Factory.getAllMarkets().
var getAllMarketsArgs = abi.Arguments{
	{Type: addressArr},
}

// predictMarketAddressArgs is the return tuple of Factory.predictMarketAddress(...).
var predictMarketAddressArgs = abi.Arguments{
	{Type: addressT},
}

// finalizeArgsIn is the input tuple of MarketContract.finalize(bytes[],uint256[],address[]).
var finalizeArgsIn = abi.Arguments{
	{Type: bytesArr},
	{Type: uint256Arr},
	{Type: addressArr},
}

// predictMarketAddressArgsIn is the input tuple of
// Factory.predictMarketAddress(string,uint256,address,uint256,uint256).
var predictMarketAddressArgsIn = abi.Arguments{
	{Type: stringT},
	{Type: uint256T},
	{Type: addressT},
	{Type: uint256T},
	{Type: uint256T},
}
