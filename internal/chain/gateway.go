// Package chain is the Relayer's single point of contact with the chain: it
// reads market/proposal/participant state, verifies attestation signatures,
// and submits finalization transactions. It carries no business logic.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sidebet/relayer/internal/domain"
)

var (
	selGetMarketInfo         = methodSelector("getMarketInfo()")
	selGetProposal           = methodSelector("getProposal()")
	selGetParticipants       = methodSelector("getParticipants()")
	selGetAllMarkets         = methodSelector("getAllMarkets()")
	selPredictMarketAddress  = methodSelector("predictMarketAddress(string,uint256,address,uint256,uint256)")
	selFinalize              = methodSelector("finalize(bytes[],uint256[],address[])")
)

// Config holds the parameters needed to construct a Gateway.
type Config struct {
	RPCURL         string
	ChainID        int64
	FactoryAddress string // optional; empty disables factory-backed operations
	PrivateKeyHex  string
	ReadTimeout    time.Duration
	FinalizeTimeout time.Duration
}

// Gateway is a thin, typed wrapper around the chain JSON-RPC endpoint. It is
// stateless except for its connection and the relayer's own hot wallet,
// which is used only by FinalizeMarket.
type Gateway struct {
	client      *ethclient.Client
	chainID     int64
	factory     common.Address
	hasFactory  bool
	privateKey  *ecdsa.PrivateKey
	relayerAddr common.Address
	readTimeout time.Duration
	finalizeTimeout time.Duration
}

// New dials the configured RPC endpoint and derives the relayer's signing
// address from its private key.
func New(ctx context.Context, cfg Config) (*Gateway, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", cfg.RPCURL, err)
	}

	keyHex := strings.TrimPrefix(cfg.PrivateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("chain: invalid relayer private key: %w", err)
	}

	g := &Gateway{
		client:      client,
		chainID:     cfg.ChainID,
		privateKey:  pk,
		relayerAddr: ethcrypto.PubkeyToAddress(pk.PublicKey),
		readTimeout: cfg.ReadTimeout,
		finalizeTimeout: cfg.FinalizeTimeout,
	}
	if g.readTimeout == 0 {
		g.readTimeout = 30 * time.Second
	}
	if g.finalizeTimeout == 0 {
		g.finalizeTimeout = 60 * time.Second
	}

	if strings.TrimSpace(cfg.FactoryAddress) != "" {
		g.factory = common.HexToAddress(cfg.FactoryAddress)
		g.hasFactory = true
	}

	return g, nil
}

// RelayerAddress returns the address of the relayer's hot wallet.
func (g *Gateway) RelayerAddress() string {
	return strings.ToLower(g.relayerAddr.Hex())
}

// Close releases the underlying RPC connection.
func (g *Gateway) Close() {
	g.client.Close()
}

func (g *Gateway) callContract(ctx context.Context, target common.Address, calldata []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.readTimeout)
	defer cancel()

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{
		To:   &target,
		Data: calldata,
	}, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrChainUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrContractCall, err)
	}
	return out, nil
}

// GetMarketInfo reads a market's static and mutable metadata from the chain.
func (g *Gateway) GetMarketInfo(ctx context.Context, addr string) (domain.Market, error) {
	target := common.HexToAddress(addr)
	out, err := g.callContract(ctx, target, selGetMarketInfo)
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: get market info %s: %w", addr, err)
	}

	vals, err := getMarketInfoArgs.Unpack(out)
	if err != nil {
		return domain.Market{}, fmt.Errorf("chain: unpack market info %s: %w: %v", addr, domain.ErrContractCall, err)
	}

	m := domain.Market{
		Address:          domain.NormalizeAddress(addr),
		Topic:            vals[0].(string),
		ThresholdPercent: int(vals[1].(*big.Int).Int64()),
		StakingToken:     domain.NormalizeAddress(vals[2].(common.Address).Hex()),
		ParticipantCount: int(vals[3].(*big.Int).Int64()),
		TotalStaked:      vals[4].(*big.Int),
		Status:           domain.MarketStatus(vals[5].(uint8)),
		CreatedAt:        secondsToTime(vals[6].(*big.Int)),
	}
	if proposedAt := vals[7].(*big.Int); proposedAt.Sign() > 0 {
		t := secondsToTime(proposedAt)
		m.ProposedAt = &t
	}
	if resolvedAt := vals[8].(*big.Int); resolvedAt.Sign() > 0 {
		t := secondsToTime(resolvedAt)
		m.ResolvedAt = &t
	}
	return m, nil
}

// GetProposal returns the market's active proposal, or nil if the contract
// reports attestation_count=0 (spec §4.1).
func (g *Gateway) GetProposal(ctx context.Context, addr string) (*domain.Proposal, error) {
	target := common.HexToAddress(addr)
	out, err := g.callContract(ctx, target, selGetProposal)
	if err != nil {
		return nil, fmt.Errorf("chain: get proposal %s: %w", addr, err)
	}

	vals, err := getProposalArgs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack proposal %s: %w: %v", addr, domain.ErrContractCall, err)
	}

	attestationCount := vals[4].(*big.Int)
	if attestationCount.Sign() == 0 {
		return nil, nil
	}

	evidenceHash := vals[3].([32]byte)

	p := &domain.Proposal{
		Market:           domain.NormalizeAddress(addr),
		Proposer:         domain.NormalizeAddress(vals[0].(common.Address).Hex()),
		Outcome:          domain.Outcome(vals[1].(uint8)),
		DisputeUntil:     secondsToTime(vals[2].(*big.Int)),
		EvidenceHash:     common.Bytes2Hex(evidenceHash[:]),
		AttestationCount: int(attestationCount.Int64()),
		IsDisputed:       vals[5].(bool),
		CreatedAt:        secondsToTime(vals[6].(*big.Int)),
	}
	return p, nil
}

// GetParticipants returns all participants mirrored for a market.
func (g *Gateway) GetParticipants(ctx context.Context, addr string) ([]domain.Participant, error) {
	target := common.HexToAddress(addr)
	out, err := g.callContract(ctx, target, selGetParticipants)
	if err != nil {
		return nil, fmt.Errorf("chain: get participants %s: %w", addr, err)
	}

	vals, err := getParticipantsArgs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack participants %s: %w: %v", addr, domain.ErrContractCall, err)
	}

	wallets := vals[0].([]common.Address)
	stakes := vals[1].([]*big.Int)
	outcomes := vals[2].([]uint8)
	attested := vals[3].([]bool)

	market := domain.NormalizeAddress(addr)
	out2 := make([]domain.Participant, len(wallets))
	for i := range wallets {
		out2[i] = domain.Participant{
			Market:      market,
			User:        domain.NormalizeAddress(wallets[i].Hex()),
			Stake:       stakes[i],
			Outcome:     domain.Outcome(outcomes[i]),
			HasAttested: attested[i],
		}
	}
	return out2, nil
}

// GetAllMarkets lists every market address the factory has deployed. Returns
// an empty slice if no factory is configured.
func (g *Gateway) GetAllMarkets(ctx context.Context) ([]string, error) {
	if !g.hasFactory {
		return []string{}, nil
	}

	out, err := g.callContract(ctx, g.factory, selGetAllMarkets)
	if err != nil {
		return nil, fmt.Errorf("chain: get all markets: %w", err)
	}

	vals, err := getAllMarketsArgs.Unpack(out)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack all markets: %w: %v", domain.ErrContractCall, err)
	}

	addrs := vals[0].([]common.Address)
	out2 := make([]string, len(addrs))
	for i, a := range addrs {
		out2[i] = domain.NormalizeAddress(a.Hex())
	}
	return out2, nil
}

// PredictMarketAddress delegates deterministic address derivation to the
// factory contract.
func (g *Gateway) PredictMarketAddress(ctx context.Context, topic string, thresholdPercent int, token string, minStake, salt *big.Int) (string, error) {
	if !g.hasFactory {
		return "", fmt.Errorf("chain: predict market address: %w: factory not configured", domain.ErrContractCall)
	}

	packed, err := predictMarketAddressArgsIn.Pack(topic, big.NewInt(int64(thresholdPercent)), common.HexToAddress(token), minStake, salt)
	if err != nil {
		return "", fmt.Errorf("chain: pack predict market address args: %w", err)
	}
	calldata := append(append([]byte{}, selPredictMarketAddress...), packed...)

	out, err := g.callContract(ctx, g.factory, calldata)
	if err != nil {
		return "", fmt.Errorf("chain: predict market address: %w", err)
	}

	vals, err := predictMarketAddressArgs.Unpack(out)
	if err != nil {
		return "", fmt.Errorf("chain: unpack predict market address: %w: %v", domain.ErrContractCall, err)
	}
	return domain.NormalizeAddress(vals[0].(common.Address).Hex()), nil
}

// VerifyAttestation recovers the signer from sig under the Sidebet typed-data
// domain and compares it case-insensitively to claimedSigner.
func (g *Gateway) VerifyAttestation(sig, claimedSigner, market string, outcome domain.Outcome, nonce *big.Int) bool {
	return verifyAttestation(g.chainID, sig, claimedSigner, market, outcome, nonce)
}

// ChainNowSeconds returns the latest block's timestamp, used as the chain's
// notion of "now" for dispute-window comparisons.
func (g *Gateway) ChainNowSeconds(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, g.readTimeout)
	defer cancel()

	header, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%w: %v", domain.ErrChainUnavailable, err)
		}
		return 0, fmt.Errorf("%w: %v", domain.ErrChainUnavailable, err)
	}
	return int64(header.Time), nil
}

// FinalizeMarket submits the finalize transaction with the given attestation
// bundle and awaits one confirmation.
func (g *Gateway) FinalizeMarket(ctx context.Context, market string, bundle domain.FinalizationBundle) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.finalizeTimeout)
	defer cancel()

	target := common.HexToAddress(market)

	sigs := make([][]byte, len(bundle.Signatures))
	for i, s := range bundle.Signatures {
		b, err := decodeHex(strings.TrimPrefix(s, "0x"))
		if err != nil {
			return "", fmt.Errorf("chain: decode signature %d: %w", i, err)
		}
		sigs[i] = b
	}
	signers := make([]common.Address, len(bundle.Signers))
	for i, s := range bundle.Signers {
		signers[i] = common.HexToAddress(s)
	}

	packed, err := finalizeArgsIn.Pack(sigs, bundle.Nonces, signers)
	if err != nil {
		return "", fmt.Errorf("chain: pack finalize args: %w", err)
	}
	calldata := append(append([]byte{}, selFinalize...), packed...)

	nonce, err := g.client.PendingNonceAt(ctx, g.relayerAddr)
	if err != nil {
		return "", fmt.Errorf("%w: nonce lookup: %v", domain.ErrChainUnavailable, err)
	}
	gasPrice, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: gas price: %v", domain.ErrChainUnavailable, err)
	}
	gasLimit, err := g.client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.relayerAddr,
		To:   &target,
		Data: calldata,
	})
	if err != nil {
		return "", fmt.Errorf("%w: estimate gas: %v", domain.ErrContractCall, err)
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &target,
		Value:    big.NewInt(0),
		Gas:      gasLimit + gasLimit/5, // 20% headroom
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signer := types.LatestSignerForChainID(big.NewInt(g.chainID))
	rawTx, err := types.SignTx(unsigned, signer, g.privateKey)
	if err != nil {
		return "", fmt.Errorf("chain: sign finalize tx: %w", err)
	}

	if err := g.client.SendTransaction(ctx, rawTx); err != nil {
		return "", fmt.Errorf("%w: send finalize tx: %v", domain.ErrContractCall, err)
	}

	receipt, err := bind.WaitMined(ctx, g.client, rawTx)
	if err != nil {
		return "", fmt.Errorf("%w: await confirmation: %v", domain.ErrContractCall, err)
	}
	if receipt.Status == 0 {
		return "", fmt.Errorf("%w: finalize tx reverted (hash=%s)", domain.ErrContractCall, rawTx.Hash().Hex())
	}

	return rawTx.Hash().Hex(), nil
}

func secondsToTime(v *big.Int) time.Time {
	return time.Unix(v.Int64(), 0).UTC()
}
