package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Chain.RPCURL = "https://rpc.example.com"
	cfg.Chain.RelayerPrivateKey = "0xdeadbeef"
	cfg.Database.DSN = "postgres://localhost/relayer"
	return cfg
}

func TestDefaultsAreValidOnceRequiredFieldsAreSet(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestValidateCatchesMissingRequiredFields(t *testing.T) {
	cfg := Defaults()
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "rpc_url")
	require.Contains(t, err.Error(), "relayer_private_key")
	require.Contains(t, err.Error(), "dsn")
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "port")
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "log_level")
}

func TestValidateRejectsMinConnsAboveMaxConns(t *testing.T) {
	cfg := validConfig()
	cfg.Database.PoolMinConns = 20
	cfg.Database.PoolMaxConns = 10
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool_min_conns")
}

func TestWriteMaxRequestsIsAFifthOfDefaultFlooredAtTen(t *testing.T) {
	require.Equal(t, 20, RateLimitConfig{MaxRequests: 100}.WriteMaxRequests())
	require.Equal(t, 10, RateLimitConfig{MaxRequests: 30}.WriteMaxRequests())
	require.Equal(t, 10, RateLimitConfig{MaxRequests: 1}.WriteMaxRequests())
}

func TestWindowConvertsMillisecondsToDuration(t *testing.T) {
	r := RateLimitConfig{WindowMs: 60000}
	require.Equal(t, "1m0s", r.Window().String())
}

func TestMaxProposalAgeConvertsHoursToDuration(t *testing.T) {
	s := SignatureConfig{MaxProposalAgeHours: 24}
	require.Equal(t, "24h0m0s", s.MaxProposalAge().String())
}
