package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Password = "hunter2"

	out := RedactedConfig(&cfg)

	require.Equal(t, redacted, out.Chain.RelayerPrivateKey)
	require.Equal(t, redacted, out.Database.DSN)
	require.Equal(t, redacted, out.Redis.Password)
}

func TestRedactedConfigLeavesNonSecretFieldsIntact(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 9090

	out := RedactedConfig(&cfg)

	require.Equal(t, 9090, out.Server.Port)
	require.Equal(t, cfg.Chain.ChainID, out.Chain.ChainID)
}

func TestRedactedConfigDoesNotMutateOriginal(t *testing.T) {
	cfg := validConfig()
	original := cfg.Chain.RelayerPrivateKey

	_ = RedactedConfig(&cfg)

	require.Equal(t, original, cfg.Chain.RelayerPrivateKey)
}

func TestRedactedConfigCopiesCORSOriginsSlice(t *testing.T) {
	cfg := validConfig()
	cfg.Server.CORSOrigins = []string{"https://a.example.com"}

	out := RedactedConfig(&cfg)
	out.Server.CORSOrigins[0] = "mutated"

	require.Equal(t, "https://a.example.com", cfg.Server.CORSOrigins[0], "redacted copy must not alias the original slice")
}

func TestRedactLeavesEmptyStringsUntouched(t *testing.T) {
	s := ""
	redact(&s)
	require.Equal(t, "", s)
}
