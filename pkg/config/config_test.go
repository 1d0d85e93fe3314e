package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

const validConfig = `
database:
  host: db
  user: relayer
  password: ${RELAYER_DB_PASSWORD}
relayer:
  address: "0x00000000000000000000000000000000000000aa"
chains:
  - name: native
    id: 3068
    rpc_url: http://native:8545
    block_confirmations: 5
    get_logs_batch_size: 1
    call_interval: 2000
    is_native: true
    socket_address: "0x1111111111111111111111111111111111111111"
    vault_address: "0x2222222222222222222222222222222222222222"
    authority_address: "0x3333333333333333333333333333333333333333"
    relayer_manager_address: "0x4444444444444444444444444444444444444444"
  - name: ethereum
    id: 1
    rpc_url: http://eth:8545
    block_confirmations: 10
    get_logs_batch_size: 2000
    socket_address: "0x5555555555555555555555555555555555555555"
    vault_address: "0x6666666666666666666666666666666666666666"
    authority_address: "0x7777777777777777777777777777777777777777"
    chainlink_usdc_usd_address: "0x8888888888888888888888888888888888888888"
bootstrap:
  enabled: true
  block_chunk_size: 500
`

func TestParse_AppliesDefaultsAndEnv(t *testing.T) {
	t.Setenv("RELAYER_DB_PASSWORD", "secret")

	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 256, cfg.Relayer.QueueSize)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.Len(t, cfg.Chains, 2)
	assert.Equal(t, uint64(3000), cfg.Chains[1].CallInterval)
	assert.Nil(t, cfg.Chains[1].RelayerManagerAddress)

	assert.True(t, cfg.Bootstrap.Enabled)
	constants := cfg.Bootstrap.ProtocolConstants()
	assert.Equal(t, uint64(500), constants.BlockChunkSize)
	assert.Equal(t, uint64(100), constants.BlockOffset)
	assert.Equal(t, 3*time.Second, constants.NativeBlockTime)
	assert.Equal(t, 12*time.Second, constants.ExternalBlockTime)
	assert.Equal(t, time.Hour, cfg.Bootstrap.Lookback)

	native := cfg.NativeChain()
	require.NotNil(t, native)
	assert.Equal(t, "native", native.Name)
}

func TestChainConfig_Metadata(t *testing.T) {
	cfg, err := Parse([]byte(validConfig))
	require.NoError(t, err)

	meta, err := cfg.Chains[1].Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(2010), meta.BlockConfirmations())
	assert.Equal(t, primitives.Outbound, meta.Direction())
	assert.Equal(t, 3*time.Second, meta.CallInterval())

	addrs := cfg.Chains[1].Addresses()
	require.NotNil(t, addrs.ChainlinkUSDCUSD)
	assert.Nil(t, addrs.ChainlinkDAIUSD)
}

func TestParse_ExplicitZeroConfirmations(t *testing.T) {
	doc := `
chains:
  - name: native
    id: 3068
    rpc_url: http://native:8545
    block_confirmations: 0
    is_native: true
    socket_address: "0x1111111111111111111111111111111111111111"
    vault_address: "0x2222222222222222222222222222222222222222"
    authority_address: "0x3333333333333333333333333333333333333333"
  - name: ethereum
    id: 1
    rpc_url: http://eth:8545
    socket_address: "0x5555555555555555555555555555555555555555"
    vault_address: "0x6666666666666666666666666666666666666666"
    authority_address: "0x7777777777777777777777777777777777777777"
`
	cfg, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cfg.Chains, 2)

	assert.Equal(t, uint64(0), cfg.Chains[0].BlockConfirmations)
	assert.Equal(t, uint64(1), cfg.Chains[0].GetLogsBatchSize)
	meta, err := cfg.Chains[0].Metadata()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), meta.BlockConfirmations())

	// omitted fields still take their defaults
	assert.Equal(t, uint64(12), cfg.Chains[1].BlockConfirmations)
	assert.Equal(t, uint64(3000), cfg.Chains[1].CallInterval)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no chains", "database:\n  host: db\n"},
		{"no native chain", `
chains:
  - {name: a, id: 1, rpc_url: x, socket_address: s, vault_address: v, authority_address: a}
`},
		{"two native chains", `
chains:
  - {name: a, id: 1, rpc_url: x, is_native: true, socket_address: s, vault_address: v, authority_address: a}
  - {name: b, id: 2, rpc_url: x, is_native: true, socket_address: s, vault_address: v, authority_address: a}
`},
		{"duplicate id", `
chains:
  - {name: a, id: 1, rpc_url: x, is_native: true, socket_address: s, vault_address: v, authority_address: a}
  - {name: b, id: 1, rpc_url: x, socket_address: s, vault_address: v, authority_address: a}
`},
		{"missing socket", `
chains:
  - {name: a, id: 1, rpc_url: x, is_native: true, vault_address: v, authority_address: a}
`},
		{"bad relayer address", `
relayer: {address: nope}
chains:
  - {name: a, id: 1, rpc_url: x, is_native: true, socket_address: s, vault_address: v, authority_address: a}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
