package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/chainsafe/cccp-relayer/pkg/ethereum/contracts"
	"github.com/chainsafe/cccp-relayer/pkg/primitives"
)

// Config represents the relayer configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Relayer    RelayerConfig    `yaml:"relayer"`
	Chains     []ChainConfig    `yaml:"chains" validate:"required,min=1,dive"`
	Bootstrap  BootstrapConfig  `yaml:"bootstrap"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`

	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"relayer"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// RelayerConfig contains settings of the relay transaction pipeline
type RelayerConfig struct {
	// Address is the relayer account used as the sender of built transactions.
	Address   string `yaml:"address" validate:"omitempty,eth_addr"`
	QueueSize int    `yaml:"queue_size" default:"256" validate:"gt=0"`
}

// ChainConfig contains the settings of one EVM chain
type ChainConfig struct {
	Name               string `yaml:"name" validate:"required"`
	ID                 uint32 `yaml:"id" validate:"gt=0"`
	RPCURL             string `yaml:"rpc_url" validate:"required"`
	BlockConfirmations uint64 `yaml:"block_confirmations" default:"12"`
	GetLogsBatchSize   uint64 `yaml:"get_logs_batch_size" default:"1" validate:"gte=1"`
	// CallInterval is the head polling interval in milliseconds.
	CallInterval uint64 `yaml:"call_interval" default:"3000" validate:"gt=0"`
	IsNative     bool   `yaml:"is_native"`

	SocketAddress         string  `yaml:"socket_address" validate:"required"`
	VaultAddress          string  `yaml:"vault_address" validate:"required"`
	AuthorityAddress      string  `yaml:"authority_address" validate:"required"`
	RelayerManagerAddress *string `yaml:"relayer_manager_address"`

	ChainlinkUSDCUSDAddress *string `yaml:"chainlink_usdc_usd_address"`
	ChainlinkUSDTUSDAddress *string `yaml:"chainlink_usdt_usd_address"`
	ChainlinkDAIUSDAddress  *string `yaml:"chainlink_dai_usd_address"`
}

// UnmarshalYAML applies the field defaults before decoding, so a value
// written explicitly, zero included, is kept.
func (c *ChainConfig) UnmarshalYAML(value *yaml.Node) error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to apply chain defaults: %w", err)
	}
	type plain ChainConfig
	return value.Decode((*plain)(c))
}

// Metadata builds the immutable chain metadata.
func (c *ChainConfig) Metadata() (*primitives.ProviderMetadata, error) {
	return primitives.NewProviderMetadata(
		c.Name,
		primitives.ChainID(c.ID),
		c.BlockConfirmations,
		c.GetLogsBatchSize,
		time.Duration(c.CallInterval)*time.Millisecond,
		c.IsNative,
	)
}

// Addresses returns the configured contract addresses.
func (c *ChainConfig) Addresses() contracts.Addresses {
	return contracts.Addresses{
		Socket:           c.SocketAddress,
		Vault:            c.VaultAddress,
		Authority:        c.AuthorityAddress,
		RelayerManager:   c.RelayerManagerAddress,
		ChainlinkUSDCUSD: c.ChainlinkUSDCUSDAddress,
		ChainlinkUSDTUSD: c.ChainlinkUSDTUSDAddress,
		ChainlinkDAIUSD:  c.ChainlinkDAIUSDAddress,
	}
}

// BootstrapConfig contains the startup catch-up settings
type BootstrapConfig struct {
	Enabled bool `yaml:"enabled"`
	// Lookback bounds how far back history is rebuilt when no safe block is stored.
	Lookback          time.Duration `yaml:"lookback" default:"1h"`
	BlockChunkSize    uint64        `yaml:"block_chunk_size" default:"2000" validate:"gt=0"`
	BlockOffset       uint64        `yaml:"block_offset" default:"100" validate:"gt=0"`
	NativeBlockTime   time.Duration `yaml:"native_block_time" default:"3s" validate:"gt=0"`
	ExternalBlockTime time.Duration `yaml:"external_block_time" default:"12s" validate:"gt=0"`
}

// ProtocolConstants returns the configured bootstrap constants.
func (c *BootstrapConfig) ProtocolConstants() primitives.ProtocolConstants {
	return primitives.ProtocolConstants{
		BlockChunkSize:    c.BlockChunkSize,
		BlockOffset:       c.BlockOffset,
		NativeBlockTime:   c.NativeBlockTime,
		ExternalBlockTime: c.ExternalBlockTime,
	}
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error dpanic panic fatal"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// Load loads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses, defaults and validates a YAML configuration document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return err
	}

	var natives int
	ids := make(map[uint32]string, len(cfg.Chains))
	for _, chain := range cfg.Chains {
		if other, ok := ids[chain.ID]; ok {
			return fmt.Errorf("chain id %d is used by both %s and %s", chain.ID, other, chain.Name)
		}
		ids[chain.ID] = chain.Name
		if chain.IsNative {
			natives++
		}
	}
	if natives != 1 {
		return errors.New("exactly one chain must be native")
	}
	return nil
}

// NativeChain returns the native chain configuration.
func (c *Config) NativeChain() *ChainConfig {
	for i := range c.Chains {
		if c.Chains[i].IsNative {
			return &c.Chains[i]
		}
	}
	return nil
}
