package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/stormzy/iroha/types"
)

// PeerConfig locates one peer of the network.
type PeerConfig struct {
	ID      string `mapstructure:"id"`
	Address string `mapstructure:"address"`
}

func (p PeerConfig) Peer() types.Peer {
	return types.Peer{ID: p.ID, Address: p.Address}
}

// Config carries the node's ordering pipeline parameters.
type Config struct {
	// TransactionLimit bounds the number of transactions in an emitted
	// proposal.
	TransactionLimit int `mapstructure:"transaction_limit"`

	// NumberOfProposals bounds how many emitted proposals are retained
	// before the eldest is evicted.
	NumberOfProposals int `mapstructure:"number_of_proposals"`

	// InitialHeight and InitialReject form the starting round.
	InitialHeight uint64 `mapstructure:"initial_height"`
	InitialReject uint32 `mapstructure:"initial_reject"`

	// RequestTimeout bounds a proposal request to the issuer.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// ListenAddress is the multiaddr the transport listens on.
	ListenAddress string `mapstructure:"listen_address"`

	// Peers assigns network peers to the ordering slots. Empty means a
	// single-peer deployment served over the in-process loopback.
	Peers []PeerConfig `mapstructure:"peers"`
}

// InitialRound returns the starting round of the pipeline.
func (c *Config) InitialRound() types.Round {
	return types.Round{Height: c.InitialHeight, Reject: c.InitialReject}
}

func (c *Config) Validate() error {
	if c.TransactionLimit <= 0 {
		return fmt.Errorf("transaction_limit must be positive, got %d", c.TransactionLimit)
	}
	if c.NumberOfProposals <= 0 {
		return fmt.Errorf("number_of_proposals must be positive, got %d", c.NumberOfProposals)
	}
	if c.InitialReject < types.FirstReject {
		return fmt.Errorf("initial_reject must be at least %d, got %d", types.FirstReject, c.InitialReject)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transaction_limit", 100)
	v.SetDefault("number_of_proposals", 16)
	v.SetDefault("initial_height", 1)
	v.SetDefault("initial_reject", types.FirstReject)
	v.SetDefault("request_timeout", 5*time.Second)
	v.SetDefault("listen_address", "/ip4/127.0.0.1/tcp/10101")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the named config file (yaml, toml or json by extension) from
// path, applying defaults for missing keys.
func Load(path, name string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigName(name)
	if path == "" {
		path = "."
	}
	v.AddConfigPath(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
