package config

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/quorum"
	"github.com/mezonai/quorumcoin/store"
)

// SelfNode describes the replica this process runs
type SelfNode struct {
	ID          string `yaml:"id"`
	PrivKeyPath string `yaml:"privkey_path"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

type LedgerSection struct {
	GenesisGrant       uint64        `yaml:"genesis_grant"`
	FreshnessTolerance time.Duration `yaml:"freshness_tolerance"`
	MaxJoinLinks       int           `yaml:"max_join_links"`
}

// NodeConfig is the replica configuration file
type NodeConfig struct {
	SelfNode SelfNode          `yaml:"self_node"`
	Store    store.StoreConfig `yaml:"store"`
	Ledger   LedgerSection     `yaml:"ledger"`
}

func (n *NodeConfig) LedgerConfig() ledger.Config {
	return ledger.Config{
		GenesisGrant:       uint256.NewInt(n.Ledger.GenesisGrant),
		FreshnessTolerance: n.Ledger.FreshnessTolerance,
		MaxJoinLinks:       n.Ledger.MaxJoinLinks,
	}
}

// ReplicaConfig is one replica known to a client
type ReplicaConfig struct {
	ID        string `yaml:"id"`
	URL       string `yaml:"url"`
	PublicKey string `yaml:"public_key"`
}

// ClientConfig is the client configuration file
type ClientConfig struct {
	Replicas       []ReplicaConfig `yaml:"replicas"`
	Threshold      int             `yaml:"threshold"`
	WaitTimeout    time.Duration   `yaml:"wait_timeout"`
	ReplicaTimeout time.Duration   `yaml:"replica_timeout"`
	WalletKeyPath  string          `yaml:"wallet_key_path"`
}

func (c *ClientConfig) QuorumConfig() quorum.Config {
	return quorum.Config{
		Threshold:      c.Threshold,
		WaitTimeout:    c.WaitTimeout,
		ReplicaTimeout: c.ReplicaTimeout,
	}
}

func (c *ClientConfig) ReplicaClientConfigs() []client.Config {
	out := make([]client.Config, len(c.Replicas))
	for i, r := range c.Replicas {
		out[i] = client.Config{
			ID:        r.ID,
			Endpoint:  r.URL,
			PublicKey: r.PublicKey,
			Timeout:   c.ReplicaTimeout,
		}
	}
	return out
}

// RPCTuning is the [rpc] section of the tuning file
type RPCTuning struct {
	RateLimitIP      int    `ini:"rate_limit_ip"`
	RateLimitAccount int    `ini:"rate_limit_account"`
	RateLimitGlobal  int    `ini:"rate_limit_global"`
	RateWindowMs     int    `ini:"rate_window_ms"`
	CORSOrigins      string `ini:"cors_allowed_origins"`
	CORSMethods      string `ini:"cors_allowed_methods"`
	CORSHeaders      string `ini:"cors_allowed_headers"`
	CORSMaxAge       int    `ini:"cors_max_age"`
}

// QuorumTuning is the [quorum] section of the tuning file; zero values keep the YAML settings
type QuorumTuning struct {
	Threshold        int `ini:"threshold"`
	WaitTimeoutMs    int `ini:"wait_timeout_ms"`
	ReplicaTimeoutMs int `ini:"replica_timeout_ms"`
}

type TuningConfig struct {
	RPC    RPCTuning
	Quorum QuorumTuning
}
