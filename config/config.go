package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/quorum"
	"github.com/mezonai/quorumcoin/ratelimit"
	"github.com/mezonai/quorumcoin/store"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// LoadNodeConfig reads a replica YAML file and fills defaults
func LoadNodeConfig(path string) (*NodeConfig, error) {
	var cfg NodeConfig
	if err := decodeYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.SelfNode.ID == "" {
		return nil, fmt.Errorf("self_node.id cannot be empty")
	}
	if cfg.SelfNode.ListenAddr == "" {
		cfg.SelfNode.ListenAddr = DefaultListenAddr
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = store.LevelDBStoreType
	}
	if cfg.Store.Directory == "" && (cfg.Store.Type == store.LevelDBStoreType || cfg.Store.Type == store.BoltStoreType) {
		cfg.Store.Directory = DefaultStoreDir
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if cfg.Ledger.GenesisGrant == 0 {
		cfg.Ledger.GenesisGrant = DefaultGenesisGrant
	}
	if cfg.Ledger.FreshnessTolerance <= 0 {
		cfg.Ledger.FreshnessTolerance = DefaultFreshnessTolerance
	}
	if cfg.Ledger.MaxJoinLinks <= 0 {
		cfg.Ledger.MaxJoinLinks = ledger.DefaultMaxJoinLinks
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded node config %s: id=%s store=%s", path, cfg.SelfNode.ID, cfg.Store.Type))
	return &cfg, nil
}

// LoadClientConfig reads a client YAML file and fills defaults
func LoadClientConfig(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := decodeYAML(path, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Replicas) == 0 {
		return nil, fmt.Errorf("at least one replica is required")
	}
	for i, r := range cfg.Replicas {
		if r.ID == "" || r.URL == "" || r.PublicKey == "" {
			return nil, fmt.Errorf("replica %d: id, url and public_key are required", i)
		}
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = quorum.Majority(len(cfg.Replicas))
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.ReplicaTimeout <= 0 {
		cfg.ReplicaTimeout = DefaultReplicaTimeout
	}
	logx.Info("CONFIG", fmt.Sprintf("Loaded client config %s: %d replicas, threshold %d", path, len(cfg.Replicas), cfg.Threshold))
	return &cfg, nil
}

func decodeYAML(path string, out interface{}) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// LoadTuningConfig reads the optional INI tuning file. Missing sections leave zero values.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	tuning := &TuningConfig{}
	if err := file.Section("rpc").MapTo(&tuning.RPC); err != nil {
		return nil, fmt.Errorf("section rpc: %w", err)
	}
	if err := file.Section("quorum").MapTo(&tuning.Quorum); err != nil {
		return nil, fmt.Errorf("section quorum: %w", err)
	}
	return tuning, nil
}

// Limiters builds the rate limiter configuration, falling back to defaults for unset values
func (r RPCTuning) Limiters() *ratelimit.LimitersConfig {
	window := DefaultRateWindow
	if r.RateWindowMs > 0 {
		window = time.Duration(r.RateWindowMs) * time.Millisecond
	}
	pick := func(v, def int) *ratelimit.Config {
		if v <= 0 {
			v = def
		}
		return &ratelimit.Config{MaxRequests: v, WindowSize: window, CleanupInterval: 5 * time.Minute}
	}
	return &ratelimit.LimitersConfig{
		IP:      pick(r.RateLimitIP, DefaultRateLimitIP),
		Account: pick(r.RateLimitAccount, DefaultRateLimitAccount),
		Global:  pick(r.RateLimitGlobal, DefaultRateLimitGlobal),
	}
}

// CORS splits the comma separated lists of the section
func (r RPCTuning) CORS() (origins, methods, headers []string, maxAge int) {
	return splitList(r.CORSOrigins), splitList(r.CORSMethods), splitList(r.CORSHeaders), r.CORSMaxAge
}

// Apply overrides cfg with the non-zero tuning values
func (q QuorumTuning) Apply(cfg *ClientConfig) {
	if q.Threshold > 0 {
		cfg.Threshold = q.Threshold
	}
	if q.WaitTimeoutMs > 0 {
		cfg.WaitTimeout = time.Duration(q.WaitTimeoutMs) * time.Millisecond
	}
	if q.ReplicaTimeoutMs > 0 {
		cfg.ReplicaTimeout = time.Duration(q.ReplicaTimeoutMs) * time.Millisecond
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// LoadEd25519PrivKey loads a hex encoded Ed25519 seed or full private key
func LoadEd25519PrivKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decode key %s: %w", path, err)
	}
	switch len(key) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(key), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(key), nil
	default:
		return nil, fmt.Errorf("key %s has %d bytes, want %d or %d", path, len(key), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// SaveEd25519PrivKey writes the hex seed of priv, readable by the owner only
func SaveEd25519PrivKey(path string, priv ed25519.PrivateKey) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(hex.EncodeToString(priv.Seed())), 0o600)
}
