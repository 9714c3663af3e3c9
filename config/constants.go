package config

import "time"

const (
	DefaultGenesisGrant       = 100
	DefaultFreshnessTolerance = 30 * time.Second
	DefaultWaitTimeout        = 10 * time.Second
	DefaultReplicaTimeout     = 15 * time.Second

	DefaultListenAddr  = ":8545"
	DefaultMetricsAddr = ":9100"
	DefaultStoreDir    = "data/ledger"

	DefaultRateLimitIP      = 50
	DefaultRateLimitAccount = 20
	DefaultRateLimitGlobal  = 1000
	DefaultRateWindow       = time.Second
)
