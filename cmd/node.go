package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mezonai/quorumcoin/config"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/exception"
	"github.com/mezonai/quorumcoin/jsonrpc"
	"github.com/mezonai/quorumcoin/ledger"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/monitoring"
	"github.com/mezonai/quorumcoin/ratelimit"
	"github.com/mezonai/quorumcoin/service"
	"github.com/mezonai/quorumcoin/store"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

var (
	nodeConfigPath string
	nodeTuningPath string
)

var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a ledger replica",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNode(cmd.Context(), nodeConfigPath, nodeTuningPath)
	},
}

func init() {
	rootCmd.AddCommand(nodeCmd)
	nodeCmd.Flags().StringVarP(&nodeConfigPath, "config", "c", "config/node.yml", "replica configuration file")
	nodeCmd.Flags().StringVar(&nodeTuningPath, "tuning", "", "optional INI file with rate limit and CORS settings")
}

func runNode(parent context.Context, configPath, tuningPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadNodeConfig(configPath)
	if err != nil {
		return fmt.Errorf("load node config: %w", err)
	}
	privKey, err := config.LoadEd25519PrivKey(cfg.SelfNode.PrivKeyPath)
	if err != nil {
		return fmt.Errorf("load private key: %w", err)
	}
	key, err := crypto.NewKeyPair(privKey)
	if err != nil {
		return fmt.Errorf("load private key: %w", err)
	}

	ledgerStore, err := store.CreateLedgerStore(&cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Type, err)
	}
	defer ledgerStore.MustClose()

	monitoring.InitMetrics()
	ld := ledger.NewLedger(ledgerStore, cfg.LedgerConfig())
	sealer := service.NewSealer(cfg.SelfNode.ID, key)
	ledgerSvc := service.NewLedgerService(ld, sealer)
	healthSvc := service.NewHealthService(ld, sealer, cfg.SelfNode.ID)

	srv := jsonrpc.NewServer(cfg.SelfNode.ListenAddr, ledgerSvc, healthSvc)
	if err := configureServer(srv, tuningPath); err != nil {
		return err
	}
	srv.Start()

	var metricsSrv *http.Server
	if cfg.SelfNode.MetricsAddr != "" {
		mux := http.NewServeMux()
		monitoring.RegisterMetrics(mux)
		metricsSrv = &http.Server{Addr: cfg.SelfNode.MetricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		exception.SafeGoWithPanic("metrics-server", func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				logx.Error("MONITORING", "metrics server stopped:", err.Error())
			}
		})
	}

	logx.Info("NODE", fmt.Sprintf("Replica %s serving, public key %s", cfg.SelfNode.ID, key.Encoded))
	<-ctx.Done()
	logx.Info("NODE", "Shutting down replica", cfg.SelfNode.ID)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}

// configureServer applies tuning file settings, falling back to CORS_* environment variables
func configureServer(srv *jsonrpc.Server, tuningPath string) error {
	if tuningPath == "" {
		srv.SetRateLimiters(ratelimit.NewLimiters(nil))
		if cors, ok := jsonrpc.CORSFromEnv(); ok {
			srv.SetCORSConfig(cors)
		}
		return nil
	}

	tuning, err := config.LoadTuningConfig(tuningPath)
	if err != nil {
		return fmt.Errorf("load tuning config: %w", err)
	}
	srv.SetRateLimiters(ratelimit.NewLimiters(tuning.RPC.Limiters()))

	origins, methods, headers, maxAge := tuning.RPC.CORS()
	cors := jsonrpc.CORSConfig{AllowedOrigins: origins, AllowedMethods: methods, AllowedHeaders: headers, MaxAge: maxAge}
	if env, ok := jsonrpc.CORSFromEnv(); ok && len(origins) == 0 {
		cors = env
	}
	srv.SetCORSConfig(cors)
	return nil
}
