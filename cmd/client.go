package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"github.com/mezonai/quorumcoin/client"
	"github.com/mezonai/quorumcoin/config"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/mezonai/quorumcoin/jsonx"
	"github.com/mezonai/quorumcoin/logx"
	"github.com/mezonai/quorumcoin/quorum"
	"github.com/spf13/cobra"
)

type ClientFlags struct {
	ConfigPath string
	TuningPath string
	KeyPath    string
	Threshold  int
}

var clientFlags ClientFlags

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to the replicas through a quorum",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// keep stdout for results
		logx.SetOutput(os.Stderr)
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the wallet account on every replica",
	RunE: withSession(func(ctx context.Context, s *quorum.Session, _ []string) (interface{}, error) {
		return s.Register(ctx)
	}),
}

var (
	sendTo     string
	sendAmount string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send coins to another account",
	Long: `Sends coins from the wallet account to --to, a key hash. The amount may use _ as a
digit separator. The printed send-link id and signature are what the recipient passes to receive.`,
	RunE: withSession(func(ctx context.Context, s *quorum.Session, _ []string) (interface{}, error) {
		amount, err := uint256.FromDecimal(strings.ReplaceAll(sendAmount, "_", ""))
		if err != nil {
			return nil, fmt.Errorf("could not parse amount %q: %w", sendAmount, err)
		}
		return s.Send(ctx, sendTo, amount)
	}),
}

var (
	receiveID  string
	receiveSig string
)

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Claim a pending send-link",
	RunE: withSession(func(ctx context.Context, s *quorum.Session, _ []string) (interface{}, error) {
		return s.Receive(ctx, receiveID, receiveSig)
	}),
}

var checkCmd = &cobra.Command{
	Use:   "check [key-hash]",
	Short: "Show the agreed balance of an account, the wallet's by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *quorum.Session, args []string) (interface{}, error) {
		state, coll, err := s.Check(ctx, target(s, args))
		reportFaulty(coll)
		return state, err
	}),
}

var auditCmd = &cobra.Command{
	Use:   "audit [key-hash]",
	Short: "Show the agreed transaction chain of an account",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *quorum.Session, args []string) (interface{}, error) {
		chain, coll, err := s.Audit(ctx, target(s, args))
		reportFaulty(coll)
		return chain, err
	}),
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [key-hash]",
	Short: "Write the agreed chain back to lagging replicas",
	Args:  cobra.MaximumNArgs(1),
	RunE: withSession(func(ctx context.Context, s *quorum.Session, args []string) (interface{}, error) {
		report, err := s.Reconcile(ctx, target(s, args))
		if err != nil {
			return nil, err
		}
		return reportView(report), nil
	}),
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query every replica's health",
	RunE: withCoordinator(func(ctx context.Context, coord *quorum.Coordinator) (interface{}, error) {
		coll, err := coord.Health(ctx)
		if coll == nil {
			return nil, err
		}
		_ = coll.WaitAll(ctx)
		out := make(map[string]interface{})
		for _, r := range coll.Replies() {
			if r.OK() {
				out[r.Replica] = r.Payload
			} else {
				out[r.Replica] = map[string]string{"error": r.Err.Error()}
			}
		}
		return out, nil
	}),
}

func init() {
	rootCmd.AddCommand(clientCmd)
	clientCmd.AddCommand(registerCmd, sendCmd, receiveCmd, checkCmd, auditCmd, reconcileCmd, healthCmd)

	clientCmd.PersistentFlags().StringVarP(&clientFlags.ConfigPath, "config", "c", "config/client.yml", "client configuration file")
	clientCmd.PersistentFlags().StringVar(&clientFlags.TuningPath, "tuning", "", "optional INI file with [quorum] overrides")
	clientCmd.PersistentFlags().StringVarP(&clientFlags.KeyPath, "key", "k", "", "wallet key file, overrides wallet_key_path")
	clientCmd.PersistentFlags().IntVar(&clientFlags.Threshold, "threshold", 0, "agreeing replies required, overrides the configuration")

	sendCmd.Flags().StringVarP(&sendTo, "to", "t", "", "key hash of the recipient")
	sendCmd.Flags().StringVarP(&sendAmount, "amount", "a", "", "amount to send")
	_ = sendCmd.MarkFlagRequired("to")
	_ = sendCmd.MarkFlagRequired("amount")

	receiveCmd.Flags().StringVar(&receiveID, "id", "", "id of the send-link")
	receiveCmd.Flags().StringVar(&receiveSig, "signature", "", "signature of the send-link")
	_ = receiveCmd.MarkFlagRequired("id")
	_ = receiveCmd.MarkFlagRequired("signature")
}

func loadClientConfig(flags ClientFlags) (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if flags.TuningPath != "" {
		tuning, err := config.LoadTuningConfig(flags.TuningPath)
		if err != nil {
			return nil, fmt.Errorf("load tuning config: %w", err)
		}
		tuning.Quorum.Apply(cfg)
	}
	if flags.Threshold > 0 {
		cfg.Threshold = flags.Threshold
	}
	if flags.KeyPath != "" {
		cfg.WalletKeyPath = flags.KeyPath
	}
	return cfg, nil
}

func newCoordinator(cfg *config.ClientConfig) (*quorum.Coordinator, error) {
	var replicas []client.Replica
	for _, rc := range cfg.ReplicaClientConfigs() {
		c, err := client.NewReplicaClient(rc)
		if err != nil {
			return nil, fmt.Errorf("replica %s: %w", rc.ID, err)
		}
		replicas = append(replicas, c)
	}
	return quorum.NewCoordinator(replicas, cfg.QuorumConfig())
}

func withCoordinator(run func(ctx context.Context, coord *quorum.Coordinator) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(clientFlags)
		if err != nil {
			return err
		}
		coord, err := newCoordinator(cfg)
		if err != nil {
			return err
		}
		defer coord.Close()

		out, err := run(commandContext(cmd), coord)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	}
}

func withSession(run func(ctx context.Context, s *quorum.Session, args []string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadClientConfig(clientFlags)
		if err != nil {
			return err
		}
		if cfg.WalletKeyPath == "" {
			return fmt.Errorf("no wallet key: set wallet_key_path or --key")
		}
		priv, err := config.LoadEd25519PrivKey(cfg.WalletKeyPath)
		if err != nil {
			return fmt.Errorf("load wallet key: %w", err)
		}
		key, err := crypto.NewKeyPair(priv)
		if err != nil {
			return fmt.Errorf("load wallet key: %w", err)
		}
		coord, err := newCoordinator(cfg)
		if err != nil {
			return err
		}
		defer coord.Close()

		out, err := run(commandContext(cmd), quorum.NewSession(coord, client.NewWallet(key)), args)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func target(s *quorum.Session, args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return s.KeyHash()
}

func reportFaulty(coll *quorum.Collection) {
	if coll == nil {
		return
	}
	if faulty := coll.Faulty(); len(faulty) > 0 {
		logx.Warn("CLIENT", fmt.Sprintf("%s: replicas outside the agreeing group: %v", coll.Op(), faulty))
	}
}

func reportView(r *quorum.Report) map[string]interface{} {
	errs := func(m map[string]error) map[string]string {
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = v.Error()
		}
		return out
	}
	return map[string]interface{}{
		"key_hash":   r.KeyHash,
		"appended":   r.Appended,
		"up_to_date": r.UpToDate,
		"forked":     errs(r.Forked),
		"failed":     errs(r.Failed),
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := jsonx.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
