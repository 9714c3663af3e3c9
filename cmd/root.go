package cmd

import (
	"os"

	"github.com/mezonai/quorumcoin/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quorumcoin",
	Short: "Replicated coin ledger",
	Long:  "Command line interface for running ledger replicas and talking to them through a quorum.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", "Command execution failed:", err)
		os.Exit(1)
	}
}
