package cmd

import (
	"fmt"

	"github.com/mezonai/quorumcoin/config"
	"github.com/mezonai/quorumcoin/crypto"
	"github.com/spf13/cobra"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key for a replica or wallet",
	Long: `Writes a new hex encoded ed25519 seed to --out and prints the base58 public key
(to list under a client's replicas) and the account key hash.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := config.SaveEd25519PrivKey(keygenOut, key.Private); err != nil {
			return fmt.Errorf("write key: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "key file:   %s\npublic key: %s\nkey hash:   %s\n", keygenOut, key.Encoded, key.Hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "keys/node.key", "path of the key file to write")
}
