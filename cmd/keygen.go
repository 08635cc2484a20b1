package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"debotbrowser/pkg/crypto"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key pair",
	Long:  "Prints a new key pair as JSON, or writes it to a file usable with --keys and browser.keys_path.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args
		if err := keygen(cmd.OutOrStdout(), keygenOut); err != nil {
			fmt.Printf("keygen failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "write the key pair to this file instead of stdout")
}

func keygen(out io.Writer, path string) error {
	keys, err := crypto.GenerateKeyPair()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if path == "" {
		_, err = out.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key pair: %w", err)
	}
	_, err = fmt.Fprintf(out, "public key: %s\n", keys.Public)
	return err
}
