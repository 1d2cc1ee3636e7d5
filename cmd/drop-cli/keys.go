package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"merkledrop/crypto"
)

func newKeyCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage signing keys",
	}

	var out string
	var lightKDF bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Generate a key and write it as an encrypted keystore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if _, err := os.Stat(out); err == nil {
				return fmt.Errorf("refusing to overwrite existing keystore %s", out)
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return err
			}
			passphrase, err := opts.passphrase()
			if err != nil {
				return err
			}
			var kdf []crypto.KeystoreOption
			if lightKDF {
				kdf = append(kdf, crypto.WithLightKDF())
			}
			if err := crypto.SaveToKeystore(out, key, passphrase, kdf...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nhex:     %s\n", crypto.FormatAddress(key.Address()), key.Address().Hex())
			return nil
		},
	}
	generate.Flags().StringVar(&out, "out", "", "keystore output path")
	generate.Flags().BoolVar(&lightKDF, "lightkdf", false, "weaker, faster key derivation for development keys")

	address := &cobra.Command{
		Use:   "address",
		Short: "Print the address of --key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := opts.signer()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nhex:     %s\n", crypto.FormatAddress(key.Address()), key.Address().Hex())
			return nil
		},
	}

	cmd.AddCommand(generate, address)
	return cmd
}
