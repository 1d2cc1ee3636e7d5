package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"merkledrop/crypto"
	"merkledrop/rpc"
)

const (
	rpcURLEnv     = "MERKLEDROP_RPC_URL"
	passphraseEnv = "MERKLEDROP_KEY_PASSPHRASE"
)

// cliOptions carries the persistent flags shared by every subcommand.
type cliOptions struct {
	rpcURL  string
	keyFile string
	stderr  io.Writer
}

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &cliOptions{stderr: stderr}
	root := &cobra.Command{
		Use:           "drop-cli",
		Short:         "Operate a merkledrop ledger: keys, trees, tranches, campaigns and roles",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc", defaultRPCEndpoint(), "JSON-RPC endpoint of dropd (env "+rpcURLEnv+")")
	root.PersistentFlags().StringVar(&opts.keyFile, "key", "", "keystore file used to sign mutating calls")

	root.AddCommand(
		newKeyCommand(opts),
		newTreeCommand(),
		newTrancheCommand(opts),
		newCampaignCommand(opts),
		newRoleCommand(opts),
		newBalanceCommand(opts),
		newEventsCommand(opts),
		newInfoCommand(opts),
	)
	return root
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv(rpcURLEnv)); v != "" {
		return v
	}
	return "http://localhost:8545"
}

func (o *cliOptions) client() *rpc.Client {
	return rpc.NewClient(o.rpcURL, nil)
}

func (o *cliOptions) signer() (*crypto.PrivateKey, error) {
	if strings.TrimSpace(o.keyFile) == "" {
		return nil, fmt.Errorf("--key is required for this command")
	}
	passphrase, err := o.passphrase()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(o.keyFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", o.keyFile, err)
	}
	return key, nil
}

// passphrase reads the keystore passphrase from the environment, falling back
// to an interactive prompt when stdin is a terminal.
func (o *cliOptions) passphrase() (string, error) {
	if v, ok := os.LookupEnv(passphraseEnv); ok {
		return v, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}
	fmt.Fprint(o.stderr, "Keystore passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(o.stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
