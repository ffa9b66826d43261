package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/shyim/db-vault/internal/config"
	"github.com/shyim/db-vault/internal/keys"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new encryption key",
	Long: `Generate a random 32-byte key encoded as base64 for use with --key or --key-file.

Examples:
  # Print a key
  db-vault keygen

  # Write a key file readable only by the current user
  db-vault keygen --output /etc/db-vault/key`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

var keygenOutput string

func init() {
	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Write the key to this file instead of stdout (must not exist)")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, err := keys.Generate()
	if err != nil {
		return err
	}

	if keygenOutput == "" {
		fmt.Println(key)
		return nil
	}

	f, err := os.OpenFile(keygenOutput, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	if _, err := fmt.Fprintln(f, key); err != nil {
		_ = f.Close()
		_ = os.Remove(keygenOutput)
		return fmt.Errorf("failed to write key file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(keygenOutput)
		return fmt.Errorf("failed to write key file: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key written to %s\n", keygenOutput)
	return nil
}

// keyMaterial returns the configured key, prompting for it when stdin is a terminal
// and neither --key nor --key-file is set.
func keyMaterial(cfg *config.Config) (string, error) {
	material, err := cfg.KeyMaterial()
	if !errors.Is(err, config.ErrNoKey) {
		return material, err
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("%w: set --key, --key-file or %sKEY", config.ErrNoKey, config.EnvPrefix)
	}

	fmt.Fprint(os.Stderr, "Encryption key: ")
	key, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("failed to read key: %w", err)
	}

	return strings.TrimSpace(string(key)), nil
}
