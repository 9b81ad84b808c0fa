package main

import (
	"bufio"
	"fmt"
	"strings"

	"interview-concierge/internal/auth"
	"interview-concierge/internal/crypto"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func passcodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "passcode",
		Short: "Passcode utilities",
	}

	cmd.AddCommand(passcodeHashCmd())
	return cmd
}

func passcodeHashCmd() *cobra.Command {
	var useBcrypt bool

	cmd := &cobra.Command{
		Use:   "hash [passcode]",
		Short: "Print a hash for auth.passcode_hash",
		Long: `Print a hash for auth.passcode_hash. The passcode is read from the
first line of stdin when not given as an argument.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read passcode: %w", err)
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			if plain == "" {
				return fmt.Errorf("passcode is empty")
			}

			var hash string
			if useBcrypt {
				raw, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
				if err != nil {
					return fmt.Errorf("failed to hash passcode: %w", err)
				}
				hash = string(raw)
			} else {
				var err error
				hash, err = auth.HashPasscode(plain)
				if err != nil {
					return err
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().BoolVar(&useBcrypt, "bcrypt", false, "use bcrypt instead of argon2id")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Print a random key for flow_store.encryption_key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
