package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/robertrobercik2000-sudo/pqtrust/wallet"
)

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}

func parseAEAD(s string) (wallet.AEADAlg, error) {
	switch s {
	case "gcm-siv", "gcm":
		return wallet.AlgAESGCM, nil
	case "xchacha20":
		return wallet.AlgXChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("unknown --aead %q (want gcm-siv|xchacha20)", s)
	}
}

func parsePepper(s string) (wallet.PepperMode, error) {
	switch s {
	case "none":
		return wallet.PepperNone, nil
	case "os-local":
		return wallet.PepperOSLocal, nil
	default:
		return 0, fmt.Errorf("unknown --pepper %q (want none|os-local)", s)
	}
}

func walletInitCmd() *cobra.Command {
	var file, aead, pepper string
	var padBlock uint32

	cmd := &cobra.Command{
		Use:   "wallet-init",
		Short: "Create a new PQ wallet keyfile",
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseAEAD(aead)
			if err != nil {
				return err
			}
			pepperMode, err := parsePepper(pepper)
			if err != nil {
				return err
			}
			pw, err := readPassword("new wallet password: ")
			if err != nil {
				return err
			}
			kf, _, err := wallet.Create(file, pw, alg, pepperMode, padBlock)
			if err != nil {
				return fmt.Errorf("create wallet: %w", err)
			}
			logger.Info("wallet created", zap.String("path", file), zap.Stringer("wallet_id", kf.WalletID))
			fmt.Printf("created wallet %s (id %s)\n", file, kf.WalletID)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "keyfile path")
	cmd.Flags().StringVar(&aead, "aead", "xchacha20", "aead algorithm: gcm-siv|xchacha20")
	cmd.Flags().StringVar(&pepper, "pepper", "none", "pepper mode: none|os-local")
	cmd.Flags().Uint32Var(&padBlock, "pad-block", wallet.DefaultPadBlock, "plaintext padding block size")
	cmd.MarkFlagRequired("file")
	return cmd
}

// bech32mAddress is a placeholder address encoding: no bech32m library
// appears anywhere in the example pack, so public keys are rendered as a
// prefixed hex string rather than fabricating a dependency for one
// encoding call. See DESIGN.md.
func bech32mAddress(scanPK [32]byte) string {
	return "pq1" + hex.EncodeToString(scanPK[:])
}

func walletAddrCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "wallet-addr",
		Short: "Print a wallet's public address and public keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword("wallet password: ")
			if err != nil {
				return err
			}
			_, identity, err := wallet.Unlock(file, pw)
			if err != nil {
				return fmt.Errorf("unlock wallet: %w", err)
			}
			signPK, kemPK, scanPK, err := wallet.ExportPublic(identity)
			if err != nil {
				return fmt.Errorf("export public keys: %w", err)
			}
			fmt.Printf("address:  %s\n", bech32mAddress(scanPK))
			fmt.Printf("sign_pk:  %s\n", hex.EncodeToString(signPK))
			fmt.Printf("kem_pk:   %s\n", hex.EncodeToString(kemPK))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "keyfile path")
	cmd.MarkFlagRequired("file")
	return cmd
}

func walletExportCmd() *cobra.Command {
	var file, out string
	var secret bool

	cmd := &cobra.Command{
		Use:   "wallet-export",
		Short: "Export a wallet's public keys, or its private seed with --secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := readPassword("wallet password: ")
			if err != nil {
				return err
			}
			if !secret {
				_, identity, err := wallet.Unlock(file, pw)
				if err != nil {
					return fmt.Errorf("unlock wallet: %w", err)
				}
				signPK, kemPK, scanPK, err := wallet.ExportPublic(identity)
				if err != nil {
					return err
				}
				fmt.Printf("sign_pk: %s\nkem_pk:  %s\nscan_pk: %s\n",
					hex.EncodeToString(signPK), hex.EncodeToString(kemPK), hex.EncodeToString(scanPK[:]))
				return nil
			}

			if out == "" {
				return fmt.Errorf("--secret requires --out")
			}
			confirm, err := readPassword("confirm password again to export private material: ")
			if err != nil {
				return err
			}
			if string(confirm) != string(pw) {
				return fmt.Errorf("password confirmation did not match")
			}
			seed, err := wallet.ExportPrivate(file, pw)
			if err != nil {
				return fmt.Errorf("export private material: %w", err)
			}
			if err := os.WriteFile(out, []byte(hex.EncodeToString(seed[:])), 0600); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			logger.Warn("private master seed exported", zap.String("source", file), zap.String("out", out))
			fmt.Printf("wrote master seed to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "keyfile path")
	cmd.Flags().BoolVar(&secret, "secret", false, "export private master seed instead of public keys")
	cmd.Flags().StringVar(&out, "out", "", "output path for --secret export")
	cmd.MarkFlagRequired("file")
	return cmd
}

func walletRekeyCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "wallet-rekey",
		Short: "Re-wrap a wallet keyfile under a new password",
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPW, err := readPassword("current wallet password: ")
			if err != nil {
				return err
			}
			newPW, err := readPassword("new wallet password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword("confirm new password: ")
			if err != nil {
				return err
			}
			if string(confirm) != string(newPW) {
				return fmt.Errorf("new password confirmation did not match")
			}
			if _, err := wallet.Rekey(file, oldPW, newPW); err != nil {
				return fmt.Errorf("rekey wallet: %w", err)
			}
			logger.Info("wallet rekeyed", zap.String("path", file))
			fmt.Printf("rewrapped %s under new password\n", file)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "keyfile path")
	cmd.MarkFlagRequired("file")
	return cmd
}
