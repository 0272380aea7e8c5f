package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robertrobercik2000-sudo/pqtrust/shamir"
	"github.com/robertrobercik2000-sudo/pqtrust/wallet"
)

func shardsCreateCmd() *cobra.Command {
	var file, outDir, aead string
	var m, n int
	var perSharePass bool

	cmd := &cobra.Command{
		Use:   "shards-create",
		Short: "Split a wallet's master seed into M-of-N Shamir shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseAEAD(aead)
			if err != nil {
				return err
			}
			pw, err := readPassword("wallet password: ")
			if err != nil {
				return err
			}
			seed, err := wallet.ExportPrivate(file, pw)
			if err != nil {
				return fmt.Errorf("export wallet seed: %w", err)
			}

			shards, err := shamir.Split(seed, uuid.New(), m, n)
			if err != nil {
				return fmt.Errorf("split seed: %w", err)
			}
			if err := os.MkdirAll(outDir, 0700); err != nil {
				return fmt.Errorf("create out-dir %s: %w", outDir, err)
			}

			for i := range shards {
				if perSharePass {
					sharePW, err := readPassword(fmt.Sprintf("password for shard #%d: ", shards[i].Index))
					if err != nil {
						return err
					}
					if err := shamir.Wrap(&shards[i], sharePW, alg); err != nil {
						return fmt.Errorf("wrap shard #%d: %w", shards[i].Index, err)
					}
				}
				shardPath := filepath.Join(outDir, fmt.Sprintf("shard-%d.shard", shards[i].Index))
				if err := os.WriteFile(shardPath, shamir.Encode(shards[i]), 0600); err != nil {
					return fmt.Errorf("write %s: %w", shardPath, err)
				}
				fmt.Printf("wrote %s\n", shardPath)
			}
			logger.Info("shards created", zap.String("wallet", file), zap.Int("m", m), zap.Int("n", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "wallet keyfile path")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory to write shard files into")
	cmd.Flags().IntVar(&m, "m", 2, "recovery threshold")
	cmd.Flags().IntVar(&n, "n", 3, "number of shards")
	cmd.Flags().BoolVar(&perSharePass, "per-share-pass", false, "wrap each shard under its own password")
	cmd.Flags().StringVar(&aead, "aead", "xchacha20", "aead algorithm for --per-share-pass: gcm-siv|xchacha20")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("out-dir")
	return cmd
}

func shardsRecoverCmd() *cobra.Command {
	var inputList, out, aead, pepper string

	cmd := &cobra.Command{
		Use:   "shards-recover",
		Short: "Reassemble a wallet keyfile from M Shamir shards",
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := parseAEAD(aead)
			if err != nil {
				return err
			}
			pepperMode, err := parsePepper(pepper)
			if err != nil {
				return err
			}

			paths := strings.Split(inputList, ",")
			shards := make([]shamir.Shard, 0, len(paths))
			for _, p := range paths {
				raw, err := os.ReadFile(strings.TrimSpace(p))
				if err != nil {
					return fmt.Errorf("read %s: %w", p, err)
				}
				s, err := shamir.Decode(raw)
				if err != nil {
					return fmt.Errorf("decode %s: %w", p, err)
				}
				if s.Wrapped {
					sharePW, err := readPassword(fmt.Sprintf("password for %s: ", p))
					if err != nil {
						return err
					}
					s, err = shamir.Unwrap(s, sharePW, alg)
					if err != nil {
						return fmt.Errorf("unwrap %s: %w", p, err)
					}
				}
				shards = append(shards, s)
			}

			seed, err := shamir.Recover(shards)
			if err != nil {
				return fmt.Errorf("recover seed: %w", err)
			}

			newPW, err := readPassword("password for recovered wallet: ")
			if err != nil {
				return err
			}
			if _, _, err := wallet.CreateFromSeed(out, seed, newPW, alg, pepperMode, wallet.DefaultPadBlock); err != nil {
				return fmt.Errorf("recreate wallet: %w", err)
			}
			logger.Info("wallet recovered from shards", zap.Int("shard_count", len(shards)), zap.String("out", out))
			fmt.Printf("recovered wallet written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&inputList, "input", "", "comma-separated shard file paths")
	cmd.Flags().StringVar(&out, "out", "", "output wallet keyfile path")
	cmd.Flags().StringVar(&aead, "aead", "xchacha20", "aead algorithm: gcm-siv|xchacha20")
	cmd.Flags().StringVar(&pepper, "pepper", "none", "pepper mode: none|os-local")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("out")
	return cmd
}
