// Package config holds the tunable parameters that govern one chain's
// consensus and wallet defaults, loaded from a YAML file or a built-in
// preset.
//
// Grounded on luxfi-consensus/config/parameters.go: a single Parameters
// struct of tunables with named preset constructors (Mainnet/Testnet/
// Local); we follow the identical shape with a Default() preset and a
// Load(path) that decodes the same struct from YAML via gopkg.in/yaml.v3.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/robertrobercik2000-sudo/pqtrust/fixedpoint"
	"github.com/robertrobercik2000-sudo/pqtrust/leader"
	"github.com/robertrobercik2000-sudo/pqtrust/trust"
	"github.com/robertrobercik2000-sudo/pqtrust/wallet"
)

// Parameters collects every tunable spec.md leaves as a configuration
// knob rather than a hard-coded constant.
type Parameters struct {
	// MinBond is the minimum stake (in the registry's native stake unit)
	// a validator needs to qualify for a snapshot.
	MinBond uint64 `yaml:"min_bond"`

	// Trust is the {alpha, beta, init} update-rule configuration (§4.C).
	Trust TrustParams `yaml:"trust"`

	// SlashNoRevealBps is the basis-points penalty applied to a
	// committed-but-not-revealed RANDAO participant (§4.F).
	SlashNoRevealBps uint32 `yaml:"slash_noreveal_bps"`

	// SlashEquivocationBps is the basis-points penalty applied to a
	// detected equivocator (§4.H).
	SlashEquivocationBps uint32 `yaml:"slash_equivocation_bps"`

	// LeaderVariant selects deterministic rotation (default) or
	// probabilistic sortition (§4.G).
	LeaderVariant string `yaml:"leader_variant"`

	// LambdaBps is the sortition variant's expected-leaders-per-slot
	// parameter, expressed in basis points of ONE_Q.
	LambdaBps uint32 `yaml:"lambda_bps"`

	// MaxSkewSecs bounds the hint envelope's replay window (§4.I).
	MaxSkewSecs int64 `yaml:"max_skew_secs"`

	// Wallet holds the defaults Create applies when the CLI does not
	// override them.
	Wallet WalletParams `yaml:"wallet"`
}

// TrustParams mirrors trust.Params in basis-points form for YAML
// round-tripping; Q is a wire-unfriendly raw fixed-point integer.
type TrustParams struct {
	AlphaBps uint32 `yaml:"alpha_bps"`
	BetaBps  uint32 `yaml:"beta_bps"`
	InitBps  uint32 `yaml:"init_bps"`
}

// ToTrustParams converts the YAML-friendly basis-points form into the
// fixed-point trust.Params the trust package consumes.
func (t TrustParams) ToTrustParams() trust.Params {
	return trust.Params{
		Alpha: fixedpoint.FromBasisPoints(t.AlphaBps),
		Beta:  fixedpoint.FromBasisPoints(t.BetaBps),
		Init:  fixedpoint.FromBasisPoints(t.InitBps),
	}
}

// WalletParams holds the keyfile defaults §4.J names: Argon2id tuning
// and the padding block size.
type WalletParams struct {
	ArgonMemoryKiB uint32 `yaml:"argon_memory_kib"`
	ArgonTime      uint32 `yaml:"argon_time"`
	ArgonThreads   uint8  `yaml:"argon_threads"`
	PadBlock       uint32 `yaml:"pad_block"`
}

// LeaderVariantValue resolves the configured leader-selection variant,
// defaulting to the frozen deterministic-rotation protocol default for
// any unrecognized or empty value.
func (p Parameters) LeaderVariantValue() leader.Variant {
	if p.LeaderVariant == "sortition" {
		return leader.VariantSortition
	}
	return leader.VariantDeterministic
}

// Lambda converts LambdaBps into the Q32.32 sortition parameter.
func (p Parameters) Lambda() fixedpoint.Q {
	return fixedpoint.FromBasisPoints(p.LambdaBps)
}

// Default returns spec.md's documented defaults: max_skew_secs=7200,
// Argon2id {m=512MiB, t=3, p=1}, pad_block=1024.
func Default() Parameters {
	return Parameters{
		MinBond: 1,
		Trust: TrustParams{
			AlphaBps: 9900,
			BetaBps:  100,
			InitBps:  1000,
		},
		SlashNoRevealBps:     500,
		SlashEquivocationBps: 5000,
		LeaderVariant:        "deterministic",
		LambdaBps:            10000,
		MaxSkewSecs:          7200,
		Wallet: WalletParams{
			ArgonMemoryKiB: wallet.DefaultArgonMemoryKiB,
			ArgonTime:      wallet.DefaultArgonTime,
			ArgonThreads:   wallet.DefaultArgonThreads,
			PadBlock:       wallet.DefaultPadBlock,
		},
	}
}

// Load reads and decodes a YAML parameters file, starting from Default()
// so an omitted field keeps its documented default rather than zeroing.
func Load(path string) (Parameters, error) {
	p := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Parameters{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Parameters{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return p, nil
}
