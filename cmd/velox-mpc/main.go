// Command velox-mpc is the process entrypoint (SPEC_FULL §A.4), grounded
// on the teacher's cobra command-tree style.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/akhilsb/velox-mpc/config"
	"github.com/akhilsb/velox-mpc/party"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	root := &cobra.Command{
		Use:   "velox-mpc",
		Short: "Asynchronous malicious-fault-tolerant MPC",
	}
	root.AddCommand(newKeygenCmd(), newRunCmd(), newSimulateCmd())
	if err := root.Execute(); err != nil {
		log.Fatal().Err(err).Msg("velox-mpc: command failed")
	}
}

func newKeygenCmd() *cobra.Command {
	var parties, faults int
	var out string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Emit pairwise secret-key table fragments for a local test network",
		Long: "keygen is a trusted-dealer convenience for local test networks, not a " +
			"cryptographic DKG: it samples one shared secret per party pair and writes " +
			"each party its own config fragment.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(parties, faults, out)
		},
	}
	cmd.Flags().IntVar(&parties, "parties", 4, "number of parties n")
	cmd.Flags().IntVar(&faults, "faults", 1, "tolerated Byzantine faults t, requires n > 3t")
	cmd.Flags().StringVar(&out, "out", "./keys", "output directory for per-party config fragments")
	return cmd
}

func runKeygen(n, t int, outDir string) error {
	if t*3 >= n {
		return fmt.Errorf("keygen: faults=%d violates t < n/3 for parties=%d", t, n)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("keygen: creating output directory: %w", err)
	}
	keys := make(map[party.ID]map[party.ID]string, n)
	for i := 0; i < n; i++ {
		keys[party.ID(i)] = make(map[party.ID]string, n-1)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			secret := make([]byte, 32)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("keygen: sampling shared secret for (%d,%d): %w", i, j, err)
			}
			enc := hex.EncodeToString(secret)
			keys[party.ID(i)][party.ID(j)] = enc
			keys[party.ID(j)][party.ID(i)] = enc
		}
	}
	for i := 0; i < n; i++ {
		cfg := config.Config{
			NumNodes:                      n,
			MyID:                          party.ID(i),
			NumFaults:                     t,
			PerBatch:                      16,
			TotBatches:                    4,
			MaxDepth:                      8,
			DelinearizationDepth:          0,
			CompressionFactor:             2,
			MultiplicationSwitchThreshold: n,
			OutputMaskSize:                8,
			PairwiseKeysHex:               keys[party.ID(i)],
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("keygen: generated config for party %d failed validation: %w", i, err)
		}
		b, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("keygen: encoding config for party %d: %w", i, err)
		}
		path := filepath.Join(outDir, fmt.Sprintf("party-%d.json", i))
		if err := os.WriteFile(path, b, 0o600); err != nil {
			return fmt.Errorf("keygen: writing %s: %w", path, err)
		}
		log.Info().Int("party", i).Str("path", path).Msg("wrote config fragment")
	}
	return nil
}

func newRunCmd() *cobra.Command {
	var configPath, circuitPath string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start this party's event loop and evaluate a circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParty(cmd.Context(), configPath, circuitPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to this party's config JSON")
	cmd.Flags().StringVar(&circuitPath, "circuit", "", "path to the circuit description to evaluate")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("circuit")
	return withSignalContext(cmd)
}

func runParty(ctx context.Context, configPath, circuitPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("run: loading config: %w", err)
	}
	log.Info().Int("party", int(cfg.MyID)).Int("n", cfg.NumNodes).Msg("loaded config")
	// The network-wired event loop tying CTRBC/AVID/RA/ACS/AVSS transport
	// to preprocessing, circuit, and output (§5) is not yet built; `run`
	// is wired up to config loading and graceful shutdown only.
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down on signal")
		return nil
	default:
		return fmt.Errorf("run: no network transport wired yet for circuit %s", circuitPath)
	}
}

func newSimulateCmd() *cobra.Command {
	var parties, faults int
	var circuitPath string
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run an in-process simulation across all parties over a loopback transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(parties, faults, circuitPath)
		},
	}
	cmd.Flags().IntVar(&parties, "parties", 4, "number of parties n")
	cmd.Flags().IntVar(&faults, "faults", 1, "tolerated Byzantine faults t")
	cmd.Flags().StringVar(&circuitPath, "circuit", "", "path to the circuit description to evaluate")
	cmd.MarkFlagRequired("circuit")
	return cmd
}

func runSimulate(n, t int, circuitPath string) error {
	log.Info().Int("parties", n).Int("faults", t).Str("circuit", circuitPath).
		Msg("simulate is not yet wired to a loopback transport")
	return fmt.Errorf("simulate: loopback transport not yet implemented")
}

func withSignalContext(cmd *cobra.Command) *cobra.Command {
	inner := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)
		return inner(cmd, args)
	}
	return cmd
}
