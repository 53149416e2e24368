// Package config loads the process-wide configuration enumerated in
// §6. The loader, CLI flag wiring and signal handling are themselves
// named out of scope for the core (§1), but the Config type is the
// seam every in-scope component reads from, so it lives here rather
// than being duplicated per package.
package config

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/akhilsb/velox-mpc/field"
	"github.com/akhilsb/velox-mpc/pairwise"
	"github.com/akhilsb/velox-mpc/party"
	"github.com/akhilsb/velox-mpc/sharecodec"
)

// Config mirrors §6's enumerated fields exactly.
type Config struct {
	NumNodes                      int                  `json:"num_nodes"`
	MyID                          party.ID             `json:"myid"`
	NumFaults                     int                  `json:"num_faults"`
	PerBatch                      int                  `json:"per_batch"`
	TotBatches                    int                  `json:"tot_batches"`
	UseFFT                        bool                 `json:"use_fft"`
	MaxDepth                      int                  `json:"max_depth"`
	DelinearizationDepth          int                  `json:"delinearization_depth"`
	CompressionFactor             int                  `json:"compression_factor"`
	MultiplicationSwitchThreshold int                  `json:"multiplication_switch_threshold"`
	OutputMaskSize                int                   `json:"output_mask_size"`
	PairwiseKeysHex               map[party.ID]string  `json:"pairwise_keys_hex"`

	// FFTGeneratorHex fixes the process-wide primitive n-th root of
	// unity used by the FFT basis (§4.1). Ignored when UseFFT is false.
	FFTGeneratorHex string `json:"fft_generator_hex,omitempty"`
}

// Basis returns the evaluation basis this config selects (§3).
func (c *Config) Basis() sharecodec.Basis {
	if c.UseFFT {
		return sharecodec.BasisFFT
	}
	return sharecodec.BasisAlgebraic
}

// FFTGenerator decodes the configured root-of-unity generator. Only
// meaningful when UseFFT is set.
func (c *Config) FFTGenerator() (field.Element, error) {
	b, err := hex.DecodeString(c.FFTGeneratorHex)
	if err != nil {
		return field.Element{}, fmt.Errorf("config: decoding fft_generator_hex: %w", err)
	}
	if len(b) != 32 {
		padded := make([]byte, 32)
		copy(padded[32-len(b):], b)
		b = padded
	}
	return field.FromBytes(b)
}

// Validate enforces the structural invariants the rest of the protocol
// assumes without re-checking (n > 3t, valid self id, sane depths).
func (c *Config) Validate() error {
	if c.NumNodes <= 0 {
		return fmt.Errorf("config: num_nodes must be positive")
	}
	if c.NumFaults*3 >= c.NumNodes {
		return fmt.Errorf("config: num_faults=%d violates t < n/3 for n=%d", c.NumFaults, c.NumNodes)
	}
	if int(c.MyID) < 0 || int(c.MyID) >= c.NumNodes {
		return fmt.Errorf("config: myid %d out of range [0,%d)", c.MyID, c.NumNodes)
	}
	if c.PerBatch <= 0 || c.TotBatches <= 0 {
		return fmt.Errorf("config: per_batch and tot_batches must be positive")
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("config: max_depth must be non-negative")
	}
	if c.DelinearizationDepth > c.MaxDepth {
		return fmt.Errorf("config: delinearization_depth %d exceeds max_depth %d", c.DelinearizationDepth, c.MaxDepth)
	}
	if c.CompressionFactor < 2 {
		return fmt.Errorf("config: compression_factor must be >= 2")
	}
	if c.MultiplicationSwitchThreshold <= 0 {
		return fmt.Errorf("config: multiplication_switch_threshold must be positive")
	}
	if c.UseFFT && (c.NumNodes&(c.NumNodes-1)) != 0 {
		return fmt.Errorf("config: FFT basis requires num_nodes to be a power of two, got %d", c.NumNodes)
	}
	return nil
}

// Threshold returns t.
func (c *Config) Threshold() int { return c.NumFaults }

// PairwiseTable decodes PairwiseKeysHex into a pairwise.Table for this
// party.
func (c *Config) PairwiseTable() (*pairwise.Table, error) {
	keys := make(map[party.ID][]byte, len(c.PairwiseKeysHex))
	for id, hexKey := range c.PairwiseKeysHex {
		k, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("config: decoding pairwise key for party %d: %w", id, err)
		}
		keys[id] = k
	}
	return pairwise.NewTable(c.MyID, keys), nil
}

// Load reads and validates a Config from a JSON file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
